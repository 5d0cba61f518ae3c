package main

import (
	"github.com/urfave/cli/v2"
)

var createtx = cli.Command{
	Name: "createtx",
	Usage: "create an unsigned transaction sending an amount of an asset " +
		"to an address, broadcast it with the returned build id",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "account",
			Usage: "the name of the wallet account, defaults to the main one",
		},
		&cli.StringFlag{
			Name:     "asset",
			Usage:    "the hash of the asset to send",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "amount",
			Usage:    "the amount to send, in satoshis",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "to",
			Usage:    "the address of the receiver",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:  "millisatsperbyte",
			Usage: "the fee rate, omit to let the daemon estimate it",
		},
	},
	Action: createTxAction,
}

func createTxAction(ctx *cli.Context) error {
	result, err := callRPC("create_transaction", map[string]interface{}{
		"account": ctx.String("account"),
		"targets": []map[string]interface{}{
			{
				"asset":   ctx.String("asset"),
				"amount":  ctx.Uint64("amount"),
				"address": ctx.String("to"),
			},
		},
		"millisats_per_byte": ctx.Uint64("millisatsperbyte"),
	})
	if err != nil {
		return err
	}

	printJSON(result)

	return nil
}
