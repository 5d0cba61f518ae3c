package main

import (
	"github.com/urfave/cli/v2"
)

var transactions = cli.Command{
	Name:  "txs",
	Usage: "get the transaction history of a wallet account",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "account",
			Usage: "the name of the wallet account, defaults to the main one",
		},
	},
	Action: transactionsAction,
}

func transactionsAction(ctx *cli.Context) error {
	result, err := callRPC("get_transactions", map[string]interface{}{
		"account": ctx.String("account"),
	})
	if err != nil {
		return err
	}

	printJSON(result)

	return nil
}
