package main

import (
	"github.com/urfave/cli/v2"
)

var balance = cli.Command{
	Name:  "balance",
	Usage: "get the balance of a wallet account, per asset",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "account",
			Usage: "the name of the wallet account, defaults to the main one",
		},
	},
	Action: balanceAction,
}

func balanceAction(ctx *cli.Context) error {
	result, err := callRPC("get_balance", map[string]interface{}{
		"account": ctx.String("account"),
	})
	if err != nil {
		return err
	}

	printJSON(result)

	return nil
}
