package main

import (
	"github.com/urfave/cli/v2"
)

var address = cli.Command{
	Name:  "address",
	Usage: "derive the next unused address of a wallet account",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "account",
			Usage: "the name of the wallet account, defaults to the main one",
		},
		&cli.BoolFlag{
			Name:  "change",
			Usage: "derive on the internal chain instead of the external one",
		},
	},
	Action: addressAction,
}

func addressAction(ctx *cli.Context) error {
	result, err := callRPC("new_address", map[string]interface{}{
		"account": ctx.String("account"),
		"change":  ctx.Bool("change"),
	})
	if err != nil {
		return err
	}

	printJSON(result)

	return nil
}
