package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var resync = cli.Command{
	Name:  "resync",
	Usage: "re-run the discovery scan of a wallet account",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "account",
			Usage: "the name of the wallet account, defaults to the main one",
		},
	},
	Action: resyncAction,
}

func resyncAction(ctx *cli.Context) error {
	if _, err := callRPC("resync", map[string]interface{}{
		"account": ctx.String("account"),
	}); err != nil {
		return err
	}

	fmt.Println("account synced")

	return nil
}
