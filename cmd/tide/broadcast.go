package main

import (
	"github.com/urfave/cli/v2"
)

var broadcast = cli.Command{
	Name:  "broadcast",
	Usage: "sign and broadcast a transaction build created with createtx",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "id",
			Usage:    "the id of the build to sign and broadcast",
			Required: true,
		},
	},
	Action: broadcastAction,
}

func broadcastAction(ctx *cli.Context) error {
	result, err := callRPC("sign_and_broadcast", map[string]interface{}{
		"id": ctx.String("id"),
	})
	if err != nil {
		return err
	}

	printJSON(result)

	return nil
}
