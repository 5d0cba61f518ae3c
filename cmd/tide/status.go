package main

import (
	"github.com/urfave/cli/v2"
)

var status = cli.Command{
	Name:   "status",
	Usage:  "returns info about the status of the daemon and its accounts",
	Action: statusAction,
}

func statusAction(ctx *cli.Context) error {
	result, err := callRPC("status", nil)
	if err != nil {
		return err
	}

	printJSON(result)

	return nil
}
