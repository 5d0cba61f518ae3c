package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tide-network/tide-daemon/pkg/wallet"
)

var genseed = cli.Command{
	Name:  "genseed",
	Usage: "generate a mnemonic seed, runs locally without the daemon",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "entropy",
			Usage: "entropy size in bits, 128 to 256 in steps of 32",
			Value: 256,
		},
	},
	Action: genSeedAction,
}

func genSeedAction(ctx *cli.Context) error {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{
		EntropySize: ctx.Int("entropy"),
	})
	if err != nil {
		return err
	}

	fmt.Println(mnemonic)

	return nil
}
