package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tide-network/tide-daemon/pkg/wallet"
)

var encrypt = cli.Command{
	Name: "encrypt",
	Usage: "encrypt a mnemonic with a passphrase, runs locally. Store the " +
		"output in the mnemonic file and set TIDE_MNEMONIC_PASSPHRASE to " +
		"let the daemon unseal it at startup",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "mnemonic",
			Usage:    "the mnemonic to encrypt",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "passphrase",
			Usage:    "the passphrase sealing the mnemonic",
			Required: true,
		},
	},
	Action: encryptAction,
}

func encryptAction(ctx *cli.Context) error {
	cipherText, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  ctx.String("mnemonic"),
		Passphrase: ctx.String("passphrase"),
	})
	if err != nil {
		return err
	}

	fmt.Println(cipherText)

	return nil
}
