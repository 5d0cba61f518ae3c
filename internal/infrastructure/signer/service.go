package signer

import (
	"context"
	"fmt"

	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/internal/infrastructure/chain/electrum"
	"github.com/tide-network/tide-daemon/pkg/wallet"
	"github.com/vulpemventures/go-elements/network"
)

// service is the software signer bundled with the daemon. It holds the HD
// wallet restored from the configured mnemonic in memory and serves key
// derivation and signing from it. The blinding keys follow SLIP77 from the
// same seed, so a wallet restored from the mnemonic alone can always unblind
// the outputs it owns.
type service struct {
	wallet *wallet.Wallet
	net    *network.Network
}

func NewService(mnemonic string, net *network.Network) (ports.Signer, error) {
	if net == nil {
		return nil, wallet.ErrNullNetwork
	}
	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return nil, err
	}
	return &service{wallet: w, net: net}, nil
}

func (s *service) AccountXPub(account uint32) (string, error) {
	return s.wallet.AccountExtendedPublicKey(wallet.ExtendedKeyOpts{
		Account: account,
	})
}

func (s *service) DeriveAddress(
	account uint32, chain int, index uint32, confidential bool,
) (*ports.AddressInfo, error) {
	derivationPath := fmt.Sprintf("%d'/%d/%d", account, chain, index)
	opts := wallet.DeriveAddressOpts{
		DerivationPath: derivationPath,
		Network:        s.net,
	}

	if !confidential {
		addr, script, err := s.wallet.DeriveAddress(opts)
		if err != nil {
			return nil, err
		}
		return &ports.AddressInfo{
			Address:        addr,
			Script:         script,
			ScriptHash:     electrum.ScriptHash(script),
			DerivationPath: derivationPath,
		}, nil
	}

	addr, script, err := s.wallet.DeriveConfidentialAddress(opts)
	if err != nil {
		return nil, err
	}
	blindingPrvkey, _, err := s.wallet.DeriveBlindingKeyPair(
		wallet.DeriveBlindingKeyPairOpts{Script: script},
	)
	if err != nil {
		return nil, err
	}
	return &ports.AddressInfo{
		Address:        addr,
		Script:         script,
		ScriptHash:     electrum.ScriptHash(script),
		BlindingKey:    blindingPrvkey.Serialize(),
		DerivationPath: derivationPath,
	}, nil
}

func (s *service) DeriveBlindingKeyPair(
	script []byte,
) ([]byte, []byte, error) {
	prvkey, pubkey, err := s.wallet.DeriveBlindingKeyPair(
		wallet.DeriveBlindingKeyPairOpts{Script: script},
	)
	if err != nil {
		return nil, nil, err
	}
	return prvkey.Serialize(), pubkey.SerializeCompressed(), nil
}

func (s *service) SignInput(
	_ context.Context, derivationPath string, sigHash []byte,
) ([]byte, []byte, error) {
	return s.wallet.SignSigHash(wallet.SignSigHashOpts{
		SigHash:        sigHash,
		DerivationPath: derivationPath,
	})
}
