package wallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
	"github.com/vulpemventures/go-elements/slip77"
)

// ExtendedKeyOpts is the struct given to AccountExtendedPublicKey method
type ExtendedKeyOpts struct {
	Account uint32
}

func (o ExtendedKeyOpts) validate() error {
	if o.Account > MaxHardenedValue {
		return ErrOutOfRangeDerivationPathAccount
	}
	return nil
}

// AccountExtendedPublicKey returns the signing extended public key in base58
// format for the provided account index, hardened under the hood
func (w *Wallet) AccountExtendedPublicKey(opts ExtendedKeyOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	if err := w.validate(); err != nil {
		return "", err
	}

	xprv, err := w.signingMasterKey.Derive(
		hdkeychain.HardenedKeyStart + opts.Account,
	)
	if err != nil {
		return "", err
	}

	xpub, err := xprv.Neuter()
	if err != nil {
		return "", err
	}
	return xpub.String(), nil
}

// DeriveSigningKeyPairOpts is the struct given to DeriveSigningKeyPair method
type DeriveSigningKeyPairOpts struct {
	DerivationPath string
}

func (o DeriveSigningKeyPairOpts) validate() error {
	derivationPath, err := ParseDerivationPath(o.DerivationPath)
	if err != nil {
		return err
	}

	return checkDerivationPath(derivationPath)
}

// DeriveSigningKeyPair derives the key pair of the provided derivation path.
// The path is relative to the wallet base path, in the form
// account'/branch/index.
func (w *Wallet) DeriveSigningKeyPair(opts DeriveSigningKeyPairOpts) (
	*btcec.PrivateKey, *btcec.PublicKey, error,
) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	if err := w.validate(); err != nil {
		return nil, nil, err
	}

	hdNode := w.signingMasterKey
	derivationPath, _ := ParseDerivationPath(opts.DerivationPath)
	var err error
	for _, step := range derivationPath {
		hdNode, err = hdNode.Derive(step)
		if err != nil {
			return nil, nil, err
		}
	}

	privateKey, err := hdNode.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	publicKey, err := hdNode.ECPubKey()
	if err != nil {
		return nil, nil, err
	}

	return privateKey, publicKey, nil
}

// DeriveBlindingKeyPairOpts is the struct given to DeriveBlindingKeyPair method
type DeriveBlindingKeyPairOpts struct {
	Script []byte
}

func (o DeriveBlindingKeyPairOpts) validate() error {
	if len(o.Script) <= 0 {
		return ErrNullOutputScript
	}
	return nil
}

// DeriveBlindingKeyPair derives the SLIP77 blinding key pair from the
// provided output script
func (w *Wallet) DeriveBlindingKeyPair(opts DeriveBlindingKeyPairOpts) (
	*btcec.PrivateKey, *btcec.PublicKey, error,
) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	if err := w.validate(); err != nil {
		return nil, nil, err
	}
	if !w.IsConfidential() {
		return nil, nil, ErrNotConfidentialWallet
	}

	slip77Node, err := slip77.FromMasterKey(w.blindingMasterKey)
	if err != nil {
		return nil, nil, err
	}
	return slip77Node.DeriveKey(opts.Script)
}

// DeriveAddressOpts is the struct given to DeriveAddress and
// DeriveConfidentialAddress methods
type DeriveAddressOpts struct {
	DerivationPath string
	Network        *network.Network
}

func (o DeriveAddressOpts) validate() error {
	derivationPath, err := ParseDerivationPath(o.DerivationPath)
	if err != nil {
		return err
	}
	if err := checkDerivationPath(derivationPath); err != nil {
		return err
	}
	if o.Network == nil {
		return ErrNullNetwork
	}
	return nil
}

// DeriveAddress derives the signing pubkey of the given path and returns the
// unconfidential P2WPKH address along with its output script
func (w *Wallet) DeriveAddress(opts DeriveAddressOpts) (string, []byte, error) {
	if err := opts.validate(); err != nil {
		return "", nil, err
	}
	if err := w.validate(); err != nil {
		return "", nil, err
	}

	_, pubkey, err := w.DeriveSigningKeyPair(DeriveSigningKeyPairOpts{
		DerivationPath: opts.DerivationPath,
	})
	if err != nil {
		return "", nil, err
	}

	p2wpkh := payment.FromPublicKey(pubkey, opts.Network, nil)
	addr, err := p2wpkh.WitnessPubKeyHash()
	if err != nil {
		return "", nil, err
	}
	return addr, p2wpkh.WitnessScript, nil
}

// DeriveConfidentialAddress derives both the signing and blinding pubkeys to
// then generate the corresponding confidential P2WPKH address, returned
// along with its output script
func (w *Wallet) DeriveConfidentialAddress(
	opts DeriveAddressOpts,
) (string, []byte, error) {
	if err := opts.validate(); err != nil {
		return "", nil, err
	}
	if err := w.validate(); err != nil {
		return "", nil, err
	}

	_, pubkey, err := w.DeriveSigningKeyPair(DeriveSigningKeyPairOpts{
		DerivationPath: opts.DerivationPath,
	})
	if err != nil {
		return "", nil, err
	}

	script := payment.FromPublicKey(pubkey, opts.Network, nil).WitnessScript

	_, blindingPubkey, err := w.DeriveBlindingKeyPair(DeriveBlindingKeyPairOpts{
		Script: script,
	})
	if err != nil {
		return "", nil, err
	}

	p2wpkh := payment.FromPublicKey(pubkey, opts.Network, blindingPubkey)
	addr, err := p2wpkh.ConfidentialWitnessPubKeyHash()
	if err != nil {
		return "", nil, err
	}
	return addr, script, nil
}
