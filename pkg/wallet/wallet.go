package wallet

import (
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// Wallet holds the BIP32 signing master key and the SLIP77 blinding master
// key of an HD wallet, both derived from a single BIP39 mnemonic. It exposes
// deterministic derivation of signing/blinding key pairs and addresses, and
// the low level signing and blinding primitives used to build transactions.
type Wallet struct {
	mnemonic          string
	signingMasterKey  *hdkeychain.ExtendedKey
	blindingMasterKey []byte
}

// NewWalletOpts is the struct given to the NewWallet method
type NewWalletOpts struct {
	EntropySize int
}

func (o NewWalletOpts) validate() error {
	if o.EntropySize == 0 {
		return nil
	}
	if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewWallet creates a wallet from freshly generated entropy. The signing
// master key is the node at the default base path (m/84'/0') and the
// blinding master key follows SLIP77 from the same seed.
func NewWallet(opts NewWalletOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.EntropySize == 0 {
		opts.EntropySize = 128
	}

	mnemonic, err := generateMnemonic(opts.EntropySize)
	if err != nil {
		return nil, err
	}

	return NewWalletFromMnemonic(NewWalletFromMnemonicOpts{Mnemonic: mnemonic})
}

// NewWalletFromMnemonicOpts is the struct given to the NewWalletFromMnemonic method
type NewWalletFromMnemonicOpts struct {
	Mnemonic string
}

func (o NewWalletFromMnemonicOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewWalletFromMnemonic restores a wallet from an existing mnemonic.
func NewWalletFromMnemonic(opts NewWalletFromMnemonicOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	seed := generateSeedFromMnemonic(opts.Mnemonic)
	signingMasterKey, err := generateSigningMasterKey(
		seed, DefaultBaseDerivationPath,
	)
	if err != nil {
		return nil, err
	}
	blindingMasterKey, err := generateBlindingMasterKey(seed)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		mnemonic:          opts.Mnemonic,
		signingMasterKey:  signingMasterKey,
		blindingMasterKey: blindingMasterKey,
	}, nil
}

func (w *Wallet) validate() error {
	if w.signingMasterKey == nil {
		return ErrNullSigningMasterKey
	}
	if len(w.mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(w.mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// Mnemonic is the getter for the wallet mnemonic
func (w *Wallet) Mnemonic() (string, error) {
	if err := w.validate(); err != nil {
		return "", err
	}
	return w.mnemonic, nil
}

// IsConfidential returns whether the blinding master key is set for the
// current wallet
func (w *Wallet) IsConfidential() bool {
	return len(w.blindingMasterKey) > 0
}
