package ports

import "context"

// AddressInfo is the full descriptor of a wallet address derived at a given
// path of the wallet tree.
type AddressInfo struct {
	// Address is the encoded address, confidential if a blinding key was
	// derived for its script.
	Address string
	// Script is the output script of the address.
	Script []byte
	// ScriptHash is the Electrum hash of the output script, used to
	// subscribe and query the chain source.
	ScriptHash string
	// BlindingKey is the SLIP-77 private blinding key bound to the script,
	// nil for unconfidential addresses.
	BlindingKey []byte
	// DerivationPath is the path of the signing key relative to the wallet
	// base path, in the form "account'/chain/index".
	DerivationPath string
}

// Signer interface defines the methods to access the key material needed to
// run a wallet account. The daemon bundles a software implementation backed
// by the wallet seed; hardware or remote signers can be plugged in by
// implementing this interface.
type Signer interface {
	// AccountXPub returns the signing extended public key of the account at
	// the given index of the wallet derivation tree.
	AccountXPub(account uint32) (string, error)
	// DeriveAddress derives the address of the given account at the given
	// chain and index, confidential or not depending on the flag.
	DeriveAddress(
		account uint32, chain int, index uint32, confidential bool,
	) (*AddressInfo, error)
	// DeriveBlindingKeyPair returns the blinding key pair bound to the given
	// output script.
	DeriveBlindingKeyPair(script []byte) (prvkey, pubkey []byte, err error)
	// SignInput returns a DER encoded signature of the given sighash made
	// with the key at the given derivation path, along with the compressed
	// public key needed to assemble the input witness.
	SignInput(
		ctx context.Context, derivationPath string, sigHash []byte,
	) (sig, pubkey []byte, err error)
}
