package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-elements/payment"
	"github.com/vulpemventures/go-elements/pset"
)

// SignSigHashOpts is the struct given to SignSigHash method
type SignSigHashOpts struct {
	SigHash        []byte
	DerivationPath string
}

func (o SignSigHashOpts) validate() error {
	if len(o.SigHash) != 32 {
		return ErrNullSigHash
	}
	derivationPath, err := ParseDerivationPath(o.DerivationPath)
	if err != nil {
		return err
	}
	return checkDerivationPath(derivationPath)
}

// SignSigHash signs the given 32 byte sighash with the key at the given
// derivation path. It returns the signature in DER format along with the
// compressed serialization of the signing public key. The signature is
// verified against the sighash before being returned.
func (w *Wallet) SignSigHash(opts SignSigHashOpts) ([]byte, []byte, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	if err := w.validate(); err != nil {
		return nil, nil, err
	}

	prvkey, pubkey, err := w.DeriveSigningKeyPair(DeriveSigningKeyPairOpts{
		DerivationPath: opts.DerivationPath,
	})
	if err != nil {
		return nil, nil, err
	}

	signature := ecdsa.Sign(prvkey, opts.SigHash)
	if !signature.Verify(opts.SigHash, pubkey) {
		return nil, nil, ErrInvalidSignatures
	}

	return signature.Serialize(), pubkey.SerializeCompressed(), nil
}

// SignInputOpts is the struct given to SignInput method
type SignInputOpts struct {
	PsetBase64     string
	InIndex        uint32
	DerivationPath string
}

func (o SignInputOpts) validate() error {
	ptx, err := pset.NewPsetFromBase64(o.PsetBase64)
	if err != nil {
		return err
	}
	if int(o.InIndex) >= len(ptx.Inputs) {
		return ErrInvalidInputIndex
	}
	if ptx.Inputs[o.InIndex].WitnessUtxo == nil {
		return ErrNullInputWitnessUtxo
	}
	derivationPath, err := ParseDerivationPath(o.DerivationPath)
	if err != nil {
		return err
	}
	return checkDerivationPath(derivationPath)
}

// SignInput produces and verifies a signature for the given input of the
// partial transaction with the key at the given derivation path. The
// signature is added to the pset whose updated serialization is returned.
func (w *Wallet) SignInput(opts SignInputOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	if err := w.validate(); err != nil {
		return "", err
	}

	ptx, _ := pset.NewPsetFromBase64(opts.PsetBase64)

	if err := w.signInput(ptx, int(opts.InIndex), opts.DerivationPath); err != nil {
		return "", err
	}

	return ptx.ToBase64()
}

func (w *Wallet) signInput(ptx *pset.Pset, inIndex int, derivationPath string) error {
	updater, err := pset.NewUpdater(ptx)
	if err != nil {
		return err
	}

	prvkey, pubkey, err := w.DeriveSigningKeyPair(DeriveSigningKeyPairOpts{
		DerivationPath: derivationPath,
	})
	if err != nil {
		return err
	}

	pay, err := payment.FromScript(ptx.Inputs[inIndex].WitnessUtxo.Script, nil, nil)
	if err != nil {
		return err
	}

	hashForSignature := ptx.UnsignedTx.HashForWitnessV0(
		inIndex,
		pay.Script,
		ptx.Inputs[inIndex].WitnessUtxo.Value,
		txscript.SigHashAll,
	)

	signature := ecdsa.Sign(prvkey, hashForSignature[:])
	if !signature.Verify(hashForSignature[:], pubkey) {
		return fmt.Errorf("signature verification failed for input %d", inIndex)
	}

	sigWithSigHashType := append(signature.Serialize(), byte(txscript.SigHashAll))
	if _, err := updater.Sign(
		inIndex,
		sigWithSigHashType,
		pubkey.SerializeCompressed(),
		nil,
		nil,
	); err != nil {
		return err
	}
	return nil
}

// VerifySignatureOpts is the struct given to VerifySignature method
type VerifySignatureOpts struct {
	SigHash   []byte
	Signature []byte
	PubKey    []byte
	Script    []byte
}

// VerifySignature checks that the DER encoded signature is valid for the
// given sighash and public key, and that the key is the one committed to by
// a P2WPKH output script when one is provided.
func VerifySignature(opts VerifySignatureOpts) bool {
	if len(opts.SigHash) != 32 {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(opts.Signature)
	if err != nil {
		return false
	}
	pubkey, err := btcec.ParsePubKey(opts.PubKey)
	if err != nil {
		return false
	}
	if !sig.Verify(opts.SigHash, pubkey) {
		return false
	}

	if len(opts.Script) == 22 && opts.Script[0] == 0x00 && opts.Script[1] == 0x14 {
		keyHash := btcutil.Hash160(opts.PubKey)
		if !bytes.Equal(keyHash, opts.Script[2:]) {
			return false
		}
	}
	return true
}
