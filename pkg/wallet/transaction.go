package wallet

import (
	"encoding/hex"

	"github.com/tide-network/tide-daemon/pkg/bufferutil"
	"github.com/vulpemventures/go-elements/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

// CreateTx crafts a new empty partial transaction
func CreateTx() (string, error) {
	ptx, err := pset.New([]*transaction.TxInput{}, []*transaction.TxOutput{}, 2, 0)
	if err != nil {
		return "", err
	}
	return ptx.ToBase64()
}

// Input is the prevout data of a wallet utxo to be added as input of a
// partial transaction. Confidential prevouts carry the original commitments
// and nonce, explicit ones only asset and value.
type Input struct {
	TxID            string
	VOut            uint32
	Script          []byte
	Asset           string
	Value           uint64
	AssetCommitment string
	ValueCommitment string
	Nonce           []byte
}

func (i Input) validate() error {
	if buf, err := hex.DecodeString(i.TxID); err != nil || len(buf) != 32 {
		return ErrInvalidInputTxID
	}
	if len(i.Script) <= 0 {
		return ErrNullOutputScript
	}
	return nil
}

// IsConfidential returns whether the prevout of the input is a confidential
// one, ie. its value and asset are blinded commitments.
func (i Input) IsConfidential() bool {
	return len(i.ValueCommitment) > 0 && len(i.AssetCommitment) > 0
}

func (i Input) prevout() (*transaction.TxOutput, error) {
	if i.IsConfidential() {
		assetCommitment, err := bufferutil.CommitmentToBytes(i.AssetCommitment)
		if err != nil {
			return nil, err
		}
		valueCommitment, err := bufferutil.CommitmentToBytes(i.ValueCommitment)
		if err != nil {
			return nil, err
		}
		out := transaction.NewTxOutput(assetCommitment, valueCommitment, i.Script)
		out.Nonce = i.Nonce
		return out, nil
	}
	return newTxOutput(i.Asset, i.Value, i.Script)
}

// NewOutput returns an explicit transaction output for the given asset
// (display order hex), value in satoshis and output script. An empty script
// crafts a fee output.
func NewOutput(asset string, value uint64, script []byte) (*transaction.TxOutput, error) {
	return newTxOutput(asset, value, script)
}

// UpdateTxOpts is the struct given to UpdateTx method
type UpdateTxOpts struct {
	PsetBase64 string
	Inputs     []Input
	Outputs    []*transaction.TxOutput
}

func (o UpdateTxOpts) validate() error {
	if len(o.PsetBase64) <= 0 {
		return ErrNullPset
	}
	if _, err := pset.NewPsetFromBase64(o.PsetBase64); err != nil {
		return err
	}
	for _, in := range o.Inputs {
		if err := in.validate(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTx adds the provided inputs and outputs to the provided partial
// transaction, setting the witness utxo of every added input.
func UpdateTx(opts UpdateTxOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	ptx, _ := pset.NewPsetFromBase64(opts.PsetBase64)
	updater, err := pset.NewUpdater(ptx)
	if err != nil {
		return "", err
	}

	for _, in := range opts.Inputs {
		txidBytes, err := bufferutil.TxIDToBytes(in.TxID)
		if err != nil {
			return "", err
		}
		prevout, err := in.prevout()
		if err != nil {
			return "", err
		}
		updater.AddInput(transaction.NewTxInput(txidBytes, in.VOut))
		if err := updater.AddInWitnessUtxo(prevout, len(ptx.Inputs)-1); err != nil {
			return "", err
		}
	}

	for _, out := range opts.Outputs {
		updater.AddOutput(out)
	}

	return ptx.ToBase64()
}

// FinalizeAndExtractTransactionOpts is the struct given to FinalizeAndExtractTransaction method
type FinalizeAndExtractTransactionOpts struct {
	PsetBase64 string
}

func (o FinalizeAndExtractTransactionOpts) validate() error {
	if _, err := pset.NewPsetFromBase64(o.PsetBase64); err != nil {
		return err
	}
	return nil
}

// FinalizeAndExtractTransaction attempts to finalize the provided partial
// transaction and eventually extracts the final transaction and returns
// it in hex string format, along with its transaction id
func FinalizeAndExtractTransaction(opts FinalizeAndExtractTransactionOpts) (string, string, error) {
	if err := opts.validate(); err != nil {
		return "", "", err
	}
	ptx, _ := pset.NewPsetFromBase64(opts.PsetBase64)

	ok, err := ptx.ValidateAllSignatures()
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", ErrInvalidSignatures
	}

	if err := pset.FinalizeAll(ptx); err != nil {
		return "", "", err
	}

	tx, err := pset.Extract(ptx)
	if err != nil {
		return "", "", err
	}
	txHex, err := tx.ToHex()
	if err != nil {
		return "", "", err
	}
	return txHex, tx.TxHash().String(), nil
}
