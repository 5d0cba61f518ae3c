package wallet

import (
	"encoding/hex"

	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/pset"
)

const (
	// MaxBlindingAttempts is the max number of times the blinding of a pset
	// can be repeated in case it fails to generate valid proofs.
	MaxBlindingAttempts = 8
	// DefaultBlindingAttempts is the default number of times the blinding of a
	// pset is retried if it fails to generate valid proofs.
	DefaultBlindingAttempts = 4
)

// BlindingData is the unblinded data of a confidential prevout, needed to
// blind the outputs of a transaction spending it.
type BlindingData struct {
	Asset        string
	Value        uint64
	AssetBlinder []byte
	ValueBlinder []byte
}

func (b BlindingData) validate() error {
	asset, err := hex.DecodeString(b.Asset)
	if err != nil || len(asset) != 32 {
		return ErrInvalidInputBlindingData
	}
	if len(b.AssetBlinder) != 32 {
		return ErrInvalidInputBlindingData
	}
	if len(b.ValueBlinder) != 32 {
		return ErrInvalidInputBlindingData
	}
	return nil
}

func (b BlindingData) toPsetBlindingData() pset.BlindingData {
	asset, _ := hex.DecodeString(b.Asset)
	return pset.BlindingData{
		Asset:               elementsutil.ReverseBytes(asset),
		Value:               b.Value,
		AssetBlindingFactor: b.AssetBlinder,
		ValueBlindingFactor: b.ValueBlinder,
	}
}

// BlindTransactionWithDataOpts is the struct given to BlindTransactionWithData method
type BlindTransactionWithDataOpts struct {
	PsetBase64         string
	InputBlindingData  map[int]BlindingData
	OutputBlindingKeys [][]byte
	Attempts           int
}

func (o BlindTransactionWithDataOpts) validate() error {
	if len(o.PsetBase64) <= 0 {
		return ErrNullPset
	}
	ptx, err := pset.NewPsetFromBase64(o.PsetBase64)
	if err != nil {
		return err
	}
	for _, in := range ptx.Inputs {
		if in.WitnessUtxo == nil {
			return ErrNullInputWitnessUtxo
		}
	}

	if len(o.InputBlindingData) != len(ptx.Inputs) {
		return ErrInvalidInputBlindingData
	}
	for i, b := range o.InputBlindingData {
		if i < 0 || i >= len(ptx.Inputs) {
			return ErrInvalidInputIndex
		}
		if err := b.validate(); err != nil {
			return err
		}
	}

	if len(o.OutputBlindingKeys) != len(ptx.Outputs) {
		return ErrInvalidOutputBlindingKeysLen
	}

	if o.Attempts < 0 || o.Attempts > MaxBlindingAttempts {
		return ErrInvalidAttempts
	}
	return nil
}

func (o BlindTransactionWithDataOpts) maxAttempts() int {
	if o.Attempts == 0 {
		return DefaultBlindingAttempts
	}
	return o.Attempts
}

// BlindTransactionWithData blinds the outputs of the provided partial
// transaction by using the provided unblinded input data. The output
// blinding keys are the blinding pubkeys of the receiving addresses, indexed
// like the pset outputs.
func BlindTransactionWithData(opts BlindTransactionWithDataOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	ptx, _ := pset.NewPsetFromBase64(opts.PsetBase64)

	dataLen := len(opts.InputBlindingData)
	inBlindingData := make([]pset.BlindingDataLike, dataLen)
	for i, b := range opts.InputBlindingData {
		inBlindingData[i] = b.toPsetBlindingData()
	}

	outBlindingKeys := make(map[int][]byte)
	for i, k := range opts.OutputBlindingKeys {
		outBlindingKeys[i] = k
	}

	if err := blindTransaction(
		ptx, inBlindingData, outBlindingKeys, opts.maxAttempts(),
	); err != nil {
		return "", err
	}

	return ptx.ToBase64()
}

func blindTransaction(
	ptx *pset.Pset,
	inBlindingData []pset.BlindingDataLike,
	outBlindingKeys map[int][]byte,
	maxAttempts int,
) error {
	blinder, err := pset.NewBlinder(
		ptx,
		inBlindingData,
		outBlindingKeys,
		nil,
		nil,
	)
	if err != nil {
		return err
	}

	retryCount := 0
	for {
		if retryCount >= maxAttempts {
			return ErrReachedMaxBlindingAttempts
		}

		if err := blinder.Blind(); err != nil {
			if err == pset.ErrGenerateSurjectionProof {
				retryCount++
				continue
			}
			return err
		}
		return nil
	}
}
