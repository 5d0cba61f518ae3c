package transactionutil

import (
	"encoding/hex"

	"github.com/vulpemventures/go-elements/confidential"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"
)

// UnblindedResult is the revealed data of a confidential transaction output,
// or the explicit data of an unconfidential one. The blinders are needed to
// spend the output as input of a blinded transaction, they are zero for
// explicit outputs.
type UnblindedResult struct {
	AssetHash    string
	Value        uint64
	AssetBlinder []byte
	ValueBlinder []byte
}

// UnblindOutput attempts to reveal the asset, value and blinders of the
// given output with the given SLIP77 derived blinding private key. Explicit
// outputs are returned as they are. The boolean flag is false whenever the
// rangeproof rewind fails, ie. the output is not owned by the key.
func UnblindOutput(
	utxo *transaction.TxOutput, blindKey []byte,
) (*UnblindedResult, bool) {
	revealed, err := confidential.UnblindOutputWithKey(utxo, blindKey)
	if err != nil {
		return nil, false
	}
	return &UnblindedResult{
		AssetHash:    hex.EncodeToString(elementsutil.ReverseBytes(revealed.Asset)),
		Value:        revealed.Value,
		AssetBlinder: revealed.AssetBlindingFactor,
		ValueBlinder: revealed.ValueBlindingFactor,
	}, true
}
