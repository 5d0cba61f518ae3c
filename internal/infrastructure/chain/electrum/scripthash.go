package electrum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/tide-network/tide-daemon/internal/core/ports"
)

// ScriptHash returns the identifier used by Electrum servers to index an
// output script, the reversed hex encoding of its sha256 hash.
func ScriptHash(script []byte) string {
	h := sha256.Sum256(script)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return hex.EncodeToString(h[:])
}

// StatusHash recomputes the status of a script history the way servers do,
// the sha256 over the concatenated "txid:height:" entries in served order.
// An empty history has the empty status.
func StatusHash(history []ports.HistoryRecord) string {
	if len(history) == 0 {
		return ""
	}
	var buf []byte
	for _, r := range history {
		buf = append(buf, fmt.Sprintf("%s:%d:", r.TxID, r.Height)...)
	}
	status := sha256.Sum256(buf)
	return hex.EncodeToString(status[:])
}

// headerHash identifies a serialized header by the reversed hex encoding of
// its double sha256. It is a stable identity for reorg detection, not
// necessarily the consensus block hash.
func headerHash(headerHex string) string {
	raw, err := hex.DecodeString(headerHex)
	if err != nil {
		return ""
	}
	return chainhash.DoubleHashH(raw).String()
}
