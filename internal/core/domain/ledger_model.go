package domain

import "fmt"

// HistoryEntry is a transaction observed for a script, as reported by the
// chain source. Entries are never deleted once observed. When the chain
// source stops reporting a transaction, its entries are flagged evicted and
// excluded from any derived state, but kept for audit.
type HistoryEntry struct {
	TxID    string
	Height  int64
	TipHash string
	Evicted bool
}

// TxRecord caches a wallet-relevant transaction so that derived state can be
// recomputed at any time, reorgs included, without refetching from the chain
// source.
type TxRecord struct {
	TxID       string
	TxHex      string
	Height     int64
	ObservedAt int64
}

// UtxoKey identifies a Utxo by the outpoint it represents.
type UtxoKey struct {
	TxID string
	VOut uint32
}

func (k UtxoKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// Utxo is an output of the account scripts as derived from the reconciled
// history. Confidential outputs carry the commitments of the prevout and,
// once unblinded, the revealed asset, value and blinders. An output whose
// rangeproof rewind failed is flagged unspendable and excluded from balances
// and coin selection, but stays tracked.
type Utxo struct {
	TxID            string
	VOut            uint32
	Value           uint64
	AssetHash       string
	ValueCommitment string
	AssetCommitment string
	ValueBlinder    []byte
	AssetBlinder    []byte
	Script          string
	Nonce           []byte
	Address         string
	ConfirmedHeight int64
	SpentBy         string
	Unspendable     bool
}

// Balance is the pair of confirmed and unconfirmed amounts of an asset.
type Balance struct {
	Confirmed   uint64
	Unconfirmed uint64
}

// Total returns the sum of the confirmed and unconfirmed amounts.
func (b Balance) Total() uint64 {
	return b.Confirmed + b.Unconfirmed
}

// Ledger is the full chain state reconciled for an account: the history and
// last known status of every tracked script, the cache of wallet-relevant
// transactions, the utxo set derived from them and the chain tip at the time
// of the last reconciliation. The reconciler is its only writer.
type Ledger struct {
	AccountName string
	History     map[string][]HistoryEntry
	TxRecords   map[string]*TxRecord
	Utxos       map[string]*Utxo
	Statuses    map[string]string
	TipHeight   int64
	TipHash     string
}

// NewLedger returns the empty ledger of the given account.
func NewLedger(accountName string) (*Ledger, error) {
	if accountName == "" {
		return nil, ErrNullAccountName
	}
	return &Ledger{
		AccountName: accountName,
		History:     map[string][]HistoryEntry{},
		TxRecords:   map[string]*TxRecord{},
		Utxos:       map[string]*Utxo{},
		Statuses:    map[string]string{},
	}, nil
}
