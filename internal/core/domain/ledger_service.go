package domain

import "sort"

// Key returns the UtxoKey of the current utxo.
func (u *Utxo) Key() UtxoKey {
	return UtxoKey{
		TxID: u.TxID,
		VOut: u.VOut,
	}
}

// IsConfidential returns whether the utxo is the output of a confidential
// transaction, ie. its asset and value are blinded commitments.
func (u *Utxo) IsConfidential() bool {
	return len(u.ValueCommitment) > 0 && len(u.AssetCommitment) > 0
}

// IsRevealed returns whether the explicit asset and value of the utxo are
// known, either because the output is unconfidential or because it has been
// unblinded.
func (u *Utxo) IsRevealed() bool {
	return len(u.AssetHash) > 0 && !u.Unspendable
}

// IsConfirmed returns whether the transaction creating the utxo is included
// in a block.
func (u *Utxo) IsConfirmed() bool {
	return u.ConfirmedHeight > 0
}

// IsSpent returns whether the utxo is consumed by a tracked transaction.
func (u *Utxo) IsSpent() bool {
	return u.SpentBy != ""
}

// Confirmations returns the number of confirmations of the utxo at the given
// tip height, 0 if unconfirmed.
func (u *Utxo) Confirmations(tipHeight int64) int64 {
	if !u.IsConfirmed() || tipHeight < u.ConfirmedHeight {
		return 0
	}
	return tipHeight - u.ConfirmedHeight + 1
}

// Status returns the last known Electrum status of the given script hash,
// the empty string when the script was never reported active.
func (l *Ledger) Status(scriptHash string) string {
	return l.Statuses[scriptHash]
}

// SetStatus records the last known Electrum status of a script hash.
func (l *Ledger) SetStatus(scriptHash, status string) {
	if l.Statuses == nil {
		l.Statuses = map[string]string{}
	}
	l.Statuses[scriptHash] = status
}

// HistoryForScript returns the observed history of a script hash.
func (l *Ledger) HistoryForScript(scriptHash string) []HistoryEntry {
	return l.History[scriptHash]
}

// SetHistory replaces the observed history of a script hash.
func (l *Ledger) SetHistory(scriptHash string, entries []HistoryEntry) {
	if l.History == nil {
		l.History = map[string][]HistoryEntry{}
	}
	l.History[scriptHash] = entries
}

// ActiveTxIDs returns the set of transactions referenced by at least one non
// evicted history entry, mapped to the highest height they were observed at.
func (l *Ledger) ActiveTxIDs() map[string]int64 {
	txids := make(map[string]int64)
	for _, entries := range l.History {
		for _, entry := range entries {
			if entry.Evicted {
				continue
			}
			if height, ok := txids[entry.TxID]; !ok || entry.Height > height {
				txids[entry.TxID] = entry.Height
			}
		}
	}
	return txids
}

// GetTxRecord returns the cached transaction with the given id.
func (l *Ledger) GetTxRecord(txid string) (*TxRecord, error) {
	record, ok := l.TxRecords[txid]
	if !ok {
		return nil, ErrTxRecordNotFound
	}
	return record, nil
}

// UpsertTxRecord caches a wallet-relevant transaction.
func (l *Ledger) UpsertTxRecord(record *TxRecord) error {
	if record == nil || record.TxID == "" {
		return ErrNullTxID
	}
	if l.TxRecords == nil {
		l.TxRecords = map[string]*TxRecord{}
	}
	l.TxRecords[record.TxID] = record
	return nil
}

// ReplaceUtxos swaps the whole derived utxo set of the ledger.
func (l *Ledger) ReplaceUtxos(utxos []*Utxo) {
	set := make(map[string]*Utxo, len(utxos))
	for _, u := range utxos {
		set[u.Key().String()] = u
	}
	l.Utxos = set
}

// GetUtxo returns the utxo with the given key.
func (l *Ledger) GetUtxo(key UtxoKey) (*Utxo, error) {
	utxo, ok := l.Utxos[key.String()]
	if !ok {
		return nil, ErrUtxoNotFound
	}
	return utxo, nil
}

// SetTip records the chain tip the ledger state refers to.
func (l *Ledger) SetTip(height int64, hash string) {
	l.TipHeight = height
	l.TipHash = hash
}

// Balance folds the derived utxo set into per asset confirmed and
// unconfirmed amounts. An amount is confirmed when it has at least
// confThreshold confirmations at the ledger tip. Spent and unspendable
// outputs never count.
func (l *Ledger) Balance(confThreshold int64) map[string]Balance {
	if confThreshold < 1 {
		confThreshold = 1
	}
	balances := make(map[string]Balance)
	for _, u := range l.Utxos {
		if u.IsSpent() || !u.IsRevealed() {
			continue
		}
		balance := balances[u.AssetHash]
		if u.Confirmations(l.TipHeight) >= confThreshold {
			balance.Confirmed += u.Value
		} else {
			balance.Unconfirmed += u.Value
		}
		balances[u.AssetHash] = balance
	}
	return balances
}

// SpendableUtxos returns the unspent revealed utxos with at least
// minConfirmations confirmations at the ledger tip, sorted by descending
// value, ties broken by outpoint. With minConfirmations 0 mempool utxos are
// included.
func (l *Ledger) SpendableUtxos(minConfirmations int64) []*Utxo {
	utxos := make([]*Utxo, 0, len(l.Utxos))
	for _, u := range l.Utxos {
		if u.IsSpent() || !u.IsRevealed() {
			continue
		}
		if minConfirmations > 0 && u.Confirmations(l.TipHeight) < minConfirmations {
			continue
		}
		utxos = append(utxos, u)
	}
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].Value != utxos[j].Value {
			return utxos[i].Value > utxos[j].Value
		}
		return utxos[i].Key().String() < utxos[j].Key().String()
	})
	return utxos
}

// Transactions returns the cached transaction records sorted by height,
// mempool transactions last, ties broken by first observation time and txid.
func (l *Ledger) Transactions() []*TxRecord {
	records := make([]*TxRecord, 0, len(l.TxRecords))
	active := l.ActiveTxIDs()
	for txid, record := range l.TxRecords {
		if _, ok := active[txid]; !ok {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		hi, hj := records[i].Height, records[j].Height
		if hi > 0 && hj > 0 && hi != hj {
			return hi < hj
		}
		if (hi > 0) != (hj > 0) {
			return hi > 0
		}
		if records[i].ObservedAt != records[j].ObservedAt {
			return records[i].ObservedAt < records[j].ObservedAt
		}
		return records[i].TxID < records[j].TxID
	})
	return records
}
