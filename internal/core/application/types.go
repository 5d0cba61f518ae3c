package application

import (
	"sort"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

const (
	// TxStatusNew marks a transaction observed for the first time.
	TxStatusNew = "new"
	// TxStatusConfirmed marks a transaction whose height transitioned from
	// mempool to a block.
	TxStatusConfirmed = "confirmed"
	// TxStatusEvicted marks a transaction no longer reported by the chain
	// source.
	TxStatusEvicted = "evicted"
)

// TxNotification is the payload of the tx events published on the notifier.
type TxNotification struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
}

// BalanceNotification is one entry of the payload of the balance events
// published on the notifier.
type BalanceNotification struct {
	Asset       string `json:"asset"`
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed uint64 `json:"unconfirmed"`
	Total       uint64 `json:"total"`
}

func balanceNotifications(balances map[string]domain.Balance) []BalanceNotification {
	list := make([]BalanceNotification, 0, len(balances))
	for asset, balance := range balances {
		list = append(list, BalanceNotification{
			Asset:       asset,
			Confirmed:   balance.Confirmed,
			Unconfirmed: balance.Unconfirmed,
			Total:       balance.Total(),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Asset < list[j].Asset
	})
	return list
}

// AssetBalance is the balance of an asset enriched with the display info
// resolved from the asset registry, when available.
type AssetBalance struct {
	Asset        string `json:"asset"`
	Confirmed    uint64 `json:"confirmed"`
	Unconfirmed  uint64 `json:"unconfirmed"`
	Total        uint64 `json:"total"`
	Name         string `json:"name,omitempty"`
	Ticker       string `json:"ticker,omitempty"`
	Precision    uint   `json:"precision"`
	DisplayTotal string `json:"display_total,omitempty"`
}

// TxInfo is the view of a wallet transaction returned by GetTransactions.
// Deltas is the net amount the transaction moved in or out of the account,
// per asset, positive for received funds.
type TxInfo struct {
	TxID          string           `json:"txid"`
	Height        int64            `json:"height"`
	Confirmations int64            `json:"confirmations"`
	ObservedAt    int64            `json:"observed_at"`
	Deltas        map[string]int64 `json:"deltas"`
}

// AccountAddress is the view of a derived address returned by NewAddress.
type AccountAddress struct {
	Address        string `json:"address"`
	Script         string `json:"script"`
	Chain          int    `json:"chain"`
	Index          uint32 `json:"index"`
	DerivationPath string `json:"derivation_path"`
}

// BuildInfo is the view of an in-flight build returned by
// CreateTransaction. The pset is blinded and fee-topped but unsigned, the
// selected outpoints stay locked until the build is broadcast or expires.
type BuildInfo struct {
	ID            string   `json:"id"`
	PsetBase64    string   `json:"pset"`
	FeeAmount     uint64   `json:"fee_amount"`
	SelectedUtxos []string `json:"selected_utxos"`
	ExpiresAt     int64    `json:"expires_at"`
}

// AccountStatus is the per account section of the daemon status.
type AccountStatus struct {
	SyncState  string `json:"sync_state"`
	TipHeight  int64  `json:"tip_height"`
	TipHash    string `json:"tip_hash"`
	NumScripts int    `json:"num_scripts"`
	NumUtxos   int    `json:"num_utxos"`
}

// DaemonStatus is the view returned by the status operation.
type DaemonStatus struct {
	Network  string                   `json:"network"`
	Accounts map[string]AccountStatus `json:"accounts"`
}
