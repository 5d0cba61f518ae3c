package inmemory

import (
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
)

// RepoManager is a volatile implementation of ports.RepoManager, handy for
// tests and throwaway runs. Everything is lost on restart, a resync rebuilds
// the ledgers from the chain source.
type RepoManager struct {
	accountRepository domain.AccountRepository
	ledgerRepository  domain.LedgerRepository
	assetRepository   domain.AssetRepository
}

func NewRepoManager() ports.RepoManager {
	return &RepoManager{
		accountRepository: NewAccountRepositoryImpl(),
		ledgerRepository:  NewLedgerRepositoryImpl(),
		assetRepository:   NewAssetRepositoryImpl(),
	}
}

func (d *RepoManager) AccountRepository() domain.AccountRepository {
	return d.accountRepository
}

func (d *RepoManager) LedgerRepository() domain.LedgerRepository {
	return d.ledgerRepository
}

func (d *RepoManager) AssetRepository() domain.AssetRepository {
	return d.assetRepository
}

func (d *RepoManager) Close() {}

func copyAccount(account *domain.Account) *domain.Account {
	scripts := make(map[string]domain.Script, len(account.ScriptsByHash))
	for hash, script := range account.ScriptsByHash {
		scripts[hash] = script
	}
	copied := *account
	copied.ScriptsByHash = scripts
	return &copied
}

func copyLedger(ledger *domain.Ledger) *domain.Ledger {
	history := make(map[string][]domain.HistoryEntry, len(ledger.History))
	for hash, entries := range ledger.History {
		copied := make([]domain.HistoryEntry, len(entries))
		copy(copied, entries)
		history[hash] = copied
	}
	txRecords := make(map[string]*domain.TxRecord, len(ledger.TxRecords))
	for txid, record := range ledger.TxRecords {
		copied := *record
		txRecords[txid] = &copied
	}
	utxos := make(map[string]*domain.Utxo, len(ledger.Utxos))
	for key, utxo := range ledger.Utxos {
		copied := *utxo
		utxos[key] = &copied
	}
	statuses := make(map[string]string, len(ledger.Statuses))
	for hash, status := range ledger.Statuses {
		statuses[hash] = status
	}

	copied := *ledger
	copied.History = history
	copied.TxRecords = txRecords
	copied.Utxos = utxos
	copied.Statuses = statuses
	return &copied
}
