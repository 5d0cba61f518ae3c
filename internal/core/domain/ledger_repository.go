package domain

import "context"

// LedgerRepository is the abstraction for any kind of database intended to
// persist the reconciled Ledger of every account.
type LedgerRepository interface {
	// GetOrCreateLedger returns the ledger of the given account, creating an
	// empty one if none is stored yet.
	GetOrCreateLedger(ctx context.Context, accountName string) (*Ledger, error)
	// GetLedger returns the ledger of the given account.
	GetLedger(ctx context.Context, accountName string) (*Ledger, error)
	// GetAllLedgers returns the ledgers of all accounts.
	GetAllLedgers(ctx context.Context) ([]Ledger, error)
	// UpdateLedger commits multiple changes to the same ledger in a
	// transactional way through the update closure. This is the only write
	// path of a ledger, a failing closure leaves the stored state untouched.
	UpdateLedger(
		ctx context.Context,
		accountName string, updateFn func(l *Ledger) (*Ledger, error),
	) error
}
