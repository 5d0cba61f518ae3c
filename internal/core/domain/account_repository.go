package domain

import "context"

// AccountRepository is the abstraction for any kind of database intended to
// persist Accounts.
type AccountRepository interface {
	// AddAccount adds a new account to the repository.
	AddAccount(ctx context.Context, account *Account) error
	// GetAccount returns the account with the given name.
	GetAccount(ctx context.Context, accountName string) (*Account, error)
	// GetAllAccounts returns all the accounts stored in the repository.
	GetAllAccounts(ctx context.Context) ([]Account, error)
	// UpdateAccount commits multiple changes to the same account in a
	// transactional way through the update closure.
	UpdateAccount(
		ctx context.Context,
		accountName string, updateFn func(a *Account) (*Account, error),
	) error
}
