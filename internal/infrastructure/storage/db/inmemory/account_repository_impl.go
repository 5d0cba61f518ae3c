package inmemory

import (
	"context"
	"sync"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

// AccountRepositoryImpl represents an in memory storage of accounts.
type AccountRepositoryImpl struct {
	accounts map[string]*domain.Account

	lock *sync.RWMutex
}

// NewAccountRepositoryImpl returns a new empty AccountRepositoryImpl.
func NewAccountRepositoryImpl() *AccountRepositoryImpl {
	return &AccountRepositoryImpl{
		accounts: map[string]*domain.Account{},
		lock:     &sync.RWMutex{},
	}
}

func (r *AccountRepositoryImpl) AddAccount(
	_ context.Context, account *domain.Account,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.accounts[account.Name]; ok {
		return domain.ErrAccountAlreadyExists
	}
	r.accounts[account.Name] = copyAccount(account)
	return nil
}

func (r *AccountRepositoryImpl) GetAccount(
	_ context.Context, accountName string,
) (*domain.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.accounts[accountName]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (r *AccountRepositoryImpl) GetAllAccounts(
	_ context.Context,
) ([]domain.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	accounts := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, *copyAccount(account))
	}
	return accounts, nil
}

func (r *AccountRepositoryImpl) UpdateAccount(
	_ context.Context,
	accountName string, updateFn func(a *domain.Account) (*domain.Account, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[accountName]
	if !ok {
		return domain.ErrAccountNotFound
	}

	updatedAccount, err := updateFn(copyAccount(account))
	if err != nil {
		return err
	}

	r.accounts[accountName] = updatedAccount
	return nil
}
