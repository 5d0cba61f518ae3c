package dbbadger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

type accountRepositoryImpl struct {
	store *badgerhold.Store
}

// NewAccountRepositoryImpl initializes a badger implementation of the
// domain.AccountRepository.
func NewAccountRepositoryImpl(store *badgerhold.Store) domain.AccountRepository {
	return accountRepositoryImpl{store}
}

func (r accountRepositoryImpl) AddAccount(
	ctx context.Context, account *domain.Account,
) error {
	if err := r.store.Insert(account.Name, *account); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrAccountAlreadyExists
		}
		return err
	}
	return nil
}

func (r accountRepositoryImpl) GetAccount(
	ctx context.Context, accountName string,
) (*domain.Account, error) {
	var account domain.Account
	if err := r.store.Get(accountName, &account); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r accountRepositoryImpl) GetAllAccounts(
	ctx context.Context,
) ([]domain.Account, error) {
	accounts := make([]domain.Account, 0)
	if err := r.store.Find(&accounts, &badgerhold.Query{}); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r accountRepositoryImpl) UpdateAccount(
	ctx context.Context,
	accountName string, updateFn func(a *domain.Account) (*domain.Account, error),
) error {
	for {
		err := r.store.Badger().Update(func(tx *badger.Txn) error {
			var account domain.Account
			if err := r.store.TxGet(tx, accountName, &account); err != nil {
				if err == badgerhold.ErrNotFound {
					return domain.ErrAccountNotFound
				}
				return err
			}

			updatedAccount, err := updateFn(&account)
			if err != nil {
				return err
			}

			return r.store.TxUpdate(tx, accountName, *updatedAccount)
		})
		if err != badger.ErrConflict {
			return err
		}
	}
}
