package dbbadger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

type ledgerRepositoryImpl struct {
	store *badgerhold.Store
}

// NewLedgerRepositoryImpl initializes a badger implementation of the
// domain.LedgerRepository.
func NewLedgerRepositoryImpl(store *badgerhold.Store) domain.LedgerRepository {
	return ledgerRepositoryImpl{store}
}

func (r ledgerRepositoryImpl) GetOrCreateLedger(
	ctx context.Context, accountName string,
) (*domain.Ledger, error) {
	ledger, err := r.getLedger(accountName)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		return ledger, nil
	}

	newLedger, err := domain.NewLedger(accountName)
	if err != nil {
		return nil, err
	}

	if err := r.store.Insert(accountName, *newLedger); err != nil {
		if err == badgerhold.ErrKeyExists {
			// Lost the race against a concurrent creator.
			return r.GetLedger(ctx, accountName)
		}
		return nil, err
	}
	return newLedger, nil
}

func (r ledgerRepositoryImpl) GetLedger(
	ctx context.Context, accountName string,
) (*domain.Ledger, error) {
	ledger, err := r.getLedger(accountName)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, domain.ErrLedgerNotFound
	}
	return ledger, nil
}

func (r ledgerRepositoryImpl) GetAllLedgers(
	ctx context.Context,
) ([]domain.Ledger, error) {
	ledgers := make([]domain.Ledger, 0)
	if err := r.store.Find(&ledgers, &badgerhold.Query{}); err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (r ledgerRepositoryImpl) UpdateLedger(
	ctx context.Context,
	accountName string, updateFn func(l *domain.Ledger) (*domain.Ledger, error),
) error {
	for {
		err := r.store.Badger().Update(func(tx *badger.Txn) error {
			var ledger domain.Ledger
			if err := r.store.TxGet(tx, accountName, &ledger); err != nil {
				if err == badgerhold.ErrNotFound {
					return domain.ErrLedgerNotFound
				}
				return err
			}

			updatedLedger, err := updateFn(&ledger)
			if err != nil {
				return err
			}

			return r.store.TxUpdate(tx, accountName, *updatedLedger)
		})
		if err != badger.ErrConflict {
			return err
		}
	}
}

func (r ledgerRepositoryImpl) getLedger(
	accountName string,
) (*domain.Ledger, error) {
	var ledger domain.Ledger
	if err := r.store.Get(accountName, &ledger); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ledger, nil
}
