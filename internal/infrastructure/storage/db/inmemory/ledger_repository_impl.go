package inmemory

import (
	"context"
	"sync"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

// LedgerRepositoryImpl represents an in memory storage of account ledgers.
type LedgerRepositoryImpl struct {
	ledgers map[string]*domain.Ledger

	lock *sync.RWMutex
}

// NewLedgerRepositoryImpl returns a new empty LedgerRepositoryImpl.
func NewLedgerRepositoryImpl() *LedgerRepositoryImpl {
	return &LedgerRepositoryImpl{
		ledgers: map[string]*domain.Ledger{},
		lock:    &sync.RWMutex{},
	}
}

func (r *LedgerRepositoryImpl) GetOrCreateLedger(
	_ context.Context, accountName string,
) (*domain.Ledger, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if ledger, ok := r.ledgers[accountName]; ok {
		return copyLedger(ledger), nil
	}

	ledger, err := domain.NewLedger(accountName)
	if err != nil {
		return nil, err
	}
	r.ledgers[accountName] = ledger
	return copyLedger(ledger), nil
}

func (r *LedgerRepositoryImpl) GetLedger(
	_ context.Context, accountName string,
) (*domain.Ledger, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ledger, ok := r.ledgers[accountName]
	if !ok {
		return nil, domain.ErrLedgerNotFound
	}
	return copyLedger(ledger), nil
}

func (r *LedgerRepositoryImpl) GetAllLedgers(
	_ context.Context,
) ([]domain.Ledger, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ledgers := make([]domain.Ledger, 0, len(r.ledgers))
	for _, ledger := range r.ledgers {
		ledgers = append(ledgers, *copyLedger(ledger))
	}
	return ledgers, nil
}

func (r *LedgerRepositoryImpl) UpdateLedger(
	_ context.Context,
	accountName string, updateFn func(l *domain.Ledger) (*domain.Ledger, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ledger, ok := r.ledgers[accountName]
	if !ok {
		return domain.ErrLedgerNotFound
	}

	updatedLedger, err := updateFn(copyLedger(ledger))
	if err != nil {
		return err
	}

	r.ledgers[accountName] = updatedLedger
	return nil
}
