package ports

import (
	"github.com/tide-network/tide-daemon/internal/core/domain"
)

// RepoManager interface defines the methods to access the repositories of the
// domain and to manage their lifecycle.
type RepoManager interface {
	AccountRepository() domain.AccountRepository
	LedgerRepository() domain.LedgerRepository
	AssetRepository() domain.AssetRepository

	Close()
}
