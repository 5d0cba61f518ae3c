package dbbadger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
)

func newTestRepoManager(t *testing.T) ports.RepoManager {
	t.Helper()

	repoManager, err := NewRepoManager("", nil)
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)
	return repoManager
}

func newTestAccount(t *testing.T, name string) *domain.Account {
	t.Helper()

	account, err := domain.NewAccount(name, 0, "xpub...", true)
	require.NoError(t, err)
	return account
}
