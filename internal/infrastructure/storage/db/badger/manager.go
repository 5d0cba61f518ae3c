package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
)

// repoManager holds the badgerhold stores and the repositories backed by
// them. Accounts and assets share a store, ledgers get a dedicated one since
// reconciliation rewrites them at every status change.
type repoManager struct {
	store       *badgerhold.Store
	ledgerStore *badgerhold.Store

	accountRepository domain.AccountRepository
	ledgerRepository  domain.LedgerRepository
	assetRepository   domain.AssetRepository
}

// NewRepoManager opens, or creates if missing, the badger stores under the
// given data dir. An empty dir opens volatile in-memory stores.
func NewRepoManager(
	baseDbDir string, logger badger.Logger,
) (ports.RepoManager, error) {
	var walletDir, ledgerDir string
	if baseDbDir != "" {
		walletDir = filepath.Join(baseDbDir, "wallet")
		ledgerDir = filepath.Join(baseDbDir, "ledger")
	}

	store, err := createDb(walletDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening wallet db: %w", err)
	}

	ledgerStore, err := createDb(ledgerDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}

	return &repoManager{
		store:             store,
		ledgerStore:       ledgerStore,
		accountRepository: NewAccountRepositoryImpl(store),
		ledgerRepository:  NewLedgerRepositoryImpl(ledgerStore),
		assetRepository:   NewAssetRepositoryImpl(store),
	}, nil
}

func (d *repoManager) AccountRepository() domain.AccountRepository {
	return d.accountRepository
}

func (d *repoManager) LedgerRepository() domain.LedgerRepository {
	return d.ledgerRepository
}

func (d *repoManager) AssetRepository() domain.AssetRepository {
	return d.assetRepository
}

func (d *repoManager) Close() {
	d.store.Close()
	d.ledgerStore.Close()
}

// JSONEncode is a custom JSON based encoder for badger. The domain
// aggregates hold maps that must round-trip empty, not nil.
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)
	if err := en.Encode(value); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	de := json.NewDecoder(bytes.NewReader(data))
	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
