package application

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/vulpemventures/go-elements/network"
)

// WalletService is the facade of the wallet operations consumed by the
// daemon interfaces. Balances and transactions are views over the ledger of
// an account, building and broadcasting of transactions are delegated to
// the Builder, address derivation and rescans to the Syncer. An empty
// account name resolves to the default account.
type WalletService interface {
	GetBalance(ctx context.Context, accountName string) ([]AssetBalance, error)
	GetTransactions(ctx context.Context, accountName string) ([]TxInfo, error)
	NewAddress(
		ctx context.Context, accountName string, change bool,
	) (*AccountAddress, error)
	CreateTransaction(ctx context.Context, req BuildRequest) (*BuildInfo, error)
	SignAndBroadcast(ctx context.Context, buildID string) (string, error)
	Resync(ctx context.Context, accountName string) error
	Status(ctx context.Context) (*DaemonStatus, error)
}

type walletService struct {
	repoManager   ports.RepoManager
	syncer        Syncer
	builder       Builder
	registry      ports.AssetRegistry
	net           *network.Network
	confThreshold int64
}

// NewWalletService returns the wallet facade. The registry is optional,
// without it balances carry no display metadata.
func NewWalletService(
	repoManager ports.RepoManager,
	syncer Syncer,
	builder Builder,
	registry ports.AssetRegistry,
	net *network.Network,
	confThreshold int64,
) WalletService {
	return &walletService{
		repoManager:   repoManager,
		syncer:        syncer,
		builder:       builder,
		registry:      registry,
		net:           net,
		confThreshold: confThreshold,
	}
}

func (s *walletService) GetBalance(
	ctx context.Context, accountName string,
) ([]AssetBalance, error) {
	ledger, err := s.ledgerFor(ctx, accountName)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return []AssetBalance{}, nil
	}

	balances := ledger.Balance(s.confThreshold)
	list := make([]AssetBalance, 0, len(balances))
	for asset, balance := range balances {
		entry := AssetBalance{
			Asset:       asset,
			Confirmed:   balance.Confirmed,
			Unconfirmed: balance.Unconfirmed,
			Total:       balance.Total(),
		}
		if s.registry != nil {
			info, err := s.registry.ResolveAsset(ctx, asset)
			if err != nil {
				log.WithError(err).Debugf(
					"wallet: failed to resolve asset %s", asset,
				)
			}
			if info != nil {
				entry.Name = info.Name
				entry.Ticker = info.Ticker
				entry.Precision = info.Precision
				entry.DisplayTotal = formatAmount(entry.Total, info.Precision)
			}
		}
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Asset < list[j].Asset
	})
	return list, nil
}

func (s *walletService) GetTransactions(
	ctx context.Context, accountName string,
) ([]TxInfo, error) {
	ledger, err := s.ledgerFor(ctx, accountName)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return []TxInfo{}, nil
	}

	records := ledger.Transactions()
	list := make([]TxInfo, 0, len(records))
	for _, record := range records {
		// The net amounts moved by a transaction fall out of the utxo set:
		// its outputs owned by the account credit, the utxos it spends
		// debit. Unrevealed outputs are skipped on both sides, like they
		// are in balances.
		deltas := make(map[string]int64)
		for _, utxo := range ledger.Utxos {
			if !utxo.IsRevealed() {
				continue
			}
			if utxo.TxID == record.TxID {
				deltas[utxo.AssetHash] += int64(utxo.Value)
			}
			if utxo.SpentBy == record.TxID {
				deltas[utxo.AssetHash] -= int64(utxo.Value)
			}
		}

		confirmations := int64(0)
		if record.Height > 0 && ledger.TipHeight >= record.Height {
			confirmations = ledger.TipHeight - record.Height + 1
		}
		list = append(list, TxInfo{
			TxID:          record.TxID,
			Height:        record.Height,
			Confirmations: confirmations,
			ObservedAt:    record.ObservedAt,
			Deltas:        deltas,
		})
	}
	return list, nil
}

func (s *walletService) NewAddress(
	ctx context.Context, accountName string, change bool,
) (*AccountAddress, error) {
	script, err := s.syncer.NewAddress(
		ctx, s.resolveAccount(accountName), change,
	)
	if err != nil {
		return nil, err
	}
	return &AccountAddress{
		Address:        script.Address,
		Script:         script.Script,
		Chain:          script.Chain,
		Index:          script.Index,
		DerivationPath: script.DerivationPath,
	}, nil
}

func (s *walletService) CreateTransaction(
	ctx context.Context, req BuildRequest,
) (*BuildInfo, error) {
	req.Account = s.resolveAccount(req.Account)
	return s.builder.Build(ctx, req)
}

func (s *walletService) SignAndBroadcast(
	ctx context.Context, buildID string,
) (string, error) {
	return s.builder.SignAndBroadcast(ctx, buildID)
}

func (s *walletService) Resync(
	ctx context.Context, accountName string,
) error {
	return s.syncer.Resync(ctx, s.resolveAccount(accountName))
}

func (s *walletService) Status(ctx context.Context) (*DaemonStatus, error) {
	accounts, err := s.repoManager.AccountRepository().GetAllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]AccountStatus, len(accounts))
	for _, account := range accounts {
		status := AccountStatus{
			SyncState:  s.syncer.SyncState(account.Name),
			NumScripts: len(account.ScriptsByHash),
		}
		ledger, err := s.repoManager.LedgerRepository().GetLedger(
			ctx, account.Name,
		)
		if err == nil {
			status.TipHeight = ledger.TipHeight
			status.TipHash = ledger.TipHash
			for _, utxo := range ledger.Utxos {
				if !utxo.IsSpent() {
					status.NumUtxos++
				}
			}
		}
		statuses[account.Name] = status
	}
	return &DaemonStatus{
		Network:  s.net.Name,
		Accounts: statuses,
	}, nil
}

func (s *walletService) resolveAccount(accountName string) string {
	if accountName == "" {
		return DefaultAccountName
	}
	return accountName
}

// ledgerFor returns the ledger of the account, nil when the account exists
// but was never synced.
func (s *walletService) ledgerFor(
	ctx context.Context, accountName string,
) (*domain.Ledger, error) {
	accountName = s.resolveAccount(accountName)
	ledger, err := s.repoManager.LedgerRepository().GetLedger(ctx, accountName)
	if err != nil {
		if err != domain.ErrLedgerNotFound {
			return nil, err
		}
		if _, err := s.repoManager.AccountRepository().GetAccount(
			ctx, accountName,
		); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return ledger, nil
}

func formatAmount(amount uint64, precision uint) string {
	return decimal.New(int64(amount), -int32(precision)).String()
}
