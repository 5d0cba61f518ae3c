package application

import (
	"context"
	"encoding/hex"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

const (
	// StateIdle is the sync state of an account with no discovery scan in
	// progress.
	StateIdle = "idle"
	// StateScanning is the sync state of an account while its address space
	// is being scanned.
	StateScanning = "scanning"

	// DefaultAccountName is the name of the account the daemon creates at
	// first startup.
	DefaultAccountName = "main"

	defaultGapLimit = 20
)

// Syncer drives the address discovery of the wallet accounts and routes the
// push notifications of the chain source to the reconciler.
type Syncer interface {
	// Start registers the wallet accounts, subscribes the chain tip and runs
	// the initial discovery scan of every account. It returns once all
	// accounts are synced; push notifications keep the ledgers fresh
	// afterwards.
	Start(ctx context.Context) error
	// Resync re-runs the discovery scan of the account. If a scan is already
	// in progress another pass is scheduled right after it.
	Resync(ctx context.Context, accountName string) error
	// NewAddress derives the next address of the account on the external or
	// internal chain, persists its script and subscribes it.
	NewAddress(
		ctx context.Context, accountName string, change bool,
	) (*domain.Script, error)
	// SyncState returns the sync state of the account.
	SyncState(accountName string) string

	Stop()
}

type accountSyncState struct {
	mu      sync.Mutex
	state   string
	pending bool
}

type syncer struct {
	repoManager ports.RepoManager
	chainSource ports.ChainSource
	signer      ports.Signer
	reconciler  Reconciler
	gapLimit    int

	lock    *sync.Mutex
	scripts map[string]string
	states  map[string]*accountSyncState

	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	stopOnce *sync.Once
	wg       *sync.WaitGroup
}

// NewSyncer returns a syncer scanning up to gapLimit consecutive inactive
// scripts per chain of each account.
func NewSyncer(
	repoManager ports.RepoManager,
	chainSource ports.ChainSource,
	signer ports.Signer,
	reconciler Reconciler,
	gapLimit int,
) Syncer {
	if gapLimit <= 0 {
		gapLimit = defaultGapLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &syncer{
		repoManager: repoManager,
		chainSource: chainSource,
		signer:      signer,
		reconciler:  reconciler,
		gapLimit:    gapLimit,
		lock:        &sync.Mutex{},
		scripts:     map[string]string{},
		states:      map[string]*accountSyncState{},
		ctx:         ctx,
		cancel:      cancel,
		quit:        make(chan struct{}),
		stopOnce:    &sync.Once{},
		wg:          &sync.WaitGroup{},
	}
}

func (s *syncer) Start(ctx context.Context) error {
	accounts, err := s.ensureAccounts(ctx)
	if err != nil {
		return err
	}

	// Register all persisted scripts upfront so that notifications pushed
	// while scanning can already be routed to their account.
	s.lock.Lock()
	for i := range accounts {
		for scriptHash := range accounts[i].ScriptsByHash {
			s.scripts[scriptHash] = accounts[i].Name
		}
	}
	s.lock.Unlock()

	tip, err := s.chainSource.SubscribeTip(ctx)
	if err != nil {
		return err
	}
	for i := range accounts {
		s.reconciler.EnqueueTip(accounts[i].Name, *tip)
	}

	s.wg.Add(1)
	go s.listenNotifications()

	g, gctx := errgroup.WithContext(ctx)
	for i := range accounts {
		accountName := accounts[i].Name
		g.Go(func() error {
			return s.syncNow(gctx, accountName)
		})
	}
	return g.Wait()
}

func (s *syncer) Resync(ctx context.Context, accountName string) error {
	if _, err := s.repoManager.AccountRepository().GetAccount(
		ctx, accountName,
	); err != nil {
		return err
	}
	return s.syncNow(ctx, accountName)
}

func (s *syncer) NewAddress(
	ctx context.Context, accountName string, change bool,
) (*domain.Script, error) {
	chain := domain.ExternalChain
	if change {
		chain = domain.InternalChain
	}
	script, err := s.deriveNextScript(ctx, accountName, chain)
	if err != nil {
		return nil, err
	}
	if _, err := s.watchScript(ctx, accountName, *script); err != nil {
		// The script is persisted, the next scan or reconnect resubscribes
		// it.
		log.WithError(err).Warnf(
			"syncer: failed to subscribe script %s", script.ScriptHash,
		)
	}
	return script, nil
}

func (s *syncer) SyncState(accountName string) string {
	s.lock.Lock()
	state, ok := s.states[accountName]
	s.lock.Unlock()
	if !ok {
		return StateIdle
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.state
}

func (s *syncer) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.quit)
		s.wg.Wait()
	})
}

func (s *syncer) ensureAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repoManager.AccountRepository().GetAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 {
		return accounts, nil
	}

	xpub, err := s.signer.AccountXPub(0)
	if err != nil {
		return nil, err
	}
	account, err := domain.NewAccount(DefaultAccountName, 0, xpub, true)
	if err != nil {
		return nil, err
	}
	if err := s.repoManager.AccountRepository().AddAccount(
		ctx, account,
	); err != nil {
		return nil, err
	}
	log.Infof("syncer: created account %s", account.Name)
	return []domain.Account{*account}, nil
}

func (s *syncer) listenNotifications() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.chainSource.Notifications():
			if !ok {
				return
			}
			s.handleEvent(event)
		case <-s.quit:
			return
		}
	}
}

func (s *syncer) handleEvent(event ports.Event) {
	switch e := event.(type) {
	case ports.ScriptEvent:
		s.handleScriptEvent(e)
	case ports.TipEvent:
		s.handleTipEvent(e)
	case ports.ConnEvent:
		s.handleConnEvent(e)
	}
}

func (s *syncer) handleScriptEvent(event ports.ScriptEvent) {
	accountName, ok := s.accountForScript(event.ScriptHash)
	if !ok {
		log.Debugf(
			"syncer: notification for unknown script hash %s", event.ScriptHash,
		)
		return
	}

	s.reconciler.EnqueueIngest(accountName, event.ScriptHash, event.Status)

	// Activity close to the chain frontier may hide more funded scripts
	// right past it.
	if event.Status != "" && s.nearFrontier(accountName, event.ScriptHash) {
		s.requestScan(accountName)
	}
}

func (s *syncer) handleTipEvent(event ports.TipEvent) {
	accounts, err := s.repoManager.AccountRepository().GetAllAccounts(s.ctx)
	if err != nil {
		log.WithError(err).Warn("syncer: failed to fan out new tip")
		return
	}
	for i := range accounts {
		s.reconciler.EnqueueTip(accounts[i].Name, ports.Tip{
			Height: event.Height,
			Hash:   event.Hash,
		})
	}
}

func (s *syncer) handleConnEvent(event ports.ConnEvent) {
	if !event.Connected {
		log.Warnf("syncer: chain source disconnected from %s", event.Endpoint)
		return
	}
	log.Infof(
		"syncer: chain source connected to %s, refetching all histories",
		event.Endpoint,
	)

	// Notifications pushed while disconnected are lost. Refetch every
	// tracked history and the tip instead of trusting the resumed stream.
	s.lock.Lock()
	scripts := make(map[string]string, len(s.scripts))
	for scriptHash, accountName := range s.scripts {
		scripts[scriptHash] = accountName
	}
	s.lock.Unlock()

	for scriptHash, accountName := range scripts {
		s.reconciler.EnqueueIngest(accountName, scriptHash, "")
	}

	tip, err := s.chainSource.SubscribeTip(s.ctx)
	if err != nil {
		log.WithError(err).Warn("syncer: failed to refresh tip after reconnection")
		return
	}
	s.handleTipEvent(ports.TipEvent{Height: tip.Height, Hash: tip.Hash})
}

func (s *syncer) accountForScript(scriptHash string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	accountName, ok := s.scripts[scriptHash]
	return accountName, ok
}

func (s *syncer) nearFrontier(accountName, scriptHash string) bool {
	account, err := s.repoManager.AccountRepository().GetAccount(
		s.ctx, accountName,
	)
	if err != nil {
		return false
	}
	script, ok := account.ScriptByHash(scriptHash)
	if !ok {
		return false
	}
	frontier, err := account.NextIndex(script.Chain)
	if err != nil {
		return false
	}
	return script.Index+uint32(s.gapLimit) >= frontier
}

func (s *syncer) stateFor(accountName string) *accountSyncState {
	s.lock.Lock()
	defer s.lock.Unlock()

	if state, ok := s.states[accountName]; ok {
		return state
	}
	state := &accountSyncState{state: StateIdle}
	s.states[accountName] = state
	return state
}

// syncNow scans the account synchronously. If a scan is already running the
// request is coalesced into its pending pass.
func (s *syncer) syncNow(ctx context.Context, accountName string) error {
	state := s.stateFor(accountName)
	state.mu.Lock()
	state.pending = true
	if state.state == StateScanning {
		state.mu.Unlock()
		return nil
	}
	state.state = StateScanning
	state.mu.Unlock()

	return s.runScans(ctx, accountName)
}

// requestScan is the asynchronous variant of syncNow used by the
// notification handlers.
func (s *syncer) requestScan(accountName string) {
	state := s.stateFor(accountName)
	state.mu.Lock()
	state.pending = true
	if state.state == StateScanning {
		state.mu.Unlock()
		return
	}
	state.state = StateScanning
	state.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runScans(s.ctx, accountName); err != nil {
			log.WithError(err).Warnf(
				"syncer: rescan of account %s failed", accountName,
			)
		}
	}()
}

func (s *syncer) runScans(ctx context.Context, accountName string) error {
	state := s.stateFor(accountName)
	for {
		state.mu.Lock()
		if !state.pending {
			state.state = StateIdle
			state.mu.Unlock()
			return nil
		}
		state.pending = false
		state.mu.Unlock()

		if err := s.scanAccount(ctx, accountName); err != nil {
			state.mu.Lock()
			state.state = StateIdle
			state.mu.Unlock()
			return err
		}
	}
}

func (s *syncer) scanAccount(ctx context.Context, accountName string) error {
	log.Debugf("syncer: scanning account %s", accountName)
	for _, chain := range []int{domain.ExternalChain, domain.InternalChain} {
		if err := s.scanChain(ctx, accountName, chain); err != nil {
			return err
		}
	}
	return nil
}

// scanChain walks the derived scripts of the chain in index order, then
// keeps deriving until gapLimit consecutive scripts report no history.
// Every script it touches stays subscribed, so activity landing later
// inside the gap window is still observed.
func (s *syncer) scanChain(
	ctx context.Context, accountName string, chain int,
) error {
	account, err := s.repoManager.AccountRepository().GetAccount(
		ctx, accountName,
	)
	if err != nil {
		return err
	}

	gap := 0
	for _, script := range account.ScriptsForChain(chain) {
		active, err := s.watchScript(ctx, accountName, script)
		if err != nil {
			return err
		}
		if active {
			gap = 0
		} else {
			gap++
		}
	}

	for gap < s.gapLimit {
		script, err := s.deriveNextScript(ctx, accountName, chain)
		if err != nil {
			return err
		}
		active, err := s.watchScript(ctx, accountName, *script)
		if err != nil {
			return err
		}
		if active {
			gap = 0
		} else {
			gap++
		}
	}
	return nil
}

// watchScript subscribes the script and ingests its history right away when
// the initial status reports activity. The returned flag tells whether the
// script has any history.
func (s *syncer) watchScript(
	ctx context.Context, accountName string, script domain.Script,
) (bool, error) {
	s.lock.Lock()
	s.scripts[script.ScriptHash] = accountName
	s.lock.Unlock()

	status, err := s.chainSource.SubscribeScript(ctx, script.ScriptHash)
	if err != nil {
		return false, err
	}
	if status == "" {
		return false, nil
	}

	if _, err := s.reconciler.Ingest(
		ctx, accountName, script.ScriptHash, status,
	); err != nil {
		// The scan goes on, the server pushes the status again at the next
		// history change and the ingest is retried.
		log.WithError(err).Warnf(
			"syncer: failed to ingest history of script %s", script.ScriptHash,
		)
	}
	return true, nil
}

func (s *syncer) deriveNextScript(
	ctx context.Context, accountName string, chain int,
) (*domain.Script, error) {
	var derived domain.Script
	if err := s.repoManager.AccountRepository().UpdateAccount(
		ctx, accountName, func(a *domain.Account) (*domain.Account, error) {
			index, err := a.NextIndex(chain)
			if err != nil {
				return nil, err
			}
			info, err := s.signer.DeriveAddress(
				a.Index, chain, index, a.Confidential,
			)
			if err != nil {
				return nil, err
			}
			script := domain.Script{
				Account:        a.Name,
				Chain:          chain,
				Index:          index,
				Script:         hex.EncodeToString(info.Script),
				ScriptHash:     info.ScriptHash,
				Address:        info.Address,
				BlindingKey:    info.BlindingKey,
				DerivationPath: info.DerivationPath,
			}
			if err := a.AddScript(script); err != nil {
				return nil, err
			}
			derived = script
			return a, nil
		},
	); err != nil {
		return nil, err
	}

	log.Debugf(
		"syncer: derived script %d on chain %d of account %s",
		derived.Index, chain, accountName,
	)
	return &derived, nil
}
