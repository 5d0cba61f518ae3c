package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/pkg/transactionutil"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"
)

const reconcileQueueSize = 64

// ReconcileResult summarizes the ledger changes applied by one ingest.
type ReconcileResult struct {
	Account        string
	NewTxs         []string
	ConfirmedTxs   []string
	EvictedTxs     []string
	ReorgDetected  bool
	UnblindErrors  []*UnblindError
	BalanceChanged bool
	Balances       map[string]domain.Balance
}

// Changed returns whether the ingest had any effect on the ledger.
func (r *ReconcileResult) Changed() bool {
	return len(r.NewTxs) > 0 || len(r.ConfirmedTxs) > 0 ||
		len(r.EvictedTxs) > 0 || r.BalanceChanged
}

// Reconciler merges chain source responses into the account ledgers. All
// writes to a ledger go through the per account worker of the reconciler,
// one task at a time in arrival order, so that concurrent deliveries never
// interleave their effects.
type Reconciler interface {
	// Ingest refetches the history of the script hash, applies the diff to
	// the account ledger and returns the result. It blocks until the ingest
	// is processed by the account worker. A status equal to the stored one
	// short-circuits to a no-op; an empty status always forces the fetch.
	Ingest(
		ctx context.Context, accountName, scriptHash, status string,
	) (*ReconcileResult, error)
	// EnqueueIngest schedules an ingest without waiting for its completion.
	EnqueueIngest(accountName, scriptHash, status string)
	// EnqueueTip schedules the update of the account ledger tip.
	EnqueueTip(accountName string, tip ports.Tip)

	Stop()
}

type reconcileTask struct {
	ctx        context.Context
	scriptHash string
	status     string
	tip        *ports.Tip
	chResult   chan reconcileOutcome
}

type reconcileOutcome struct {
	result *ReconcileResult
	err    error
}

type reconciler struct {
	repoManager   ports.RepoManager
	chainSource   ports.ChainSource
	notifier      ports.Notifier
	confThreshold int64

	lock   *sync.Mutex
	queues map[string]chan *reconcileTask

	quit     chan struct{}
	stopOnce *sync.Once
	wg       *sync.WaitGroup
}

// NewReconciler returns a reconciler writing to the ledgers of the given
// repo manager. Workers are spawned lazily, one per account, at the first
// task enqueued for it. The notifier, if not nil, receives balance and tx
// events after every applied ingest.
func NewReconciler(
	repoManager ports.RepoManager,
	chainSource ports.ChainSource,
	notifier ports.Notifier,
	confThreshold int64,
) Reconciler {
	return &reconciler{
		repoManager:   repoManager,
		chainSource:   chainSource,
		notifier:      notifier,
		confThreshold: confThreshold,
		lock:          &sync.Mutex{},
		queues:        map[string]chan *reconcileTask{},
		quit:          make(chan struct{}),
		stopOnce:      &sync.Once{},
		wg:            &sync.WaitGroup{},
	}
}

func (r *reconciler) Ingest(
	ctx context.Context, accountName, scriptHash, status string,
) (*ReconcileResult, error) {
	task := &reconcileTask{
		ctx:        ctx,
		scriptHash: scriptHash,
		status:     status,
		chResult:   make(chan reconcileOutcome, 1),
	}
	if err := r.enqueue(accountName, task); err != nil {
		return nil, err
	}

	select {
	case outcome := <-task.chResult:
		return outcome.result, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.quit:
		return nil, ErrReconcilerStopped
	}
}

func (r *reconciler) EnqueueIngest(accountName, scriptHash, status string) {
	task := &reconcileTask{scriptHash: scriptHash, status: status}
	if err := r.enqueue(accountName, task); err != nil {
		log.WithError(err).Debugf(
			"reconciler: dropped ingest for account %s", accountName,
		)
	}
}

func (r *reconciler) EnqueueTip(accountName string, tip ports.Tip) {
	task := &reconcileTask{tip: &tip}
	if err := r.enqueue(accountName, task); err != nil {
		log.WithError(err).Debugf(
			"reconciler: dropped tip update for account %s", accountName,
		)
	}
}

func (r *reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
		r.wg.Wait()
	})
}

func (r *reconciler) enqueue(accountName string, task *reconcileTask) error {
	select {
	case <-r.quit:
		return ErrReconcilerStopped
	default:
	}

	select {
	case r.queueFor(accountName) <- task:
		return nil
	case <-r.quit:
		return ErrReconcilerStopped
	}
}

func (r *reconciler) queueFor(accountName string) chan *reconcileTask {
	r.lock.Lock()
	defer r.lock.Unlock()

	if queue, ok := r.queues[accountName]; ok {
		return queue
	}
	queue := make(chan *reconcileTask, reconcileQueueSize)
	r.queues[accountName] = queue
	r.wg.Add(1)
	go r.worker(accountName, queue)
	return queue
}

func (r *reconciler) worker(accountName string, queue chan *reconcileTask) {
	defer r.wg.Done()

	for {
		select {
		case task := <-queue:
			outcome := r.process(accountName, task)
			if task.chResult != nil {
				task.chResult <- outcome
			}
		case <-r.quit:
			return
		}
	}
}

func (r *reconciler) process(
	accountName string, task *reconcileTask,
) reconcileOutcome {
	ctx := task.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		result *ReconcileResult
		err    error
	)
	if task.tip != nil {
		result, err = r.applyTip(ctx, accountName, *task.tip)
	} else {
		result, err = r.ingest(ctx, accountName, task.scriptHash, task.status)
	}
	if err != nil {
		log.WithError(err).Warnf(
			"reconciler: failed to reconcile account %s", accountName,
		)
		return reconcileOutcome{err: err}
	}

	r.publish(result)
	return reconcileOutcome{result: result}
}

// ingest runs the gather phase against the chain source on a snapshot of
// the ledger, then applies the whole diff atomically through the repository
// update closure. A cancellation during the gather phase leaves the stored
// ledger untouched.
func (r *reconciler) ingest(
	ctx context.Context, accountName, scriptHash, status string,
) (*ReconcileResult, error) {
	account, err := r.repoManager.AccountRepository().GetAccount(
		ctx, accountName,
	)
	if err != nil {
		return nil, err
	}
	ledger, err := r.repoManager.LedgerRepository().GetOrCreateLedger(
		ctx, accountName,
	)
	if err != nil {
		return nil, err
	}

	if status != "" && ledger.Status(scriptHash) == status {
		return &ReconcileResult{
			Account:  accountName,
			Balances: ledger.Balance(r.confThreshold),
		}, nil
	}

	prevBalances := ledger.Balance(r.confThreshold)

	history, err := r.chainSource.GetScriptHistory(ctx, scriptHash)
	if err != nil {
		return nil, err
	}

	diff := diffHistory(
		ledger.HistoryForScript(scriptHash), history, ledger.TipHash,
	)

	// The candidate history is applied to the snapshot only to learn which
	// transactions still need to be fetched and cached.
	ledger.SetHistory(scriptHash, diff.entries)
	active := ledger.ActiveTxIDs()
	missing := make([]string, 0)
	for txid := range active {
		if _, err := ledger.GetTxRecord(txid); err != nil {
			missing = append(missing, txid)
		}
	}
	sort.Strings(missing)

	now := time.Now().Unix()
	fetched := make([]*domain.TxRecord, 0, len(missing))
	for _, txid := range missing {
		txHex, err := r.chainSource.GetTransaction(ctx, txid)
		if err != nil {
			return nil, err
		}
		if _, err := transaction.NewTxFromHex(txHex); err != nil {
			return nil, fmt.Errorf(
				"chain source served unparsable transaction %s: %v", txid, err,
			)
		}
		fetched = append(fetched, &domain.TxRecord{
			TxID:       txid,
			TxHex:      txHex,
			Height:     active[txid],
			ObservedAt: now,
		})
	}

	result := &ReconcileResult{
		Account:       accountName,
		NewTxs:        missing,
		ConfirmedTxs:  diff.confirmed,
		EvictedTxs:    diff.evicted,
		ReorgDetected: diff.reorg,
	}

	if err := r.repoManager.LedgerRepository().UpdateLedger(
		ctx, accountName, func(l *domain.Ledger) (*domain.Ledger, error) {
			l.SetHistory(scriptHash, diff.entries)
			l.SetStatus(scriptHash, status)
			for _, record := range fetched {
				if err := l.UpsertTxRecord(record); err != nil {
					return nil, err
				}
			}
			unblindErrs, err := r.rebuild(l, account)
			if err != nil {
				return nil, err
			}
			result.UnblindErrors = unblindErrs
			result.Balances = l.Balance(r.confThreshold)
			return l, nil
		},
	); err != nil {
		return nil, err
	}
	result.BalanceChanged = !equalBalances(prevBalances, result.Balances)

	ingestsCounter.WithLabelValues(accountName).Inc()
	if result.ReorgDetected {
		reorgsCounter.WithLabelValues(accountName).Inc()
		log.Warnf(
			"reconciler: reorg detected on account %s, script %s",
			accountName, scriptHash,
		)
	}
	if len(result.EvictedTxs) > 0 {
		evictionsCounter.WithLabelValues(accountName).Add(
			float64(len(result.EvictedTxs)),
		)
	}
	for _, warning := range result.UnblindErrors {
		unblindFailuresCounter.WithLabelValues(accountName).Inc()
		log.Warn(warning)
	}

	return result, nil
}

func (r *reconciler) applyTip(
	ctx context.Context, accountName string, tip ports.Tip,
) (*ReconcileResult, error) {
	ledger, err := r.repoManager.LedgerRepository().GetOrCreateLedger(
		ctx, accountName,
	)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Account: accountName}
	if ledger.TipHeight == tip.Height && ledger.TipHash == tip.Hash {
		result.Balances = ledger.Balance(r.confThreshold)
		return result, nil
	}

	if tip.Height < ledger.TipHeight ||
		(tip.Height == ledger.TipHeight && tip.Hash != ledger.TipHash) {
		result.ReorgDetected = true
		reorgsCounter.WithLabelValues(accountName).Inc()
		log.Warnf(
			"reconciler: chain tip of account %s moved back from %d to %d",
			accountName, ledger.TipHeight, tip.Height,
		)
	}

	prevBalances := ledger.Balance(r.confThreshold)
	if err := r.repoManager.LedgerRepository().UpdateLedger(
		ctx, accountName, func(l *domain.Ledger) (*domain.Ledger, error) {
			l.SetTip(tip.Height, tip.Hash)
			result.Balances = l.Balance(r.confThreshold)
			return l, nil
		},
	); err != nil {
		return nil, err
	}
	result.BalanceChanged = !equalBalances(prevBalances, result.Balances)

	return result, nil
}

// rebuild recomputes the derived utxo set of the ledger from the active
// history entries and the cached transactions. The rebuild is deterministic
// in the active set, which makes repeated ingests of an unchanged history
// idempotent and resolves reorg reverts for free: entries that lost their
// block simply contribute their effects at the new height, evicted ones not
// at all. Unblind outcomes of known outpoints are carried over, an outpoint
// is never unblinded twice.
func (r *reconciler) rebuild(
	ledger *domain.Ledger, account *domain.Account,
) ([]*UnblindError, error) {
	active := ledger.ActiveTxIDs()
	txids := make([]string, 0, len(active))
	for txid := range active {
		txids = append(txids, txid)
	}
	sort.Strings(txids)

	scriptsByHex := make(map[string]domain.Script, len(account.ScriptsByHash))
	for _, script := range account.ScriptsByHash {
		scriptsByHex[script.Script] = script
	}

	prevUtxos := ledger.Utxos
	parsed := make(map[string]*transaction.Transaction, len(txids))
	utxos := make([]*domain.Utxo, 0, len(prevUtxos))
	utxosByKey := make(map[string]*domain.Utxo)
	warnings := make([]*UnblindError, 0)

	for _, txid := range txids {
		record, err := ledger.GetTxRecord(txid)
		if err != nil {
			return nil, err
		}
		tx, err := transaction.NewTxFromHex(record.TxHex)
		if err != nil {
			return nil, err
		}
		parsed[txid] = tx
		record.Height = active[txid]

		for vout, out := range tx.Outputs {
			script, ok := scriptsByHex[hex.EncodeToString(out.Script)]
			if !ok {
				continue
			}
			key := domain.UtxoKey{TxID: txid, VOut: uint32(vout)}
			utxo, warning := deriveUtxo(
				prevUtxos, key, out, script, account.Name, active[txid],
			)
			if warning != nil {
				warnings = append(warnings, warning)
			}
			utxos = append(utxos, utxo)
			utxosByKey[key.String()] = utxo
		}
	}

	for _, txid := range txids {
		for _, in := range parsed[txid].Inputs {
			key := domain.UtxoKey{
				TxID: hex.EncodeToString(elementsutil.ReverseBytes(in.Hash)),
				VOut: in.Index,
			}
			if utxo, ok := utxosByKey[key.String()]; ok {
				utxo.SpentBy = txid
			}
		}
	}

	ledger.ReplaceUtxos(utxos)
	return warnings, nil
}

// deriveUtxo builds the utxo of a wallet output, reusing the unblind
// outcome of the previous rebuild when the outpoint is already known.
func deriveUtxo(
	prevUtxos map[string]*domain.Utxo,
	key domain.UtxoKey,
	out *transaction.TxOutput,
	script domain.Script,
	accountName string,
	height int64,
) (*domain.Utxo, *UnblindError) {
	confirmedHeight := height
	if confirmedHeight < 0 {
		confirmedHeight = 0
	}

	if known, ok := prevUtxos[key.String()]; ok {
		utxo := *known
		utxo.SpentBy = ""
		utxo.ConfirmedHeight = confirmedHeight
		return &utxo, nil
	}

	utxo := &domain.Utxo{
		TxID:            key.TxID,
		VOut:            key.VOut,
		Script:          script.Script,
		Address:         script.Address,
		ConfirmedHeight: confirmedHeight,
	}
	if out.IsConfidential() {
		utxo.ValueCommitment = hex.EncodeToString(out.Value)
		utxo.AssetCommitment = hex.EncodeToString(out.Asset)
		utxo.Nonce = out.Nonce
	}

	revealed, ok := transactionutil.UnblindOutput(out, script.BlindingKey)
	if !ok {
		utxo.Unspendable = true
		return utxo, &UnblindError{Account: accountName, Outpoint: key}
	}
	utxo.AssetHash = revealed.AssetHash
	utxo.Value = revealed.Value
	utxo.AssetBlinder = revealed.AssetBlinder
	utxo.ValueBlinder = revealed.ValueBlinder
	return utxo, nil
}

func (r *reconciler) publish(result *ReconcileResult) {
	if r.notifier == nil || !result.Changed() {
		return
	}

	if result.BalanceChanged {
		r.notifier.Publish(ports.WalletEvent{
			Topic:   ports.TopicBalance,
			Account: result.Account,
			Payload: balanceNotifications(result.Balances),
		})
	}
	for _, txid := range result.NewTxs {
		r.publishTx(result.Account, txid, TxStatusNew)
	}
	for _, txid := range result.ConfirmedTxs {
		r.publishTx(result.Account, txid, TxStatusConfirmed)
	}
	for _, txid := range result.EvictedTxs {
		r.publishTx(result.Account, txid, TxStatusEvicted)
	}
}

func (r *reconciler) publishTx(accountName, txid, status string) {
	r.notifier.Publish(ports.WalletEvent{
		Topic:   ports.TopicTx,
		Account: accountName,
		Payload: TxNotification{TxID: txid, Status: status},
	})
}

type historyDiff struct {
	entries   []domain.HistoryEntry
	confirmed []string
	evicted   []string
	reorg     bool
}

// diffHistory merges the served history into the stored one. Served entries
// replace the stored state in served order; stored entries no longer served
// are kept, flagged evicted. A served height lower than a stored confirmed
// height is a reorg signal. Entries are never deleted.
func diffHistory(
	stored []domain.HistoryEntry, served []ports.HistoryRecord, tipHash string,
) *historyDiff {
	diff := &historyDiff{
		entries: make([]domain.HistoryEntry, 0, len(stored)+len(served)),
	}

	storedByTxid := make(map[string]domain.HistoryEntry, len(stored))
	for _, entry := range stored {
		storedByTxid[entry.TxID] = entry
	}

	seen := make(map[string]struct{}, len(served))
	for _, record := range served {
		entry := domain.HistoryEntry{
			TxID:    record.TxID,
			Height:  record.Height,
			TipHash: tipHash,
		}
		if prev, ok := storedByTxid[record.TxID]; ok {
			if record.Height == prev.Height && !prev.Evicted {
				entry.TipHash = prev.TipHash
			}
			if prev.Height > 0 && record.Height < prev.Height {
				diff.reorg = true
			}
			if prev.Height <= 0 && record.Height > 0 && !prev.Evicted {
				diff.confirmed = append(diff.confirmed, record.TxID)
			}
		}
		seen[record.TxID] = struct{}{}
		diff.entries = append(diff.entries, entry)
	}

	for _, prev := range stored {
		if _, ok := seen[prev.TxID]; ok {
			continue
		}
		entry := prev
		if !entry.Evicted {
			entry.Evicted = true
			diff.evicted = append(diff.evicted, entry.TxID)
		}
		diff.entries = append(diff.entries, entry)
	}

	return diff
}

func equalBalances(a, b map[string]domain.Balance) bool {
	if len(a) != len(b) {
		return false
	}
	for asset, balance := range a {
		if b[asset] != balance {
			return false
		}
	}
	return true
}
