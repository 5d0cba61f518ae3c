package ports

import "context"

// Event is a push notification delivered by a ChainSource. The concrete type
// is one of ScriptEvent, TipEvent or ConnEvent.
type Event interface {
	isChainEvent()
}

// ScriptEvent notifies that the history of a subscribed script changed.
// Status is the server-computed hash of the script history, empty if the
// script has no history.
type ScriptEvent struct {
	ScriptHash string
	Status     string
}

// TipEvent notifies a new chain tip.
type TipEvent struct {
	Height int64
	Hash   string
}

// ConnEvent notifies a connectivity transition of an upstream server. After
// a reconnection all subscriptions have been re-established server-side, but
// any notification pushed while disconnected is lost and the consumer must
// refetch the histories it cares about.
type ConnEvent struct {
	Endpoint  string
	Connected bool
}

func (ScriptEvent) isChainEvent() {}
func (TipEvent) isChainEvent()    {}
func (ConnEvent) isChainEvent()   {}

// HistoryRecord is one entry of a script history as served by the remote
// indexer. Height is 0 for mempool transactions and -1 for mempool
// transactions with unconfirmed parents.
type HistoryRecord struct {
	TxID   string
	Height int64
	Fee    uint64
}

// Tip is the best known chain tip of a ChainSource. Hash identifies the
// header bytes, it is not guaranteed to be the consensus block hash.
type Tip struct {
	Height int64
	Hash   string
}

// ChainSource interface defines the methods to query and watch one or more
// remote indexing servers speaking the Electrum protocol.
type ChainSource interface {
	// SubscribeScript registers the script hash for push notifications and
	// returns its current status. An empty status means no history.
	SubscribeScript(ctx context.Context, scriptHash string) (string, error)
	// UnsubscribeScript cancels the subscription for the script hash.
	UnsubscribeScript(ctx context.Context, scriptHash string) error
	// GetScriptHistory returns the history of the script hash, confirmed
	// entries first in ascending height order, mempool entries last.
	GetScriptHistory(ctx context.Context, scriptHash string) ([]HistoryRecord, error)
	// GetTransaction returns the raw transaction in hex format.
	GetTransaction(ctx context.Context, txid string) (string, error)
	// GetBlockHeader returns the serialized header at the given height in
	// hex format.
	GetBlockHeader(ctx context.Context, height int64) (string, error)
	// BroadcastTransaction publishes the raw transaction and returns its id.
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
	// SubscribeTip registers for new tip notifications and returns the
	// current tip.
	SubscribeTip(ctx context.Context) (*Tip, error)
	// EstimateFee returns the fee rate in sats per kilo-vbyte estimated by
	// the server to confirm within the given number of blocks.
	EstimateFee(ctx context.Context, targetBlocks int) (uint64, error)
	// Notifications returns the channel where all push notifications are
	// delivered. The channel is closed when the chain source is shut down.
	Notifications() <-chan Event

	Close()
}
