package electrum

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"github.com/tide-network/tide-daemon/internal/core/ports"
)

const (
	protocolVersion = "1.4"
	userAgent       = "tide-daemon"

	defaultRequestsPerSecond = 32
	handshakeTimeout         = 15 * time.Second
	resubscribeTimeout       = 30 * time.Second
	pingInterval             = 30 * time.Second
	pingTimeout              = 10 * time.Second
	initialBackoff           = time.Second
	maxBackoff               = time.Minute
	callAttempts             = 3
	retryDelay               = 500 * time.Millisecond
	eventBufferSize          = 128
)

// ConnState is the state of the connection maintained by a client.
type ConnState int

const (
	StateReconnecting ConnState = iota
	StateConnected
	StateBackoff
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "reconnecting"
	}
}

type ClientOpts struct {
	Endpoint string
	// ProxyAddr is the host:port of an optional SOCKS5 proxy.
	ProxyAddr string
	// AllowInsecureTLS skips the certificate check on ssl and wss endpoints.
	AllowInsecureTLS bool
	// RequestsPerSecond paces outgoing calls, 0 means the default.
	RequestsPerSecond int
}

func (o ClientOpts) validate() error {
	if o.Endpoint == "" {
		return ErrNullEndpoints
	}
	return nil
}

// Client maintains a connection to a single Electrum server. It transparently
// reconnects with exponential backoff and re-establishes every active
// subscription, signalling consumers through a ConnEvent whenever the
// connection is lost or restored.
type Client struct {
	endpoint  string
	proxyAddr string
	insecure  bool

	limiter ratelimit.Limiter
	rnd     *rand.Rand

	mu         sync.Mutex
	conn       conn
	state      ConnState
	pending    map[uint64]chan *envelope
	scriptSubs map[string]struct{}
	tipSub     bool

	id uint64

	events    chan ports.Event
	quit      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient returns a client for the given endpoint. No connection is made
// until Connect is called.
func NewClient(opts ClientOpts) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	return &Client{
		endpoint:   opts.Endpoint,
		proxyAddr:  opts.ProxyAddr,
		insecure:   opts.AllowInsecureTLS,
		limiter:    ratelimit.New(rps),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:    make(map[uint64]chan *envelope),
		scriptSubs: make(map[string]struct{}),
		events:     make(chan ports.Event, eventBufferSize),
		quit:       make(chan struct{}),
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notifications returns the channel where subscription pushes and
// connectivity transitions are delivered. It is closed by Close.
func (c *Client) Notifications() <-chan ports.Event {
	return c.events
}

// Connect dials the endpoint and performs the version handshake. If the first
// attempt fails the client keeps retrying in background with backoff, so a
// returned error does not make the client unusable.
func (c *Client) Connect(ctx context.Context) error {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.keepAlive()
	})

	if err := c.connect(ctx); err != nil {
		c.wg.Add(1)
		go c.reconnectLoop()
		return err
	}
	return nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.close()
			c.conn = nil
		}
		c.failPendingLocked()
		c.mu.Unlock()
		c.wg.Wait()
		close(c.events)
	})
}

// SubscribeScript registers the script hash for status notifications and
// returns its current status, empty if the script has no history. The
// subscription survives reconnections.
func (c *Client) SubscribeScript(
	ctx context.Context, scriptHash string,
) (string, error) {
	status, err := c.subscribeScript(ctx, scriptHash)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.scriptSubs[scriptHash] = struct{}{}
	c.mu.Unlock()
	return status, nil
}

func (c *Client) subscribeScript(
	ctx context.Context, scriptHash string,
) (string, error) {
	res, err := c.request(ctx, methodScriptSubscribe, scriptHash)
	if err != nil {
		return "", err
	}
	var status *string
	if err := json.Unmarshal(res, &status); err != nil {
		return "", err
	}
	if status == nil {
		return "", nil
	}
	return *status, nil
}

func (c *Client) UnsubscribeScript(
	ctx context.Context, scriptHash string,
) error {
	c.mu.Lock()
	delete(c.scriptSubs, scriptHash)
	c.mu.Unlock()

	_, err := c.request(ctx, methodScriptUnsubscribe, scriptHash)
	return err
}

// SubscribeTip registers for new header notifications and returns the
// current tip. The subscription survives reconnections.
func (c *Client) SubscribeTip(ctx context.Context) (*ports.Tip, error) {
	tip, err := c.subscribeTip(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tipSub = true
	c.mu.Unlock()
	return tip, nil
}

func (c *Client) subscribeTip(ctx context.Context) (*ports.Tip, error) {
	res, err := c.request(ctx, methodHeadersSubscribe)
	if err != nil {
		return nil, err
	}
	var header headerItem
	if err := json.Unmarshal(res, &header); err != nil {
		return nil, err
	}
	return &ports.Tip{
		Height: header.Height,
		Hash:   headerHash(header.Hex),
	}, nil
}

func (c *Client) GetScriptHistory(
	ctx context.Context, scriptHash string,
) ([]ports.HistoryRecord, error) {
	res, err := c.request(ctx, methodGetHistory, scriptHash)
	if err != nil {
		return nil, err
	}
	var items []historyItem
	if err := json.Unmarshal(res, &items); err != nil {
		return nil, err
	}
	history := make([]ports.HistoryRecord, 0, len(items))
	for _, item := range items {
		history = append(history, ports.HistoryRecord{
			TxID:   item.TxHash,
			Height: item.Height,
			Fee:    item.Fee,
		})
	}
	return history, nil
}

func (c *Client) GetTransaction(
	ctx context.Context, txid string,
) (string, error) {
	res, err := c.request(ctx, methodGetTransaction, txid)
	if err != nil {
		return "", err
	}
	var txHex string
	if err := json.Unmarshal(res, &txHex); err != nil {
		return "", err
	}
	return txHex, nil
}

func (c *Client) GetBlockHeader(
	ctx context.Context, height int64,
) (string, error) {
	res, err := c.request(ctx, methodBlockHeader, height)
	if err != nil {
		return "", err
	}
	var headerHex string
	if err := json.Unmarshal(res, &headerHex); err != nil {
		return "", err
	}
	return headerHex, nil
}

func (c *Client) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	res, err := c.request(ctx, methodBroadcast, txHex)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(res, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// EstimateFee returns the fee rate in sats per kilo-vbyte estimated by the
// server to confirm within the given number of blocks.
func (c *Client) EstimateFee(
	ctx context.Context, targetBlocks int,
) (uint64, error) {
	res, err := c.request(ctx, methodEstimateFee, targetBlocks)
	if err != nil {
		return 0, err
	}
	var btcPerKb float64
	if err := json.Unmarshal(res, &btcPerKb); err != nil {
		return 0, err
	}
	if btcPerKb <= 0 {
		return 0, ErrNoFeeEstimate
	}
	return uint64(btcPerKb * 1e8), nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, methodPing)
	return err
}

// request performs a call retrying transient network failures with backoff.
// Errors answered by the server are returned as is.
func (c *Client) request(
	ctx context.Context, method string, params ...interface{},
) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < callAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retryDelay << uint(attempt-1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-c.quit:
				timer.Stop()
				return nil, ErrClientClosed
			}
		}

		res, err := c.call(ctx, method, params...)
		if err == nil {
			return res, nil
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) call(
	ctx context.Context, method string, params ...interface{},
) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	c.limiter.Take()

	id := atomic.AddUint64(&c.id, 1)
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	respChan := make(chan *envelope, 1)

	c.mu.Lock()
	cn := c.conn
	if cn == nil || c.state != StateConnected {
		c.mu.Unlock()
		return nil, &NetworkError{
			Endpoint: c.endpoint, Op: method, Err: ErrNotConnected,
		}
	}
	c.pending[id] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := cn.send(body); err != nil {
		cn.close()
		return nil, &NetworkError{Endpoint: c.endpoint, Op: method, Err: err}
	}

	select {
	case env := <-respChan:
		if env == nil {
			return nil, &NetworkError{
				Endpoint: c.endpoint, Op: method, Err: ErrConnectionLost,
			}
		}
		if env.Error != nil {
			return nil, env.Error
		}
		return env.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, ErrClientClosed
	}
}

// connect dials, handshakes and installs a fresh connection, then spawns the
// read loop owning it.
func (c *Client) connect(ctx context.Context) error {
	c.setState(StateReconnecting)

	cn, err := dialEndpoint(ctx, c.endpoint, c.proxyAddr, c.insecure)
	if err != nil {
		return &NetworkError{Endpoint: c.endpoint, Op: "dial", Err: err}
	}
	if err := handshake(cn); err != nil {
		cn.close()
		return &NetworkError{Endpoint: c.endpoint, Op: "handshake", Err: err}
	}

	c.mu.Lock()
	select {
	case <-c.quit:
		c.mu.Unlock()
		cn.close()
		return ErrClientClosed
	default:
	}
	c.conn = cn
	c.state = StateConnected
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(cn)
	return nil
}

// handshake negotiates the protocol version on a raw connection, before the
// read loop exists. Servers expect this to be the first request.
func handshake(cn conn) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      0,
		Method:  methodServerVersion,
		Params:  []interface{}{userAgent, protocolVersion},
	})
	if err != nil {
		return err
	}
	if err := cn.send(body); err != nil {
		return err
	}

	cn.setReadDeadline(time.Now().Add(handshakeTimeout))
	defer cn.setReadDeadline(time.Time{})

	data, err := cn.recv()
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Error != nil {
		return env.Error
	}
	return nil
}

func (c *Client) readLoop(cn conn) {
	defer c.wg.Done()

	for {
		data, err := cn.recv()
		if err != nil {
			c.handleDisconnect(cn, err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.WithError(err).Warnf(
				"electrum: discarding malformed message from %s", c.endpoint,
			)
			continue
		}

		if env.ID != nil {
			c.mu.Lock()
			respChan, ok := c.pending[*env.ID]
			if ok {
				delete(c.pending, *env.ID)
			}
			c.mu.Unlock()
			if ok {
				respChan <- &env
			}
			continue
		}

		c.handleNotification(&env)
	}
}

func (c *Client) handleNotification(env *envelope) {
	switch env.Method {
	case methodScriptSubscribe:
		var params []*string
		if err := json.Unmarshal(env.Params, &params); err != nil || len(params) < 2 {
			return
		}
		if params[0] == nil {
			return
		}
		status := ""
		if params[1] != nil {
			status = *params[1]
		}
		c.emit(ports.ScriptEvent{ScriptHash: *params[0], Status: status})
	case methodHeadersSubscribe:
		var params []headerItem
		if err := json.Unmarshal(env.Params, &params); err != nil || len(params) < 1 {
			return
		}
		c.emit(ports.TipEvent{
			Height: params[0].Height,
			Hash:   headerHash(params[0].Hex),
		})
	}
}

func (c *Client) handleDisconnect(cn conn, err error) {
	cn.close()

	c.mu.Lock()
	if c.conn != cn {
		// A newer connection already took over.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	c.failPendingLocked()
	c.mu.Unlock()

	select {
	case <-c.quit:
		return
	default:
	}

	log.WithError(err).Warnf("electrum: lost connection to %s", c.endpoint)
	c.emit(ports.ConnEvent{Endpoint: c.endpoint, Connected: false})

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop alternates Backoff and Reconnecting until the connection and
// every subscription are restored, then emits a ConnEvent so consumers know
// to refetch whatever they may have missed.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for attempt := 0; ; attempt++ {
		c.setState(StateBackoff)
		timer := time.NewTimer(c.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-c.quit:
			timer.Stop()
			return
		}

		ctx, cancel := context.WithTimeout(
			context.Background(), resubscribeTimeout,
		)
		err := c.connect(ctx)
		if err != nil {
			cancel()
			select {
			case <-c.quit:
				return
			default:
			}
			log.WithError(err).Debugf(
				"electrum: reconnection to %s failed", c.endpoint,
			)
			continue
		}

		err = c.resubscribe(ctx)
		cancel()
		if err != nil {
			// Connected but subscriptions could not be restored. Drop the
			// connection, its read loop owns the next reconnection cycle.
			c.mu.Lock()
			cn := c.conn
			c.mu.Unlock()
			if cn != nil {
				cn.close()
			}
			log.WithError(err).Debugf(
				"electrum: resubscription to %s failed", c.endpoint,
			)
			return
		}

		log.Infof("electrum: connection to %s restored", c.endpoint)
		c.emit(ports.ConnEvent{Endpoint: c.endpoint, Connected: true})
		return
	}
}

// resubscribe re-establishes the server-side subscriptions of the client on
// a fresh connection. Returned statuses are discarded, the ConnEvent emitted
// afterwards makes consumers refetch everything anyway.
func (c *Client) resubscribe(ctx context.Context) error {
	c.mu.Lock()
	scriptHashes := make([]string, 0, len(c.scriptSubs))
	for sh := range c.scriptSubs {
		scriptHashes = append(scriptHashes, sh)
	}
	tipSub := c.tipSub
	c.mu.Unlock()

	if tipSub {
		if _, err := c.subscribeTip(ctx); err != nil {
			return err
		}
	}
	for _, sh := range scriptHashes {
		if _, err := c.subscribeScript(ctx, sh); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) keepAlive() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			cn := c.conn
			connected := c.state == StateConnected
			c.mu.Unlock()
			if !connected {
				continue
			}

			ctx, cancel := context.WithTimeout(
				context.Background(), pingTimeout,
			)
			err := c.Ping(ctx)
			cancel()
			if err != nil && cn != nil {
				// Force the read loop to notice the dead connection.
				cn.close()
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// failPendingLocked aborts every in-flight call. Must be called with the
// mutex held.
func (c *Client) failPendingLocked() {
	for id, respChan := range c.pending {
		close(respChan)
		delete(c.pending, id)
	}
}

func (c *Client) emit(event ports.Event) {
	select {
	case c.events <- event:
	case <-c.quit:
	}
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	jitter := time.Duration(c.rnd.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}
