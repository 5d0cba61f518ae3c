package electrum

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/pkg/circuitbreaker"
)

type PoolOpts struct {
	Endpoints []string
	// ProxyAddr is the host:port of an optional SOCKS5 proxy.
	ProxyAddr string
	// AllowInsecureTLS skips the certificate check on ssl and wss endpoints.
	AllowInsecureTLS bool
	// RequestsPerSecond paces outgoing calls per endpoint, 0 means the
	// default.
	RequestsPerSecond int
}

func (o PoolOpts) validate() error {
	if len(o.Endpoints) == 0 {
		return ErrNullEndpoints
	}
	return nil
}

// Pool is a chain source backed by one or more Electrum servers. Calls and
// subscriptions are served by a single active endpoint, guarded by a circuit
// breaker per endpoint. When the active endpoint fails, the pool fails over
// to the next healthy one, replays the subscriptions there and emits a
// ConnEvent so that consumers refetch what the switch may have missed.
type Pool struct {
	clients  []*Client
	breakers []*gobreaker.CircuitBreaker

	mu         sync.Mutex
	active     int
	scriptSubs map[string]struct{}
	tipSub     bool

	events    chan ports.Event
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewPool(opts PoolOpts) (*Pool, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	clients := make([]*Client, 0, len(opts.Endpoints))
	breakers := make([]*gobreaker.CircuitBreaker, 0, len(opts.Endpoints))
	for _, endpoint := range opts.Endpoints {
		client, err := NewClient(ClientOpts{
			Endpoint:          endpoint,
			ProxyAddr:         opts.ProxyAddr,
			AllowInsecureTLS:  opts.AllowInsecureTLS,
			RequestsPerSecond: opts.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
		breakers = append(breakers, circuitbreaker.NewCircuitBreaker(endpoint))
	}

	return &Pool{
		clients:    clients,
		breakers:   breakers,
		scriptSubs: make(map[string]struct{}),
		events:     make(chan ports.Event, eventBufferSize),
		quit:       make(chan struct{}),
	}, nil
}

// Connect dials every endpoint and requires at least one of them to be
// reachable. Unreachable endpoints keep retrying in background and become
// failover candidates once restored. If no endpoint is reachable the pool is
// closed and cannot be reused.
func (p *Pool) Connect(ctx context.Context) error {
	connected := 0
	for i, client := range p.clients {
		if err := client.Connect(ctx); err != nil {
			log.WithError(err).Warnf(
				"electrum: could not connect to %s", client.Endpoint(),
			)
		} else {
			connected++
		}
		p.wg.Add(1)
		go p.pump(i)
	}

	if connected == 0 {
		p.Close()
		return ErrNoHealthyServers
	}

	p.mu.Lock()
	for i, client := range p.clients {
		if client.State() == StateConnected {
			p.active = i
			break
		}
	}
	endpoint := p.clients[p.active].Endpoint()
	p.mu.Unlock()

	log.Debugf(
		"electrum: connected to %d of %d servers, active %s",
		connected, len(p.clients), endpoint,
	)
	return nil
}

func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		for _, client := range p.clients {
			client.Close()
		}
		p.wg.Wait()
		close(p.events)
	})
}

// ActiveEndpoint returns the endpoint currently serving calls.
func (p *Pool) ActiveEndpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[p.active].Endpoint()
}

// Notifications returns the channel where subscription pushes and
// connectivity transitions of the active endpoint are delivered. It is
// closed by Close.
func (p *Pool) Notifications() <-chan ports.Event {
	return p.events
}

func (p *Pool) SubscribeScript(
	ctx context.Context, scriptHash string,
) (string, error) {
	p.mu.Lock()
	p.scriptSubs[scriptHash] = struct{}{}
	p.mu.Unlock()

	res, err := p.do(func(c *Client) (interface{}, error) {
		return c.SubscribeScript(ctx, scriptHash)
	})
	if err != nil {
		p.mu.Lock()
		delete(p.scriptSubs, scriptHash)
		p.mu.Unlock()
		return "", err
	}
	return res.(string), nil
}

func (p *Pool) UnsubscribeScript(
	ctx context.Context, scriptHash string,
) error {
	p.mu.Lock()
	delete(p.scriptSubs, scriptHash)
	p.mu.Unlock()

	_, err := p.do(func(c *Client) (interface{}, error) {
		return nil, c.UnsubscribeScript(ctx, scriptHash)
	})
	return err
}

func (p *Pool) SubscribeTip(ctx context.Context) (*ports.Tip, error) {
	p.mu.Lock()
	prevTipSub := p.tipSub
	p.tipSub = true
	p.mu.Unlock()

	res, err := p.do(func(c *Client) (interface{}, error) {
		return c.SubscribeTip(ctx)
	})
	if err != nil {
		p.mu.Lock()
		p.tipSub = prevTipSub
		p.mu.Unlock()
		return nil, err
	}
	return res.(*ports.Tip), nil
}

// GetScriptHistory returns the confirmed and mempool history of a script
// hash. An empty answer is corroborated against a second healthy endpoint
// when one is available, a lagging or lying server must not make the wallet
// forget transactions.
func (p *Pool) GetScriptHistory(
	ctx context.Context, scriptHash string,
) ([]ports.HistoryRecord, error) {
	res, err := p.do(func(c *Client) (interface{}, error) {
		return c.GetScriptHistory(ctx, scriptHash)
	})
	if err != nil {
		return nil, err
	}

	history := res.([]ports.HistoryRecord)
	if len(history) > 0 || len(p.clients) < 2 {
		return history, nil
	}

	if second := p.corroborateEmptyHistory(ctx, scriptHash); len(second) > 0 {
		return second, nil
	}
	return history, nil
}

func (p *Pool) GetTransaction(
	ctx context.Context, txid string,
) (string, error) {
	res, err := p.do(func(c *Client) (interface{}, error) {
		return c.GetTransaction(ctx, txid)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (p *Pool) GetBlockHeader(
	ctx context.Context, height int64,
) (string, error) {
	res, err := p.do(func(c *Client) (interface{}, error) {
		return c.GetBlockHeader(ctx, height)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (p *Pool) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	res, err := p.do(func(c *Client) (interface{}, error) {
		return c.BroadcastTransaction(ctx, txHex)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (p *Pool) EstimateFee(
	ctx context.Context, targetBlocks int,
) (uint64, error) {
	res, err := p.do(func(c *Client) (interface{}, error) {
		rate, err := c.EstimateFee(ctx, targetBlocks)
		if errors.Is(err, ErrNoFeeEstimate) {
			// The server answered, it just has no estimate. Returning the
			// error here would count as a failure in the breaker stats.
			return uint64(0), nil
		}
		if err != nil {
			return nil, err
		}
		return rate, nil
	})
	if err != nil {
		return 0, err
	}
	if rate := res.(uint64); rate > 0 {
		return rate, nil
	}
	return 0, ErrNoFeeEstimate
}

// do runs the operation against the active endpoint through its circuit
// breaker, failing over and retrying on transport errors. Errors answered by
// the server are authoritative and returned right away, no other endpoint
// would answer differently.
func (p *Pool) do(
	op func(c *Client) (interface{}, error),
) (interface{}, error) {
	var lastErr error
	for i := 0; i < len(p.clients); i++ {
		p.mu.Lock()
		idx := p.active
		p.mu.Unlock()

		res, err := p.breakers[idx].Execute(func() (interface{}, error) {
			return op(p.clients[idx])
		})
		if err == nil {
			return res, nil
		}

		var srvErr *Error
		if errors.As(err, &srvErr) {
			return nil, err
		}
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err

		p.failover(idx)
		p.mu.Lock()
		failedOver := p.active != idx
		p.mu.Unlock()
		if !failedOver {
			break
		}
	}
	return nil, lastErr
}

// failover switches the active endpoint away from fromIdx to the next one
// that is connected and whose breaker is not open. It is a no-op when
// another switch already happened or when no candidate is healthy, in the
// latter case the pool sticks to the failing endpoint until it recovers.
func (p *Pool) failover(fromIdx int) {
	p.mu.Lock()
	if p.active != fromIdx {
		p.mu.Unlock()
		return
	}
	next := -1
	for i := 1; i < len(p.clients); i++ {
		idx := (fromIdx + i) % len(p.clients)
		if p.breakers[idx].State() == gobreaker.StateOpen {
			continue
		}
		if p.clients[idx].State() != StateConnected {
			continue
		}
		next = idx
		break
	}
	if next < 0 {
		p.mu.Unlock()
		return
	}
	p.active = next
	p.mu.Unlock()

	log.Warnf(
		"electrum: failing over from %s to %s",
		p.clients[fromIdx].Endpoint(), p.clients[next].Endpoint(),
	)

	p.wg.Add(1)
	go p.adopt(next)
}

// adopt replays the pool subscriptions onto a newly promoted endpoint, then
// emits a ConnEvent to make consumers refetch what the switch missed.
func (p *Pool) adopt(idx int) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(
		context.Background(), resubscribeTimeout,
	)
	defer cancel()

	client := p.clients[idx]

	p.mu.Lock()
	scriptHashes := make([]string, 0, len(p.scriptSubs))
	for sh := range p.scriptSubs {
		scriptHashes = append(scriptHashes, sh)
	}
	tipSub := p.tipSub
	p.mu.Unlock()

	if tipSub {
		if _, err := client.SubscribeTip(ctx); err != nil {
			log.WithError(err).Warnf(
				"electrum: could not adopt %s", client.Endpoint(),
			)
			p.failover(idx)
			return
		}
	}
	for _, sh := range scriptHashes {
		if _, err := client.SubscribeScript(ctx, sh); err != nil {
			log.WithError(err).Warnf(
				"electrum: could not adopt %s", client.Endpoint(),
			)
			p.failover(idx)
			return
		}
	}

	p.forward(ports.ConnEvent{Endpoint: client.Endpoint(), Connected: true})
}

// corroborateEmptyHistory asks a second healthy endpoint for the history of
// the script hash and returns its answer if not empty.
func (p *Pool) corroborateEmptyHistory(
	ctx context.Context, scriptHash string,
) []ports.HistoryRecord {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	witness := -1
	for i := range p.clients {
		if i == active {
			continue
		}
		if p.breakers[i].State() == gobreaker.StateOpen {
			continue
		}
		if p.clients[i].State() != StateConnected {
			continue
		}
		witness = i
		break
	}
	if witness < 0 {
		return nil
	}

	res, err := p.breakers[witness].Execute(func() (interface{}, error) {
		return p.clients[witness].GetScriptHistory(ctx, scriptHash)
	})
	if err != nil {
		return nil
	}

	history := res.([]ports.HistoryRecord)
	if len(history) > 0 {
		log.Warnf(
			"electrum: %s returned an empty history for %s, trusting the "+
				"%d entries of %s instead",
			p.clients[active].Endpoint(), scriptHash, len(history),
			p.clients[witness].Endpoint(),
		)
	}
	return history
}

// pump drains the notifications of one client. Pushes are forwarded only
// while the client is the active one, a disconnection of the active client
// triggers a failover attempt first.
func (p *Pool) pump(idx int) {
	defer p.wg.Done()

	for event := range p.clients[idx].Notifications() {
		p.mu.Lock()
		isActive := p.active == idx
		p.mu.Unlock()

		if connEvent, ok := event.(ports.ConnEvent); ok &&
			!connEvent.Connected && isActive {
			p.failover(idx)
			p.mu.Lock()
			isActive = p.active == idx
			p.mu.Unlock()
		}

		if !isActive {
			continue
		}
		p.forward(event)
	}
}

func (p *Pool) forward(event ports.Event) {
	select {
	case p.events <- event:
	case <-p.quit:
	}
}
