package electrum_test

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tide-network/tide-daemon/internal/core/ports"
)

const (
	genesisHeaderHex = "01000000000000000000000000000000000000000000000000" +
		"00000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a" +
		"51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c"
	genesisHash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcRequest struct {
	ID     *uint64           `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type fakeHandler func(params []json.RawMessage) (interface{}, *rpcError)

type fakeConn struct {
	nc net.Conn
	mu sync.Mutex
}

func (c *fakeConn) write(v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		return
	}
	buf = append(buf, '\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nc.Write(buf)
}

// fakeServer is an in-process Electrum server speaking newline delimited
// JSON-RPC over TCP. Version and ping are answered out of the box, anything
// else is served by the handlers registered per method.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conns    map[*fakeConn]struct{}
	handlers map[string]fakeHandler
	calls    map[string]int
	closed   bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{
		t:        t,
		ln:       ln,
		conns:    make(map[*fakeConn]struct{}),
		handlers: make(map[string]fakeHandler),
		calls:    make(map[string]int),
	}
	go s.acceptLoop()
	t.Cleanup(s.stop)
	return s
}

func (s *fakeServer) endpoint() string {
	return "tcp://" + s.ln.Addr().String()
}

func (s *fakeServer) handle(method string, handler fakeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

func (s *fakeServer) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// notify pushes a notification to every connected client.
func (s *fakeServer) notify(method string, params ...interface{}) {
	msg := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	s.mu.Lock()
	conns := make([]*fakeConn, 0, len(s.conns))
	for fc := range s.conns {
		conns = append(conns, fc)
	}
	s.mu.Unlock()

	for _, fc := range conns {
		fc.write(msg)
	}
}

// dropConns closes every connection, clients are free to reconnect.
func (s *fakeServer) dropConns() {
	s.mu.Lock()
	conns := make([]*fakeConn, 0, len(s.conns))
	for fc := range s.conns {
		conns = append(conns, fc)
	}
	s.conns = make(map[*fakeConn]struct{})
	s.mu.Unlock()

	for _, fc := range conns {
		fc.nc.Close()
	}
}

// stop shuts the server down for good.
func (s *fakeServer) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.ln.Close()
	s.dropConns()
}

func (s *fakeServer) acceptLoop() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}

		fc := &fakeConn{nc: nc}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			nc.Close()
			return
		}
		s.conns[fc] = struct{}{}
		s.mu.Unlock()

		go s.serveConn(fc)
	}
}

func (s *fakeServer) serveConn(fc *fakeConn) {
	r := bufio.NewReader(fc.nc)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			s.mu.Lock()
			delete(s.conns, fc)
			s.mu.Unlock()
			fc.nc.Close()
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		s.mu.Lock()
		s.calls[req.Method]++
		handler := s.handlers[req.Method]
		s.mu.Unlock()

		if handler == nil {
			switch req.Method {
			case "server.version":
				s.reply(fc, req.ID, []string{"fake electrum", "1.4"}, nil)
			case "server.ping":
				s.reply(fc, req.ID, nil, nil)
			default:
				s.reply(fc, req.ID, nil, &rpcError{
					Code:    -32601,
					Message: "unknown method " + req.Method,
				})
			}
			continue
		}

		result, rpcErr := handler(req.Params)
		s.reply(fc, req.ID, result, rpcErr)
	}
}

func (s *fakeServer) reply(
	fc *fakeConn, id *uint64, result interface{}, rpcErr *rpcError,
) {
	msg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
	}
	if rpcErr != nil {
		msg["error"] = rpcErr
	} else {
		msg["result"] = result
	}
	fc.write(msg)
}

// waitForEvent drains the channel until an event matches, failing the test
// after the timeout.
func waitForEvent(
	t *testing.T, events <-chan ports.Event, timeout time.Duration,
	match func(ports.Event) bool,
) ports.Event {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatal("notification channel closed")
			}
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}
