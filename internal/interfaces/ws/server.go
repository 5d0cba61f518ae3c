package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/tide-network/tide-daemon/internal/core/application"
	"github.com/tide-network/tide-daemon/internal/core/ports"
)

const writeTimeout = 10 * time.Second

// Server exposes the wallet operations to host applications over a WebSocket
// JSON API. Requests carry an id echoed in the matching response; wallet
// events published on the notifier are pushed to every connected client as
// id-less notification frames. Requests of one connection are served
// sequentially, connections are independent.
type Server struct {
	addr      string
	walletSvc application.WalletService
	notifier  ports.Notifier

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	lock     *sync.Mutex
	sessions map[string]*session

	stopOnce *sync.Once
	wg       *sync.WaitGroup
}

func NewServer(
	addr string,
	walletSvc application.WalletService,
	notifier ports.Notifier,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		walletSvc: walletSvc,
		notifier:  notifier,
		upgrader: websocket.Upgrader{
			// The daemon API is consumed by local host applications, origin
			// enforcement is left to any fronting proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:      ctx,
		cancel:   cancel,
		lock:     &sync.Mutex{},
		sessions: map[string]*session{},
		stopOnce: &sync.Once{},
		wg:       &sync.WaitGroup{},
	}
}

// Start binds the listen address and serves connections in background. It
// returns an error if the address cannot be bound.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			log.WithError(err).Error("ws: server exited")
		}
	}()

	log.Infof("ws: interface listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop aborts the in-flight requests, drops every connection and stops
// listening.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.lock.Lock()
		for _, sess := range s.sessions {
			sess.conn.Close()
		}
		s.lock.Unlock()

		if s.httpServer != nil {
			s.httpServer.Close()
		}
		s.wg.Wait()
		log.Debug("ws: interface stopped")
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debugf("ws: handshake with %s failed", r.RemoteAddr)
		return
	}

	sess := &session{id: uuid.NewString(), conn: conn}
	s.lock.Lock()
	s.sessions[sess.id] = sess
	s.lock.Unlock()

	s.wg.Add(1)
	go s.serveSession(sess)
}

func (s *Server) serveSession(sess *session) {
	defer s.wg.Done()

	log.Debugf("ws: client %s connected", sess.id)

	subID, chEvents, err := s.notifier.Subscribe()
	if err != nil {
		sess.conn.Close()
		s.dropSession(sess)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range chEvents {
			frame := notification{
				Method: event.Topic,
				Params: eventParams{
					Account: event.Account,
					Data:    event.Payload,
				},
			}
			if err := sess.write(frame); err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleMessage(sess, data)
	}

	// Unsubscribing closes the event channel and with it the pump above. On
	// daemon shutdown the notifier may be gone first, that is fine.
	s.notifier.Unsubscribe(subID)
	sess.conn.Close()
	s.dropSession(sess)
	log.Debugf("ws: client %s disconnected", sess.id)
}

func (s *Server) handleMessage(sess *session, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		sess.write(response{
			ID: requestID(data),
			Error: &Error{
				Code:    codeParseError,
				Message: "invalid JSON: " + err.Error(),
			},
		})
		return
	}
	if req.Method == "" {
		sess.write(response{
			ID:    req.ID,
			Error: &Error{Code: codeInvalidRequest, Message: "missing method"},
		})
		return
	}

	result, wsErr := s.dispatch(req)
	if wsErr != nil {
		sess.write(response{ID: req.ID, Error: wsErr})
		return
	}
	sess.write(response{ID: req.ID, Result: result})
}

func (s *Server) dispatch(req request) (interface{}, *Error) {
	switch req.Method {
	case methodGetBalance:
		var params accountParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		balances, err := s.walletSvc.GetBalance(s.ctx, params.Account)
		if err != nil {
			return nil, walletError(err)
		}
		return balances, nil

	case methodGetTransactions:
		var params accountParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		txs, err := s.walletSvc.GetTransactions(s.ctx, params.Account)
		if err != nil {
			return nil, walletError(err)
		}
		return txs, nil

	case methodNewAddress:
		var params newAddressParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		addr, err := s.walletSvc.NewAddress(s.ctx, params.Account, params.Change)
		if err != nil {
			return nil, walletError(err)
		}
		return addr, nil

	case methodCreateTransaction:
		var params application.BuildRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		build, err := s.walletSvc.CreateTransaction(s.ctx, params)
		if err != nil {
			return nil, walletError(err)
		}
		return build, nil

	case methodSignAndBroadcast:
		var params signParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		txid, err := s.walletSvc.SignAndBroadcast(s.ctx, params.ID)
		if err != nil {
			return nil, walletError(err)
		}
		return txidResult{TxID: txid}, nil

	case methodResync:
		var params accountParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.walletSvc.Resync(s.ctx, params.Account); err != nil {
			return nil, walletError(err)
		}
		return struct{}{}, nil

	case methodStatus:
		status, err := s.walletSvc.Status(s.ctx)
		if err != nil {
			return nil, walletError(err)
		}
		return status, nil

	default:
		return nil, &Error{
			Code:    codeMethodNotFound,
			Message: "unknown method " + req.Method,
		}
	}
}

func decodeParams(raw json.RawMessage, v interface{}) *Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{
			Code:    codeInvalidParams,
			Message: "invalid params: " + err.Error(),
		}
	}
	return nil
}

func walletError(err error) *Error {
	return &Error{Code: codeWalletError, Message: err.Error()}
}

// requestID recovers the id of an unparsable frame on a best effort basis so
// that the error response can still be correlated.
func requestID(data []byte) uint64 {
	var idOnly struct {
		ID uint64 `json:"id"`
	}
	json.Unmarshal(data, &idOnly)
	return idOnly.ID
}

// session is one client connection. Writes are serialized by the mutex, the
// reader loop and the notification pump never write concurrently without it.
type session struct {
	id   string
	conn *websocket.Conn
	wMu  sync.Mutex
}

func (s *session) write(v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.wMu.Lock()
	defer s.wMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, buf)
}

func (s *Server) dropSession(sess *session) {
	s.lock.Lock()
	delete(s.sessions, sess.id)
	s.lock.Unlock()
}
