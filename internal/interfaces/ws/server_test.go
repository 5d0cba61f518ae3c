package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tide-network/tide-daemon/internal/core/application"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/internal/infrastructure/pubsub"
	"github.com/tide-network/tide-daemon/internal/interfaces/ws"
)

const (
	testAsset = "5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225"
	testTxID  = "c8a9e29a51f8f5a491c7e1a4cbb3c1f5a2d6b8e41b0c9d2e3f4a5b6c7d8e9f0a"
)

func TestServerGetBalance(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{
		balances: []application.AssetBalance{
			{
				Asset:        testAsset,
				Confirmed:    150000000,
				Unconfirmed:  700,
				Total:        150000700,
				Name:         "Liquid Bitcoin",
				Ticker:       "L-BTC",
				Precision:    8,
				DisplayTotal: "1.500007",
			},
		},
	}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 1, "get_balance", map[string]interface{}{
		"account": "main",
	})
	require.Equal(t, uint64(1), resp.ID)
	require.Nil(t, resp.Error)

	var balances []application.AssetBalance
	require.NoError(t, json.Unmarshal(resp.Result, &balances))
	require.Equal(t, svc.balances, balances)
	require.Equal(t, "main", svc.captured().account)
}

func TestServerGetTransactions(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{
		txs: []application.TxInfo{
			{
				TxID:          testTxID,
				Height:        90,
				Confirmations: 11,
				ObservedAt:    1700000000,
				Deltas:        map[string]int64{testAsset: 100000},
			},
		},
	}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 2, "get_transactions", map[string]interface{}{
		"account": "savings",
	})
	require.Equal(t, uint64(2), resp.ID)
	require.Nil(t, resp.Error)

	var txs []application.TxInfo
	require.NoError(t, json.Unmarshal(resp.Result, &txs))
	require.Equal(t, svc.txs, txs)
	require.Equal(t, "savings", svc.captured().account)
}

func TestServerNewAddress(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{
		address: &application.AccountAddress{
			Address:        "ert1qkkpcu4jhsnaw9wt567kdcvlys3m2g05g2cfjt0",
			Script:         "0014b583c72b2bc27d715d4d35eb370cf2423b521f44",
			Chain:          1,
			Index:          7,
			DerivationPath: "0'/1/7",
		},
	}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 3, "new_address", map[string]interface{}{
		"change": true,
	})
	require.Equal(t, uint64(3), resp.ID)
	require.Nil(t, resp.Error)

	var addr application.AccountAddress
	require.NoError(t, json.Unmarshal(resp.Result, &addr))
	require.Equal(t, *svc.address, addr)

	captured := svc.captured()
	require.Empty(t, captured.account)
	require.True(t, captured.change)
}

func TestServerCreateTransaction(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{
		build: &application.BuildInfo{
			ID:            "build-1",
			PsetBase64:    "cHNldP8BAgQCAAAA",
			FeeAmount:     300,
			SelectedUtxos: []string{testTxID + ":1"},
			ExpiresAt:     1700000120,
		},
	}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	req := application.BuildRequest{
		Account: "main",
		Targets: []application.TxTarget{
			{
				Asset:   testAsset,
				Amount:  5000,
				Address: "ert1qkkpcu4jhsnaw9wt567kdcvlys3m2g05g2cfjt0",
			},
		},
		MillisatsPerByte: 120,
	}
	resp := call(t, conn, 4, "create_transaction", req)
	require.Equal(t, uint64(4), resp.ID)
	require.Nil(t, resp.Error)

	var build application.BuildInfo
	require.NoError(t, json.Unmarshal(resp.Result, &build))
	require.Equal(t, *svc.build, build)
	require.Equal(t, req, svc.captured().request)
}

func TestServerSignAndBroadcast(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{txid: testTxID}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 5, "sign_and_broadcast", map[string]interface{}{
		"id": "build-1",
	})
	require.Equal(t, uint64(5), resp.ID)
	require.Nil(t, resp.Error)

	var result struct {
		TxID string `json:"txid"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, testTxID, result.TxID)
	require.Equal(t, "build-1", svc.captured().buildID)
}

func TestServerResync(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 6, "resync", map[string]interface{}{
		"account": "other",
	})
	require.Equal(t, uint64(6), resp.ID)
	require.Nil(t, resp.Error)
	require.JSONEq(t, "{}", string(resp.Result))

	captured := svc.captured()
	require.Equal(t, 1, captured.resyncs)
	require.Equal(t, "other", captured.account)
}

func TestServerStatus(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{
		status: &application.DaemonStatus{
			Network: "regtest",
			Accounts: map[string]application.AccountStatus{
				"main": {
					SyncState:  application.StateIdle,
					TipHeight:  100,
					TipHash:    testTxID,
					NumScripts: 2,
					NumUtxos:   1,
				},
			},
		},
	}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 7, "status", nil)
	require.Equal(t, uint64(7), resp.ID)
	require.Nil(t, resp.Error)

	var status application.DaemonStatus
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	require.Equal(t, *svc.status, status)
}

func TestServerWalletError(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{err: errors.New("account not found")}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	resp := call(t, conn, 8, "get_balance", map[string]interface{}{
		"account": "ghost",
	})
	require.Equal(t, uint64(8), resp.ID)
	require.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32000, resp.Error.Code)
	require.Equal(t, "account not found", resp.Error.Message)
}

func TestServerBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		frame      string
		wantID     uint64
		wantCode   int
		wantInsMsg string
	}{
		{
			name:       "malformed json",
			frame:      `{"id": 5,`,
			wantID:     0,
			wantCode:   -32700,
			wantInsMsg: "invalid JSON",
		},
		{
			name:     "wrong field type with recoverable id",
			frame:    `{"id": 4, "method": 12}`,
			wantID:   4,
			wantCode: -32700,
		},
		{
			name:       "missing method",
			frame:      `{"id": 6}`,
			wantID:     6,
			wantCode:   -32600,
			wantInsMsg: "missing method",
		},
		{
			name:       "unknown method",
			frame:      `{"id": 7, "method": "get_rich"}`,
			wantID:     7,
			wantCode:   -32601,
			wantInsMsg: "get_rich",
		},
		{
			name:       "invalid params",
			frame:      `{"id": 8, "method": "get_balance", "params": "bogus"}`,
			wantID:     8,
			wantCode:   -32602,
			wantInsMsg: "invalid params",
		},
	}

	svc := &stubWalletService{}
	server, _ := newTestServer(t, svc)
	conn := dialServer(t, server)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conn.WriteMessage(
				websocket.TextMessage, []byte(tt.frame),
			)
			require.NoError(t, err)

			resp := readResponse(t, conn)
			require.Equal(t, tt.wantID, resp.ID)
			require.NotNil(t, resp.Error)
			require.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantInsMsg != "" {
				require.Contains(t, resp.Error.Message, tt.wantInsMsg)
			}
		})
	}
}

func TestServerPushesNotifications(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{status: &application.DaemonStatus{}}
	server, notifier := newTestServer(t, svc)
	conn := dialServer(t, server)

	// A round trip guarantees the session subscribed to the notifier,
	// events published after it cannot be missed.
	resp := call(t, conn, 1, "status", nil)
	require.Nil(t, resp.Error)

	notifier.Publish(ports.WalletEvent{
		Topic:   ports.TopicTx,
		Account: "main",
		Payload: application.TxNotification{
			TxID:   testTxID,
			Status: application.TxStatusConfirmed,
		},
	})

	frame := readNotification(t, conn)
	require.Equal(t, ports.TopicTx, frame.Method)
	require.Equal(t, "main", frame.Params.Account)

	var tx application.TxNotification
	require.NoError(t, json.Unmarshal(frame.Params.Data, &tx))
	require.Equal(t, testTxID, tx.TxID)
	require.Equal(t, application.TxStatusConfirmed, tx.Status)

	notifier.Publish(ports.WalletEvent{
		Topic:   ports.TopicBalance,
		Account: "main",
		Payload: []application.BalanceNotification{
			{Asset: testAsset, Confirmed: 1000, Total: 1000},
		},
	})

	frame = readNotification(t, conn)
	require.Equal(t, ports.TopicBalance, frame.Method)

	var balances []application.BalanceNotification
	require.NoError(t, json.Unmarshal(frame.Params.Data, &balances))
	require.Len(t, balances, 1)
	require.Equal(t, uint64(1000), balances[0].Confirmed)
}

func TestServerFansOutToAllClients(t *testing.T) {
	t.Parallel()

	svc := &stubWalletService{status: &application.DaemonStatus{}}
	server, notifier := newTestServer(t, svc)

	conns := []*websocket.Conn{
		dialServer(t, server), dialServer(t, server),
	}
	for i, conn := range conns {
		resp := call(t, conn, uint64(i+1), "status", nil)
		require.Nil(t, resp.Error)
	}

	notifier.Publish(ports.WalletEvent{
		Topic:   ports.TopicTx,
		Account: "main",
		Payload: application.TxNotification{
			TxID:   testTxID,
			Status: application.TxStatusNew,
		},
	})

	for _, conn := range conns {
		frame := readNotification(t, conn)
		require.Equal(t, ports.TopicTx, frame.Method)
		require.Equal(t, "main", frame.Params.Account)
	}
}

func newTestServer(
	t *testing.T, svc application.WalletService,
) (*ws.Server, ports.Notifier) {
	t.Helper()

	notifier := pubsub.NewService()
	server := ws.NewServer("127.0.0.1:0", svc, notifier)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		server.Stop()
		notifier.Close()
	})
	return server, notifier
}

func dialServer(t *testing.T, server *ws.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+server.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type testError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type testResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *testError      `json:"error"`
}

type testNotification struct {
	Method string `json:"method"`
	Params struct {
		Account string          `json:"account"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

func call(
	t *testing.T, conn *websocket.Conn,
	id uint64, method string, params interface{},
) testResponse {
	t.Helper()

	frame := map[string]interface{}{"id": id, "method": method}
	if params != nil {
		frame["params"] = params
	}
	require.NoError(t, conn.WriteJSON(frame))
	return readResponse(t, conn)
}

func readResponse(t *testing.T, conn *websocket.Conn) testResponse {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp testResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func readNotification(t *testing.T, conn *websocket.Conn) testNotification {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame testNotification
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// stubWalletService answers with canned views and records the arguments of
// the last call of each operation.
type stubWalletService struct {
	mu sync.Mutex

	balances []application.AssetBalance
	txs      []application.TxInfo
	address  *application.AccountAddress
	build    *application.BuildInfo
	txid     string
	status   *application.DaemonStatus
	err      error

	lastAccount string
	lastChange  bool
	lastRequest application.BuildRequest
	lastBuildID string
	resyncs     int
}

type capturedArgs struct {
	account string
	change  bool
	request application.BuildRequest
	buildID string
	resyncs int
}

func (s *stubWalletService) captured() capturedArgs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return capturedArgs{
		account: s.lastAccount,
		change:  s.lastChange,
		request: s.lastRequest,
		buildID: s.lastBuildID,
		resyncs: s.resyncs,
	}
}

func (s *stubWalletService) GetBalance(
	_ context.Context, accountName string,
) ([]application.AssetBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccount = accountName
	if s.err != nil {
		return nil, s.err
	}
	return s.balances, nil
}

func (s *stubWalletService) GetTransactions(
	_ context.Context, accountName string,
) ([]application.TxInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccount = accountName
	if s.err != nil {
		return nil, s.err
	}
	return s.txs, nil
}

func (s *stubWalletService) NewAddress(
	_ context.Context, accountName string, change bool,
) (*application.AccountAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccount = accountName
	s.lastChange = change
	if s.err != nil {
		return nil, s.err
	}
	return s.address, nil
}

func (s *stubWalletService) CreateTransaction(
	_ context.Context, req application.BuildRequest,
) (*application.BuildInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return s.build, nil
}

func (s *stubWalletService) SignAndBroadcast(
	_ context.Context, buildID string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBuildID = buildID
	if s.err != nil {
		return "", s.err
	}
	return s.txid, nil
}

func (s *stubWalletService) Resync(
	_ context.Context, accountName string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccount = accountName
	s.resyncs++
	return s.err
}

func (s *stubWalletService) Status(
	_ context.Context,
) (*application.DaemonStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.status, nil
}
