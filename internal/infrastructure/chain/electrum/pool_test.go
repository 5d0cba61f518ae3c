package electrum_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/internal/infrastructure/chain/electrum"
)

func newTestPool(t *testing.T, endpoints ...string) *electrum.Pool {
	t.Helper()

	pool, err := electrum.NewPool(electrum.PoolOpts{Endpoints: endpoints})
	require.NoError(t, err)
	require.NoError(t, pool.Connect(context.Background()))
	t.Cleanup(pool.Close)
	return pool
}

func TestPoolFailover(t *testing.T) {
	t.Parallel()

	serverA := newFakeServer(t)
	serverB := newFakeServer(t)
	for _, server := range []*fakeServer{serverA, serverB} {
		server.handle(
			"blockchain.scripthash.subscribe",
			func(params []json.RawMessage) (interface{}, *rpcError) {
				return nil, nil
			},
		)
	}
	serverB.handle(
		"blockchain.transaction.get",
		func(params []json.RawMessage) (interface{}, *rpcError) {
			return "0200bbbb", nil
		},
	)

	pool := newTestPool(t, serverA.endpoint(), serverB.endpoint())
	ctx := context.Background()

	require.Equal(t, serverA.endpoint(), pool.ActiveEndpoint())

	_, err := pool.SubscribeScript(ctx, testScriptHash)
	require.NoError(t, err)
	require.Equal(t, 1, serverA.callCount("blockchain.scripthash.subscribe"))
	require.Equal(t, 0, serverB.callCount("blockchain.scripthash.subscribe"))

	serverA.stop()

	txHex, err := pool.GetTransaction(ctx, confirmedTxid)
	require.NoError(t, err)
	require.Equal(t, "0200bbbb", txHex)
	require.Equal(t, serverB.endpoint(), pool.ActiveEndpoint())

	// Adopting the new endpoint replays the subscriptions and tells
	// consumers to refetch whatever the switch may have missed.
	event := waitForEvent(
		t, pool.Notifications(), 10*time.Second,
		func(e ports.Event) bool {
			connEvent, ok := e.(ports.ConnEvent)
			return ok && connEvent.Connected
		},
	)
	require.Equal(t, serverB.endpoint(), event.(ports.ConnEvent).Endpoint)
	require.Eventually(t, func() bool {
		return serverB.callCount("blockchain.scripthash.subscribe") == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPoolEmptyHistoryCorroboration(t *testing.T) {
	t.Parallel()

	emptyHistory := func(params []json.RawMessage) (interface{}, *rpcError) {
		return []interface{}{}, nil
	}

	t.Run("second opinion wins", func(t *testing.T) {
		t.Parallel()

		serverA := newFakeServer(t)
		serverB := newFakeServer(t)
		serverA.handle("blockchain.scripthash.get_history", emptyHistory)
		serverB.handle(
			"blockchain.scripthash.get_history",
			func(params []json.RawMessage) (interface{}, *rpcError) {
				return []interface{}{
					map[string]interface{}{
						"tx_hash": confirmedTxid,
						"height":  120,
					},
					map[string]interface{}{
						"tx_hash": mempoolTxid,
						"height":  0,
						"fee":     250,
					},
				}, nil
			},
		)

		pool := newTestPool(t, serverA.endpoint(), serverB.endpoint())

		history, err := pool.GetScriptHistory(
			context.Background(), testScriptHash,
		)
		require.NoError(t, err)
		require.Equal(t, []ports.HistoryRecord{
			{TxID: confirmedTxid, Height: 120},
			{TxID: mempoolTxid, Height: 0, Fee: 250},
		}, history)
		require.Equal(
			t, 1, serverA.callCount("blockchain.scripthash.get_history"),
		)
		require.Equal(
			t, 1, serverB.callCount("blockchain.scripthash.get_history"),
		)
	})

	t.Run("all empty", func(t *testing.T) {
		t.Parallel()

		serverA := newFakeServer(t)
		serverB := newFakeServer(t)
		serverA.handle("blockchain.scripthash.get_history", emptyHistory)
		serverB.handle("blockchain.scripthash.get_history", emptyHistory)

		pool := newTestPool(t, serverA.endpoint(), serverB.endpoint())

		history, err := pool.GetScriptHistory(
			context.Background(), testScriptHash,
		)
		require.NoError(t, err)
		require.Empty(t, history)
	})

	t.Run("single endpoint is not corroborated", func(t *testing.T) {
		t.Parallel()

		server := newFakeServer(t)
		server.handle("blockchain.scripthash.get_history", emptyHistory)

		pool := newTestPool(t, server.endpoint())

		history, err := pool.GetScriptHistory(
			context.Background(), testScriptHash,
		)
		require.NoError(t, err)
		require.Empty(t, history)
		require.Equal(
			t, 1, server.callCount("blockchain.scripthash.get_history"),
		)
	})
}

func TestPoolServerErrorNoFailover(t *testing.T) {
	t.Parallel()

	serverA := newFakeServer(t)
	serverB := newFakeServer(t)
	serverA.handle(
		"blockchain.transaction.broadcast",
		func(params []json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: 1, Message: "bad-txns-inputs-missing"}
		},
	)
	serverB.handle(
		"blockchain.transaction.broadcast",
		func(params []json.RawMessage) (interface{}, *rpcError) {
			return confirmedTxid, nil
		},
	)

	pool := newTestPool(t, serverA.endpoint(), serverB.endpoint())

	_, err := pool.BroadcastTransaction(context.Background(), "02000000")
	require.Error(t, err)

	srvErr := &electrum.Error{}
	require.ErrorAs(t, err, &srvErr)
	require.Equal(t, 1, srvErr.Code)

	// The server answered, another endpoint would answer the same.
	require.Equal(t, serverA.endpoint(), pool.ActiveEndpoint())
	require.Equal(t, 0, serverB.callCount("blockchain.transaction.broadcast"))
}
