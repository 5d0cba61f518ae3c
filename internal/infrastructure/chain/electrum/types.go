package electrum

import "encoding/json"

const (
	methodServerVersion     = "server.version"
	methodPing              = "server.ping"
	methodHeadersSubscribe  = "blockchain.headers.subscribe"
	methodBlockHeader       = "blockchain.block.header"
	methodScriptSubscribe   = "blockchain.scripthash.subscribe"
	methodScriptUnsubscribe = "blockchain.scripthash.unsubscribe"
	methodGetHistory        = "blockchain.scripthash.get_history"
	methodGetTransaction    = "blockchain.transaction.get"
	methodBroadcast         = "blockchain.transaction.broadcast"
	methodEstimateFee       = "blockchain.estimatefee"
)

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// envelope is any message read from a server. Responses carry an id, push
// notifications carry a method instead.
type envelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

type historyItem struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
	Fee    uint64 `json:"fee"`
}

type headerItem struct {
	Height int64  `json:"height"`
	Hex    string `json:"hex"`
}
