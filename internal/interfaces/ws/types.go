package ws

import (
	"encoding/json"
	"fmt"
)

const (
	methodGetBalance        = "get_balance"
	methodGetTransactions   = "get_transactions"
	methodNewAddress        = "new_address"
	methodCreateTransaction = "create_transaction"
	methodSignAndBroadcast  = "sign_and_broadcast"
	methodResync            = "resync"
	methodStatus            = "status"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeWalletError    = -32000
)

// request is a command frame sent by a client. The id is echoed back in the
// matching response frame.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     uint64      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// notification is a frame pushed by the server without a matching request,
// it carries no id.
type notification struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// Error is the error member of a response frame.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

type accountParams struct {
	Account string `json:"account"`
}

type newAddressParams struct {
	Account string `json:"account"`
	Change  bool   `json:"change"`
}

type signParams struct {
	ID string `json:"id"`
}

type txidResult struct {
	TxID string `json:"txid"`
}

// eventParams is the params member of a pushed notification frame.
type eventParams struct {
	Account string      `json:"account"`
	Data    interface{} `json:"data"`
}
