package electrum

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNullEndpoints    = errors.New("missing endpoints")
	ErrInvalidEndpoint  = errors.New("endpoint must be a tcp, ssl, ws or wss url")
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionLost   = errors.New("connection lost")
	ErrClientClosed     = errors.New("client is closed")
	ErrNoFeeEstimate    = errors.New("server has no fee estimate")
	ErrNoHealthyServers = errors.New("no healthy servers")
)

// Error is an error returned by a server within a JSON-RPC response. It means
// the request reached the server and was rejected, as opposed to a
// NetworkError which is a transport failure.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

// UnmarshalJSON accepts both the {"code":..,"message":..} object form and the
// bare string form used by some server implementations.
func (e *Error) UnmarshalJSON(data []byte) error {
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Code != 0 || obj.Message != "" {
			e.Code, e.Message = obj.Code, obj.Message
			return nil
		}
	}
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Message = msg
		return nil
	}
	e.Message = string(data)
	return nil
}

// NetworkError is a transport failure while talking to a server. The client
// retries these with backoff and surfaces them only once retries exhaust.
type NetworkError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
