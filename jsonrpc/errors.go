package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by Conn and Framer. Callers match with errors.Is.
var (
	// ErrClosed is returned when a call or write is attempted on a closed
	// connection, or when the connection closes while a call is in flight.
	ErrClosed = errors.New("jsonrpc: connection closed")

	// ErrTimeout is returned when a call's context deadline expires before
	// the peer responds.
	ErrTimeout = errors.New("jsonrpc: call timed out")

	// ErrProtocol is returned when the inbound byte stream violates the
	// framing or envelope rules. It terminates the connection.
	ErrProtocol = errors.New("jsonrpc: protocol error")
)

// Standard JSON-RPC 2.0 error codes, plus the implementation-defined codes
// the agent uses for cancellation and transport faults.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeApplicationError = -32000
	CodeCancelled        = -32800
	CodeConnectionClosed = -32801
	CodeTimeout          = -32802
)

// RPCError is a JSON-RPC error object received from the peer. It is returned
// by Conn.Call when the peer answers a request with an error response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc: error %d: %s", e.Code, e.Message)
}
