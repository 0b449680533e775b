package copilot

import (
	"errors"

	"github.com/copilot-sdk/copilot-go/jsonrpc"
	"github.com/copilot-sdk/copilot-go/subprocess"
)

// Sentinel errors for client and session operations. The transport-level
// sentinels alias the jsonrpc and subprocess packages so errors.Is matches
// across layers.
var (
	// ErrSpawn indicates the agent CLI process could not be started.
	ErrSpawn = subprocess.ErrSpawn

	// ErrConnectionClosed indicates the connection to the agent closed
	// while an operation was in flight, or before it was attempted.
	ErrConnectionClosed = jsonrpc.ErrClosed

	// ErrTimeout indicates a request deadline expired before the agent
	// responded.
	ErrTimeout = jsonrpc.ErrTimeout

	// ErrProtocol indicates the agent sent bytes that violate the framing
	// or envelope rules. The connection is torn down.
	ErrProtocol = jsonrpc.ErrProtocol

	// ErrNotRunning indicates an operation that needs a live connection
	// was attempted while the client is stopped.
	ErrNotRunning = errors.New("copilot: client not running")

	// ErrStart indicates the client failed to reach the running state.
	ErrStart = errors.New("copilot: start failed")

	// ErrForceStopped indicates the client was force-stopped and cannot
	// be started again.
	ErrForceStopped = errors.New("copilot: client force-stopped")

	// ErrProtocolVersion indicates the agent speaks an incompatible
	// protocol version.
	ErrProtocolVersion = errors.New("copilot: protocol version mismatch")

	// ErrSessionDestroyed indicates an operation on a destroyed session.
	ErrSessionDestroyed = errors.New("copilot: session destroyed")

	// ErrSessionCreation indicates the agent accepted session.create but
	// returned an unusable response.
	ErrSessionCreation = errors.New("copilot: session creation failed")
)

// RPCError is an error response from the agent, carrying the JSON-RPC error
// code and message.
type RPCError = jsonrpc.RPCError

// RPCCode extracts the JSON-RPC error code from an error chain containing
// *RPCError. Returns (0, false) when the error is not an RPC error.
func RPCCode(err error) (int, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}
