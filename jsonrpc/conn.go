// Package jsonrpc implements a bidirectional JSON-RPC 2.0 connection over a
// Content-Length framed byte stream.
//
// Both sides of the stream may originate requests: outbound calls are
// correlated to responses through an integer id table, while inbound requests
// and notifications dispatch to handlers registered per method name. A single
// read loop owns the inbound stream; inbound requests are handed to a worker
// goroutine so a slow handler never stalls the reader.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// defaultQueueSize bounds the inbound request queue between the read loop
// and the serve worker.
const defaultQueueSize = 64

// Handler processes an inbound request and returns the result to send back,
// or an error which is reported to the peer as an application error.
type Handler func(params json.RawMessage) (any, error)

// Config holds optional settings for a Conn.
type Config struct {
	// MaxMessageSize bounds a single framed message; <= 0 selects the default.
	MaxMessageSize int
	// QueueSize bounds the inbound request queue; <= 0 selects the default.
	QueueSize int
	// Logger receives debug records for dropped and unknown messages.
	Logger *slog.Logger
}

// Conn is a bidirectional JSON-RPC 2.0 connection.
//
// Outbound messages (Call, Notify, responses) are serialized by the framer;
// inbound messages are dispatched by a single read loop started with Start.
// Handlers must be registered before Start. Notification handlers run on the
// read loop and must not block; request handlers run on a worker goroutine,
// one at a time, in arrival order.
type Conn struct {
	fr     *Framer
	tr     io.ReadWriteCloser
	logger *slog.Logger

	nextID atomic.Int64

	mu      sync.Mutex
	closed  bool
	pending map[int64]chan *callResult

	methods       map[string]Handler
	notifications map[string]func(json.RawMessage)

	calls chan inboundCall

	done      chan struct{}
	readErr   atomic.Value // stores error
	closeOnce sync.Once
}

// callResult carries a response to a waiting Call.
type callResult struct {
	result json.RawMessage
	err    *RPCError
}

// inboundCall is a request from the peer awaiting a response.
type inboundCall struct {
	id     json.RawMessage
	method string
	params json.RawMessage
}

// rpcMessage is the inbound wire envelope. The id is kept raw so that peer
// ids of any JSON type can be echoed back verbatim.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// rpcRequest is the outbound request/notification envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is the outbound response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewConn creates a connection over tr. Register handlers, then call Start.
func NewConn(tr io.ReadWriteCloser, cfg Config) *Conn {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		fr:            NewFramer(tr, cfg.MaxMessageSize),
		tr:            tr,
		logger:        logger,
		pending:       make(map[int64]chan *callResult),
		methods:       make(map[string]Handler),
		notifications: make(map[string]func(json.RawMessage)),
		calls:         make(chan inboundCall, queueSize),
		done:          make(chan struct{}),
	}
}

// OnMethod registers a handler for inbound requests with the given method.
// Must be called before Start.
func (c *Conn) OnMethod(method string, h Handler) {
	c.methods[method] = h
}

// OnNotification registers a handler for inbound notifications with the given
// method. The handler runs on the read loop and must not block.
// Must be called before Start.
func (c *Conn) OnNotification(method string, h func(json.RawMessage)) {
	c.notifications[method] = h
}

// Start launches the read loop and the request worker.
// Must be called exactly once.
func (c *Conn) Start() {
	go c.serveLoop()
	go c.readLoop()
}

// Call sends a request and blocks until the response arrives, the context
// expires, or the connection closes. A non-nil result receives the unmarshaled
// response payload. An error response from the peer is returned as *RPCError;
// a context deadline maps to ErrTimeout and connection loss to ErrClosed.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan *callResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("jsonrpc: call %s: %w", method, ErrClosed)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := &rpcRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	}
	if err := c.send(req); err != nil {
		c.removePending(id)
		return fmt.Errorf("jsonrpc: send %s: %w", method, err)
	}

	select {
	case res, ok := <-ch:
		return c.finishCall(res, ok, method, result)
	case <-ctx.Done():
		c.removePending(id)
		// The response may have landed just before cancellation.
		select {
		case res, ok := <-ch:
			return c.finishCall(res, ok, method, result)
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("jsonrpc: call %s: %w", method, ErrTimeout)
		}
		return ctx.Err()
	}
}

// Notify sends a notification (no id, no response expected).
func (c *Conn) Notify(method string, params any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("jsonrpc: notify %s: %w", method, ErrClosed)
	}
	req := &rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
	return c.send(req)
}

// Close tears down the connection: every in-flight Call fails with ErrClosed
// and the underlying transport is closed. Safe to call multiple times and
// concurrently with the read loop.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.failPending()
		c.tr.Close()
	})
	return nil
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop exited. It returns nil before exit, and nil
// after a clean shutdown (EOF or local Close).
func (c *Conn) Err() error {
	if v := c.readErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// readLoop reads and dispatches inbound messages until the stream ends or a
// framing/envelope violation occurs.
func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.failPending()
	defer close(c.calls)
	defer c.tr.Close()

	for {
		body, err := c.fr.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.isClosed() {
				c.readErr.Store(err)
			}
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			c.readErr.Store(fmt.Errorf("%w: invalid message: %v", ErrProtocol, err))
			return
		}
		c.dispatch(&msg)
	}
}

// dispatch routes one inbound envelope.
func (c *Conn) dispatch(msg *rpcMessage) {
	switch {
	case msg.Method != "" && msg.ID != nil:
		c.calls <- inboundCall{id: msg.ID, method: msg.Method, params: msg.Params}
	case msg.Method != "":
		c.handleNotification(msg)
	case msg.ID != nil:
		c.handleResponse(msg)
	default:
		c.logger.Debug("jsonrpc: dropping envelope with no method and no id")
	}
}

// handleResponse delivers a response to the waiting Call.
func (c *Conn) handleResponse(msg *rpcMessage) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		c.logger.Debug("jsonrpc: dropping response with non-integer id", "id", string(msg.ID))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("jsonrpc: dropping unsolicited response", "id", id)
		return
	}
	ch <- &callResult{result: msg.Result, err: msg.Error}
}

func (c *Conn) handleNotification(msg *rpcMessage) {
	h, ok := c.notifications[msg.Method]
	if !ok {
		c.logger.Debug("jsonrpc: ignoring unknown notification", "method", msg.Method)
		return
	}
	h(msg.Params)
}

// serveLoop processes inbound requests one at a time, in arrival order.
func (c *Conn) serveLoop() {
	for call := range c.calls {
		c.serve(call)
	}
}

func (c *Conn) serve(call inboundCall) {
	defer func() {
		if r := recover(); r != nil {
			c.respondError(call.id, CodeInternalError, fmt.Sprintf("handler panic: %v", r))
		}
	}()

	h, ok := c.methods[call.method]
	if !ok {
		c.respondError(call.id, CodeMethodNotFound, "method not found: "+call.method)
		return
	}
	result, err := h(call.params)
	if err != nil {
		c.respondError(call.id, CodeApplicationError, err.Error())
		return
	}
	c.respondResult(call.id, result)
}

// finishCall interprets the outcome of a pending Call channel.
func (c *Conn) finishCall(res *callResult, ok bool, method string, result any) error {
	if !ok {
		return fmt.Errorf("jsonrpc: call %s: %w", method, ErrClosed)
	}
	if res.err != nil {
		return res.err
	}
	if result != nil && res.result != nil {
		if err := json.Unmarshal(res.result, result); err != nil {
			return fmt.Errorf("jsonrpc: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// respondResult sends a success response. Send errors are ignored: the
// connection may already be closing, and the peer times out on its own.
func (c *Conn) respondResult(id json.RawMessage, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		c.respondError(id, CodeInternalError, "marshal result: "+err.Error())
		return
	}
	_ = c.send(&rpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

// respondError sends an error response, best-effort.
func (c *Conn) respondError(id json.RawMessage, code int, message string) {
	_ = c.send(&rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

// send marshals and writes one framed message.
func (c *Conn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.fr.WriteMessage(data)
}

// failPending marks the connection closed and wakes every in-flight Call.
func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
