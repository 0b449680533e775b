package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

// testPeer simulates the remote side of a connection over net.Pipe,
// speaking the same Content-Length framed protocol.
type testPeer struct {
	fr    *Framer
	conn  net.Conn
	msgCh chan rpcMessage // everything the Conn under test writes
	done  chan struct{}
}

// newTestConn wires a Conn to a testPeer and starts both read loops.
func newTestConn(t *testing.T) (*Conn, *testPeer) {
	t.Helper()

	local, remote := net.Pipe()
	conn := NewConn(local, Config{})

	peer := &testPeer{
		fr:    NewFramer(remote, 0),
		conn:  remote,
		msgCh: make(chan rpcMessage, 16),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(peer.done)
		for {
			body, err := peer.fr.ReadMessage()
			if err != nil {
				return
			}
			var msg rpcMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				return
			}
			peer.msgCh <- msg
		}
	}()

	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return conn, peer
}

// send writes one framed message to the Conn under test.
func (p *testPeer) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := p.fr.WriteMessage(data); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// read returns the next message written by the Conn under test.
func (p *testPeer) read(t *testing.T) rpcMessage {
	t.Helper()
	select {
	case msg := <-p.msgCh:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for message from conn")
		return rpcMessage{}
	}
}

// respond answers a request by id with a success result.
func (p *testPeer) respond(t *testing.T, id json.RawMessage, result any) {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	p.send(t, rpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func TestCallSuccess(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	type pingResult struct {
		Message string `json:"message"`
	}
	errCh := make(chan error, 1)
	var got pingResult
	go func() {
		errCh <- conn.Call(context.Background(), "ping", map[string]any{"message": "hi"}, &got)
	}()

	req := peer.read(t)
	if req.Method != "ping" {
		t.Fatalf("method = %q, want ping", req.Method)
	}
	if req.ID == nil {
		t.Fatal("request has no id")
	}
	peer.respond(t, req.ID, pingResult{Message: "hi"})

	if err := <-errCh; err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got.Message != "hi" {
		t.Errorf("result = %q, want hi", got.Message)
	}
}

func TestCallErrorResponse(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(context.Background(), "session.send", nil, nil)
	}()

	req := peer.read(t)
	peer.send(t, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &RPCError{Code: CodeInvalidParams, Message: "missing sessionId"},
	})

	err := <-errCh
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if rpcErr.Code != CodeInvalidParams {
		t.Errorf("code = %d, want %d", rpcErr.Code, CodeInvalidParams)
	}
}

func TestCallTimeout(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := conn.Call(ctx, "status.get", nil, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// A late response for the abandoned call must be dropped without
	// disturbing the next call.
	req := peer.read(t)
	peer.respond(t, req.ID, map[string]any{"stale": true})

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(context.Background(), "ping", nil, nil)
	}()
	req2 := peer.read(t)
	if req2.Method != "ping" {
		t.Fatalf("method = %q, want ping", req2.Method)
	}
	peer.respond(t, req2.ID, map[string]any{})
	if err := <-errCh; err != nil {
		t.Fatalf("second Call: %v", err)
	}
}

func TestCallContextCancel(t *testing.T) {
	conn, _ := newTestConn(t)
	conn.Start()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(ctx, "ping", nil, nil)
	}()
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCallAfterClose(t *testing.T) {
	conn, _ := newTestConn(t)
	conn.Start()
	conn.Close()

	err := conn.Call(context.Background(), "ping", nil, nil)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	const n = 4
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errCh <- conn.Call(context.Background(), "session.send", nil, nil)
		}()
	}
	for i := 0; i < n; i++ {
		peer.read(t)
	}

	conn.Close()
	for i := 0; i < n; i++ {
		if err := <-errCh; !errors.Is(err, ErrClosed) {
			t.Errorf("call %d: err = %v, want ErrClosed", i, err)
		}
	}
}

func TestPeerDisconnectFailsPendingCalls(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(context.Background(), "models.list", nil, nil)
	}()
	peer.read(t)
	peer.conn.Close()

	if err := <-errCh; !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	select {
	case <-conn.Done():
	case <-time.After(testTimeout):
		t.Fatal("read loop did not exit after peer disconnect")
	}
	if conn.Err() != nil {
		t.Errorf("Err() = %v, want nil on clean EOF", conn.Err())
	}
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct {
				Echo string `json:"echo"`
			}
			if err := conn.Call(context.Background(), "echo", map[string]int{"i": i}, &out); err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			results[i] = out.Echo
		}(i)
	}

	// Answer out of order to exercise correlation.
	reqs := make([]rpcMessage, n)
	for i := 0; i < n; i++ {
		reqs[i] = peer.read(t)
	}
	for i := n - 1; i >= 0; i-- {
		var params struct {
			I int `json:"i"`
		}
		if err := json.Unmarshal(reqs[i].Params, &params); err != nil {
			t.Fatalf("unmarshal params: %v", err)
		}
		peer.respond(t, reqs[i].ID, map[string]string{"echo": fmt.Sprintf("call-%d", params.I)})
	}

	wg.Wait()
	for i, got := range results {
		if want := fmt.Sprintf("call-%d", i); got != want {
			t.Errorf("results[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestNotifyHasNoID(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	if err := conn.Notify("session.event", map[string]string{"sessionId": "s1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	msg := peer.read(t)
	if msg.Method != "session.event" {
		t.Errorf("method = %q, want session.event", msg.Method)
	}
	if msg.ID != nil {
		t.Errorf("notification has id %s", msg.ID)
	}
}

func TestNotificationDispatchOrder(t *testing.T) {
	conn, peer := newTestConn(t)

	var mu sync.Mutex
	var seen []int
	gotAll := make(chan struct{})
	conn.OnNotification("tick", func(params json.RawMessage) {
		var p struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			t.Errorf("unmarshal: %v", err)
			return
		}
		mu.Lock()
		seen = append(seen, p.N)
		if len(seen) == 5 {
			close(gotAll)
		}
		mu.Unlock()
	})
	conn.Start()

	for i := 0; i < 5; i++ {
		peer.send(t, rpcRequest{JSONRPC: "2.0", Method: "tick", Params: map[string]int{"n": i}})
	}

	select {
	case <-gotAll:
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for notifications")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		if n != i {
			t.Fatalf("seen = %v, want in-order 0..4", seen)
		}
	}
}

func TestInboundMethodCall(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.OnMethod("tool.call", func(params json.RawMessage) (any, error) {
		var p struct {
			ToolName string `json:"toolName"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return map[string]string{"tool": p.ToolName}, nil
	})
	conn.Start()

	id := json.RawMessage(`42`)
	peer.send(t, rpcMessage{JSONRPC: "2.0", ID: id, Method: "tool.call", Params: json.RawMessage(`{"toolName":"grep"}`)})

	resp := peer.read(t)
	if string(resp.ID) != "42" {
		t.Errorf("response id = %s, want 42", resp.ID)
	}
	var result struct {
		Tool string `json:"tool"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Tool != "grep" {
		t.Errorf("tool = %q, want grep", result.Tool)
	}
}

func TestInboundMethodCallStringIDEchoed(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.OnMethod("noop", func(json.RawMessage) (any, error) { return nil, nil })
	conn.Start()

	peer.send(t, rpcMessage{JSONRPC: "2.0", ID: json.RawMessage(`"req-7"`), Method: "noop"})
	resp := peer.read(t)
	if string(resp.ID) != `"req-7"` {
		t.Errorf("response id = %s, want \"req-7\"", resp.ID)
	}
	if string(resp.Result) != "null" {
		t.Errorf("result = %s, want null", resp.Result)
	}
}

func TestInboundMethodNotFound(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	peer.send(t, rpcMessage{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "nope"})
	resp := peer.read(t)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("error = %+v, want code %d", resp.Error, CodeMethodNotFound)
	}

	// The connection keeps serving after an unknown method.
	if err := conn.Notify("still.alive", nil); err != nil {
		t.Fatalf("Notify after unknown method: %v", err)
	}
	if msg := peer.read(t); msg.Method != "still.alive" {
		t.Errorf("method = %q, want still.alive", msg.Method)
	}
}

func TestInboundHandlerError(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.OnMethod("boom", func(json.RawMessage) (any, error) {
		return nil, errors.New("it broke")
	})
	conn.Start()

	peer.send(t, rpcMessage{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "boom"})
	resp := peer.read(t)
	if resp.Error == nil || resp.Error.Code != CodeApplicationError {
		t.Fatalf("error = %+v, want code %d", resp.Error, CodeApplicationError)
	}
	if resp.Error.Message != "it broke" {
		t.Errorf("message = %q, want it broke", resp.Error.Message)
	}
}

func TestInboundHandlerPanic(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.OnMethod("panics", func(json.RawMessage) (any, error) {
		panic("oops")
	})
	conn.Start()

	peer.send(t, rpcMessage{JSONRPC: "2.0", ID: json.RawMessage(`9`), Method: "panics"})
	resp := peer.read(t)
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("error = %+v, want code %d", resp.Error, CodeInternalError)
	}
}

func TestInboundRequestsServeInOrder(t *testing.T) {
	conn, peer := newTestConn(t)

	var mu sync.Mutex
	var order []int
	conn.OnMethod("step", func(params json.RawMessage) (any, error) {
		var p struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.N == 0 {
			time.Sleep(20 * time.Millisecond) // first request is the slowest
		}
		mu.Lock()
		order = append(order, p.N)
		mu.Unlock()
		return nil, nil
	})
	conn.Start()

	for i := 0; i < 3; i++ {
		peer.send(t, rpcMessage{
			JSONRPC: "2.0",
			ID:      json.RawMessage(fmt.Sprintf("%d", 100+i)),
			Method:  "step",
			Params:  json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
	}
	for i := 0; i < 3; i++ {
		peer.read(t)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("order = %v, want 0,1,2", order)
		}
	}
}

func TestProtocolErrorTerminatesConnection(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	if _, err := peer.conn.Write([]byte("Content-Length: 5\r\n\r\n}}}}}")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(testTimeout):
		t.Fatal("read loop did not exit on malformed message")
	}
	if !errors.Is(conn.Err(), ErrProtocol) {
		t.Errorf("Err() = %v, want ErrProtocol", conn.Err())
	}
	if err := conn.Call(context.Background(), "ping", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Call after protocol error = %v, want ErrClosed", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	conn, _ := newTestConn(t)
	conn.Start()
	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestUnsolicitedResponseIgnored(t *testing.T) {
	conn, peer := newTestConn(t)
	conn.Start()

	peer.send(t, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage(`999`), Result: json.RawMessage(`{}`)})

	// Connection still works.
	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(context.Background(), "ping", nil, nil)
	}()
	req := peer.read(t)
	peer.respond(t, req.ID, map[string]any{})
	if err := <-errCh; err != nil {
		t.Fatalf("Call after unsolicited response: %v", err)
	}
}
