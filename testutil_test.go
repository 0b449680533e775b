package copilot

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/copilot-sdk/copilot-go/jsonrpc"
)

// mockAgent is an in-process stand-in for the CLI in server mode. It listens
// on loopback and answers the standard methods; tests reach the client's
// inbound handlers through pushEvent and callClient.
// Shared across root-package test files.
type mockAgent struct {
	t  *testing.T
	ln net.Listener

	// Configure before the client connects.
	protocolVersion int
	overrides       map[string]jsonrpc.Handler

	mu           sync.Mutex
	conns        []*jsonrpc.Conn
	createParams []json.RawMessage
	sendParams   []json.RawMessage

	connected chan *jsonrpc.Conn
}

func newMockAgent(t *testing.T) *mockAgent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &mockAgent{
		t:               t,
		ln:              ln,
		protocolVersion: protocolVersion,
		overrides:       make(map[string]jsonrpc.Handler),
		connected:       make(chan *jsonrpc.Conn, 4),
	}
	go m.acceptLoop()
	t.Cleanup(func() {
		ln.Close()
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, conn := range m.conns {
			conn.Close()
		}
	})
	return m
}

func (m *mockAgent) addr() string { return m.ln.Addr().String() }

// handle overrides the response for one method. Only affects connections
// accepted after the call.
func (m *mockAgent) handle(method string, h jsonrpc.Handler) {
	m.overrides[method] = h
}

func (m *mockAgent) acceptLoop() {
	for {
		c, err := m.ln.Accept()
		if err != nil {
			return
		}
		conn := jsonrpc.NewConn(c, jsonrpc.Config{})
		m.register(conn)
		conn.Start()
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
		m.connected <- conn
	}
}

func (m *mockAgent) register(conn *jsonrpc.Conn) {
	conn.OnMethod(methodPing, func(params json.RawMessage) (any, error) {
		var p struct {
			Message string `json:"message"`
		}
		json.Unmarshal(params, &p)
		return map[string]any{
			"message":         p.Message,
			"protocolVersion": m.protocolVersion,
			"timestamp":       time.Now().UnixMilli(),
		}, nil
	})
	conn.OnMethod(methodStatusGet, func(json.RawMessage) (any, error) {
		return map[string]any{"version": "0.0.1-test", "protocolVersion": m.protocolVersion}, nil
	})
	conn.OnMethod(methodAuthGetStatus, func(json.RawMessage) (any, error) {
		return map[string]any{"isAuthenticated": true, "authType": "token", "login": "octocat"}, nil
	})
	conn.OnMethod(methodModelsList, func(json.RawMessage) (any, error) {
		return map[string]any{"models": []map[string]any{
			{"id": "gpt-5", "name": "GPT-5"},
			{"id": "claude-sonnet-4", "name": "Claude Sonnet 4"},
		}}, nil
	})
	conn.OnMethod(methodSessionCreate, func(params json.RawMessage) (any, error) {
		m.mu.Lock()
		m.createParams = append(m.createParams, params)
		m.mu.Unlock()
		var p struct {
			SessionID string `json:"sessionId"`
		}
		json.Unmarshal(params, &p)
		id := p.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		return map[string]any{"sessionId": id, "workspacePath": "/tmp/ws/" + id}, nil
	})
	conn.OnMethod(methodSessionResume, func(params json.RawMessage) (any, error) {
		var p struct {
			SessionID string `json:"sessionId"`
		}
		json.Unmarshal(params, &p)
		return map[string]any{"sessionId": p.SessionID, "workspacePath": "/tmp/ws/" + p.SessionID}, nil
	})
	conn.OnMethod(methodSessionSend, func(params json.RawMessage) (any, error) {
		m.mu.Lock()
		m.sendParams = append(m.sendParams, params)
		m.mu.Unlock()
		return map[string]any{"messageId": uuid.NewString()}, nil
	})
	conn.OnMethod(methodSessionAbort, func(json.RawMessage) (any, error) {
		return map[string]any{}, nil
	})
	conn.OnMethod(methodSessionGetMsgs, func(json.RawMessage) (any, error) {
		return map[string]any{"messages": []any{}}, nil
	})
	conn.OnMethod(methodSessionDestroy, func(json.RawMessage) (any, error) {
		return map[string]any{}, nil
	})
	conn.OnMethod(methodSessionList, func(json.RawMessage) (any, error) {
		return map[string]any{"sessions": []map[string]any{
			{"sessionId": "s-old", "startTime": "2026-02-01T10:00:00Z", "modifiedTime": "2026-02-01T11:00:00Z", "summary": "old work"},
		}}, nil
	})
	conn.OnMethod(methodSessionDelete, func(json.RawMessage) (any, error) {
		return map[string]any{"success": true}, nil
	})
	conn.OnMethod(methodSessionGetLastID, func(json.RawMessage) (any, error) {
		return map[string]any{"sessionId": "s-old"}, nil
	})
	for method, h := range m.overrides {
		conn.OnMethod(method, h)
	}
}

// conn returns the connection from the client, waiting for it to arrive.
func (m *mockAgent) conn() *jsonrpc.Conn {
	m.t.Helper()
	select {
	case c := <-m.connected:
		return c
	case <-time.After(5 * time.Second):
		m.t.Fatal("timed out waiting for client connection")
		return nil
	}
}

// pushEvent sends a session.event notification to the client.
func (m *mockAgent) pushEvent(conn *jsonrpc.Conn, sessionID string, event map[string]any) {
	m.t.Helper()
	if err := conn.Notify(methodSessionEvent, map[string]any{
		"sessionId": sessionID,
		"event":     event,
	}); err != nil {
		m.t.Fatalf("push event: %v", err)
	}
}

// callClient issues a request from the agent side and decodes the response.
func (m *mockAgent) callClient(conn *jsonrpc.Conn, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return conn.Call(ctx, method, params, result)
}

func (m *mockAgent) lastCreateParams() map[string]any {
	m.t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createParams) == 0 {
		m.t.Fatal("no session.create recorded")
	}
	var p map[string]any
	if err := json.Unmarshal(m.createParams[len(m.createParams)-1], &p); err != nil {
		m.t.Fatalf("decode create params: %v", err)
	}
	return p
}

func newTestClient(t *testing.T, m *mockAgent, opts ...ClientOption) *Client {
	t.Helper()
	all := append([]ClientOption{
		WithCLIURL(m.addr()),
		WithRequestTimeout(5 * time.Second),
		WithHandshakeTimeout(5 * time.Second),
	}, opts...)
	c, err := NewClient(all...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c
}

// testEvent builds a minimal event envelope of the given type.
func testEvent(typ EventType, data map[string]any) map[string]any {
	evt := map[string]any{
		"id":        uuid.NewString(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"type":      string(typ),
	}
	if data != nil {
		evt["data"] = data
	}
	return evt
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
