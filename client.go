package copilot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/copilot-sdk/copilot-go/jsonrpc"
	"github.com/copilot-sdk/copilot-go/subprocess"
	"github.com/copilot-sdk/copilot-go/transport"
)

// protocolVersion is the wire protocol level this library speaks. The agent
// must report the same version in its ping response.
const protocolVersion = 2

// RPC method names.
const (
	methodPing              = "ping"
	methodStatusGet         = "status.get"
	methodAuthGetStatus     = "auth.getStatus"
	methodModelsList        = "models.list"
	methodSessionCreate     = "session.create"
	methodSessionResume     = "session.resume"
	methodSessionList       = "session.list"
	methodSessionDelete     = "session.delete"
	methodSessionGetLastID  = "session.getLastId"
	methodSessionSend       = "session.send"
	methodSessionAbort      = "session.abort"
	methodSessionGetMsgs    = "session.getMessages"
	methodSessionDestroy    = "session.destroy"
	methodSessionEvent      = "session.event"
	methodToolCall          = "tool.call"
	methodPermissionRequest = "permission.request"
	methodUserInputRequest  = "userInput.request"
	methodHooksInvoke       = "hooks.invoke"
)

// State is the lifecycle state of a Client.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	// StateForceStopped is terminal; a force-stopped client cannot restart.
	StateForceStopped
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateForceStopped:
		return "force-stopped"
	}
	return "unknown"
}

// link bundles one live connection to the agent with its event queue and,
// when the client spawned the agent itself, the child process.
type link struct {
	conn   *jsonrpc.Conn
	proc   *subprocess.Process // nil when connected to an external server
	events chan sessionEventMsg
}

type sessionEventMsg struct {
	sessionID string
	event     SessionEvent
}

// Client manages the agent process and the RPC connection to it, and is the
// factory for sessions. All methods are safe for concurrent use.
type Client struct {
	opts clientOptions

	mu    sync.Mutex // guards lifecycle transitions and link
	state atomic.Int32
	link  *link

	sessMu   sync.Mutex
	sessions map[string]*Session

	modelsMu sync.Mutex
	models   []ModelInfo
}

// NewClient builds a Client. No process is spawned and nothing connects
// until Start or the first auto-started operation.
func NewClient(opts ...ClientOption) (*Client, error) {
	o := resolveOptions(opts...)
	if o.cliURL != "" && o.useTCP {
		return nil, fmt.Errorf("copilot: WithCLIURL and WithPort are mutually exclusive")
	}
	return &Client{
		opts:     o,
		sessions: make(map[string]*Session),
	}, nil
}

// State reports the client's lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Start launches the agent (or connects to an external one), performs the
// protocol handshake, and moves the client to StateRunning. Starting an
// already-running client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Client) startLocked(ctx context.Context) error {
	switch c.State() {
	case StateRunning, StateStarting:
		return nil
	case StateForceStopped:
		return ErrForceStopped
	}
	c.state.Store(int32(StateStarting))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.handshakeTimeout)
		defer cancel()
	}

	l, err := c.connect(ctx)
	if err != nil {
		c.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	c.link = l
	c.state.Store(int32(StateRunning))

	go c.eventLoop(l)
	go func() {
		<-l.conn.Done()
		close(l.events)
		c.reapLink(l)
	}()
	return nil
}

// connect establishes the transport, wires the connection handlers, and runs
// the handshake. On failure everything it created is torn down.
func (c *Client) connect(ctx context.Context) (*link, error) {
	var (
		tr   transport.Transport
		proc *subprocess.Process
		err  error
	)
	if c.opts.cliURL != "" {
		tr, err = transport.DialTCP(ctx, c.opts.cliURL)
		if err != nil {
			return nil, err
		}
	} else {
		proc, tr, err = c.spawnCLI(ctx)
		if err != nil {
			return nil, err
		}
	}

	conn := jsonrpc.NewConn(tr, jsonrpc.Config{
		MaxMessageSize: c.opts.maxMessageSize,
		Logger:         c.opts.logger,
	})
	l := &link{
		conn:   conn,
		proc:   proc,
		events: make(chan sessionEventMsg, c.opts.eventBuffer),
	}
	conn.OnNotification(methodSessionEvent, func(params json.RawMessage) {
		c.handleSessionEvent(l, params)
	})
	conn.OnMethod(methodToolCall, c.handleToolCall)
	conn.OnMethod(methodPermissionRequest, c.handlePermissionRequest)
	conn.OnMethod(methodUserInputRequest, c.handleUserInputRequest)
	conn.OnMethod(methodHooksInvoke, c.handleHooksInvoke)
	conn.Start()

	var ping PingResponse
	if err := conn.Call(ctx, methodPing, map[string]any{"message": "init"}, &ping); err != nil {
		c.abortLink(l)
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if ping.ProtocolVersion != protocolVersion {
		c.abortLink(l)
		return nil, fmt.Errorf("%w: agent speaks v%d, this library speaks v%d",
			ErrProtocolVersion, ping.ProtocolVersion, protocolVersion)
	}

	c.opts.logger.Info("copilot: connected",
		"pid", pidOf(proc), "protocolVersion", ping.ProtocolVersion)
	return l, nil
}

// spawnCLI starts the agent CLI in server mode and returns the transport to
// reach it: stdio pipes by default, or a TCP dial when a port is requested.
func (c *Client) spawnCLI(ctx context.Context) (*subprocess.Process, transport.Transport, error) {
	args := slices.Clone(c.opts.cliArgs)
	args = append(args, "--server", "--log-level", c.opts.logLevel)
	if c.opts.useTCP {
		args = append(args, "--port", strconv.Itoa(c.opts.port))
	} else {
		args = append(args, "--stdio")
	}

	proc, err := subprocess.Start(c.opts.cliPath, args, subprocess.Options{
		Dir: c.opts.dir,
		Env: c.opts.env,
		// NODE_DEBUG output would corrupt the protocol stream.
		Unset: []string{"NODE_DEBUG"},
	})
	if err != nil {
		return nil, nil, err
	}

	if !c.opts.useTCP {
		return proc, transport.Pipe(proc.Stdin(), proc.Stdout()), nil
	}

	port, err := awaitPortAnnouncement(ctx, proc.Stdout())
	if err != nil {
		proc.Kill()
		return nil, nil, fmt.Errorf("waiting for port announcement: %w", err)
	}
	tr, err := transport.DialTCP(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		proc.Kill()
		return nil, nil, err
	}
	return proc, tr, nil
}

var portAnnouncementRe = regexp.MustCompile(`listening on port (\d+)`)

// awaitPortAnnouncement scans the CLI's stdout for the port it bound. After
// the announcement the remaining stdout is drained so the child never blocks
// on a full pipe.
func awaitPortAnnouncement(ctx context.Context, r io.Reader) (int, error) {
	type scanResult struct {
		port int
		err  error
	}
	ch := make(chan scanResult, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if m := portAnnouncementRe.FindStringSubmatch(sc.Text()); m != nil {
				port, _ := strconv.Atoi(m[1])
				ch <- scanResult{port: port}
				io.Copy(io.Discard, r)
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		ch <- scanResult{err: fmt.Errorf("agent exited before announcing port: %w", err)}
	}()

	select {
	case res := <-ch:
		return res.port, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stop gracefully shuts the client down: in-flight calls fail with
// ErrConnectionClosed, sessions are detached (their server-side state
// survives for later resumption), and a spawned agent gets stdin EOF plus a
// termination signal, escalating to kill after the grace period.
// Stopping a stopped client is a no-op.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateStopped, StateForceStopped:
		return nil
	}
	c.state.Store(int32(StateStopping))

	l := c.link
	c.link = nil
	c.detachSessions()
	c.clearModelCache()

	if l != nil {
		l.conn.Close()
		if l.proc != nil {
			_ = l.proc.Terminate(c.opts.gracePeriod)
		}
	}
	c.state.Store(int32(StateStopped))
	c.opts.logger.Info("copilot: stopped")
	return nil
}

// ForceStop kills the agent immediately without the graceful protocol.
// The client ends in StateForceStopped and cannot be started again.
func (c *Client) ForceStop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateForceStopped {
		return
	}
	c.state.Store(int32(StateForceStopped))

	l := c.link
	c.link = nil
	c.detachSessions()
	c.clearModelCache()

	if l != nil {
		l.conn.Close()
		if l.proc != nil {
			l.proc.Kill()
		}
	}
	c.opts.logger.Info("copilot: force-stopped")
}

// abortLink tears down a half-built link during a failed start.
func (c *Client) abortLink(l *link) {
	l.conn.Close()
	if l.proc != nil {
		l.proc.Kill()
	}
}

// reapLink handles the agent side closing the connection while the client
// believes it is running.
func (c *Client) reapLink(l *link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l {
		return // already torn down by Stop or ForceStop
	}
	c.link = nil
	c.detachSessions()
	c.clearModelCache()
	if l.proc != nil {
		l.proc.Kill()
	}
	c.state.Store(int32(StateStopped))
	if err := l.conn.Err(); err != nil {
		c.opts.logger.Warn("copilot: connection lost", "err", err)
	} else {
		c.opts.logger.Info("copilot: agent disconnected")
	}
}

// detachSessions drops the local session registry. Server-side session state
// is not touched.
func (c *Client) detachSessions() {
	c.sessMu.Lock()
	clear(c.sessions)
	c.sessMu.Unlock()
}

func (c *Client) clearModelCache() {
	c.modelsMu.Lock()
	c.models = nil
	c.modelsMu.Unlock()
}

// call issues one request to the agent, applying the default request timeout
// when the caller's context has no deadline. When autoStart is permitted and
// the client is stopped, it is started first.
func (c *Client) call(ctx context.Context, method string, params, result any, autoStart bool) error {
	conn, err := c.activeConn(ctx, autoStart)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.requestTimeout)
		defer cancel()
	}
	return conn.Call(ctx, method, params, result)
}

func (c *Client) activeConn(ctx context.Context, autoStart bool) (*jsonrpc.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateRunning && c.link != nil {
		return c.link.conn, nil
	}
	if c.State() == StateForceStopped {
		return nil, ErrForceStopped
	}
	if !autoStart || !c.opts.autoStart {
		return nil, ErrNotRunning
	}
	if err := c.startLocked(ctx); err != nil {
		return nil, err
	}
	return c.link.conn, nil
}

// Ping round-trips a message through the agent.
func (c *Client) Ping(ctx context.Context, message string) (PingResponse, error) {
	var resp PingResponse
	err := c.call(ctx, methodPing, map[string]any{"message": message}, &resp, true)
	return resp, err
}

// Status reports the agent's version and protocol level.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.call(ctx, methodStatusGet, struct{}{}, &resp, true)
	return resp, err
}

// AuthStatus reports the agent's authentication state.
func (c *Client) AuthStatus(ctx context.Context) (AuthStatusResponse, error) {
	var resp AuthStatusResponse
	err := c.call(ctx, methodAuthGetStatus, struct{}{}, &resp, true)
	return resp, err
}

// ListModels returns the models available to sessions. The list is fetched
// once per connection and cached.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	c.modelsMu.Lock()
	if c.models != nil {
		models := slices.Clone(c.models)
		c.modelsMu.Unlock()
		return models, nil
	}
	c.modelsMu.Unlock()

	var resp struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.call(ctx, methodModelsList, struct{}{}, &resp, true); err != nil {
		return nil, err
	}

	c.modelsMu.Lock()
	c.models = resp.Models
	c.modelsMu.Unlock()
	return slices.Clone(resp.Models), nil
}

// CreateSession creates a new session and registers its handlers.
func (c *Client) CreateSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	params := buildSessionCreateParams(cfg)

	var resp struct {
		SessionID     string `json:"sessionId"`
		WorkspacePath string `json:"workspacePath"`
	}
	if err := c.call(ctx, methodSessionCreate, params, &resp, true); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("%w: agent returned no session id", ErrSessionCreation)
	}

	s := newSession(c, resp.SessionID, resp.WorkspacePath)
	s.adoptConfig(cfg.Tools, cfg.OnPermissionRequest, cfg.OnUserInputRequest, cfg.Hooks)
	c.registerSession(s)
	c.opts.logger.Debug("copilot: session created", "sessionId", s.ID())
	return s, nil
}

// ResumeSession reattaches to a persisted session by id.
func (c *Client) ResumeSession(ctx context.Context, sessionID string, cfg ResumeSessionConfig) (*Session, error) {
	params := buildSessionResumeParams(sessionID, cfg)

	var resp struct {
		SessionID     string `json:"sessionId"`
		WorkspacePath string `json:"workspacePath"`
	}
	if err := c.call(ctx, methodSessionResume, params, &resp, true); err != nil {
		return nil, err
	}
	id := resp.SessionID
	if id == "" {
		id = sessionID
	}

	s := newSession(c, id, resp.WorkspacePath)
	s.adoptConfig(cfg.Tools, cfg.OnPermissionRequest, cfg.OnUserInputRequest, cfg.Hooks)
	c.registerSession(s)
	c.opts.logger.Debug("copilot: session resumed", "sessionId", s.ID())
	return s, nil
}

// ListSessions returns metadata for every persisted session.
func (c *Client) ListSessions(ctx context.Context) ([]SessionMetadata, error) {
	var resp struct {
		Sessions []sessionMetadataWire `json:"sessions"`
	}
	if err := c.call(ctx, methodSessionList, struct{}{}, &resp, true); err != nil {
		return nil, err
	}
	sessions := make([]SessionMetadata, 0, len(resp.Sessions))
	for _, w := range resp.Sessions {
		sessions = append(sessions, w.toMetadata())
	}
	return sessions, nil
}

// DeleteSession removes a persisted session's server-side state.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	var resp struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	params := map[string]any{"sessionId": sessionID}
	if err := c.call(ctx, methodSessionDelete, params, &resp, false); err != nil {
		return err
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("copilot: delete session %s: %s", sessionID, msg)
	}
	c.sessMu.Lock()
	delete(c.sessions, sessionID)
	c.sessMu.Unlock()
	return nil
}

// LastSessionID returns the id of the most recently used session, or "" when
// the agent has none.
func (c *Client) LastSessionID(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.call(ctx, methodSessionGetLastID, struct{}{}, &resp, true); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *Client) registerSession(s *Session) {
	c.sessMu.Lock()
	c.sessions[s.id] = s
	c.sessMu.Unlock()
}

func (c *Client) session(id string) *Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.sessions[id]
}

func (c *Client) forgetSession(id string) {
	c.sessMu.Lock()
	delete(c.sessions, id)
	c.sessMu.Unlock()
}

// --- Inbound dispatch ---

// handleSessionEvent runs on the connection read loop: it decodes the event
// envelope and queues it for the dispatch goroutine.
func (c *Client) handleSessionEvent(l *link, params json.RawMessage) {
	var note struct {
		SessionID string          `json:"sessionId"`
		Event     json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(params, &note); err != nil || note.SessionID == "" || len(note.Event) == 0 {
		c.opts.logger.Debug("copilot: malformed session.event notification", "err", err)
		return
	}
	var evt SessionEvent
	if err := json.Unmarshal(note.Event, &evt); err != nil {
		c.opts.logger.Debug("copilot: undecodable session event", "err", err)
		return
	}
	l.events <- sessionEventMsg{sessionID: note.SessionID, event: evt}
}

// eventLoop delivers queued events to session subscribers, preserving
// per-session arrival order. Exits when the link's connection closes.
func (c *Client) eventLoop(l *link) {
	for msg := range l.events {
		s := c.session(msg.sessionID)
		if s == nil {
			c.opts.logger.Debug("copilot: event for unknown session",
				"sessionId", msg.sessionID, "type", msg.event.Type)
			continue
		}
		s.dispatch(msg.event)
	}
}

func (c *Client) handleToolCall(params json.RawMessage) (any, error) {
	var p struct {
		SessionID  string          `json:"sessionId"`
		ToolCallID string          `json:"toolCallId"`
		ToolName   string          `json:"toolName"`
		Arguments  json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid tool.call params: %w", err)
	}

	s := c.session(p.SessionID)
	if s == nil {
		res := FailureResult("Session not found")
		res.Error = "unknown session " + p.SessionID
		return wrapResult(res), nil
	}
	return wrapResult(s.handleToolCall(ToolInvocation{
		SessionID:  p.SessionID,
		ToolCallID: p.ToolCallID,
		ToolName:   p.ToolName,
		Arguments:  p.Arguments,
	})), nil
}

func wrapResult(res ToolResult) any {
	return struct {
		Result ToolResult `json:"result"`
	}{res}
}

func (c *Client) handlePermissionRequest(params json.RawMessage) (any, error) {
	var p struct {
		SessionID         string          `json:"sessionId"`
		PermissionRequest json.RawMessage `json:"permissionRequest"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid permission.request params: %w", err)
	}
	raw := p.PermissionRequest
	if len(raw) == 0 {
		raw = params
	}

	deny := struct {
		Result PermissionResult `json:"result"`
	}{PermissionResult{Kind: PermissionDeniedNoHandler}}

	s := c.session(p.SessionID)
	if s == nil {
		return deny, nil
	}
	var req PermissionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return deny, nil
	}
	return struct {
		Result PermissionResult `json:"result"`
	}{s.handlePermission(req)}, nil
}

func (c *Client) handleUserInputRequest(params json.RawMessage) (any, error) {
	var p struct {
		SessionID string `json:"sessionId"`
		UserInputRequest
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid userInput.request params: %w", err)
	}
	s := c.session(p.SessionID)
	if s == nil {
		return nil, fmt.Errorf("unknown session %s", p.SessionID)
	}
	resp, err := s.handleUserInput(p.UserInputRequest)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) handleHooksInvoke(params json.RawMessage) (any, error) {
	var p struct {
		SessionID string          `json:"sessionId"`
		HookType  string          `json:"hookType"`
		Input     json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid hooks.invoke params: %w", err)
	}
	s := c.session(p.SessionID)
	if s == nil {
		return nil, fmt.Errorf("unknown session %s", p.SessionID)
	}
	output, err := s.invokeHook(p.HookType, p.Input)
	if err != nil {
		return nil, err
	}
	return struct {
		Output any `json:"output"`
	}{output}, nil
}

// --- Request builders ---

// toolDefs converts registered tools to their wire definitions. Handlers stay
// client-side; only name, description, and schema are sent.
func toolDefs(tools []Tool) []map[string]any {
	defs := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		def := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if len(t.ParametersSchema) > 0 {
			def["parameters"] = t.ParametersSchema
		}
		defs = append(defs, def)
	}
	return defs
}

// buildSessionCreateParams assembles session.create params. Pure function of
// the config and, when AutoBYOKFromEnv is set, the COPILOT_SDK_BYOK_* vars.
func buildSessionCreateParams(cfg SessionConfig) map[string]any {
	params := map[string]any{}

	switch {
	case cfg.Model != "":
		params["model"] = cfg.Model
	case cfg.AutoBYOKFromEnv:
		if m := ModelFromEnv(); m != "" {
			params["model"] = m
		}
	}
	if cfg.SessionID != "" {
		params["sessionId"] = cfg.SessionID
	}
	if cfg.OnPermissionRequest != nil {
		params["requestPermission"] = true
	}
	if cfg.SystemMessage != nil {
		params["systemMessage"] = cfg.SystemMessage
	}
	if len(cfg.Tools) > 0 {
		params["tools"] = toolDefs(cfg.Tools)
	}
	if cfg.AvailableTools != nil {
		params["availableTools"] = cfg.AvailableTools
	}
	if cfg.ExcludedTools != nil {
		params["excludedTools"] = cfg.ExcludedTools
	}
	if cfg.Streaming {
		params["streaming"] = true
	}
	switch {
	case cfg.Provider != nil:
		params["provider"] = cfg.Provider
	case cfg.AutoBYOKFromEnv:
		if p := ProviderFromEnv(); p != nil {
			params["provider"] = p
		}
	}
	if cfg.McpServers != nil {
		params["mcpServers"] = cfg.McpServers
	}
	if len(cfg.CustomAgents) > 0 {
		params["customAgents"] = cfg.CustomAgents
	}
	if cfg.SkillDirectories != nil {
		params["skillDirectories"] = cfg.SkillDirectories
	}
	if cfg.DisabledSkills != nil {
		params["disabledSkills"] = cfg.DisabledSkills
	}
	if cfg.InfiniteSessions != nil {
		params["infiniteSessions"] = cfg.InfiniteSessions
	}
	if cfg.ConfigDir != "" {
		params["configDir"] = cfg.ConfigDir
	}
	if cfg.ReasoningEffort != "" {
		params["reasoningEffort"] = cfg.ReasoningEffort
	}
	if cfg.OnUserInputRequest != nil {
		params["requestUserInput"] = true
	}
	if cfg.Hooks.hasAny() {
		params["hooks"] = true
	}
	if cfg.WorkingDirectory != "" {
		params["workingDirectory"] = cfg.WorkingDirectory
	}
	return params
}

// buildSessionResumeParams assembles session.resume params.
func buildSessionResumeParams(sessionID string, cfg ResumeSessionConfig) map[string]any {
	params := map[string]any{"sessionId": sessionID}

	if cfg.OnPermissionRequest != nil {
		params["requestPermission"] = true
	}
	if len(cfg.Tools) > 0 {
		params["tools"] = toolDefs(cfg.Tools)
	}
	if cfg.Streaming {
		params["streaming"] = true
	}
	switch {
	case cfg.Provider != nil:
		params["provider"] = cfg.Provider
	case cfg.AutoBYOKFromEnv:
		if p := ProviderFromEnv(); p != nil {
			params["provider"] = p
		}
	}
	if cfg.McpServers != nil {
		params["mcpServers"] = cfg.McpServers
	}
	if len(cfg.CustomAgents) > 0 {
		params["customAgents"] = cfg.CustomAgents
	}
	if cfg.SkillDirectories != nil {
		params["skillDirectories"] = cfg.SkillDirectories
	}
	if cfg.DisabledSkills != nil {
		params["disabledSkills"] = cfg.DisabledSkills
	}
	if cfg.ConfigDir != "" {
		params["configDir"] = cfg.ConfigDir
	}
	switch {
	case cfg.Model != "":
		params["model"] = cfg.Model
	case cfg.AutoBYOKFromEnv:
		if m := ModelFromEnv(); m != "" {
			params["model"] = m
		}
	}
	if cfg.SystemMessage != nil {
		params["systemMessage"] = cfg.SystemMessage
	}
	if cfg.AvailableTools != nil {
		params["availableTools"] = cfg.AvailableTools
	}
	if cfg.ExcludedTools != nil {
		params["excludedTools"] = cfg.ExcludedTools
	}
	if cfg.InfiniteSessions != nil {
		params["infiniteSessions"] = cfg.InfiniteSessions
	}
	if cfg.OnUserInputRequest != nil {
		params["requestUserInput"] = true
	}
	if cfg.Hooks.hasAny() {
		params["hooks"] = true
	}
	return params
}

func pidOf(p *subprocess.Process) int {
	if p == nil {
		return 0
	}
	return p.PID()
}
