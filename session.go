package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Session is one conversation with the agent. Events flow in through
// subscribers registered with On; tools, permission handlers, user input
// handlers, and hooks answer the agent's inbound requests.
//
// Inbound handler invocations (tool calls, permission requests, user input,
// hooks) are serialized: the agent awaits each response before proceeding,
// and the connection serves them one at a time in arrival order.
type Session struct {
	id            string
	workspacePath string
	client        *Client

	subMu     sync.Mutex
	subs      map[int]func(SessionEvent)
	nextSubID int

	toolsMu sync.Mutex
	tools   map[string]Tool

	handlerMu  sync.Mutex
	permission PermissionHandler
	userInput  UserInputHandler
	hooks      *SessionHooks

	destroyed atomic.Bool
}

func newSession(c *Client, id, workspacePath string) *Session {
	return &Session{
		id:            id,
		workspacePath: workspacePath,
		client:        c,
		subs:          make(map[int]func(SessionEvent)),
		tools:         make(map[string]Tool),
	}
}

// adoptConfig installs the handlers carried on a session config.
func (s *Session) adoptConfig(tools []Tool, perm PermissionHandler, input UserInputHandler, hooks *SessionHooks) {
	for _, t := range tools {
		s.RegisterTool(t)
	}
	if perm != nil {
		s.OnPermissionRequest(perm)
	}
	if input != nil {
		s.OnUserInputRequest(input)
	}
	if hooks.hasAny() {
		s.RegisterHooks(hooks)
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// WorkspacePath returns the session's workspace directory, when the agent
// reported one.
func (s *Session) WorkspacePath() string { return s.workspacePath }

// Subscription is a handle to an event subscriber registered with On.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Unsubscribe removes the subscriber. Safe to call multiple times.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(sub.cancel)
}

// On registers fn for every event of this session. Subscribers run on the
// event dispatch goroutine in arrival order; a slow subscriber delays later
// events.
func (s *Session) On(fn func(SessionEvent)) *Subscription {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return &Subscription{cancel: func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}}
}

// Events bridges the session's event stream to a channel, for consumers that
// prefer ranging over callbacks. The channel closes when ctx is cancelled.
// A receiver that stops draining without cancelling ctx stalls event dispatch
// for the whole session.
func (s *Session) Events(ctx context.Context) <-chan SessionEvent {
	out := make(chan SessionEvent, 64)
	var mu sync.Mutex
	closed := false

	sub := s.On(func(evt SessionEvent) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- evt:
		case <-ctx.Done():
		}
	})
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}

// dispatch delivers one event to every subscriber. A panicking subscriber is
// contained so it cannot take down the dispatch goroutine.
func (s *Session) dispatch(evt SessionEvent) {
	s.subMu.Lock()
	fns := make([]func(SessionEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.client.opts.logger.Error("copilot: event subscriber panic",
						"sessionId", s.id, "type", evt.Type, "panic", r)
				}
			}()
			fn(evt)
		}()
	}
}

// Send submits a user message and returns the message id assigned by the
// agent. The returned id correlates with subsequent events; completion is
// signaled by a session.idle event.
func (s *Session) Send(ctx context.Context, opts MessageOptions) (string, error) {
	if s.destroyed.Load() {
		return "", ErrSessionDestroyed
	}
	params := map[string]any{
		"sessionId": s.id,
		"prompt":    opts.Prompt,
	}
	if len(opts.Attachments) > 0 {
		params["attachments"] = opts.Attachments
	}
	if opts.Mode != "" {
		params["mode"] = opts.Mode
	}

	var resp struct {
		MessageID string `json:"messageId"`
	}
	if err := s.client.call(ctx, methodSessionSend, params, &resp, false); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendAndWait submits a message and blocks until the session goes idle,
// returning the last assistant.message event of the turn (nil when the turn
// produced none). A session.error event fails the wait.
func (s *Session) SendAndWait(ctx context.Context, opts MessageOptions) (*SessionEvent, error) {
	if s.destroyed.Load() {
		return nil, ErrSessionDestroyed
	}

	var (
		mu      sync.Mutex
		last    *SessionEvent
		turnErr error
	)
	done := make(chan struct{})
	var once sync.Once

	sub := s.On(func(evt SessionEvent) {
		switch data := evt.Data.(type) {
		case *AssistantMessageData:
			mu.Lock()
			e := evt
			last = &e
			mu.Unlock()
		case *SessionErrorData:
			mu.Lock()
			turnErr = fmt.Errorf("copilot: session error (%s): %s", data.ErrorType, data.Message)
			mu.Unlock()
			once.Do(func() { close(done) })
		case *SessionIdleData:
			once.Do(func() { close(done) })
		}
	})
	defer sub.Unsubscribe()

	if _, err := s.Send(ctx, opts); err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if turnErr != nil {
		return nil, turnErr
	}
	return last, nil
}

// Abort cancels the in-flight turn, if any.
func (s *Session) Abort(ctx context.Context) error {
	if s.destroyed.Load() {
		return ErrSessionDestroyed
	}
	params := map[string]any{"sessionId": s.id}
	return s.client.call(ctx, methodSessionAbort, params, nil, false)
}

// Messages returns the session's full event history.
func (s *Session) Messages(ctx context.Context) ([]SessionEvent, error) {
	if s.destroyed.Load() {
		return nil, ErrSessionDestroyed
	}
	params := map[string]any{"sessionId": s.id}
	var resp struct {
		Messages []SessionEvent `json:"messages"`
	}
	if err := s.client.call(ctx, methodSessionGetMsgs, params, &resp, false); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Destroy ends the session and releases its server-side state. The session
// is unusable afterwards.
func (s *Session) Destroy(ctx context.Context) error {
	if !s.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	s.client.forgetSession(s.id)
	params := map[string]any{"sessionId": s.id}
	return s.client.call(ctx, methodSessionDestroy, params, nil, false)
}

// RegisterTool makes a client-side tool available to the agent. Registering
// a name again replaces the previous definition.
func (s *Session) RegisterTool(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("copilot: tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("copilot: tool %s has no handler", t.Name)
	}
	s.toolsMu.Lock()
	s.tools[t.Name] = t
	s.toolsMu.Unlock()
	return nil
}

// RegisterTools registers several tools, stopping at the first invalid one.
func (s *Session) RegisterTools(tools []Tool) error {
	for _, t := range tools {
		if err := s.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

// OnPermissionRequest installs the handler deciding permission requests.
// Without one, every request is denied.
func (s *Session) OnPermissionRequest(h PermissionHandler) {
	s.handlerMu.Lock()
	s.permission = h
	s.handlerMu.Unlock()
}

// OnUserInputRequest installs the handler answering the agent's questions to
// the user.
func (s *Session) OnUserInputRequest(h UserInputHandler) {
	s.handlerMu.Lock()
	s.userInput = h
	s.handlerMu.Unlock()
}

// RegisterHooks installs the session's lifecycle hooks, replacing any
// previous set.
func (s *Session) RegisterHooks(hooks *SessionHooks) {
	s.handlerMu.Lock()
	s.hooks = hooks
	s.handlerMu.Unlock()
}

// handleToolCall runs a registered tool. Unknown tools, handler errors, and
// handler panics all produce failure results; the turn continues either way.
func (s *Session) handleToolCall(inv ToolInvocation) (res ToolResult) {
	s.toolsMu.Lock()
	tool, ok := s.tools[inv.ToolName]
	s.toolsMu.Unlock()
	if !ok {
		r := FailureResult(fmt.Sprintf("Tool '%s' is not supported.", inv.ToolName))
		r.Error = fmt.Sprintf("tool '%s' not supported", inv.ToolName)
		return r
	}

	defer func() {
		if r := recover(); r != nil {
			s.client.opts.logger.Error("copilot: tool handler panic",
				"sessionId", s.id, "tool", inv.ToolName, "panic", r)
			// Redacted for the model; detail goes in the error field.
			res = FailureResult("Tool execution failed")
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	result, err := tool.Handler(inv)
	if err != nil {
		res = FailureResult("Tool execution failed")
		res.Error = err.Error()
		return res
	}
	if result.ResultType == "" {
		result.ResultType = "success"
	}
	return result
}

// handlePermission decides a permission request. No handler means deny.
func (s *Session) handlePermission(req PermissionRequest) PermissionResult {
	s.handlerMu.Lock()
	h := s.permission
	s.handlerMu.Unlock()
	if h == nil {
		return PermissionResult{Kind: PermissionDeniedNoHandler}
	}

	res := func() (r PermissionResult) {
		defer func() {
			if p := recover(); p != nil {
				s.client.opts.logger.Error("copilot: permission handler panic",
					"sessionId", s.id, "kind", req.Kind, "panic", p)
				r = PermissionResult{Kind: PermissionDeniedNoHandler}
			}
		}()
		return h(req)
	}()
	if res.Kind == "" {
		res.Kind = PermissionDeniedNoHandler
	}
	return res
}

// handleUserInput answers a user input request, or errors when no handler is
// installed.
func (s *Session) handleUserInput(req UserInputRequest) (UserInputResponse, error) {
	s.handlerMu.Lock()
	h := s.userInput
	s.handlerMu.Unlock()
	if h == nil {
		return UserInputResponse{}, fmt.Errorf("no user input handler registered for session %s", s.id)
	}
	return h(req)
}

// invokeHook dispatches one hooks.invoke request to the matching hook. A nil
// hook or nil hook output yields a null output.
func (s *Session) invokeHook(hookType string, input json.RawMessage) (any, error) {
	s.handlerMu.Lock()
	hooks := s.hooks
	s.handlerMu.Unlock()
	if hooks == nil {
		return nil, nil
	}

	inv := HookInvocation{SessionID: s.id}
	switch hookType {
	case hookPreToolUse:
		if hooks.OnPreToolUse == nil {
			return nil, nil
		}
		var in PreToolUseHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", hookType, err)
		}
		return nilable(hooks.OnPreToolUse(in, inv))
	case hookPostToolUse:
		if hooks.OnPostToolUse == nil {
			return nil, nil
		}
		var in PostToolUseHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", hookType, err)
		}
		return nilable(hooks.OnPostToolUse(in, inv))
	case hookUserPromptSubmitted:
		if hooks.OnUserPromptSubmitted == nil {
			return nil, nil
		}
		var in UserPromptSubmittedHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", hookType, err)
		}
		return nilable(hooks.OnUserPromptSubmitted(in, inv))
	case hookSessionStart:
		if hooks.OnSessionStart == nil {
			return nil, nil
		}
		var in SessionStartHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", hookType, err)
		}
		return nilable(hooks.OnSessionStart(in, inv))
	case hookSessionEnd:
		if hooks.OnSessionEnd == nil {
			return nil, nil
		}
		var in SessionEndHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", hookType, err)
		}
		return nilable(hooks.OnSessionEnd(in, inv))
	case hookErrorOccurred:
		if hooks.OnErrorOccurred == nil {
			return nil, nil
		}
		var in ErrorOccurredHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", hookType, err)
		}
		return nilable(hooks.OnErrorOccurred(in, inv))
	}
	// Unknown hook types are ignored so newer agents can add hooks without
	// breaking older clients.
	return nil, nil
}

// nilable flattens a typed nil pointer into an untyped nil so it marshals as
// JSON null.
func nilable[T any](out *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out, nil
}
