package copilot

import "encoding/json"

// HookInvocation identifies the session a hook fires in.
type HookInvocation struct {
	SessionID string
}

// PreToolUseHookInput is delivered before every tool call.
type PreToolUseHookInput struct {
	ToolName string          `json:"toolName"`
	ToolArgs json.RawMessage `json:"toolArgs,omitempty"`
}

// PreToolUseHookOutput can deny a tool call or rewrite its arguments.
// PermissionDecision is "allow", "deny", or empty to leave the decision to
// the agent's normal permission flow.
type PreToolUseHookOutput struct {
	PermissionDecision       string          `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string          `json:"permissionDecisionReason,omitempty"`
	ModifiedArgs             json.RawMessage `json:"modifiedArgs,omitempty"`
}

// PostToolUseHookInput is delivered after every tool call.
type PostToolUseHookInput struct {
	ToolName   string          `json:"toolName"`
	ToolResult json.RawMessage `json:"toolResult,omitempty"`
}

// PostToolUseHookOutput can append context to the tool's result.
type PostToolUseHookOutput struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// UserPromptSubmittedHookInput is delivered when the user submits a prompt.
type UserPromptSubmittedHookInput struct {
	Prompt string `json:"prompt"`
}

// UserPromptSubmittedHookOutput can append context to the submitted prompt.
type UserPromptSubmittedHookOutput struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// SessionStartHookInput is delivered when the session starts.
type SessionStartHookInput struct {
	Source string `json:"source,omitempty"`
}

// SessionStartHookOutput can seed the session with additional context.
type SessionStartHookOutput struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// SessionEndHookInput is delivered when the session ends.
type SessionEndHookInput struct {
	Reason string `json:"reason,omitempty"`
}

// SessionEndHookOutput is reserved; session end hooks are observational.
type SessionEndHookOutput struct{}

// ErrorOccurredHookInput is delivered when the agent reports an error.
type ErrorOccurredHookInput struct {
	Error        string `json:"error"`
	ErrorContext string `json:"errorContext,omitempty"`
}

// ErrorOccurredHookOutput is reserved; error hooks are observational.
type ErrorOccurredHookOutput struct{}

// SessionHooks intercept session lifecycle points. Each hook may return nil
// to observe without modifying anything; a nil output is reported to the
// agent as null.
type SessionHooks struct {
	OnPreToolUse          func(input PreToolUseHookInput, inv HookInvocation) (*PreToolUseHookOutput, error)
	OnPostToolUse         func(input PostToolUseHookInput, inv HookInvocation) (*PostToolUseHookOutput, error)
	OnUserPromptSubmitted func(input UserPromptSubmittedHookInput, inv HookInvocation) (*UserPromptSubmittedHookOutput, error)
	OnSessionStart        func(input SessionStartHookInput, inv HookInvocation) (*SessionStartHookOutput, error)
	OnSessionEnd          func(input SessionEndHookInput, inv HookInvocation) (*SessionEndHookOutput, error)
	OnErrorOccurred       func(input ErrorOccurredHookInput, inv HookInvocation) (*ErrorOccurredHookOutput, error)
}

// hasAny reports whether at least one hook is set. Sessions only advertise
// hook support to the agent when this is true.
func (h *SessionHooks) hasAny() bool {
	if h == nil {
		return false
	}
	return h.OnPreToolUse != nil ||
		h.OnPostToolUse != nil ||
		h.OnUserPromptSubmitted != nil ||
		h.OnSessionStart != nil ||
		h.OnSessionEnd != nil ||
		h.OnErrorOccurred != nil
}

// Wire names of the hook types.
const (
	hookPreToolUse          = "preToolUse"
	hookPostToolUse         = "postToolUse"
	hookUserPromptSubmitted = "userPromptSubmitted"
	hookSessionStart        = "sessionStart"
	hookSessionEnd          = "sessionEnd"
	hookErrorOccurred       = "errorOccurred"
)
