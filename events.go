package copilot

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of a session event. Values not listed here
// decode as UnknownEventData so new agent versions never break dispatch.
type EventType string

const (
	EventSessionStart               EventType = "session.start"
	EventSessionResume              EventType = "session.resume"
	EventSessionError               EventType = "session.error"
	EventSessionIdle                EventType = "session.idle"
	EventSessionInfo                EventType = "session.info"
	EventSessionModelChange         EventType = "session.model_change"
	EventSessionHandoff             EventType = "session.handoff"
	EventSessionTruncation          EventType = "session.truncation"
	EventUserMessage                EventType = "user.message"
	EventPendingMessagesModified    EventType = "pending_messages.modified"
	EventAssistantTurnStart         EventType = "assistant.turn_start"
	EventAssistantIntent            EventType = "assistant.intent"
	EventAssistantReasoning         EventType = "assistant.reasoning"
	EventAssistantReasoningDelta    EventType = "assistant.reasoning_delta"
	EventAssistantMessage           EventType = "assistant.message"
	EventAssistantMessageDelta      EventType = "assistant.message_delta"
	EventAssistantTurnEnd           EventType = "assistant.turn_end"
	EventAssistantUsage             EventType = "assistant.usage"
	EventAbort                      EventType = "abort"
	EventToolUserRequested          EventType = "tool.user_requested"
	EventToolExecutionStart         EventType = "tool.execution_start"
	EventToolExecutionPartialResult EventType = "tool.execution_partial_result"
	EventToolExecutionComplete      EventType = "tool.execution_complete"
	EventCustomAgentStarted         EventType = "custom_agent.started"
	EventCustomAgentCompleted       EventType = "custom_agent.completed"
	EventCustomAgentFailed          EventType = "custom_agent.failed"
	EventCustomAgentSelected        EventType = "custom_agent.selected"
	EventHookStart                  EventType = "hook.start"
	EventHookEnd                    EventType = "hook.end"
	EventSystemMessage              EventType = "system.message"
)

// EventData is the payload of a SessionEvent. Exactly one concrete type
// corresponds to each EventType; switch on the concrete type to dispatch.
type EventData interface {
	eventType() EventType
}

// SessionEvent is one entry in a session's event stream.
type SessionEvent struct {
	ID        string
	Timestamp string // ISO 8601
	ParentID  string
	Ephemeral bool
	Type      EventType
	Data      EventData
}

// RepositoryInfo describes the repository a session was handed off from.
type RepositoryInfo struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Branch string `json:"branch,omitempty"`
}

// UserMessageAttachmentItem is an attachment echoed back on a user.message event.
type UserMessageAttachmentItem struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
}

// ToolRequestItem is a tool invocation requested inside an assistant message.
type ToolRequestItem struct {
	ToolCallID string          `json:"toolCallId"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

// ToolResultContent is the textual output of a completed tool execution.
type ToolResultContent struct {
	Content string `json:"content"`
}

// ToolExecutionError describes why a tool execution failed.
type ToolExecutionError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HookError describes why a hook invocation failed.
type HookError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// SystemMessageMetadata carries provenance for injected system messages.
type SystemMessageMetadata struct {
	PromptVersion string                     `json:"promptVersion,omitempty"`
	Variables     map[string]json.RawMessage `json:"variables,omitempty"`
}

type SessionStartData struct {
	SessionID      string  `json:"sessionId"`
	Version        float64 `json:"version"`
	Producer       string  `json:"producer"`
	CopilotVersion string  `json:"copilotVersion"`
	StartTime      string  `json:"startTime"`
	SelectedModel  string  `json:"selectedModel,omitempty"`
}

type SessionResumeData struct {
	ResumeTime string  `json:"resumeTime"`
	EventCount float64 `json:"eventCount"`
}

type SessionErrorData struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
}

// SessionIdleData signals that the agent finished processing and is waiting
// for input. It carries no fields.
type SessionIdleData struct{}

type SessionInfoData struct {
	InfoType string `json:"infoType"`
	Message  string `json:"message"`
}

type SessionModelChangeData struct {
	PreviousModel string `json:"previousModel,omitempty"`
	NewModel      string `json:"newModel"`
}

type SessionHandoffData struct {
	HandoffTime     string          `json:"handoffTime"`
	Repository      *RepositoryInfo `json:"repository,omitempty"`
	Context         string          `json:"context,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	RemoteSessionID string          `json:"remoteSessionId,omitempty"`
}

type SessionTruncationData struct {
	TokenLimit                      float64 `json:"tokenLimit"`
	PreTruncationTokensInMessages   float64 `json:"preTruncationTokensInMessages"`
	PreTruncationMessagesLength     float64 `json:"preTruncationMessagesLength"`
	PostTruncationTokensInMessages  float64 `json:"postTruncationTokensInMessages"`
	PostTruncationMessagesLength    float64 `json:"postTruncationMessagesLength"`
	TokensRemovedDuringTruncation   float64 `json:"tokensRemovedDuringTruncation"`
	MessagesRemovedDuringTruncation float64 `json:"messagesRemovedDuringTruncation"`
	PerformedBy                     string  `json:"performedBy"`
}

type UserMessageData struct {
	Content            string                      `json:"content"`
	TransformedContent string                      `json:"transformedContent,omitempty"`
	Attachments        []UserMessageAttachmentItem `json:"attachments,omitempty"`
	Source             string                      `json:"source,omitempty"`
}

type PendingMessagesModifiedData struct{}

type AssistantTurnStartData struct {
	TurnID string `json:"turnId"`
}

type AssistantIntentData struct {
	Intent string `json:"intent"`
}

type AssistantReasoningData struct {
	ReasoningID  string `json:"reasoningId"`
	Content      string `json:"content"`
	ChunkContent string `json:"chunkContent,omitempty"`
}

type AssistantReasoningDeltaData struct {
	ReasoningID  string `json:"reasoningId"`
	DeltaContent string `json:"deltaContent"`
}

type AssistantMessageData struct {
	MessageID              string            `json:"messageId"`
	Content                string            `json:"content"`
	ChunkContent           string            `json:"chunkContent,omitempty"`
	TotalResponseSizeBytes float64           `json:"totalResponseSizeBytes,omitempty"`
	ToolRequests           []ToolRequestItem `json:"toolRequests,omitempty"`
	ParentToolCallID       string            `json:"parentToolCallId,omitempty"`
}

type AssistantMessageDeltaData struct {
	MessageID              string  `json:"messageId"`
	DeltaContent           string  `json:"deltaContent"`
	TotalResponseSizeBytes float64 `json:"totalResponseSizeBytes,omitempty"`
	ParentToolCallID       string  `json:"parentToolCallId,omitempty"`
}

type AssistantTurnEndData struct {
	TurnID string `json:"turnId"`
}

type AssistantUsageData struct {
	Model            string                     `json:"model,omitempty"`
	InputTokens      float64                    `json:"inputTokens,omitempty"`
	OutputTokens     float64                    `json:"outputTokens,omitempty"`
	CacheReadTokens  float64                    `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens float64                    `json:"cacheWriteTokens,omitempty"`
	Cost             float64                    `json:"cost,omitempty"`
	Duration         float64                    `json:"duration,omitempty"`
	Initiator        string                     `json:"initiator,omitempty"`
	APICallID        string                     `json:"apiCallId,omitempty"`
	ProviderCallID   string                     `json:"providerCallId,omitempty"`
	QuotaSnapshots   map[string]json.RawMessage `json:"quotaSnapshots,omitempty"`
}

type AbortData struct {
	Reason string `json:"reason"`
}

type ToolUserRequestedData struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

type ToolExecutionStartData struct {
	ToolCallID       string          `json:"toolCallId"`
	ToolName         string          `json:"toolName"`
	Arguments        json.RawMessage `json:"arguments,omitempty"`
	ParentToolCallID string          `json:"parentToolCallId,omitempty"`
}

type ToolExecutionPartialResultData struct {
	ToolCallID    string `json:"toolCallId"`
	PartialOutput string `json:"partialOutput"`
}

type ToolExecutionCompleteData struct {
	ToolCallID       string                     `json:"toolCallId"`
	Success          bool                       `json:"success"`
	IsUserRequested  bool                       `json:"isUserRequested,omitempty"`
	Result           *ToolResultContent         `json:"result,omitempty"`
	Error            *ToolExecutionError        `json:"error,omitempty"`
	ToolTelemetry    map[string]json.RawMessage `json:"toolTelemetry,omitempty"`
	ParentToolCallID string                     `json:"parentToolCallId,omitempty"`
}

type CustomAgentStartedData struct {
	ToolCallID       string `json:"toolCallId"`
	AgentName        string `json:"agentName"`
	AgentDisplayName string `json:"agentDisplayName"`
	AgentDescription string `json:"agentDescription"`
}

type CustomAgentCompletedData struct {
	ToolCallID string `json:"toolCallId"`
	AgentName  string `json:"agentName"`
}

type CustomAgentFailedData struct {
	ToolCallID string `json:"toolCallId"`
	AgentName  string `json:"agentName"`
	Error      string `json:"error"`
}

type CustomAgentSelectedData struct {
	AgentName        string   `json:"agentName"`
	AgentDisplayName string   `json:"agentDisplayName"`
	Tools            []string `json:"tools"`
}

type HookStartData struct {
	HookInvocationID string          `json:"hookInvocationId"`
	HookType         string          `json:"hookType"`
	Input            json.RawMessage `json:"input,omitempty"`
}

type HookEndData struct {
	HookInvocationID string          `json:"hookInvocationId"`
	HookType         string          `json:"hookType"`
	Output           json.RawMessage `json:"output,omitempty"`
	Success          bool            `json:"success"`
	Error            *HookError      `json:"error,omitempty"`
}

type SystemMessageData struct {
	Content  string                 `json:"content"`
	Name     string                 `json:"name,omitempty"`
	Metadata *SystemMessageMetadata `json:"metadata,omitempty"`
}

// UnknownEventData preserves the raw payload of an event type this library
// does not know about.
type UnknownEventData struct {
	Raw json.RawMessage
}

func (*SessionStartData) eventType() EventType               { return EventSessionStart }
func (*SessionResumeData) eventType() EventType              { return EventSessionResume }
func (*SessionErrorData) eventType() EventType               { return EventSessionError }
func (*SessionIdleData) eventType() EventType                { return EventSessionIdle }
func (*SessionInfoData) eventType() EventType                { return EventSessionInfo }
func (*SessionModelChangeData) eventType() EventType         { return EventSessionModelChange }
func (*SessionHandoffData) eventType() EventType             { return EventSessionHandoff }
func (*SessionTruncationData) eventType() EventType          { return EventSessionTruncation }
func (*UserMessageData) eventType() EventType                { return EventUserMessage }
func (*PendingMessagesModifiedData) eventType() EventType    { return EventPendingMessagesModified }
func (*AssistantTurnStartData) eventType() EventType         { return EventAssistantTurnStart }
func (*AssistantIntentData) eventType() EventType            { return EventAssistantIntent }
func (*AssistantReasoningData) eventType() EventType         { return EventAssistantReasoning }
func (*AssistantReasoningDeltaData) eventType() EventType    { return EventAssistantReasoningDelta }
func (*AssistantMessageData) eventType() EventType           { return EventAssistantMessage }
func (*AssistantMessageDeltaData) eventType() EventType      { return EventAssistantMessageDelta }
func (*AssistantTurnEndData) eventType() EventType           { return EventAssistantTurnEnd }
func (*AssistantUsageData) eventType() EventType             { return EventAssistantUsage }
func (*AbortData) eventType() EventType                      { return EventAbort }
func (*ToolUserRequestedData) eventType() EventType          { return EventToolUserRequested }
func (*ToolExecutionStartData) eventType() EventType         { return EventToolExecutionStart }
func (*ToolExecutionPartialResultData) eventType() EventType { return EventToolExecutionPartialResult }
func (*ToolExecutionCompleteData) eventType() EventType      { return EventToolExecutionComplete }
func (*CustomAgentStartedData) eventType() EventType         { return EventCustomAgentStarted }
func (*CustomAgentCompletedData) eventType() EventType       { return EventCustomAgentCompleted }
func (*CustomAgentFailedData) eventType() EventType          { return EventCustomAgentFailed }
func (*CustomAgentSelectedData) eventType() EventType        { return EventCustomAgentSelected }
func (*HookStartData) eventType() EventType                  { return EventHookStart }
func (*HookEndData) eventType() EventType                    { return EventHookEnd }
func (*SystemMessageData) eventType() EventType              { return EventSystemMessage }
func (*UnknownEventData) eventType() EventType               { return "" }

// newEventData returns a zero payload value for typ, or nil if typ is unknown.
func newEventData(typ EventType) EventData {
	switch typ {
	case EventSessionStart:
		return new(SessionStartData)
	case EventSessionResume:
		return new(SessionResumeData)
	case EventSessionError:
		return new(SessionErrorData)
	case EventSessionIdle:
		return new(SessionIdleData)
	case EventSessionInfo:
		return new(SessionInfoData)
	case EventSessionModelChange:
		return new(SessionModelChangeData)
	case EventSessionHandoff:
		return new(SessionHandoffData)
	case EventSessionTruncation:
		return new(SessionTruncationData)
	case EventUserMessage:
		return new(UserMessageData)
	case EventPendingMessagesModified:
		return new(PendingMessagesModifiedData)
	case EventAssistantTurnStart:
		return new(AssistantTurnStartData)
	case EventAssistantIntent:
		return new(AssistantIntentData)
	case EventAssistantReasoning:
		return new(AssistantReasoningData)
	case EventAssistantReasoningDelta:
		return new(AssistantReasoningDeltaData)
	case EventAssistantMessage:
		return new(AssistantMessageData)
	case EventAssistantMessageDelta:
		return new(AssistantMessageDeltaData)
	case EventAssistantTurnEnd:
		return new(AssistantTurnEndData)
	case EventAssistantUsage:
		return new(AssistantUsageData)
	case EventAbort:
		return new(AbortData)
	case EventToolUserRequested:
		return new(ToolUserRequestedData)
	case EventToolExecutionStart:
		return new(ToolExecutionStartData)
	case EventToolExecutionPartialResult:
		return new(ToolExecutionPartialResultData)
	case EventToolExecutionComplete:
		return new(ToolExecutionCompleteData)
	case EventCustomAgentStarted:
		return new(CustomAgentStartedData)
	case EventCustomAgentCompleted:
		return new(CustomAgentCompletedData)
	case EventCustomAgentFailed:
		return new(CustomAgentFailedData)
	case EventCustomAgentSelected:
		return new(CustomAgentSelectedData)
	case EventHookStart:
		return new(HookStartData)
	case EventHookEnd:
		return new(HookEndData)
	case EventSystemMessage:
		return new(SystemMessageData)
	}
	return nil
}

// eventEnvelope is the wire form of SessionEvent.
type eventEnvelope struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	ParentID  string          `json:"parentId,omitempty"`
	Ephemeral bool            `json:"ephemeral,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON decodes the envelope and its typed payload. Unknown event
// types keep their raw payload in UnknownEventData.
func (e *SessionEvent) UnmarshalJSON(b []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("copilot: decode session event: %w", err)
	}
	e.ID = env.ID
	e.Timestamp = env.Timestamp
	e.ParentID = env.ParentID
	e.Ephemeral = env.Ephemeral
	e.Type = EventType(env.Type)

	data := newEventData(e.Type)
	if data == nil {
		e.Data = &UnknownEventData{Raw: env.Data}
		return nil
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("copilot: decode %s event data: %w", env.Type, err)
		}
	}
	e.Data = data
	return nil
}

// MarshalJSON re-encodes the event in its wire form.
func (e SessionEvent) MarshalJSON() ([]byte, error) {
	env := eventEnvelope{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		ParentID:  e.ParentID,
		Ephemeral: e.Ephemeral,
		Type:      string(e.Type),
	}
	switch data := e.Data.(type) {
	case nil:
	case *UnknownEventData:
		env.Data = data.Raw
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
