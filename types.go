package copilot

import (
	"encoding/json"
	"os"
	"time"
)

// Environment variables consulted when AutoBYOKFromEnv is set on a session
// config and no explicit provider or model is given.
const (
	EnvBYOKAPIKey       = "COPILOT_SDK_BYOK_API_KEY"
	EnvBYOKBaseURL      = "COPILOT_SDK_BYOK_BASE_URL"
	EnvBYOKProviderType = "COPILOT_SDK_BYOK_PROVIDER_TYPE"
	EnvBYOKModel        = "COPILOT_SDK_BYOK_MODEL"
)

// SystemMessageMode controls how a custom system message combines with the
// agent's built-in one.
type SystemMessageMode string

const (
	SystemMessageAppend  SystemMessageMode = "append"
	SystemMessageReplace SystemMessageMode = "replace"
)

// SystemMessageConfig customizes the session's system message.
type SystemMessageConfig struct {
	Mode    SystemMessageMode `json:"mode,omitempty"`
	Content string            `json:"content,omitempty"`
}

// AzureOptions holds Azure-specific provider settings.
type AzureOptions struct {
	APIVersion string `json:"apiVersion,omitempty"`
}

// ProviderConfig points a session at a bring-your-own-key model provider.
type ProviderConfig struct {
	Type        string        `json:"type,omitempty"`
	WireAPI     string        `json:"wireApi,omitempty"`
	BaseURL     string        `json:"baseUrl"`
	APIKey      string        `json:"apiKey,omitempty"`
	BearerToken string        `json:"bearerToken,omitempty"`
	Azure       *AzureOptions `json:"azure,omitempty"`
}

// ProviderFromEnv builds a ProviderConfig from the COPILOT_SDK_BYOK_*
// environment variables. Returns nil if the API key is not set.
func ProviderFromEnv() *ProviderConfig {
	apiKey := os.Getenv(EnvBYOKAPIKey)
	if apiKey == "" {
		return nil
	}
	cfg := &ProviderConfig{
		Type:    "openai",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  apiKey,
	}
	if url := os.Getenv(EnvBYOKBaseURL); url != "" {
		cfg.BaseURL = url
	}
	if ptype := os.Getenv(EnvBYOKProviderType); ptype != "" {
		cfg.Type = ptype
	}
	return cfg
}

// ModelFromEnv returns the COPILOT_SDK_BYOK_MODEL value, if set.
func ModelFromEnv() string {
	return os.Getenv(EnvBYOKModel)
}

// McpLocalServerConfig describes an MCP server launched as a local process.
type McpLocalServerConfig struct {
	Tools   []string          `json:"tools"`
	Type    string            `json:"type,omitempty"`
	Timeout int               `json:"timeout,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
}

// McpRemoteServerConfig describes an MCP server reached over HTTP or SSE.
type McpRemoteServerConfig struct {
	Tools   []string          `json:"tools"`
	Type    string            `json:"type"`
	Timeout int               `json:"timeout,omitempty"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// CustomAgentConfig defines a named sub-agent with its own prompt and tool set.
type CustomAgentConfig struct {
	Name        string                     `json:"name"`
	DisplayName string                     `json:"displayName,omitempty"`
	Description string                     `json:"description,omitempty"`
	Tools       []string                   `json:"tools,omitempty"`
	Prompt      string                     `json:"prompt"`
	McpServers  map[string]json.RawMessage `json:"mcpServers,omitempty"`
	Infer       bool                       `json:"infer,omitempty"`
}

// InfiniteSessionConfig tunes automatic context compaction.
type InfiniteSessionConfig struct {
	Enabled                       *bool    `json:"enabled,omitempty"`
	BackgroundCompactionThreshold *float64 `json:"backgroundCompactionThreshold,omitempty"`
	BufferExhaustionThreshold     *float64 `json:"bufferExhaustionThreshold,omitempty"`
}

// AttachmentType classifies a user message attachment.
type AttachmentType string

const (
	AttachmentFile      AttachmentType = "file"
	AttachmentDirectory AttachmentType = "directory"
)

// UserMessageAttachment is a file or directory attached to an outgoing message.
type UserMessageAttachment struct {
	Type        AttachmentType `json:"type"`
	Path        string         `json:"path"`
	DisplayName string         `json:"displayName"`
}

// ToolBinaryResult is a binary artifact returned from a tool execution.
type ToolBinaryResult struct {
	Data        string `json:"data"` // base64
	MimeType    string `json:"mimeType"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ToolResult is the outcome of a tool handler, sent back to the agent.
type ToolResult struct {
	TextResultForLLM    string                     `json:"textResultForLlm"`
	BinaryResultsForLLM []ToolBinaryResult         `json:"binaryResultsForLlm,omitempty"`
	ResultType          string                     `json:"resultType"` // "success" or "failure"
	Error               string                     `json:"error,omitempty"`
	SessionLog          string                     `json:"sessionLog,omitempty"`
	ToolTelemetry       map[string]json.RawMessage `json:"toolTelemetry,omitempty"`
}

// SuccessResult builds a success ToolResult with the given text for the model.
func SuccessResult(text string) ToolResult {
	return ToolResult{TextResultForLLM: text, ResultType: "success"}
}

// FailureResult builds a failure ToolResult with an error description.
func FailureResult(text string) ToolResult {
	return ToolResult{TextResultForLLM: text, ResultType: "failure", Error: text}
}

// ToolInvocation identifies one call of a registered tool.
type ToolInvocation struct {
	SessionID  string
	ToolCallID string
	ToolName   string
	Arguments  json.RawMessage
}

// ToolHandler executes a registered tool. A returned error or panic is
// reported to the agent as a failure result.
type ToolHandler func(inv ToolInvocation) (ToolResult, error)

// Tool is a client-side tool the agent may call during a session.
type Tool struct {
	Name             string
	Description      string
	ParametersSchema json.RawMessage
	Handler          ToolHandler
}

// PermissionRequest asks the client to approve an action. Fields beyond the
// kind and tool call id vary by request kind and are kept in Extra.
type PermissionRequest struct {
	Kind       string
	ToolCallID string
	Extra      map[string]json.RawMessage
}

// UnmarshalJSON keeps unrecognized fields in Extra.
func (r *PermissionRequest) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if raw, ok := fields["kind"]; ok {
		if err := json.Unmarshal(raw, &r.Kind); err != nil {
			return err
		}
		delete(fields, "kind")
	}
	if raw, ok := fields["toolCallId"]; ok {
		if err := json.Unmarshal(raw, &r.ToolCallID); err != nil {
			return err
		}
		delete(fields, "toolCallId")
	}
	r.Extra = fields
	return nil
}

// Permission result kinds.
const (
	PermissionApproved        = "approved"
	PermissionDeniedNoHandler = "denied-no-approval-rule-and-could-not-request-from-user"
)

// PermissionResult is the client's answer to a PermissionRequest.
type PermissionResult struct {
	Kind  string            `json:"kind"`
	Rules []json.RawMessage `json:"rules,omitempty"`
}

// PermissionHandler decides a PermissionRequest for a session.
type PermissionHandler func(req PermissionRequest) PermissionResult

// UserInputRequest asks the user a question on the agent's behalf.
type UserInputRequest struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices,omitempty"`
	AllowFreeform bool     `json:"allowFreeform,omitempty"`
}

// UserInputResponse is the user's answer.
type UserInputResponse struct {
	Answer      string `json:"answer"`
	WasFreeform bool   `json:"wasFreeform,omitempty"`
}

// UserInputHandler answers a UserInputRequest. An error is reported back to
// the agent.
type UserInputHandler func(req UserInputRequest) (UserInputResponse, error)

// SessionConfig configures a new session.
type SessionConfig struct {
	// SessionID requests a specific id instead of a generated one.
	SessionID string
	// Model selects the model; empty uses the agent default.
	Model string
	// Tools are client-side tools registered at creation time.
	Tools []Tool
	// SystemMessage customizes the system message.
	SystemMessage *SystemMessageConfig
	// AvailableTools restricts built-in tools to this allowlist.
	AvailableTools []string
	// ExcludedTools removes built-in tools.
	ExcludedTools []string
	// Provider points the session at a BYOK provider.
	Provider *ProviderConfig
	// OnPermissionRequest decides permission requests for this session.
	OnPermissionRequest PermissionHandler
	// OnUserInputRequest answers user input requests for this session.
	OnUserInputRequest UserInputHandler
	// Hooks observe and steer the session lifecycle.
	Hooks *SessionHooks
	// Streaming enables delta events for assistant output.
	Streaming bool
	// McpServers configures MCP servers, keyed by server name. Values are
	// McpLocalServerConfig or McpRemoteServerConfig.
	McpServers map[string]json.RawMessage
	// CustomAgents defines named sub-agents.
	CustomAgents []CustomAgentConfig
	// SkillDirectories adds directories searched for skills.
	SkillDirectories []string
	// DisabledSkills disables named skills.
	DisabledSkills []string
	// InfiniteSessions tunes automatic context compaction.
	InfiniteSessions *InfiniteSessionConfig
	// ConfigDir overrides the agent's configuration directory.
	ConfigDir string
	// ReasoningEffort adjusts model reasoning, when supported.
	ReasoningEffort string
	// WorkingDirectory sets the session's working directory.
	WorkingDirectory string
	// AutoBYOKFromEnv loads provider and model from COPILOT_SDK_BYOK_* when
	// they are not set explicitly.
	AutoBYOKFromEnv bool
}

// ResumeSessionConfig configures resumption of an existing session.
type ResumeSessionConfig struct {
	Tools               []Tool
	Model               string
	SystemMessage       *SystemMessageConfig
	AvailableTools      []string
	ExcludedTools       []string
	Provider            *ProviderConfig
	OnPermissionRequest PermissionHandler
	OnUserInputRequest  UserInputHandler
	Hooks               *SessionHooks
	Streaming           bool
	McpServers          map[string]json.RawMessage
	CustomAgents        []CustomAgentConfig
	SkillDirectories    []string
	DisabledSkills      []string
	InfiniteSessions    *InfiniteSessionConfig
	ConfigDir           string
	AutoBYOKFromEnv     bool
}

// MessageOptions is the content of one outgoing user message.
type MessageOptions struct {
	Prompt      string
	Attachments []UserMessageAttachment
	Mode        string
}

// SessionMetadata summarizes a persisted session.
type SessionMetadata struct {
	SessionID    string
	StartTime    time.Time
	ModifiedTime time.Time
	Summary      string
	IsRemote     bool
}

// sessionMetadataWire is the wire form of SessionMetadata; timestamps arrive
// as ISO 8601 strings.
type sessionMetadataWire struct {
	SessionID    string `json:"sessionId"`
	StartTime    string `json:"startTime"`
	ModifiedTime string `json:"modifiedTime"`
	Summary      string `json:"summary,omitempty"`
	IsRemote     bool   `json:"isRemote,omitempty"`
}

func (w sessionMetadataWire) toMetadata() SessionMetadata {
	m := SessionMetadata{
		SessionID: w.SessionID,
		Summary:   w.Summary,
		IsRemote:  w.IsRemote,
	}
	// Timestamps are best-effort; a malformed value leaves the zero time.
	if t, err := time.Parse(time.RFC3339Nano, w.StartTime); err == nil {
		m.StartTime = t
	}
	if t, err := time.Parse(time.RFC3339Nano, w.ModifiedTime); err == nil {
		m.ModifiedTime = t
	}
	return m
}

// PingResponse is the agent's answer to a ping.
type PingResponse struct {
	Message         string `json:"message"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
}

// StatusResponse reports the agent's version and protocol level.
type StatusResponse struct {
	Version         string `json:"version"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// AuthStatusResponse reports the agent's authentication state.
type AuthStatusResponse struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	AuthType        string `json:"authType,omitempty"`
	Host            string `json:"host,omitempty"`
	Login           string `json:"login,omitempty"`
	StatusMessage   string `json:"statusMessage,omitempty"`
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	Supports struct {
		Vision bool `json:"vision"`
	} `json:"supports"`
	Limits struct {
		MaxPromptTokens        int `json:"max_prompt_tokens,omitempty"`
		MaxContextWindowTokens int `json:"max_context_window_tokens"`
	} `json:"limits"`
}

// ModelPolicy is the acceptance state of a model's usage terms.
type ModelPolicy struct {
	State string `json:"state"`
	Terms string `json:"terms,omitempty"`
}

// ModelBilling is the billing multiplier for a model.
type ModelBilling struct {
	Multiplier float64 `json:"multiplier"`
}

// ModelInfo describes one model available to sessions.
type ModelInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capabilities ModelCapabilities `json:"capabilities"`
	Policy       *ModelPolicy      `json:"policy,omitempty"`
	Billing      *ModelBilling     `json:"billing,omitempty"`
}
