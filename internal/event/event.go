// Package event defines the typed wire protocol between parley and the
// assistant backend.
//
// Inbound frames decode into exactly one ServerEvent implementation; the
// set of kinds is closed so the stream controller can switch over it
// exhaustively instead of dispatching on raw strings. Outbound commands
// encode to the JSON envelope the backend expects.
package event

import "github.com/parleychat/parley/internal/prompt"

// Kind identifies a server event type on the wire.
type Kind string

// All server event kinds. A frame whose type is not in this set is
// rejected by Decode with ErrUnknownEventType.
const (
	KindConnected             Kind = "connected"
	KindStatusUpdate          Kind = "status_update"
	KindStreamChunk           Kind = "stream_chunk"
	KindReasoningChunk        Kind = "reasoning_chunk"
	KindToolCall              Kind = "tool_call"
	KindToolResult            Kind = "tool_result"
	KindStreamEnd             Kind = "stream_end"
	KindStreamResume          Kind = "stream_resume"
	KindStreamMissed          Kind = "stream_missed"
	KindConversationTitle     Kind = "conversation_title"
	KindInteractivePrompt     Kind = "interactive_prompt"
	KindPromptTimeout         Kind = "prompt_timeout"
	KindPromptValidationError Kind = "prompt_validation_error"
	KindLimitExceeded         Kind = "limit_exceeded"
	KindError                 Kind = "error"
)

// ServerEvent is the closed union of events delivered by the backend.
// Each implementation corresponds to one wire kind.
type ServerEvent interface {
	Kind() Kind
}

// Plot is a rendered visualization produced by a tool (base64 image data).
type Plot struct {
	Format string `json:"format"` // "png", "jpg", "svg"
	Data   string `json:"data"`
}

// TokenUsage reports token consumption for a completed generation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Connected signals the transport established (or re-established) a link.
type Connected struct{}

func (Connected) Kind() Kind { return KindConnected }

// StatusUpdate carries a transient progress label ("thinking", "searching")
// shown until the first content chunk arrives.
type StatusUpdate struct {
	Status string
	Args   map[string]any
}

func (StatusUpdate) Kind() Kind { return KindStatusUpdate }

// StreamChunk is a partial-content increment for the streaming message.
type StreamChunk struct {
	Content string
}

func (StreamChunk) Kind() Kind { return KindStreamChunk }

// ReasoningChunk is a partial increment of the model's reasoning trace.
type ReasoningChunk struct {
	Content string
}

func (ReasoningChunk) Kind() Kind { return KindReasoningChunk }

// ToolCall reports a tool invocation starting, completing, or failing.
// ID may be empty on legacy backends; Name is always set.
type ToolCall struct {
	ID          string
	Name        string
	DisplayName string
	Icon        string
	Status      string // "executing", "completed", "failed"
	Arguments   any    // map[string]any or raw JSON string
	Result      string
	Plots       []Plot
}

func (ToolCall) Kind() Kind { return KindToolCall }

// StreamEnd marks normal completion of the streaming message.
type StreamEnd struct {
	Tokens *TokenUsage
}

func (StreamEnd) Kind() Kind { return KindStreamEnd }

// StreamResume replays content buffered server-side while the client was
// disconnected. IsComplete reports whether generation finished during the
// disconnect. Pending carries tool results that were buffered alongside.
type StreamResume struct {
	Content    string
	IsComplete bool
	Pending    []ToolCall
}

func (StreamResume) Kind() Kind { return KindStreamResume }

// StreamMissed signals the server-side buffer expired; the in-flight
// response cannot be recovered beyond what already arrived.
type StreamMissed struct {
	Reason string // "expired" or "not_found"
}

func (StreamMissed) Kind() Kind { return KindStreamMissed }

// ConversationTitle delivers the auto-generated title for a conversation.
type ConversationTitle struct {
	ConversationID string
	Title          string
}

func (ConversationTitle) Kind() Kind { return KindConversationTitle }

// InteractivePrompt asks the user a set of questions mid-generation.
type InteractivePrompt struct {
	PromptID    string
	Title       string
	Description string
	Questions   []prompt.Question
	AllowSkip   bool
}

func (InteractivePrompt) Kind() Kind { return KindInteractivePrompt }

// PromptTimeout reports the user did not answer an interactive prompt
// before the server-side deadline.
type PromptTimeout struct {
	PromptID string
}

func (PromptTimeout) Kind() Kind { return KindPromptTimeout }

// PromptValidationError reports server-side rejection of prompt answers.
type PromptValidationError struct {
	PromptID string
	Errors   map[string]string // question ID -> message
}

func (PromptValidationError) Kind() Kind { return KindPromptValidationError }

// LimitExceeded reports the user hit a usage limit; generation will not
// proceed until the limit resets.
type LimitExceeded struct {
	Message string
}

func (LimitExceeded) Kind() Kind { return KindLimitExceeded }

// ServerError is an error reported by the backend for the active stream.
type ServerError struct {
	Code    string
	Message string
}

func (ServerError) Kind() Kind { return KindError }
