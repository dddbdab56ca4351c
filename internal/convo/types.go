// Package convo holds the in-memory conversation table and its mutation
// operations.
//
// The Store is the single shared mutable resource of the client. Every
// mutation is one complete unit executed under the store lock; readers
// always receive snapshot copies so no caller can observe or produce a
// torn state across asynchronous event handling.
package convo

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool call statuses.
const (
	ToolExecuting = "executing"
	ToolCompleted = "completed"
	ToolFailed    = "failed"
)

// Artifact kinds.
const (
	ArtifactImage   = "image"
	ArtifactMermaid = "mermaid"
	ArtifactSVG     = "svg"
	ArtifactHTML    = "html"
)

// Retry types. Each injects a hidden instruction prefix into the outbound
// text without altering the stored user message.
const (
	RetryMoreDetail  = "more_detail"
	RetryMoreConcise = "more_concise"
	RetryNoTools     = "no_tools"
	RetryThinkLonger = "think_longer"
)

// ToolCall is one tool invocation attached to an assistant message.
type ToolCall struct {
	ID          string
	Name        string
	DisplayName string
	Icon        string
	Status      string // executing | completed | failed
	Query       string // human-readable query extracted from arguments
	Result      string
	Plots       []Plot
	CreatedAt   time.Time
}

// Plot is a rendered visualization payload carried by a tool result.
type Plot struct {
	Format string
	Data   string // base64
}

// Artifact is a renderable fragment extracted from message content or
// produced by a tool. Artifacts are deduplicated by ID for the lifetime
// of the message.
type Artifact struct {
	ID       string
	Kind     string // image | mermaid | svg | html
	Title    string
	Content  string
	Images   []Plot
	ToolName string
}

// Message is a single turn in a conversation. Content is mutable while
// IsStreaming is true and immutable after finalize.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time

	IsStreaming bool
	Reasoning   string
	ToolCalls   []ToolCall
	Artifacts   []Artifact

	// StatusLabel is a transient progress label ("thinking", "searching").
	// It is cleared the moment the first content bytes are applied; label
	// and content are never presented together.
	StatusLabel string

	// Version metadata. Messages sharing a VersionGroupID are alternate
	// responses to the same user turn; exactly one is visible.
	VersionGroupID string
	VersionNumber  int
	RetryType      string
	IsHidden       bool

	// Warning is a user-visible caveat attached during recovery
	// ("response may be incomplete").
	Warning string
}

// Conversation is an ordered list of messages plus its metadata.
type Conversation struct {
	ID                 string
	Title              string
	Messages           []Message
	SystemInstructions string
	LastActivity       time.Time
	Starred            bool
}

// clone returns a deep copy safe to hand outside the store lock.
func (m Message) clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	if m.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(m.Artifacts))
		copy(out.Artifacts, m.Artifacts)
	}
	return out
}

func (c Conversation) clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i := range c.Messages {
		out.Messages[i] = c.Messages[i].clone()
	}
	return out
}
