// Package stream implements the streaming-session state machine: it
// consumes the ordered event stream for the active conversation and
// reconstructs a coherent assistant message - content, reasoning, tool
// calls, artifacts - in the presence of batching, reconnection, and
// cancellation.
//
// Message lifecycle: a placeholder assistant message is created with
// IsStreaming=true, accumulates content/reasoning/tool/status events, and
// ends in exactly one of three ways: finalized (stream end), finalized
// partial (user stop or missed-stream recovery), or finalized with error
// (server-reported failure). No path leaves a message streaming
// indefinitely.
package stream

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/event"
	"github.com/parleychat/parley/internal/extract"
	"github.com/parleychat/parley/internal/prompt"
)

// Sender delivers outbound commands to the backend. Implemented by the
// transport; faked in tests.
type Sender interface {
	Send(cmd event.Command) error
}

// Hooks carries the controller's user-facing side effects. All fields
// are optional; nil hooks are skipped. Hooks may be invoked from timer
// goroutines and must be safe to call concurrently.
type Hooks struct {
	// Changed reports that conversation state changed; observers should
	// re-read the store rather than retain what they saw earlier.
	Changed func(conversationID string)

	// Ready reports that a stream closed and input focus should return
	// to the user.
	Ready func(conversationID string)

	// Warning surfaces a non-fatal, user-visible caveat.
	Warning func(conversationID, message string)

	// Error surfaces a server-reported or transport failure.
	Error func(conversationID, message string)

	// Prompt presents an interactive prompt to the user.
	Prompt func(conversationID string, p event.InteractivePrompt)

	// PromptError reports server-side validation errors for an answered
	// prompt that is still awaiting a correct response.
	PromptError func(conversationID, promptID string, errs map[string]string)
}

// retryPrefixes inject a hidden instruction ahead of the outbound text on
// retry. The stored user message is never altered; the transformation is
// protocol-level only.
var retryPrefixes = map[string]string{
	convo.RetryMoreDetail:  "Please provide a more detailed and thorough response. ",
	convo.RetryMoreConcise: "Please be more concise in your response. ",
	convo.RetryNoTools:     "Answer directly without using any tools. ",
	convo.RetryThinkLonger: "Take your time and reason through this step by step before answering. ",
}

// Controller owns the mapping from wire events to store mutations. It
// tracks which message is the active stream for each conversation and
// drives the message lifecycle.
//
// Contract: given one event, apply exactly one class of mutation and
// return; never block, never panic across an event boundary. A mutation
// against a missing conversation or message is logged and swallowed so
// later events keep flowing.
type Controller struct {
	store  *convo.Store
	sender Sender
	logger *slog.Logger
	hooks  Hooks

	flushInterval time.Duration

	mu       sync.Mutex
	activeID string                             // conversation bound to the connection
	sessions map[string]*Session                // conversation ID -> in-flight stream
	prompts  map[string]event.InteractivePrompt // conversation ID -> active prompt
}

// Option configures a Controller.
type Option func(*Controller)

// WithFlushInterval overrides the aggregator debounce window.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Controller) { c.flushInterval = d }
}

// WithHooks installs the side-effect callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// NewController creates a Controller.
func NewController(store *convo.Store, sender Sender, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:         store,
		sender:        sender,
		logger:        logger,
		flushInterval: DefaultFlushInterval,
		sessions:      make(map[string]*Session),
		prompts:       make(map[string]event.InteractivePrompt),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetActiveConversation binds the connection's implicit conversation:
// events that carry no conversation ID apply to it.
func (c *Controller) SetActiveConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeID = id
}

// ActiveConversation returns the bound conversation ID.
func (c *Controller) ActiveConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// SendParams describes one outbound user (or retry) message.
type SendParams struct {
	ConversationID     string // empty: create a new conversation
	Text               string
	ModelID            string
	SystemInstructions string
	Attachments        []event.Attachment
	CustomConfig       *event.CustomConfig
	DisableTools       bool

	// Retry plumbing. SkipUserMessage re-sends an existing user turn
	// without duplicating it; ResendMessageID identifies that turn so it
	// is excluded from history, and the version fields land on the
	// placeholder.
	SkipUserMessage bool
	ResendMessageID string
	RetryType       string
	VersionGroupID  string
	VersionNumber   int
}

// Send validates params, records the user turn, inserts the streaming
// placeholder, opens a session, and dispatches the chat message.
//
// Validation failures are returned before anything reaches the transport;
// the caller's input is preserved for correction.
func (c *Controller) Send(p SendParams) (string, error) {
	if p.Text == "" && len(p.Attachments) == 0 {
		return "", ErrEmptyMessage
	}
	if p.ModelID == "" && p.CustomConfig == nil {
		return "", ErrNoModelSelected
	}
	if p.CustomConfig != nil && p.CustomConfig.APIKey == "" {
		return "", ErrMissingCredentials
	}

	convID := p.ConversationID
	if convID == "" {
		conv := c.store.Create(p.SystemInstructions)
		convID = conv.ID
		if err := c.sender.Send(event.NewConversation{
			ConversationID:     convID,
			ModelID:            p.ModelID,
			SystemInstructions: p.SystemInstructions,
		}); err != nil {
			return "", fmt.Errorf("start conversation: %w", err)
		}
	}
	c.SetActiveConversation(convID)

	exclude := make(map[string]bool)
	if !p.SkipUserMessage {
		userMsg := convo.Message{
			ID:        uuid.NewString(),
			Role:      convo.RoleUser,
			Content:   p.Text,
			Timestamp: time.Now(),
		}
		if err := c.store.AppendMessage(convID, userMsg); err != nil {
			return "", fmt.Errorf("append user message: %w", err)
		}
		// The just-added user message is sent separately as the prompt,
		// never duplicated into history.
		exclude[userMsg.ID] = true
	}
	if p.ResendMessageID != "" {
		exclude[p.ResendMessageID] = true
	}

	// Re-read current state: the store may have changed since the caller
	// captured its snapshot.
	conv, err := c.store.Get(convID)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	history := buildHistory(conv, exclude)

	placeholder := convo.Message{
		ID:             uuid.NewString(),
		Role:           convo.RoleAssistant,
		Timestamp:      time.Now(),
		IsStreaming:    true,
		VersionGroupID: p.VersionGroupID,
		VersionNumber:  p.VersionNumber,
		RetryType:      p.RetryType,
	}
	if err := c.store.AppendMessage(convID, placeholder); err != nil {
		return "", fmt.Errorf("append placeholder: %w", err)
	}

	c.openSession(convID, placeholder.ID)

	outbound := p.Text
	disableTools := p.DisableTools
	if prefix, ok := retryPrefixes[p.RetryType]; ok {
		outbound = prefix + outbound
		if p.RetryType == convo.RetryNoTools {
			disableTools = true
		}
	}

	cmd := event.ChatMessage{
		ConversationID:     convID,
		Content:            outbound,
		History:            history,
		ModelID:            p.ModelID,
		CustomConfig:       p.CustomConfig,
		SystemInstructions: p.SystemInstructions,
		Attachments:        p.Attachments,
		DisableTools:       disableTools,
	}
	if err := c.sender.Send(cmd); err != nil {
		// The placeholder must not be left streaming forever on a send
		// failure.
		c.finalizeMessage(convID, placeholder.ID, "", "send failed")
		c.closeSession(convID)
		return "", fmt.Errorf("send message: %w", err)
	}

	c.notifyChanged(convID)
	return convID, nil
}

// Handle applies one inbound event. It never blocks and never returns an
// error: failures inside a handler are logged and swallowed so events
// for this and other conversations keep flowing.
func (c *Controller) Handle(ev event.ServerEvent) {
	convID := c.ActiveConversation()

	switch e := ev.(type) {
	case event.Connected:
		c.logger.Debug("transport connected")

	case event.StatusUpdate:
		c.handleStatus(convID, e)

	case event.StreamChunk:
		c.handleChunk(convID, e)

	case event.ReasoningChunk:
		c.handleReasoning(convID, e)

	case event.ToolCall:
		c.handleToolCall(convID, e)

	case event.StreamEnd:
		c.handleStreamEnd(convID)

	case event.StreamResume:
		c.handleResume(convID, e)

	case event.StreamMissed:
		c.handleMissed(convID, e)

	case event.ConversationTitle:
		id := e.ConversationID
		if id == "" {
			id = convID
		}
		if err := c.store.SetTitle(id, e.Title); err != nil {
			c.logger.Debug("title update dropped", "conversation_id", id, "error", err)
			return
		}
		c.notifyChanged(id)

	case event.InteractivePrompt:
		c.handlePrompt(convID, e)

	case event.PromptTimeout:
		c.clearPrompt(convID, e.PromptID)
		c.notifyWarning(convID, "The question timed out; continuing without an answer.")

	case event.PromptValidationError:
		if c.hooks.PromptError != nil {
			c.hooks.PromptError(convID, e.PromptID, e.Errors)
		}

	case event.LimitExceeded:
		c.handleLimitExceeded(convID, e)

	case event.ServerError:
		c.HandleError(convID, e.Message)

	default:
		// The event union is closed; reaching this arm means a decode
		// bug, not a protocol extension.
		c.logger.Warn("unhandled event", "kind", ev.Kind())
	}
}

// handleStatus replaces the transient status label on the streaming
// message. The label is presentation-exclusive with content and is
// cleared once content starts arriving.
func (c *Controller) handleStatus(convID string, e event.StatusUpdate) {
	sess := c.session(convID)
	if sess == nil {
		return
	}
	sess.StatusVerb = e.Status

	if err := c.store.SetStatusLabel(convID, sess.MessageID, e.Status); err != nil {
		c.logger.Debug("status update dropped", "conversation_id", convID, "error", err)
		return
	}
	c.notifyChanged(convID)
}

// handleChunk routes content to the aggregator; the store is not mutated
// synchronously.
func (c *Controller) handleChunk(convID string, e event.StreamChunk) {
	sess := c.session(convID)
	if sess == nil {
		c.logger.Debug("content chunk without active session", "conversation_id", convID)
		return
	}
	sess.agg.Append(e.Content)
}

// handleReasoning appends reasoning immediately - reasoning is not
// batched.
func (c *Controller) handleReasoning(convID string, e event.ReasoningChunk) {
	sess := c.session(convID)
	if sess == nil {
		return
	}
	if err := c.store.AppendReasoning(convID, sess.MessageID, e.Content); err != nil {
		c.logger.Debug("reasoning chunk dropped", "conversation_id", convID, "error", err)
		return
	}
	c.notifyChanged(convID)
}

func (c *Controller) handleToolCall(convID string, e event.ToolCall) {
	sess := c.session(convID)
	if sess == nil {
		return
	}

	tracker := &toolTracker{store: c.store, logger: c.logger}
	artifacts := tracker.Apply(convID, sess.MessageID, e)
	if len(artifacts) > 0 {
		if err := c.store.MergeArtifacts(convID, sess.MessageID, artifacts); err != nil {
			c.logger.Debug("tool artifacts dropped", "conversation_id", convID, "error", err)
		}
	}
	c.notifyChanged(convID)
}

// handleStreamEnd finalizes the streaming message: forced flush first (no
// content byte may be dropped or reordered relative to the end signal),
// then content extraction and artifact merge.
func (c *Controller) handleStreamEnd(convID string) {
	sess := c.takeSession(convID)
	if sess == nil {
		c.logger.Debug("stream end without active session", "conversation_id", convID)
		return
	}
	sess.agg.Flush()
	sess.agg.Stop()

	c.finalizeMessage(convID, sess.MessageID, "", "")
	c.clearPrompt(convID, "")
	c.notifyReady(convID)
}

// Stop cancels the in-flight generation: close the session, finalize the
// message as-is with no content truncation, and tell the backend to stop.
// Idempotent - a duplicate stop after the session is cleared is a no-op.
func (c *Controller) Stop(convID string) {
	if convID == "" {
		convID = c.ActiveConversation()
	}
	sess := c.takeSession(convID)
	if sess == nil {
		return
	}
	sess.agg.Flush()
	sess.agg.Stop()

	c.finalizeMessage(convID, sess.MessageID, "", "")

	if err := c.sender.Send(event.StopGeneration{ConversationID: convID}); err != nil {
		c.logger.Warn("stop command failed", "conversation_id", convID, "error", err)
	}
	c.notifyReady(convID)
}

// HandleError surfaces a server-reported error and finalizes any
// in-flight message with whatever partial content and tool calls it has,
// rather than leaving it stuck mid-stream.
func (c *Controller) HandleError(convID, message string) {
	if sess := c.takeSession(convID); sess != nil {
		sess.agg.Flush()
		sess.agg.Stop()
		c.finalizeMessage(convID, sess.MessageID, "", "")
	}
	if c.hooks.Error != nil {
		c.hooks.Error(convID, message)
	}
	c.notifyReady(convID)
}

func (c *Controller) handleLimitExceeded(convID string, e event.LimitExceeded) {
	if sess := c.takeSession(convID); sess != nil {
		sess.agg.Flush()
		sess.agg.Stop()
		c.finalizeMessage(convID, sess.MessageID, "", "")
	}
	msg := e.Message
	if msg == "" {
		msg = "Usage limit reached. Try again later."
	}
	c.notifyWarning(convID, msg)
	c.notifyReady(convID)
}

func (c *Controller) handlePrompt(convID string, e event.InteractivePrompt) {
	c.mu.Lock()
	c.prompts[convID] = e
	c.mu.Unlock()

	if c.hooks.Prompt != nil {
		c.hooks.Prompt(convID, e)
	}
}

// AnswerPrompt validates answers client-side and sends the response.
// Skipping bypasses validation.
func (c *Controller) AnswerPrompt(convID, promptID string, answers map[string]prompt.Answer, skipped bool) error {
	if convID == "" {
		convID = c.ActiveConversation()
	}

	c.mu.Lock()
	active, ok := c.prompts[convID]
	c.mu.Unlock()
	if !ok || active.PromptID != promptID {
		return fmt.Errorf("answer prompt %s: %w", promptID, ErrPromptMismatch)
	}

	if !skipped {
		if errs := prompt.Validate(active.Questions, answers); len(errs) > 0 {
			if c.hooks.PromptError != nil {
				c.hooks.PromptError(convID, promptID, errs)
			}
			return fmt.Errorf("answer prompt %s: %w", promptID, ErrPromptInvalid)
		}
	}

	if err := c.sender.Send(event.PromptResponse{
		ConversationID: convID,
		PromptID:       promptID,
		Answers:        answers,
		Skipped:        skipped,
	}); err != nil {
		return fmt.Errorf("answer prompt %s: %w", promptID, err)
	}

	c.clearPrompt(convID, promptID)
	return nil
}

// finalizeMessage marks a message finalized. Content is rewritten only
// when extraction changed it; otherwise finalize is a no-op on content to
// avoid spurious writes. warning, when non-empty, is attached for
// display.
func (c *Controller) finalizeMessage(convID, msgID, content, warning string) {
	msg, err := c.store.Message(convID, msgID)
	if err != nil {
		c.logger.Debug("finalize dropped", "conversation_id", convID, "message_id", msgID, "error", err)
		return
	}

	text := msg.Content
	if content != "" {
		text = content
	}
	cleaned, artifacts := extract.Extract(text)

	uerr := c.store.UpdateMessage(convID, msgID, func(m *convo.Message) {
		m.IsStreaming = false
		m.StatusLabel = ""
		if cleaned != m.Content {
			m.Content = cleaned
		}
		if warning != "" {
			m.Warning = warning
		}
	})
	if uerr != nil {
		c.logger.Debug("finalize dropped", "conversation_id", convID, "message_id", msgID, "error", uerr)
		return
	}

	if len(artifacts) > 0 {
		if err := c.store.MergeArtifacts(convID, msgID, artifacts); err != nil {
			c.logger.Debug("finalize artifacts dropped", "conversation_id", convID, "error", err)
		}
	}
	c.notifyChanged(convID)
}

// openSession installs the stream session for a conversation, superseding
// any previous one. The superseded session's buffer is flushed so no
// already-received content is lost.
func (c *Controller) openSession(convID, messageID string) {
	agg := NewAggregator(c.flushInterval, func(text string) {
		if err := c.store.AppendContent(convID, messageID, text); err != nil {
			c.logger.Debug("content flush dropped", "conversation_id", convID, "error", err)
			return
		}
		c.notifyChanged(convID)
	})

	c.mu.Lock()
	prev := c.sessions[convID]
	c.sessions[convID] = newSession(convID, messageID, agg)
	c.mu.Unlock()

	if prev != nil {
		prev.agg.Flush()
		prev.agg.Stop()
	}
}

// session returns the active session for a conversation, or nil.
func (c *Controller) session(convID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[convID]
}

// takeSession removes and returns the active session, or nil. Removal
// and lookup are one atomic step so concurrent finalization paths (stop,
// error, stream end) close the session exactly once.
func (c *Controller) takeSession(convID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessions[convID]
	delete(c.sessions, convID)
	return sess
}

func (c *Controller) closeSession(convID string) {
	if sess := c.takeSession(convID); sess != nil {
		sess.agg.Stop()
	}
}

// clearPrompt removes the active prompt. An empty promptID clears
// whatever prompt is active.
func (c *Controller) clearPrompt(convID, promptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if promptID == "" {
		delete(c.prompts, convID)
		return
	}
	if active, ok := c.prompts[convID]; ok && active.PromptID == promptID {
		delete(c.prompts, convID)
	}
}

func (c *Controller) notifyChanged(convID string) {
	if c.hooks.Changed != nil {
		c.hooks.Changed(convID)
	}
}

func (c *Controller) notifyReady(convID string) {
	if c.hooks.Ready != nil {
		c.hooks.Ready(convID)
	}
}

func (c *Controller) notifyWarning(convID, message string) {
	if c.hooks.Warning != nil {
		c.hooks.Warning(convID, message)
	}
}
