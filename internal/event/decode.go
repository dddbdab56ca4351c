package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parleychat/parley/internal/prompt"
)

// ErrUnknownEventType indicates a frame whose type discriminant is not in
// the closed kind set. Callers should log and skip the frame; a newer
// backend may emit kinds this client predates.
var ErrUnknownEventType = errors.New("unknown event type")

// frame is the superset envelope the backend serializes every event into.
// Decode narrows it to exactly one ServerEvent.
type frame struct {
	Type            string            `json:"type"`
	Content         string            `json:"content,omitempty"`
	Title           string            `json:"title,omitempty"`
	Status          string            `json:"status,omitempty"`
	Args            map[string]any    `json:"args,omitempty"`
	ToolID          string            `json:"tool_id,omitempty"`
	ToolName        string            `json:"tool_name,omitempty"`
	ToolDisplayName string            `json:"tool_display_name,omitempty"`
	ToolIcon        string            `json:"tool_icon,omitempty"`
	Arguments       json.RawMessage   `json:"arguments,omitempty"`
	Result          string            `json:"result,omitempty"`
	Plots           []Plot            `json:"plots,omitempty"`
	ConversationID  string            `json:"conversation_id,omitempty"`
	Tokens          *TokenUsage       `json:"tokens,omitempty"`
	IsComplete      bool              `json:"is_complete,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	ErrorCode       string            `json:"code,omitempty"`
	ErrorMessage    string            `json:"message,omitempty"`
	PromptID        string            `json:"prompt_id,omitempty"`
	Description     string            `json:"description,omitempty"`
	Questions       []prompt.Question `json:"questions,omitempty"`
	AllowSkip       *bool             `json:"allow_skip,omitempty"`
	Errors          map[string]string `json:"errors,omitempty"`
	Pending         []frame           `json:"pending,omitempty"`
}

// Decode parses one wire frame into its typed event.
// Returns ErrUnknownEventType (wrapped with the offending type) for kinds
// outside the closed set.
func Decode(data []byte) (ServerEvent, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}
	return f.toEvent()
}

func (f *frame) toEvent() (ServerEvent, error) {
	switch Kind(f.Type) {
	case KindConnected:
		return Connected{}, nil

	case KindStatusUpdate:
		return StatusUpdate{Status: f.Status, Args: f.Args}, nil

	case KindStreamChunk:
		return StreamChunk{Content: f.Content}, nil

	case KindReasoningChunk:
		return ReasoningChunk{Content: f.Content}, nil

	case KindToolCall:
		return f.toToolCall(), nil

	case KindToolResult:
		// Legacy backends emit tool_result as a distinct kind; it carries
		// the same payload as a completed/failed tool_call.
		tc := f.toToolCall()
		if tc.Status == "" || tc.Status == "executing" {
			tc.Status = "completed"
		}
		return tc, nil

	case KindStreamEnd:
		return StreamEnd{Tokens: f.Tokens}, nil

	case KindStreamResume:
		pending := make([]ToolCall, 0, len(f.Pending))
		for i := range f.Pending {
			pending = append(pending, f.Pending[i].toToolCall())
		}
		return StreamResume{Content: f.Content, IsComplete: f.IsComplete, Pending: pending}, nil

	case KindStreamMissed:
		return StreamMissed{Reason: f.Reason}, nil

	case KindConversationTitle:
		return ConversationTitle{ConversationID: f.ConversationID, Title: f.Title}, nil

	case KindInteractivePrompt:
		allowSkip := true
		if f.AllowSkip != nil {
			allowSkip = *f.AllowSkip
		}
		return InteractivePrompt{
			PromptID:    f.PromptID,
			Title:       f.Title,
			Description: f.Description,
			Questions:   f.Questions,
			AllowSkip:   allowSkip,
		}, nil

	case KindPromptTimeout:
		return PromptTimeout{PromptID: f.PromptID}, nil

	case KindPromptValidationError:
		return PromptValidationError{PromptID: f.PromptID, Errors: f.Errors}, nil

	case KindLimitExceeded:
		return LimitExceeded{Message: f.ErrorMessage}, nil

	case KindError:
		return ServerError{Code: f.ErrorCode, Message: f.ErrorMessage}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, f.Type)
	}
}

func (f *frame) toToolCall() ToolCall {
	tc := ToolCall{
		ID:          f.ToolID,
		Name:        f.ToolName,
		DisplayName: f.ToolDisplayName,
		Icon:        f.ToolIcon,
		Status:      f.Status,
		Result:      f.Result,
		Plots:       f.Plots,
	}
	if len(f.Arguments) > 0 {
		// Arguments arrive either as a JSON object or as a string of
		// encoded JSON. Keep whichever shape we got; the tool tracker
		// extracts the query tolerantly.
		var obj map[string]any
		if err := json.Unmarshal(f.Arguments, &obj); err == nil {
			tc.Arguments = obj
		} else {
			var s string
			if err := json.Unmarshal(f.Arguments, &s); err == nil {
				tc.Arguments = s
			}
		}
	}
	return tc
}
