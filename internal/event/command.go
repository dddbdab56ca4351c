package event

import (
	"encoding/json"
	"fmt"

	"github.com/parleychat/parley/internal/prompt"
)

// Attachment is an opaque reference to an uploaded file, produced by the
// attachment resolver before a message is sent.
type Attachment struct {
	Type     string `json:"type"` // "image", "document", "audio"
	FileID   string `json:"file_id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
}

// CustomConfig lets the user bring their own provider endpoint and key
// instead of selecting a platform model.
type CustomConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
}

// HistoryEntry is one prior turn sent alongside a chat message. Hidden
// version siblings and in-flight placeholders are never included.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Command is the closed union of outbound client commands.
type Command interface {
	commandType() string
}

// NewConversation starts a fresh conversation on the backend.
type NewConversation struct {
	ConversationID     string `json:"conversation_id"`
	ModelID            string `json:"model_id,omitempty"`
	SystemInstructions string `json:"system_instructions,omitempty"`
}

func (NewConversation) commandType() string { return "new_conversation" }

// ChatMessage sends a user turn with its trimmed history.
type ChatMessage struct {
	ConversationID     string         `json:"conversation_id"`
	Content            string         `json:"content"`
	History            []HistoryEntry `json:"history,omitempty"`
	ModelID            string         `json:"model_id,omitempty"`
	CustomConfig       *CustomConfig  `json:"custom_config,omitempty"`
	SystemInstructions string         `json:"system_instructions,omitempty"`
	Attachments        []Attachment   `json:"attachments,omitempty"`
	DisableTools       bool           `json:"disable_tools,omitempty"`
}

func (ChatMessage) commandType() string { return "chat_message" }

// PromptResponse answers (or skips) an interactive prompt.
type PromptResponse struct {
	ConversationID string                   `json:"conversation_id"`
	PromptID       string                   `json:"prompt_id"`
	Answers        map[string]prompt.Answer `json:"answers,omitempty"`
	Skipped        bool                     `json:"skipped,omitempty"`
}

func (PromptResponse) commandType() string { return "interactive_prompt_response" }

// StopGeneration cancels the in-flight generation for a conversation.
type StopGeneration struct {
	ConversationID string `json:"conversation_id"`
}

func (StopGeneration) commandType() string { return "stop_generation" }

// ResumeStream asks the backend to replay any content buffered while the
// client was disconnected.
type ResumeStream struct {
	ConversationID string `json:"conversation_id"`
}

func (ResumeStream) commandType() string { return "resume_stream" }

// EncodeCommand serializes a command into the JSON envelope the backend
// expects: the command's own fields plus a "type" discriminant.
func EncodeCommand(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.commandType(), err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.commandType(), err)
	}
	envelope["type"] = cmd.commandType()

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.commandType(), err)
	}
	return data, nil
}
