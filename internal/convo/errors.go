package convo

import "errors"

// Sentinel errors for store operations. Check with errors.Is().
var (
	// ErrConversationNotFound indicates the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates the target message does not exist in
	// the conversation.
	ErrMessageNotFound = errors.New("message not found")
)
