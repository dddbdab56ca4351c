package stream

import "errors"

// Sentinel errors for send-side validation. These are rejected before
// anything reaches the transport; the caller keeps the input for
// correction. Check with errors.Is().
var (
	// ErrEmptyMessage indicates a message with no text and no attachments.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoModelSelected indicates neither a platform model nor a custom
	// provider config was supplied.
	ErrNoModelSelected = errors.New("no model selected")

	// ErrMissingCredentials indicates a custom provider config without an
	// API key.
	ErrMissingCredentials = errors.New("custom provider config missing API key")

	// ErrNoUserMessage indicates a retry target with no preceding user
	// message to re-send.
	ErrNoUserMessage = errors.New("no preceding user message")

	// ErrPromptMismatch indicates an answer for a prompt that is not the
	// active one for the conversation.
	ErrPromptMismatch = errors.New("prompt is not active")

	// ErrPromptInvalid indicates prompt answers failed client-side
	// validation.
	ErrPromptInvalid = errors.New("prompt answers failed validation")
)
