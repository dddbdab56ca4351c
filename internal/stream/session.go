package stream

import "time"

// Session is the ephemeral state of one in-flight generation. It exists
// from the moment a user or retry sends a message until the response is
// finalized, errored, stopped, or superseded by a newer session. It is
// never persisted.
type Session struct {
	ConversationID string
	MessageID      string

	// StatusVerb is the cosmetic progress label shown while the model has
	// produced no content yet. It lives on the session, not in package
	// state, so two sessions can never share it.
	StatusVerb string

	agg       *Aggregator
	createdAt time.Time
}

func newSession(conversationID, messageID string, agg *Aggregator) *Session {
	return &Session{
		ConversationID: conversationID,
		MessageID:      messageID,
		agg:            agg,
		createdAt:      time.Now(),
	}
}
