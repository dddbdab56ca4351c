package convo

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory conversation table.
//
// All mutations run under one lock and are complete, independent units;
// no multi-step transaction spans a lock release. Readers get deep
// copies, never live references — handlers re-read current state instead
// of closing over it.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	logger        *slog.Logger
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversations: make(map[string]*Conversation),
		logger:        logger,
	}
}

// Create inserts a new conversation and returns its snapshot.
func (s *Store) Create(systemInstructions string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &Conversation{
		ID:                 uuid.NewString(),
		SystemInstructions: systemInstructions,
		LastActivity:       time.Now(),
	}
	s.conversations[conv.ID] = conv

	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return conv.clone()
}

// Restore registers an empty conversation shell under a known ID, used
// when reopening the previous session. The backend holds the actual
// history; locally the transcript starts fresh. No-op when the ID is
// already present.
func (s *Store) Restore(id string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[id]; ok {
		return conv.clone()
	}
	conv := &Conversation{ID: id, LastActivity: time.Now()}
	s.conversations[id] = conv

	s.logger.Debug("conversation restored", "conversation_id", id)
	return conv.clone()
}

// Get returns a snapshot of the conversation.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, fmt.Errorf("get conversation %s: %w", id, ErrConversationNotFound)
	}
	return conv.clone(), nil
}

// List returns snapshots of all conversations, most recently active first.
func (s *Store) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Delete removes a conversation.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("delete conversation %s: %w", id, ErrConversationNotFound)
	}
	delete(s.conversations, id)
	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// SetTitle updates the conversation title.
func (s *Store) SetTitle(id, title string) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Title = title
	})
}

// SetStarred marks or unmarks a conversation as starred.
func (s *Store) SetStarred(id string, starred bool) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.Starred = starred
	})
}

// Touch bumps the conversation's last-activity timestamp.
func (s *Store) Touch(id string) error {
	return s.mutate(id, func(conv *Conversation) {
		conv.LastActivity = time.Now()
	})
}

// AppendMessage appends a message to a conversation.
//
// If the new message is streaming, any other streaming message in the
// conversation is finalized first: at most one message per conversation
// streams at any time, under every interleaving of events.
func (s *Store) AppendMessage(convID string, msg Message) error {
	return s.mutate(convID, func(conv *Conversation) {
		if msg.IsStreaming {
			for i := range conv.Messages {
				if conv.Messages[i].IsStreaming {
					conv.Messages[i].IsStreaming = false
					s.logger.Debug("finalized superseded streaming message",
						"conversation_id", convID,
						"message_id", conv.Messages[i].ID)
				}
			}
		}
		conv.Messages = append(conv.Messages, msg.clone())
		conv.LastActivity = time.Now()
	})
}

// UpdateMessage applies fn to the message in place.
// Returns ErrMessageNotFound if the message is missing; fn runs under the
// store lock and must not call back into the Store.
func (s *Store) UpdateMessage(convID, msgID string, fn func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", convID, ErrConversationNotFound)
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			fn(&conv.Messages[i])
			return nil
		}
	}
	return fmt.Errorf("update message %s: %w", msgID, ErrMessageNotFound)
}

// Message returns a snapshot of one message.
func (s *Store) Message(convID, msgID string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return Message{}, fmt.Errorf("message %s: %w", msgID, ErrConversationNotFound)
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			return conv.Messages[i].clone(), nil
		}
	}
	return Message{}, fmt.Errorf("message %s: %w", msgID, ErrMessageNotFound)
}

// StreamingMessage returns the streaming assistant message of a
// conversation, if any.
func (s *Store) StreamingMessage(convID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return Message{}, false
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsStreaming {
			return conv.Messages[i].clone(), true
		}
	}
	return Message{}, false
}

// AppendContent appends text to a message's content and clears any
// transient status label: content and label are mutually exclusive.
func (s *Store) AppendContent(convID, msgID, text string) error {
	if text == "" {
		return nil
	}
	return s.UpdateMessage(convID, msgID, func(m *Message) {
		m.Content += text
		m.StatusLabel = ""
	})
}

// AppendReasoning appends text to a message's reasoning trace.
func (s *Store) AppendReasoning(convID, msgID, text string) error {
	if text == "" {
		return nil
	}
	return s.UpdateMessage(convID, msgID, func(m *Message) {
		m.Reasoning += text
	})
}

// SetStatusLabel replaces the transient status label on a message.
func (s *Store) SetStatusLabel(convID, msgID, label string) error {
	return s.UpdateMessage(convID, msgID, func(m *Message) {
		m.StatusLabel = label
	})
}

// MergeArtifacts attaches artifacts to a message, skipping IDs already
// present. An artifact attached from a tool result is not re-added when
// the same artifact is later derived from finalized content.
func (s *Store) MergeArtifacts(convID, msgID string, artifacts []Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	return s.UpdateMessage(convID, msgID, func(m *Message) {
		seen := make(map[string]bool, len(m.Artifacts))
		for _, a := range m.Artifacts {
			seen[a.ID] = true
		}
		for _, a := range artifacts {
			if seen[a.ID] {
				continue
			}
			m.Artifacts = append(m.Artifacts, a)
			seen[a.ID] = true
		}
	})
}

// mutate runs fn on a conversation under the write lock.
func (s *Store) mutate(id string, fn func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, ErrConversationNotFound)
	}
	fn(conv)
	return nil
}
