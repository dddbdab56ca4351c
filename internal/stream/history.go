package stream

import (
	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/event"
)

// maxHistoryTurns caps outbound history at the most recent user turns.
const maxHistoryTurns = 20

// buildHistory assembles the conversation history sent alongside a chat
// message. It excludes:
//   - the in-flight placeholder (any streaming message),
//   - the just-added user message (sent separately as the prompt),
//   - all hidden version siblings,
//   - messages with no content (status-only placeholders).
//
// The result is capped to the most recent maxHistoryTurns user turns,
// counted from the end.
func buildHistory(conv convo.Conversation, exclude map[string]bool) []event.HistoryEntry {
	// Walk backwards so the turn cap keeps the most recent turns.
	var reversed []event.HistoryEntry
	turns := 0

	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if m.IsStreaming || m.IsHidden || exclude[m.ID] || m.Content == "" {
			continue
		}
		if m.Role == convo.RoleUser {
			turns++
			if turns > maxHistoryTurns {
				break
			}
		}
		reversed = append(reversed, event.HistoryEntry{Role: m.Role, Content: m.Content})
	}

	// When the cap cut mid-conversation, assistant replies collected past
	// the oldest kept user turn belong to a dropped turn.
	if turns > maxHistoryTurns {
		for len(reversed) > 0 && reversed[len(reversed)-1].Role != convo.RoleUser {
			reversed = reversed[:len(reversed)-1]
		}
	}

	// Restore chronological order.
	out := make([]event.HistoryEntry, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		out = append(out, reversed[i])
	}
	return out
}
