package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/event"
)

// finishStream drives the active stream to completion with the given
// content.
func finishStream(t *testing.T, c *Controller, content string) {
	t.Helper()
	if content != "" {
		c.Handle(event.StreamChunk{Content: content})
	}
	c.Handle(event.StreamEnd{})
}

func visibleAssistants(t *testing.T, store *convo.Store, convID string) []convo.Message {
	t.Helper()
	conv, err := store.Get(convID)
	require.NoError(t, err)
	var out []convo.Message
	for _, m := range conv.Messages {
		if m.Role == convo.RoleAssistant && !m.IsHidden {
			out = append(out, m)
		}
	}
	return out
}

func TestRetryCreatesVersionGroup(t *testing.T) {
	c, store, sender := newTestController(t)
	convID, firstID := startStream(t, c, store, "explain goroutines")
	finishStream(t, c, "short answer")

	err := c.Retry(RetryParams{
		ConversationID: convID,
		MessageID:      firstID,
		RetryType:      convo.RetryMoreDetail,
		ModelID:        "model-a",
	})
	require.NoError(t, err)

	original, err := store.Message(convID, firstID)
	require.NoError(t, err)
	require.True(t, original.IsHidden)
	require.Equal(t, 1, original.VersionNumber)
	require.NotEmpty(t, original.VersionGroupID)
	require.Equal(t, "short answer", original.Content, "retry never alters the original response")

	retry, ok := store.StreamingMessage(convID)
	require.True(t, ok)
	require.Equal(t, original.VersionGroupID, retry.VersionGroupID)
	require.Equal(t, 2, retry.VersionNumber)
	require.Equal(t, convo.RetryMoreDetail, retry.RetryType)
	require.False(t, retry.IsHidden)

	// The hidden instruction lands on the wire, not in the store.
	chat := sender.lastChat(t)
	require.Contains(t, chat.Content, "explain goroutines")
	require.Greater(t, len(chat.Content), len("explain goroutines"))
	conv, err := store.Get(convID)
	require.NoError(t, err)
	users := 0
	for _, m := range conv.Messages {
		if m.Role == convo.RoleUser {
			users++
			require.Equal(t, "explain goroutines", m.Content)
		}
	}
	require.Equal(t, 1, users, "retry must not duplicate the user turn")

	finishStream(t, c, "a much longer answer")
	require.Len(t, visibleAssistants(t, store, convID), 1)
}

func TestRetryNumbersDensely(t *testing.T) {
	c, store, _ := newTestController(t)
	convID, firstID := startStream(t, c, store, "question")
	finishStream(t, c, "v1")

	require.NoError(t, c.Retry(RetryParams{ConversationID: convID, MessageID: firstID, ModelID: "model-a"}))
	second, ok := store.StreamingMessage(convID)
	require.True(t, ok)
	finishStream(t, c, "v2")

	require.NoError(t, c.Retry(RetryParams{ConversationID: convID, MessageID: second.ID, ModelID: "model-a"}))
	third, ok := store.StreamingMessage(convID)
	require.True(t, ok)
	require.Equal(t, 3, third.VersionNumber)
	finishStream(t, c, "v3")

	require.Len(t, visibleAssistants(t, store, convID), 1)
}

func TestRetryWithoutUserMessage(t *testing.T) {
	c, store, _ := newTestController(t)
	conv := store.Create("")
	msg := convo.Message{ID: "a1", Role: convo.RoleAssistant, Content: "unprompted"}
	require.NoError(t, store.AppendMessage(conv.ID, msg))

	err := c.Retry(RetryParams{ConversationID: conv.ID, MessageID: "a1", ModelID: "model-a"})
	require.ErrorIs(t, err, ErrNoUserMessage)
}

func TestRetryUnknownMessage(t *testing.T) {
	c, store, _ := newTestController(t)
	conv := store.Create("")

	err := c.Retry(RetryParams{ConversationID: conv.ID, MessageID: "nope", ModelID: "model-a"})
	require.ErrorIs(t, err, convo.ErrMessageNotFound)
}

func TestRetryExcludesHiddenSiblingsFromHistory(t *testing.T) {
	c, store, sender := newTestController(t)
	convID, firstID := startStream(t, c, store, "question")
	finishStream(t, c, "first version")

	require.NoError(t, c.Retry(RetryParams{ConversationID: convID, MessageID: firstID, ModelID: "model-a"}))

	chat := sender.lastChat(t)
	for _, h := range chat.History {
		require.NotEqual(t, "first version", h.Content, "hidden siblings must not leak into history")
	}
}

func TestNavigateVersion(t *testing.T) {
	c, store, _ := newTestController(t)
	convID, firstID := startStream(t, c, store, "question")
	finishStream(t, c, "v1")

	require.NoError(t, c.Retry(RetryParams{ConversationID: convID, MessageID: firstID, ModelID: "model-a"}))
	retry, ok := store.StreamingMessage(convID)
	require.True(t, ok)
	finishStream(t, c, "v2")

	back, err := c.NavigateVersion(convID, retry.ID, -1)
	require.NoError(t, err)
	require.Equal(t, 1, back.VersionNumber)
	require.Equal(t, "v1", back.Content)
	require.Len(t, visibleAssistants(t, store, convID), 1)

	// Clamped at the older end.
	still, err := c.NavigateVersion(convID, back.ID, -1)
	require.NoError(t, err)
	require.Equal(t, 1, still.VersionNumber)

	fwd, err := c.NavigateVersion(convID, back.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 2, fwd.VersionNumber)

	// Clamped at the newer end.
	top, err := c.NavigateVersion(convID, fwd.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 2, top.VersionNumber)
	require.Len(t, visibleAssistants(t, store, convID), 1)
}

func TestNavigateVersionOutsideGroup(t *testing.T) {
	c, store, _ := newTestController(t)
	convID, msgID := startStream(t, c, store, "question")
	finishStream(t, c, "only version")

	_, err := c.NavigateVersion(convID, msgID, 1)
	require.ErrorIs(t, err, convo.ErrMessageNotFound)
}
