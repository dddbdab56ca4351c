package stream

import "github.com/parleychat/parley/internal/event"

// RequestResume asks the backend to replay content buffered during a
// disconnect. Called after reconnection when the conversation still has a
// streaming message; a conversation with no in-flight message has nothing
// to resume.
func (c *Controller) RequestResume(convID string) error {
	if convID == "" {
		convID = c.ActiveConversation()
	}
	if _, ok := c.store.StreamingMessage(convID); !ok {
		return nil
	}
	return c.sender.Send(event.ResumeStream{ConversationID: convID})
}

// handleResume applies the replayed content that was buffered while the
// client was disconnected. The payload goes through the same aggregator
// path as live chunks so commit ordering is preserved, then flushes
// immediately rather than waiting out the debounce window. If generation
// finished during the disconnect, the message is finalized now.
func (c *Controller) handleResume(convID string, e event.StreamResume) {
	sess := c.session(convID)
	if sess == nil {
		// Re-attach to a streaming message left over from before the
		// disconnect; without one, the replay has no target and is
		// dropped.
		msg, ok := c.store.StreamingMessage(convID)
		if !ok {
			c.logger.Debug("resume without streaming message", "conversation_id", convID)
			return
		}
		c.openSession(convID, msg.ID)
		sess = c.session(convID)
	}

	if e.Content != "" {
		sess.agg.Append(e.Content)
		sess.agg.Flush()
	}

	tracker := &toolTracker{store: c.store, logger: c.logger}
	for _, tc := range e.Pending {
		if artifacts := tracker.Apply(convID, sess.MessageID, tc); len(artifacts) > 0 {
			if err := c.store.MergeArtifacts(convID, sess.MessageID, artifacts); err != nil {
				c.logger.Debug("resume artifacts dropped", "conversation_id", convID, "error", err)
			}
		}
	}
	c.notifyChanged(convID)

	if e.IsComplete {
		c.handleStreamEnd(convID)
	}
}

// handleMissed resolves an unrecoverable gap: the server-side buffer
// expired or was never found, so the in-flight response can only be
// closed out with what already arrived. The partial message is finalized
// with a warning instead of being deleted, and never left streaming.
func (c *Controller) handleMissed(convID string, e event.StreamMissed) {
	sess := c.takeSession(convID)
	var msgID string
	if sess != nil {
		sess.agg.Flush()
		sess.agg.Stop()
		msgID = sess.MessageID
	} else {
		msg, ok := c.store.StreamingMessage(convID)
		if !ok {
			c.logger.Debug("missed stream with nothing in flight", "conversation_id", convID, "reason", e.Reason)
			return
		}
		msgID = msg.ID
	}

	c.finalizeMessage(convID, msgID, "", "Response interrupted; part of it may be missing.")
	c.notifyReady(convID)
}
