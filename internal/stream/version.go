package stream

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/event"
)

// RetryParams identifies the assistant response to regenerate and the
// model settings to regenerate it with.
type RetryParams struct {
	ConversationID string
	MessageID      string // assistant message being retried
	RetryType      string // empty for a plain regenerate

	ModelID            string
	SystemInstructions string
	CustomConfig       *event.CustomConfig
}

// Retry regenerates an assistant response as a new version of the same
// turn. The original user message is re-sent without being duplicated in
// the store; the new response joins the original's version group and
// becomes the visible sibling.
//
// Versions are numbered densely per group: a group's first retry turns
// the original into version 1 and itself into version 2, and each later
// retry takes count(group)+1.
func (c *Controller) Retry(p RetryParams) error {
	conv, err := c.store.Get(p.ConversationID)
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	target := -1
	for i, m := range conv.Messages {
		if m.ID == p.MessageID {
			target = i
			break
		}
	}
	if target < 0 || conv.Messages[target].Role != convo.RoleAssistant {
		return fmt.Errorf("retry %s: %w", p.MessageID, convo.ErrMessageNotFound)
	}
	if conv.Messages[target].IsStreaming {
		// A stream already in flight must be stopped before a new version
		// can replace it.
		c.Stop(p.ConversationID)
	}

	var userMsg *convo.Message
	for i := target - 1; i >= 0; i-- {
		if conv.Messages[i].Role == convo.RoleUser {
			userMsg = &conv.Messages[i]
			break
		}
	}
	if userMsg == nil {
		return fmt.Errorf("retry %s: %w", p.MessageID, ErrNoUserMessage)
	}

	groupID := conv.Messages[target].VersionGroupID
	nextVersion := 2
	if groupID == "" {
		// First retry of this turn: the original becomes version 1 of a
		// brand-new group.
		groupID = uuid.NewString()
		gid := groupID
		err = c.store.UpdateMessage(p.ConversationID, p.MessageID, func(m *convo.Message) {
			m.VersionGroupID = gid
			m.VersionNumber = 1
			m.IsHidden = true
		})
		if err != nil {
			return fmt.Errorf("retry %s: %w", p.MessageID, err)
		}
	} else {
		count := 0
		for _, m := range conv.Messages {
			if m.VersionGroupID == groupID {
				count++
			}
		}
		nextVersion = count + 1
		if err := c.hideGroup(p.ConversationID, groupID); err != nil {
			return fmt.Errorf("retry %s: %w", p.MessageID, err)
		}
	}
	c.notifyChanged(p.ConversationID)

	_, err = c.Send(SendParams{
		ConversationID:     p.ConversationID,
		Text:               userMsg.Content,
		ModelID:            p.ModelID,
		SystemInstructions: p.SystemInstructions,
		CustomConfig:       p.CustomConfig,
		SkipUserMessage:    true,
		ResendMessageID:    userMsg.ID,
		RetryType:          p.RetryType,
		VersionGroupID:     groupID,
		VersionNumber:      nextVersion,
	})
	if err != nil {
		return fmt.Errorf("retry %s: %w", p.MessageID, err)
	}
	return nil
}

// hideGroup marks every member of a version group hidden, making room
// for a new visible sibling.
func (c *Controller) hideGroup(convID, groupID string) error {
	conv, err := c.store.Get(convID)
	if err != nil {
		return err
	}
	for _, m := range conv.Messages {
		if m.VersionGroupID != groupID || m.IsHidden {
			continue
		}
		err := c.store.UpdateMessage(convID, m.ID, func(msg *convo.Message) {
			msg.IsHidden = true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NavigateVersion moves the visible sibling of msgID's version group by
// delta steps (negative for older, positive for newer), clamped to the
// group's ends. It returns the newly visible message. Exactly one member
// of the group is visible afterwards.
func (c *Controller) NavigateVersion(convID, msgID string, delta int) (convo.Message, error) {
	conv, err := c.store.Get(convID)
	if err != nil {
		return convo.Message{}, fmt.Errorf("navigate version: %w", err)
	}

	groupID := ""
	for _, m := range conv.Messages {
		if m.ID == msgID {
			groupID = m.VersionGroupID
			break
		}
	}
	if groupID == "" {
		return convo.Message{}, fmt.Errorf("navigate version %s: %w", msgID, convo.ErrMessageNotFound)
	}

	var group []convo.Message
	for _, m := range conv.Messages {
		if m.VersionGroupID == groupID {
			group = append(group, m)
		}
	}
	sort.Slice(group, func(i, j int) bool {
		return group[i].VersionNumber < group[j].VersionNumber
	})

	current := len(group) - 1
	for i, m := range group {
		if !m.IsHidden {
			current = i
			break
		}
	}

	next := current + delta
	if next < 0 {
		next = 0
	}
	if next >= len(group) {
		next = len(group) - 1
	}

	for i, m := range group {
		hidden := i != next
		if m.IsHidden == hidden {
			continue
		}
		err := c.store.UpdateMessage(convID, m.ID, func(msg *convo.Message) {
			msg.IsHidden = hidden
		})
		if err != nil {
			return convo.Message{}, fmt.Errorf("navigate version: %w", err)
		}
	}
	c.notifyChanged(convID)

	return c.store.Message(convID, group[next].ID)
}
