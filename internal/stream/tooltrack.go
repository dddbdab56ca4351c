package stream

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/event"
	"github.com/parleychat/parley/internal/extract"
)

// toolTracker maintains the ordered tool-call list on the streaming
// message, merging executing and completed/failed updates that may arrive
// out of strict correlation.
//
// Identity for merging is the call ID when present. Name matching against
// an executing entry is kept only as a compatibility fallback for
// backends that omit IDs; it is first-match-wins so two concurrently
// executing calls of the same name cannot merge into one entry.
type toolTracker struct {
	store  *convo.Store
	logger *slog.Logger
}

// Apply routes one tool-call event into the message's tool list and
// returns any image artifacts carried by the event's plots.
func (t *toolTracker) Apply(convID, msgID string, ev event.ToolCall) []convo.Artifact {
	switch ev.Status {
	case convo.ToolExecuting, "", "started":
		t.reportExecuting(convID, msgID, ev)
	default:
		t.reportResult(convID, msgID, ev)
	}

	if len(ev.Plots) == 0 {
		return nil
	}
	return extract.FromPlots(ev.Name, toPlots(ev.Plots))
}

// reportExecuting appends a new executing entry unless a matching one
// already exists.
func (t *toolTracker) reportExecuting(convID, msgID string, ev event.ToolCall) {
	err := t.store.UpdateMessage(convID, msgID, func(m *convo.Message) {
		if idx := findToolCall(m.ToolCalls, ev.ID, ev.Name); idx >= 0 {
			mergeToolFields(&m.ToolCalls[idx], ev)
			return
		}

		tc := convo.ToolCall{
			ID:          ev.ID,
			Name:        ev.Name,
			DisplayName: ev.DisplayName,
			Icon:        ev.Icon,
			Status:      convo.ToolExecuting,
			Query:       extractQuery(ev.Arguments),
			CreatedAt:   time.Now(),
		}
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		m.ToolCalls = append(m.ToolCalls, tc)
	})
	if err != nil {
		t.logger.Debug("tool executing update dropped", "tool", ev.Name, "error", err)
	}
}

// reportResult updates the matching call in place, or inserts a completed
// entry directly when the result arrives before (or without) its
// executing signal. A result is never silently dropped.
func (t *toolTracker) reportResult(convID, msgID string, ev event.ToolCall) {
	status := ev.Status
	if status != convo.ToolCompleted && status != convo.ToolFailed {
		status = convo.ToolCompleted
	}

	err := t.store.UpdateMessage(convID, msgID, func(m *convo.Message) {
		if idx := findToolCall(m.ToolCalls, ev.ID, ev.Name); idx >= 0 {
			tc := &m.ToolCalls[idx]
			tc.Status = status
			if ev.Result != "" {
				tc.Result = ev.Result
			}
			if len(ev.Plots) > 0 {
				tc.Plots = toPlots(ev.Plots)
			}
			mergeToolFields(tc, ev)
			return
		}

		tc := convo.ToolCall{
			ID:          ev.ID,
			Name:        ev.Name,
			DisplayName: ev.DisplayName,
			Icon:        ev.Icon,
			Status:      status,
			Query:       extractQuery(ev.Arguments),
			Result:      ev.Result,
			Plots:       toPlots(ev.Plots),
			CreatedAt:   time.Now(),
		}
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		m.ToolCalls = append(m.ToolCalls, tc)
	})
	if err != nil {
		t.logger.Debug("tool result update dropped", "tool", ev.Name, "error", err)
	}
}

// findToolCall locates a call by ID first, falling back to the first
// executing entry with the same name.
func findToolCall(calls []convo.ToolCall, id, name string) int {
	if id != "" {
		for i := range calls {
			if calls[i].ID == id {
				return i
			}
		}
		return -1
	}
	for i := range calls {
		if calls[i].Name == name && calls[i].Status == convo.ToolExecuting {
			return i
		}
	}
	return -1
}

// mergeToolFields fills in fields the update carries without regressing
// previously-known values to empty.
func mergeToolFields(tc *convo.ToolCall, ev event.ToolCall) {
	if ev.DisplayName != "" {
		tc.DisplayName = ev.DisplayName
	}
	if ev.Icon != "" {
		tc.Icon = ev.Icon
	}
	if q := extractQuery(ev.Arguments); q != "" {
		tc.Query = q
	}
}

// extractQuery pulls the human-readable query out of invocation
// arguments. It tolerates both pre-parsed objects and raw encoded
// strings, and degrades to empty on any parse failure.
func extractQuery(args any) string {
	switch v := args.(type) {
	case nil:
		return ""
	case map[string]any:
		return queryFromMap(v)
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return ""
		}
		return queryFromMap(obj)
	default:
		return ""
	}
}

func queryFromMap(obj map[string]any) string {
	for _, key := range []string{"query", "q", "input", "prompt", "url"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toPlots(plots []event.Plot) []convo.Plot {
	if len(plots) == 0 {
		return nil
	}
	out := make([]convo.Plot, len(plots))
	for i, p := range plots {
		out[i] = convo.Plot{Format: p.Format, Data: p.Data}
	}
	return out
}
