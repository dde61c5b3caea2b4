package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasksync/internal/detect"
	"github.com/mschirtzinger/tasksync/internal/reconcile"
)

// Broadcaster sends a message to every connected view.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Handler turns finished reconciliation passes into feed messages. It
// implements reconcile.ViewRefresher.
type Handler struct {
	out    Broadcaster
	logger zerolog.Logger
	now    func() time.Time
}

var _ reconcile.ViewRefresher = (*Handler)(nil)

// NewHandler creates a handler that writes to out.
func NewHandler(out Broadcaster, logger zerolog.Logger) *Handler {
	return &Handler{
		out:    out,
		logger: logger.With().Str("component", "dashboard").Logger(),
		now:    time.Now,
	}
}

// Refresh broadcasts one task_update per created or updated task followed by
// a sync_complete summary.
func (h *Handler) Refresh(ctx context.Context, owner string, run *reconcile.Run) error {
	if run == nil {
		return nil
	}

	for _, o := range run.Outcomes {
		if o.Failed() || o.TaskID == "" {
			continue
		}
		var action string
		switch o.Kind {
		case detect.New:
			action = "created"
		case detect.Updated:
			action = "updated"
		default:
			continue
		}
		if err := h.send(MessageTypeTaskUpdate, TaskUpdateData{
			TaskID:          o.TaskID,
			Action:          action,
			SourceAccountID: run.SourceAccountID,
			ExternalID:      o.ExternalID,
			Lists:           o.PlacedLists,
		}); err != nil {
			return err
		}
	}

	sum := run.Summary()
	data := SyncCompleteData{
		SourceAccountID: run.SourceAccountID,
		Owner:           owner,
		Phase:           terminalPhase(run).String(),
		New:             sum.New,
		Updated:         sum.Updated,
		Unchanged:       sum.Unchanged,
		Failed:          sum.Failed,
		Duration:        h.now().Sub(run.StartedAt),
	}
	if run.Err != nil {
		data.Error = run.Err.Error()
	}

	h.logger.Debug().
		Str("source", run.SourceAccountID).
		Int("new", sum.New).
		Int("updated", sum.Updated).
		Msg("broadcasting sync_complete")

	return h.send(MessageTypeSyncComplete, data)
}

// terminalPhase is the phase the pass ends in. Refresh is called while the
// pass is still in RefreshingViews, or after it has failed.
func terminalPhase(run *reconcile.Run) reconcile.Phase {
	if run.Err != nil {
		return reconcile.Failed
	}
	return reconcile.Done
}

func (h *Handler) send(typ MessageType, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.out.Broadcast(Message{Type: typ, Timestamp: h.now(), Data: data})
	return nil
}
