package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/pkg/workflows"
)

// Event is emitted once per successful transition. Delivery semantics beyond
// the dispatcher boundary are the dispatcher's concern; the engine guarantees
// at-least-once emission, never exactly-once.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Number     string           `json:"number"`
	Version    int              `json:"version"`
	FromState  workflows.State  `json:"from_state"`
	ToState    workflows.State  `json:"to_state"`
	Action     workflows.Action `json:"action"`
	ActorID    string           `json:"actor_id"`
	ActorRole  workflows.Role   `json:"actor_role"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Dispatcher consumes domain events. A failing dispatcher never rolls back the
// transition that produced the event.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event) error
}

// LogDispatcher writes every event to the structured log. It is always wired
// so that operators can reconstruct workflow activity even with no external
// sink configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a logging dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, evt Event) error {
	d.logger.Info("workflow event",
		zap.String("event_id", evt.ID.String()),
		zap.String("number", evt.Number),
		zap.Int("version", evt.Version),
		zap.String("from_state", string(evt.FromState)),
		zap.String("to_state", string(evt.ToState)),
		zap.String("action", string(evt.Action)),
		zap.String("actor_id", evt.ActorID),
		zap.Time("occurred_at", evt.OccurredAt))
	return nil
}

// Fanout dispatches each event to every configured sink and joins the errors.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, evt Event) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
