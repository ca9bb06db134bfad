package audit

import (
	"time"

	"github.com/google/uuid"

	"quality-portal/document-control-backend/pkg/workflows"
)

// Outcome records whether a transition attempt changed state or was refused.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
)

// TransitionRecord is the immutable, append-only audit entry written exactly
// once per transition attempt, including attempts rejected by a guard. Records
// are never mutated or deleted after the write.
type TransitionRecord struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Number    string           `json:"number" db:"number"`
	Version   int              `json:"version" db:"version"`
	FromState workflows.State  `json:"from_state" db:"from_state"`
	ToState   workflows.State  `json:"to_state" db:"to_state"`
	Action    workflows.Action `json:"action" db:"action"`
	ActorID   string           `json:"actor_id" db:"actor_id"`
	ActorRole workflows.Role   `json:"actor_role" db:"actor_role"`
	Outcome   Outcome          `json:"outcome" db:"outcome"`
	Reason    string           `json:"reason" db:"reason"`
	Comment   string           `json:"comment" db:"comment"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
