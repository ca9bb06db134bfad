package workflows

import (
	"time"
)

// Snapshot is the view of a document a guard is allowed to see. The executor
// builds it from the persisted record immediately before checking guards, so
// guards always evaluate against current state.
type Snapshot struct {
	State            State
	AuthorID         string
	ReviewerID       string
	ApproverID       string
	SensitivityLabel string
	EffectiveDate    *time.Time
	ReviewDue        *time.Time
	HasPredecessor   bool
	StateEnteredAt   time.Time
	EscalatedAt      *time.Time

	// SupersededByEffective is set by the executor when a newer version of the
	// same document number has reached EFFECTIVE.
	SupersededByEffective bool
}

// Payload carries the action-specific data of a transition attempt.
type Payload struct {
	Reviewer                string     `json:"reviewer,omitempty"`
	Approver                string     `json:"approver,omitempty"`
	Comment                 string     `json:"comment,omitempty"`
	RejectionReason         string     `json:"rejection_reason,omitempty"`
	EffectiveDate           *time.Time `json:"effective_date,omitempty"`
	ReviewDue               *time.Time `json:"review_due,omitempty"`
	SensitivityLabel        string     `json:"sensitivity_label,omitempty"`
	SensitivityChangeReason string     `json:"sensitivity_change_reason,omitempty"`
	RetirementReason        string     `json:"retirement_reason,omitempty"`
}

// GuardInput bundles everything a guard may consult.
type GuardInput struct {
	Doc     Snapshot
	Actor   Actor
	Payload Payload
	Now     time.Time
}

// Guard is a transition precondition beyond the role check. A nil return means
// the transition may proceed; a non-nil *Rejection refuses it without mutating
// state.
type Guard func(in GuardInput) *Rejection

// Rule is one row of the transition table.
type Rule struct {
	Action Action
	From   State
	To     State
	Role   Role
	Guard  Guard

	// SideEffectOnly marks self-loop rules (escalations and flags) whose only
	// effect is an audit record, an event, and escalation bookkeeping.
	SideEffectOnly bool
}

// GuardConfig carries the operational tuning parameters guards depend on.
type GuardConfig struct {
	ReviewSLA   time.Duration
	ApprovalSLA time.Duration
}

// Registry is the single source of truth for legal transitions, keyed by
// (source state, action).
type Registry struct {
	rules map[State]map[Action]Rule
}

// NewRegistry builds the closed transition table. The table is fixed; only the
// SLA durations referenced by the escalation guards come from configuration.
func NewRegistry(cfg GuardConfig) *Registry {
	r := &Registry{rules: make(map[State]map[Action]Rule)}

	r.add(Rule{
		Action: ActionSubmitForReview, From: StateDraft, To: StatePendingReview, Role: RoleAuthor,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.AuthorID {
				return Unauthorized("only the document author may submit for review")
			}
			if in.Payload.Reviewer == "" {
				return GuardFailed("a reviewer must be assigned")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionStartReview, From: StatePendingReview, To: StateUnderReview, Role: RoleReviewer,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.ReviewerID {
				return Unauthorized("actor is not the assigned reviewer")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionAcceptReview, From: StateUnderReview, To: StateReviewed, Role: RoleReviewer,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.ReviewerID {
				return Unauthorized("actor is not the assigned reviewer")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionRejectReview, From: StateUnderReview, To: StateDraft, Role: RoleReviewer,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.ReviewerID {
				return Unauthorized("actor is not the assigned reviewer")
			}
			if in.Payload.RejectionReason == "" {
				return GuardFailed("a rejection reason is required")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionRouteForApproval, From: StateReviewed, To: StatePendingApproval, Role: RoleAuthor,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.AuthorID {
				return Unauthorized("only the document author may route for approval")
			}
			if in.Payload.Approver == "" {
				return GuardFailed("an approver must be assigned")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionApproveDocument, From: StatePendingApproval, To: StateApprovedPendingEffective, Role: RoleApprover,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.ApproverID {
				return Unauthorized("actor is not the assigned approver")
			}
			if in.Payload.EffectiveDate == nil {
				return GuardFailed("an effective date is required")
			}
			if dateOnly(*in.Payload.EffectiveDate).Before(dateOnly(in.Now)) {
				return GuardFailed("the effective date must not be in the past")
			}
			if in.Payload.SensitivityLabel == "" && in.Doc.SensitivityLabel == "" {
				return GuardFailed("a sensitivity label is required")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionRejectApproval, From: StatePendingApproval, To: StateDraft, Role: RoleApprover,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.ApproverID {
				return Unauthorized("actor is not the assigned approver")
			}
			if in.Payload.RejectionReason == "" {
				return GuardFailed("a rejection reason is required")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionActivate, From: StateApprovedPendingEffective, To: StateEffective, Role: RoleSystem,
		Guard: func(in GuardInput) *Rejection {
			if in.Doc.EffectiveDate == nil {
				return GuardFailed("no effective date is set")
			}
			if dateOnly(in.Now).Before(dateOnly(*in.Doc.EffectiveDate)) {
				return GuardFailed("the effective date has not arrived")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionSupersede, From: StateEffective, To: StateObsolete, Role: RoleSystem,
		Guard: func(in GuardInput) *Rejection {
			if !in.Doc.SupersededByEffective && in.Payload.RetirementReason == "" {
				return GuardFailed("no newer effective version exists and no retirement reason was given")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionRetire, From: StateEffective, To: StateObsolete, Role: RoleAuthor,
		Guard: func(in GuardInput) *Rejection {
			if in.Actor.ID != in.Doc.AuthorID {
				return Unauthorized("only the document author may retire the document")
			}
			if in.Payload.RetirementReason == "" {
				return GuardFailed("a retirement reason is required")
			}
			return nil
		},
	})

	r.add(Rule{
		Action: ActionEscalateTimeout, From: StateUnderReview, To: StateUnderReview, Role: RoleSystem,
		SideEffectOnly: true,
		Guard:          escalationGuard(cfg.ReviewSLA, "review"),
	})

	r.add(Rule{
		Action: ActionEscalateTimeout, From: StatePendingApproval, To: StatePendingApproval, Role: RoleSystem,
		SideEffectOnly: true,
		Guard:          escalationGuard(cfg.ApprovalSLA, "approval"),
	})

	r.add(Rule{
		Action: ActionFlagReviewOverdue, From: StateEffective, To: StateEffective, Role: RoleSystem,
		SideEffectOnly: true,
		Guard: func(in GuardInput) *Rejection {
			if in.Doc.ReviewDue == nil {
				return GuardFailed("no periodic review date is set")
			}
			if dateOnly(in.Now).Before(dateOnly(*in.Doc.ReviewDue)) {
				return GuardFailed("the periodic review is not due yet")
			}
			if in.Doc.EscalatedAt != nil && in.Doc.EscalatedAt.After(*in.Doc.ReviewDue) {
				return GuardFailed("the overdue review was already flagged")
			}
			return nil
		},
	})

	return r
}

// escalationGuard fires at most once per state occupancy: a repeated sweep in
// the same occupancy is refused until the document re-enters the state.
func escalationGuard(sla time.Duration, stage string) Guard {
	return func(in GuardInput) *Rejection {
		if in.Now.Sub(in.Doc.StateEnteredAt) < sla {
			return GuardFailed(stage + " SLA has not been exceeded")
		}
		if in.Doc.EscalatedAt != nil && !in.Doc.EscalatedAt.Before(in.Doc.StateEnteredAt) {
			return GuardFailed(stage + " timeout was already escalated")
		}
		return nil
	}
}

func (r *Registry) add(rule Rule) {
	byAction, ok := r.rules[rule.From]
	if !ok {
		byAction = make(map[Action]Rule)
		r.rules[rule.From] = byAction
	}
	byAction[rule.Action] = rule
}

// Lookup returns the rule for (from, action), if the table contains one.
func (r *Registry) Lookup(from State, action Action) (Rule, bool) {
	rule, ok := r.rules[from][action]
	return rule, ok
}

// AllowedActions returns the actions legal from the given state.
func (r *Registry) AllowedActions(from State) []Action {
	actions := make([]Action, 0, len(r.rules[from]))
	for a := range r.rules[from] {
		actions = append(actions, a)
	}
	return actions
}

// AllowsEdge reports whether a (from, to) state pair appears anywhere in the
// table. Used to validate audit trails.
func (r *Registry) AllowsEdge(from, to State) bool {
	for _, rule := range r.rules[from] {
		if rule.To == to {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
