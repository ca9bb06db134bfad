package workflows

// State is one value of the closed document lifecycle enumeration.
type State string

const (
	StateDraft                    State = "DRAFT"
	StatePendingReview            State = "PENDING_REVIEW"
	StateUnderReview              State = "UNDER_REVIEW"
	StateReviewed                 State = "REVIEWED"
	StatePendingApproval          State = "PENDING_APPROVAL"
	StateApprovedPendingEffective State = "APPROVED_PENDING_EFFECTIVE"
	StateEffective                State = "EFFECTIVE"
	StateObsolete                 State = "OBSOLETE"
)

// AllStates lists every lifecycle state, in workflow order.
func AllStates() []State {
	return []State{
		StateDraft,
		StatePendingReview,
		StateUnderReview,
		StateReviewed,
		StatePendingApproval,
		StateApprovedPendingEffective,
		StateEffective,
		StateObsolete,
	}
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StatePendingReview, StateUnderReview, StateReviewed,
		StatePendingApproval, StateApprovedPendingEffective, StateEffective, StateObsolete:
		return true
	}
	return false
}

// Terminal reports whether a document in this state can never transition again.
func (s State) Terminal() bool {
	return s == StateObsolete
}

// Role is the closed set of workflow actor roles.
type Role string

const (
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleSystem   Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAuthor, RoleReviewer, RoleApprover, RoleSystem:
		return true
	}
	return false
}

// CurrentActorRole returns the single role required to move a document out of
// the given state. Scheduled states are owned by the system actor.
func CurrentActorRole(s State) Role {
	switch s {
	case StateDraft, StateReviewed:
		return RoleAuthor
	case StatePendingReview, StateUnderReview:
		return RoleReviewer
	case StatePendingApproval:
		return RoleApprover
	default:
		return RoleSystem
	}
}

// Action names a transition operation from the closed action set.
type Action string

const (
	ActionSubmitForReview  Action = "submit_for_review"
	ActionStartReview      Action = "start_review"
	ActionAcceptReview     Action = "accept_review"
	ActionRejectReview     Action = "reject_review"
	ActionRouteForApproval Action = "route_for_approval"
	ActionApproveDocument  Action = "approve_document"
	ActionRejectApproval   Action = "reject_approval"
	ActionActivate         Action = "activate"
	ActionSupersede        Action = "supersede"
	ActionRetire           Action = "retire"
	ActionEscalateTimeout  Action = "escalate_timeout"
	ActionFlagReviewOverdue Action = "flag_review_overdue"
)

// Audit annotation actions. These never move a document; they are appended to
// the audit trail next to the approve_document record.
const (
	ActionSensitivityChanged   Action = "sensitivity_changed"
	ActionSensitivityConfirmed Action = "sensitivity_confirmed"
)

// SystemActorID is the pseudo-identity under which scheduler sweeps act.
const SystemActorID = "system-scheduler"

// Actor is a resolved workflow identity: a human user id with its role, or the
// privileged system scheduler variant.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor returns the scheduler's pseudo-identity.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Role: RoleSystem}
}

// IsSystem reports whether the actor is the system scheduler.
func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem && a.ID == SystemActorID
}
