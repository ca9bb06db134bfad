package workflows

import "fmt"

// RejectionCode classifies why a transition attempt was refused.
type RejectionCode string

const (
	CodeDocumentNotFound  RejectionCode = "DOCUMENT_NOT_FOUND"
	CodeInvalidTransition RejectionCode = "INVALID_TRANSITION"
	CodeUnauthorizedActor RejectionCode = "UNAUTHORIZED_ACTOR"
	CodeGuardNotSatisfied RejectionCode = "GUARD_NOT_SATISFIED"
)

// Rejection is the typed error returned for every refused transition attempt.
// The document is left unchanged; the attempt itself is still audit-logged.
type Rejection struct {
	Code   RejectionCode
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

// NotFound builds a DocumentNotFound rejection.
func NotFound(key string) *Rejection {
	return &Rejection{Code: CodeDocumentNotFound, Reason: fmt.Sprintf("document %s does not exist", key)}
}

// NotAllowed builds an InvalidTransition rejection for an action that is not
// legal from the current state.
func NotAllowed(from State, action Action) *Rejection {
	return &Rejection{Code: CodeInvalidTransition, Reason: fmt.Sprintf("action %s is not allowed from state %s", action, from)}
}

// Unauthorized builds an UnauthorizedActor rejection.
func Unauthorized(reason string) *Rejection {
	return &Rejection{Code: CodeUnauthorizedActor, Reason: reason}
}

// GuardFailed builds a GuardNotSatisfied rejection.
func GuardFailed(reason string) *Rejection {
	return &Rejection{Code: CodeGuardNotSatisfied, Reason: reason}
}
