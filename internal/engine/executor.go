package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/internal/audit"
	"quality-portal/document-control-backend/internal/documents"
	"quality-portal/document-control-backend/internal/notifications"
	"quality-portal/document-control-backend/pkg/workflows"
)

// Config carries the executor's operational parameters.
type Config struct {
	// PeriodicReviewInterval is the default review horizon applied on
	// activation when approval did not set an explicit review-due date.
	PeriodicReviewInterval time.Duration
}

// Engine is the transition executor: it validates a requested transition
// against current state, actor role and guards, applies it atomically with the
// audit append, and emits one domain event per successful transition.
type Engine struct {
	repo       documents.Repository
	registry   *workflows.Registry
	dispatcher notifications.Dispatcher
	logger     *zap.Logger
	cfg        Config
	locks      *keyLocks
	now        func() time.Time
}

// New creates an Engine.
func New(repo documents.Repository, registry *workflows.Registry, dispatcher notifications.Dispatcher, logger *zap.Logger, cfg Config) *Engine {
	return &Engine{
		repo:       repo,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		locks:      newKeyLocks(),
		now:        time.Now,
	}
}

// Attempt executes one transition attempt. Concurrent attempts on the same
// document key serialize; the state write and the audit append are atomic. On
// success the domain event is emitted synchronously before returning; a
// dispatcher failure is logged and never rolls back the transition. Every
// attempt, successful or rejected, appends exactly one audit record.
func (e *Engine) Attempt(ctx context.Context, key documents.Key, action workflows.Action, actor workflows.Actor, payload workflows.Payload) (workflows.State, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	now := e.now()

	doc, err := e.repo.GetDocument(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to load document %s: %w", key, err)
	}
	if doc == nil {
		rej := workflows.NotFound(key.String())
		e.auditRejection(ctx, key, "", action, actor, payload, rej, now)
		return "", rej
	}

	rule, ok := e.registry.Lookup(doc.State, action)
	if !ok {
		rej := workflows.NotAllowed(doc.State, action)
		e.auditRejection(ctx, key, doc.State, action, actor, payload, rej, now)
		return doc.State, rej
	}

	if actor.Role != rule.Role {
		rej := workflows.Unauthorized(fmt.Sprintf("action %s requires role %s, actor has role %s", action, rule.Role, actor.Role))
		e.auditRejection(ctx, key, doc.State, action, actor, payload, rej, now)
		return doc.State, rej
	}

	snapshot := doc.Snapshot()
	if action == workflows.ActionSupersede {
		superseded, err := e.successorEffective(ctx, doc)
		if err != nil {
			return doc.State, fmt.Errorf("failed to check successor versions of %s: %w", key, err)
		}
		snapshot.SupersededByEffective = superseded
	}

	if rule.Guard != nil {
		if rej := rule.Guard(workflows.GuardInput{Doc: snapshot, Actor: actor, Payload: payload, Now: now}); rej != nil {
			e.auditRejection(ctx, key, doc.State, action, actor, payload, rej, now)
			return doc.State, rej
		}
	}

	fromState := doc.State
	inheritedLabel := doc.SensitivityLabel
	e.applyEffects(doc, rule, payload, now)

	rec := &audit.TransitionRecord{
		ID:        uuid.New(),
		Number:    key.Number,
		Version:   key.Version,
		FromState: fromState,
		ToState:   doc.State,
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Outcome:   audit.OutcomeSuccess,
		Comment:   payload.Comment,
		CreatedAt: now,
	}
	if payload.RejectionReason != "" {
		rec.Reason = payload.RejectionReason
	} else if payload.RetirementReason != "" {
		rec.Reason = payload.RetirementReason
	}

	if err := e.repo.ApplyTransition(ctx, doc, rec); err != nil {
		// Guards passed but persistence failed: no event, no in-memory advance.
		// The guard re-check makes a caller retry idempotent.
		return fromState, fmt.Errorf("failed to persist transition %s on %s: %w", action, key, err)
	}

	if action == workflows.ActionApproveDocument && doc.PredecessorVersion != nil {
		e.auditSensitivityDecision(ctx, doc, actor, payload, inheritedLabel, now)
	}

	evt := notifications.Event{
		ID:         uuid.New(),
		Number:     key.Number,
		Version:    key.Version,
		FromState:  fromState,
		ToState:    doc.State,
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		OccurredAt: now,
	}
	if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
		e.logger.Error("event dispatch failed after committed transition",
			zap.String("document", key.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}

	e.logger.Info("transition applied",
		zap.String("document", key.String()),
		zap.String("action", string(action)),
		zap.String("from_state", string(fromState)),
		zap.String("to_state", string(doc.State)),
		zap.String("actor_id", actor.ID))

	return doc.State, nil
}

// applyEffects mutates the loaded document for a transition whose guards have
// passed. Side-effect-only rules keep state and occupancy timestamps.
func (e *Engine) applyEffects(doc *documents.Document, rule workflows.Rule, payload workflows.Payload, now time.Time) {
	switch rule.Action {
	case workflows.ActionSubmitForReview:
		doc.ReviewerID = payload.Reviewer
		doc.RejectionReason = ""
	case workflows.ActionRouteForApproval:
		doc.ApproverID = payload.Approver
	case workflows.ActionRejectReview, workflows.ActionRejectApproval:
		// Assignments never carry over implicitly into the next cycle.
		doc.ReviewerID = ""
		doc.ApproverID = ""
		doc.RejectionReason = payload.RejectionReason
	case workflows.ActionApproveDocument:
		doc.EffectiveDate = payload.EffectiveDate
		if payload.ReviewDue != nil {
			doc.ReviewDue = payload.ReviewDue
		}
		if payload.SensitivityLabel != "" {
			doc.SensitivityLabel = documents.SensitivityLabel(payload.SensitivityLabel)
		}
	case workflows.ActionActivate:
		if doc.ReviewDue == nil && e.cfg.PeriodicReviewInterval > 0 {
			due := now.Add(e.cfg.PeriodicReviewInterval)
			doc.ReviewDue = &due
		}
	}

	if rule.SideEffectOnly {
		escalated := now
		doc.EscalatedAt = &escalated
	} else if rule.To != doc.State {
		doc.State = rule.To
		doc.StateEnteredAt = now
		doc.EscalatedAt = nil
	}
	doc.UpdatedAt = now
}

// auditSensitivityDecision appends the annotation recording whether approval
// confirmed or changed the label inherited from the predecessor. The main
// transition is already committed; a failed annotation append is logged only.
func (e *Engine) auditSensitivityDecision(ctx context.Context, doc *documents.Document, actor workflows.Actor, payload workflows.Payload, inherited documents.SensitivityLabel, now time.Time) {
	annotation := workflows.ActionSensitivityConfirmed
	reason := fmt.Sprintf("label %s confirmed", doc.SensitivityLabel)
	if payload.SensitivityLabel != "" && documents.SensitivityLabel(payload.SensitivityLabel) != inherited {
		annotation = workflows.ActionSensitivityChanged
		reason = fmt.Sprintf("label changed from %s to %s", inherited, doc.SensitivityLabel)
		if payload.SensitivityChangeReason != "" {
			reason = fmt.Sprintf("%s: %s", reason, payload.SensitivityChangeReason)
		}
	}

	rec := &audit.TransitionRecord{
		ID:        uuid.New(),
		Number:    doc.Number,
		Version:   doc.Version,
		FromState: doc.State,
		ToState:   doc.State,
		Action:    annotation,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Outcome:   audit.OutcomeSuccess,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := e.repo.AppendAudit(ctx, rec); err != nil {
		e.logger.Error("failed to append sensitivity annotation",
			zap.String("document", doc.Key().String()),
			zap.Error(err))
	}
}

// auditRejection records a refused attempt. State is unchanged, so the record
// keeps from == to. A failure to append is logged; the caller still receives
// the rejection.
func (e *Engine) auditRejection(ctx context.Context, key documents.Key, state workflows.State, action workflows.Action, actor workflows.Actor, payload workflows.Payload, rej *workflows.Rejection, now time.Time) {
	rec := &audit.TransitionRecord{
		ID:        uuid.New(),
		Number:    key.Number,
		Version:   key.Version,
		FromState: state,
		ToState:   state,
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Outcome:   audit.OutcomeRejected,
		Reason:    rej.Error(),
		Comment:   payload.Comment,
		CreatedAt: now,
	}
	if err := e.repo.AppendAudit(ctx, rec); err != nil {
		e.logger.Error("failed to append rejection audit record",
			zap.String("document", key.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

// successorEffective reports whether a newer version of the document has
// reached EFFECTIVE.
func (e *Engine) successorEffective(ctx context.Context, doc *documents.Document) (bool, error) {
	versions, err := e.repo.ListVersions(ctx, doc.Number)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.Version > doc.Version && v.State == workflows.StateEffective {
			return true, nil
		}
	}
	return false, nil
}
