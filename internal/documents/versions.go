package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/pkg/workflows"
)

// Attempter submits validated transition attempts. Implemented by the
// transition executor; declared here so the version manager and HTTP handler
// do not depend on the engine package.
type Attempter interface {
	Attempt(ctx context.Context, key Key, action workflows.Action, actor workflows.Actor, payload workflows.Payload) (workflows.State, error)
}

var (
	// ErrPredecessorNotEffective is returned when up-versioning anything but an
	// EFFECTIVE document.
	ErrPredecessorNotEffective = errors.New("only an effective document can be up-versioned")

	// ErrRenewalInProgress is returned when a newer version already exists.
	ErrRenewalInProgress = errors.New("a newer version of this document already exists")

	// ErrDependencyCycle is returned when a new edge would close a cycle.
	ErrDependencyCycle = errors.New("dependency would create a cycle")
)

// VersionManager creates successor versions, owns the dependency graph, and
// issues the follow-up supersede command when a successor goes effective.
type VersionManager struct {
	repo      Repository
	attempter Attempter
	logger    *zap.Logger
	now       func() time.Time
}

// NewVersionManager creates a version manager.
func NewVersionManager(repo Repository, attempter Attempter, logger *zap.Logger) *VersionManager {
	return &VersionManager{
		repo:      repo,
		attempter: attempter,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateNextVersion creates version N+1 of an EFFECTIVE document in DRAFT.
// The sensitivity label is inherited and the predecessor's dependency edges
// are copied to the new version, marked as auto-copied; copied edges are not
// re-validated for cycles.
func (m *VersionManager) CreateNextVersion(ctx context.Context, predecessorKey Key, authorID string) (Key, error) {
	pred, err := m.repo.GetDocument(ctx, predecessorKey)
	if err != nil {
		return Key{}, fmt.Errorf("failed to load predecessor: %w", err)
	}
	if pred == nil {
		return Key{}, workflows.NotFound(predecessorKey.String())
	}
	if pred.State != workflows.StateEffective {
		return Key{}, fmt.Errorf("%w: %s is %s", ErrPredecessorNotEffective, predecessorKey, pred.State)
	}

	versions, err := m.repo.ListVersions(ctx, pred.Number)
	if err != nil {
		return Key{}, fmt.Errorf("failed to list versions: %w", err)
	}
	for _, v := range versions {
		if v.Version > pred.Version {
			return Key{}, fmt.Errorf("%w: %s", ErrRenewalInProgress, v.Key())
		}
	}

	now := m.now()
	predVersion := pred.Version
	next := &Document{
		Number:             pred.Number,
		Version:            pred.Version + 1,
		Title:              pred.Title,
		DocumentType:       pred.DocumentType,
		SensitivityLabel:   pred.SensitivityLabel,
		State:              workflows.StateDraft,
		AuthorID:           authorID,
		PredecessorVersion: &predVersion,
		StateEnteredAt:     now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.repo.CreateDocument(ctx, next); err != nil {
		return Key{}, fmt.Errorf("failed to create version %s: %w", next.Key(), err)
	}

	edges, err := m.repo.ListEdgesFrom(ctx, predecessorKey)
	if err != nil {
		return next.Key(), fmt.Errorf("version created but edges could not be listed: %w", err)
	}
	for _, edge := range edges {
		copied := &DependencyEdge{
			ID:               uuid.New(),
			DependentNumber:  next.Number,
			DependentVersion: next.Version,
			DependsOnNumber:  edge.DependsOnNumber,
			DependsOnVersion: edge.DependsOnVersion,
			Note:             fmt.Sprintf("auto-copied from predecessor %s", predecessorKey),
			CreatedBy:        authorID,
			CreatedAt:        now,
		}
		if err := m.repo.CreateEdge(ctx, copied); err != nil {
			return next.Key(), fmt.Errorf("version created but edge copy failed: %w", err)
		}
	}

	m.logger.Info("created next document version",
		zap.String("predecessor", predecessorKey.String()),
		zap.String("successor", next.Key().String()),
		zap.Int("copied_edges", len(edges)))

	return next.Key(), nil
}

// SupersedePredecessor issues the follow-up supersede command for a successor
// that just reached EFFECTIVE. A predecessor that is already OBSOLETE is
// skipped silently. Any other failure is reported to the caller but must not
// roll back the successor's activation; one current effective version beats
// perfectly atomic dual-document consistency.
func (m *VersionManager) SupersedePredecessor(ctx context.Context, successor *Document) error {
	predKey, ok := successor.PredecessorKey()
	if !ok {
		return nil
	}

	_, err := m.attempter.Attempt(ctx, predKey, workflows.ActionSupersede, workflows.SystemActor(), workflows.Payload{
		Comment: fmt.Sprintf("superseded by %s", successor.Key()),
	})
	if err == nil {
		return nil
	}

	var rej *workflows.Rejection
	if errors.As(err, &rej) && rej.Code == workflows.CodeInvalidTransition {
		m.logger.Info("predecessor already out of effective state",
			zap.String("predecessor", predKey.String()),
			zap.String("reason", rej.Reason))
		return nil
	}

	m.logger.Error("failed to supersede predecessor; manual remediation required",
		zap.String("predecessor", predKey.String()),
		zap.String("successor", successor.Key().String()),
		zap.Error(err))
	return fmt.Errorf("supersede of %s failed: %w", predKey, err)
}

// AddDependency records a manual dependency edge after checking that it would
// not close a cycle. Cycle detection on manual creation is a defensive choice;
// copies made during up-versioning bypass it.
func (m *VersionManager) AddDependency(ctx context.Context, dependent, dependsOn Key, createdBy string) (*DependencyEdge, error) {
	if dependent == dependsOn {
		return nil, ErrDependencyCycle
	}
	for _, key := range []Key{dependent, dependsOn} {
		doc, err := m.repo.GetDocument(ctx, key)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, workflows.NotFound(key.String())
		}
	}

	reachable, err := m.reaches(ctx, dependsOn, dependent, make(map[Key]bool))
	if err != nil {
		return nil, err
	}
	if reachable {
		return nil, fmt.Errorf("%w: %s already depends on %s", ErrDependencyCycle, dependsOn, dependent)
	}

	edge := &DependencyEdge{
		ID:               uuid.New(),
		DependentNumber:  dependent.Number,
		DependentVersion: dependent.Version,
		DependsOnNumber:  dependsOn.Number,
		DependsOnVersion: dependsOn.Version,
		CreatedBy:        createdBy,
		CreatedAt:        m.now(),
	}
	if err := m.repo.CreateEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// reaches walks the dependency graph from src and reports whether dst is
// reachable.
func (m *VersionManager) reaches(ctx context.Context, src, dst Key, seen map[Key]bool) (bool, error) {
	if src == dst {
		return true, nil
	}
	if seen[src] {
		return false, nil
	}
	seen[src] = true

	edges, err := m.repo.ListEdgesFrom(ctx, src)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		found, err := m.reaches(ctx, edge.DependsOnKey(), dst, seen)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}
