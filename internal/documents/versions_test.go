package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/pkg/workflows"
)

type attemptCall struct {
	key    Key
	action workflows.Action
	actor  workflows.Actor
}

// fakeAttempter records attempts and returns a scripted response.
type fakeAttempter struct {
	calls []attemptCall
	state workflows.State
	err   error
}

func (f *fakeAttempter) Attempt(ctx context.Context, key Key, action workflows.Action, actor workflows.Actor, payload workflows.Payload) (workflows.State, error) {
	f.calls = append(f.calls, attemptCall{key: key, action: action, actor: actor})
	return f.state, f.err
}

func newVersionManager(repo Repository, attempter Attempter) *VersionManager {
	vm := NewVersionManager(repo, attempter, zap.NewNop())
	vm.now = func() time.Time { return time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC) }
	return vm
}

func effectiveDoc(number string, version int) *Document {
	entered := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return &Document{
		Number:           number,
		Version:          version,
		Title:            "Calibration of lab scales",
		DocumentType:     TypeSOP,
		SensitivityLabel: SensitivityInternal,
		State:            workflows.StateEffective,
		AuthorID:         "author-1",
		EffectiveDate:    &entered,
		StateEnteredAt:   entered,
		CreatedAt:        entered,
		UpdatedAt:        entered,
	}
}

func TestCreateNextVersionCopiesLabelAndEdges(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	vm := newVersionManager(repo, &fakeAttempter{})

	pred := effectiveDoc("SOP-2026-0001", 1)
	dep := effectiveDoc("POL-2026-0001", 1)
	require.NoError(t, repo.CreateDocument(ctx, pred))
	require.NoError(t, repo.CreateDocument(ctx, dep))

	_, err := vm.AddDependency(ctx, pred.Key(), dep.Key(), "author-1")
	require.NoError(t, err)

	nextKey, err := vm.CreateNextVersion(ctx, pred.Key(), "author-2")
	require.NoError(t, err)
	assert.Equal(t, Key{Number: "SOP-2026-0001", Version: 2}, nextKey)

	next, err := repo.GetDocument(ctx, nextKey)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, workflows.StateDraft, next.State)
	assert.Equal(t, "author-2", next.AuthorID)
	assert.Equal(t, SensitivityInternal, next.SensitivityLabel)
	assert.Equal(t, pred.Title, next.Title)
	require.NotNil(t, next.PredecessorVersion)
	assert.Equal(t, 1, *next.PredecessorVersion)
	assert.Nil(t, next.EffectiveDate, "dates never carry over to the new version")

	edges, err := repo.ListEdgesFrom(ctx, nextKey)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, dep.Key(), edges[0].DependsOnKey())
	assert.Contains(t, edges[0].Note, "auto-copied")
}

func TestCreateNextVersionRequiresEffectivePredecessor(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	vm := newVersionManager(repo, &fakeAttempter{})

	doc := effectiveDoc("SOP-2026-0002", 1)
	doc.State = workflows.StateUnderReview
	require.NoError(t, repo.CreateDocument(ctx, doc))

	_, err := vm.CreateNextVersion(ctx, doc.Key(), "author-1")
	assert.ErrorIs(t, err, ErrPredecessorNotEffective)

	_, err = vm.CreateNextVersion(ctx, Key{Number: "SOP-2026-404", Version: 1}, "author-1")
	var rej *workflows.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, workflows.CodeDocumentNotFound, rej.Code)
}

func TestCreateNextVersionRefusesParallelRenewal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	vm := newVersionManager(repo, &fakeAttempter{})

	pred := effectiveDoc("SOP-2026-0003", 1)
	require.NoError(t, repo.CreateDocument(ctx, pred))

	_, err := vm.CreateNextVersion(ctx, pred.Key(), "author-1")
	require.NoError(t, err)

	_, err = vm.CreateNextVersion(ctx, pred.Key(), "author-1")
	assert.ErrorIs(t, err, ErrRenewalInProgress)
}

func TestSupersedePredecessorIssuesSystemCommand(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	fake := &fakeAttempter{state: workflows.StateObsolete}
	vm := newVersionManager(repo, fake)

	predVersion := 1
	successor := effectiveDoc("SOP-2026-0004", 2)
	successor.PredecessorVersion = &predVersion

	require.NoError(t, vm.SupersedePredecessor(ctx, successor))
	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, Key{Number: "SOP-2026-0004", Version: 1}, call.key)
	assert.Equal(t, workflows.ActionSupersede, call.action)
	assert.True(t, call.actor.IsSystem())
}

func TestSupersedePredecessorSkipsInitialVersions(t *testing.T) {
	fake := &fakeAttempter{}
	vm := newVersionManager(NewMemoryRepository(), fake)

	require.NoError(t, vm.SupersedePredecessor(context.Background(), effectiveDoc("SOP-2026-0005", 1)))
	assert.Empty(t, fake.calls)
}

func TestSupersedePredecessorSwallowsAlreadyObsolete(t *testing.T) {
	predVersion := 1
	successor := effectiveDoc("SOP-2026-0006", 2)
	successor.PredecessorVersion = &predVersion

	fake := &fakeAttempter{err: workflows.NotAllowed(workflows.StateObsolete, workflows.ActionSupersede)}
	vm := newVersionManager(NewMemoryRepository(), fake)
	assert.NoError(t, vm.SupersedePredecessor(context.Background(), successor))

	fake = &fakeAttempter{err: errors.New("connection refused")}
	vm = newVersionManager(NewMemoryRepository(), fake)
	err := vm.SupersedePredecessor(context.Background(), successor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAddDependencyRejectsCycles(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	vm := newVersionManager(repo, &fakeAttempter{})

	a := effectiveDoc("SOP-2026-0010", 1)
	b := effectiveDoc("SOP-2026-0011", 1)
	c := effectiveDoc("SOP-2026-0012", 1)
	for _, doc := range []*Document{a, b, c} {
		require.NoError(t, repo.CreateDocument(ctx, doc))
	}

	_, err := vm.AddDependency(ctx, a.Key(), b.Key(), "author-1")
	require.NoError(t, err)
	_, err = vm.AddDependency(ctx, b.Key(), c.Key(), "author-1")
	require.NoError(t, err)

	_, err = vm.AddDependency(ctx, c.Key(), a.Key(), "author-1")
	assert.ErrorIs(t, err, ErrDependencyCycle)

	_, err = vm.AddDependency(ctx, a.Key(), a.Key(), "author-1")
	assert.ErrorIs(t, err, ErrDependencyCycle)

	// A diamond is fine; only cycles are refused.
	_, err = vm.AddDependency(ctx, a.Key(), c.Key(), "author-1")
	assert.NoError(t, err)
}

func TestAddDependencyRequiresBothDocuments(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	vm := newVersionManager(repo, &fakeAttempter{})

	a := effectiveDoc("SOP-2026-0013", 1)
	require.NoError(t, repo.CreateDocument(ctx, a))

	_, err := vm.AddDependency(ctx, a.Key(), Key{Number: "SOP-2026-404", Version: 1}, "author-1")
	var rej *workflows.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, workflows.CodeDocumentNotFound, rej.Code)
}
