package documents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/internal/audit"
	"quality-portal/document-control-backend/pkg/workflows"
)

func sampleRecord(key Key, action workflows.Action) audit.TransitionRecord {
	return audit.TransitionRecord{
		ID:        uuid.New(),
		Number:    key.Number,
		Version:   key.Version,
		FromState: workflows.StateDraft,
		ToState:   workflows.StatePendingReview,
		Action:    action,
		ActorID:   "author-1",
		ActorRole: workflows.RoleAuthor,
		Outcome:   audit.OutcomeSuccess,
		CreatedAt: time.Now(),
	}
}

func newTestRouter(repo Repository, attempter Attempter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	vm := NewVersionManager(repo, attempter, logger)
	h := NewHandler(repo, attempter, vm, logger)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAllocatesDocumentNumber(t *testing.T) {
	repo := NewMemoryRepository()
	router := newTestRouter(repo, &fakeAttempter{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents", gin.H{
		"title":         "Deviation handling",
		"document_type": "SOP",
		"author_id":     "author-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var doc Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Regexp(t, `^SOP-\d{4}-0001$`, doc.Number)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, workflows.StateDraft, doc.State)

	// The allocated number is per-type and per-year sequential.
	w = doJSON(t, router, http.MethodPost, "/api/v1/documents", gin.H{
		"title":         "Deviation escalation",
		"document_type": "SOP",
		"author_id":     "author-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Regexp(t, `-0002$`, doc.Number)
}

func TestCreateValidation(t *testing.T) {
	router := newTestRouter(NewMemoryRepository(), &fakeAttempter{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents", gin.H{
		"document_type": "SOP",
		"author_id":     "author-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/documents", gin.H{
		"title":             "Deviation handling",
		"document_type":     "SOP",
		"author_id":         "author-1",
		"sensitivity_label": "TOP_SECRET",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocument(t *testing.T) {
	repo := NewMemoryRepository()
	router := newTestRouter(repo, &fakeAttempter{})
	doc := effectiveDoc("SOP-2026-0001", 1)
	require.NoError(t, repo.CreateDocument(t.Context(), doc))

	w := doJSON(t, router, http.MethodGet, "/api/v1/documents/SOP-2026-0001/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, doc.Key(), got.Key())

	w = doJSON(t, router, http.MethodGet, "/api/v1/documents/SOP-2026-0001/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/documents/SOP-2026-0001/zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFiltersByState(t *testing.T) {
	repo := NewMemoryRepository()
	router := newTestRouter(repo, &fakeAttempter{})
	require.NoError(t, repo.CreateDocument(t.Context(), effectiveDoc("SOP-2026-0001", 1)))
	draft := effectiveDoc("SOP-2026-0002", 1)
	draft.State = workflows.StateDraft
	require.NoError(t, repo.CreateDocument(t.Context(), draft))

	w := doJSON(t, router, http.MethodGet, "/api/v1/documents?state=EFFECTIVE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "SOP-2026-0001", docs[0].Number)

	w = doJSON(t, router, http.MethodGet, "/api/v1/documents?state=LIMBO", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionDelegatesToAttempter(t *testing.T) {
	repo := NewMemoryRepository()
	fake := &fakeAttempter{state: workflows.StatePendingReview}
	router := newTestRouter(repo, fake)

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents/SOP-2026-0001/1/transition", gin.H{
		"action":     "submit_for_review",
		"actor_id":   "author-1",
		"actor_role": "author",
		"payload":    gin.H{"reviewer": "reviewer-1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, fake.calls, 1)
	assert.Equal(t, Key{Number: "SOP-2026-0001", Version: 1}, fake.calls[0].key)
	assert.Equal(t, workflows.ActionSubmitForReview, fake.calls[0].action)
	assert.Equal(t, workflows.RoleAuthor, fake.calls[0].actor.Role)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING_REVIEW", resp["state"])
}

func TestTransitionErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{workflows.NotFound("SOP-2026-0001 v01.00"), http.StatusNotFound},
		{workflows.NotAllowed(workflows.StateObsolete, workflows.ActionActivate), http.StatusConflict},
		{workflows.Unauthorized("actor is not the assigned reviewer"), http.StatusForbidden},
		{workflows.GuardFailed("a reviewer must be assigned"), http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		router := newTestRouter(NewMemoryRepository(), &fakeAttempter{err: tc.err})
		w := doJSON(t, router, http.MethodPost, "/api/v1/documents/SOP-2026-0001/1/transition", gin.H{
			"action":     "activate",
			"actor_id":   "author-1",
			"actor_role": "author",
		})
		assert.Equal(t, tc.want, w.Code, "error %v", tc.err)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["code"])
	}
}

func TestTransitionRejectsUnknownRole(t *testing.T) {
	router := newTestRouter(NewMemoryRepository(), &fakeAttempter{})
	w := doJSON(t, router, http.MethodPost, "/api/v1/documents/SOP-2026-0001/1/transition", gin.H{
		"action":     "submit_for_review",
		"actor_id":   "author-1",
		"actor_role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateNextVersionEndpoint(t *testing.T) {
	repo := NewMemoryRepository()
	router := newTestRouter(repo, &fakeAttempter{})
	require.NoError(t, repo.CreateDocument(t.Context(), effectiveDoc("SOP-2026-0001", 1)))

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents/SOP-2026-0001/1/versions", gin.H{
		"author_id": "author-2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var key Key
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &key))
	assert.Equal(t, Key{Number: "SOP-2026-0001", Version: 2}, key)

	// A second renewal conflicts while the first draft is open.
	w = doJSON(t, router, http.MethodPost, "/api/v1/documents/SOP-2026-0001/1/versions", gin.H{
		"author_id": "author-2",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDependencyEndpoints(t *testing.T) {
	repo := NewMemoryRepository()
	router := newTestRouter(repo, &fakeAttempter{})
	require.NoError(t, repo.CreateDocument(t.Context(), effectiveDoc("SOP-2026-0001", 1)))
	require.NoError(t, repo.CreateDocument(t.Context(), effectiveDoc("POL-2026-0001", 1)))

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents/SOP-2026-0001/1/dependencies", gin.H{
		"depends_on_number":  "POL-2026-0001",
		"depends_on_version": 1,
		"created_by":         "author-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Closing the loop is refused.
	w = doJSON(t, router, http.MethodPost, "/api/v1/documents/POL-2026-0001/1/dependencies", gin.H{
		"depends_on_number":  "SOP-2026-0001",
		"depends_on_version": 1,
		"created_by":         "author-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/documents/SOP-2026-0001/1/dependencies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var edges []DependencyEdge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &edges))
	require.Len(t, edges, 1)
	assert.Equal(t, "POL-2026-0001", edges[0].DependsOnNumber)
}

func TestHistoryEndpoint(t *testing.T) {
	repo := NewMemoryRepository()
	router := newTestRouter(repo, &fakeAttempter{})
	doc := effectiveDoc("SOP-2026-0001", 1)
	require.NoError(t, repo.CreateDocument(t.Context(), doc))

	for i, action := range []workflows.Action{workflows.ActionSubmitForReview, workflows.ActionStartReview} {
		rec := sampleRecord(doc.Key(), action)
		rec.Comment = fmt.Sprintf("step %d", i)
		require.NoError(t, repo.AppendAudit(t.Context(), &rec))
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/documents/SOP-2026-0001/1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "submit_for_review", records[0]["action"])
	assert.Equal(t, "start_review", records[1]["action"])
}
