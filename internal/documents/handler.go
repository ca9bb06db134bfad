package documents

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quality-portal/document-control-backend/pkg/workflows"
)

// Handler exposes the inbound workflow API. Actor identity arrives pre-resolved
// in the request body; authentication is a collaborator outside this service.
type Handler struct {
	repo      Repository
	attempter Attempter
	versions  *VersionManager
	logger    *zap.Logger
}

// NewHandler creates the documents HTTP handler.
func NewHandler(repo Repository, attempter Attempter, versions *VersionManager, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, attempter: attempter, versions: versions, logger: logger}
}

// RegisterRoutes mounts the document workflow routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	{
		docs.POST("", h.Create)
		docs.GET("", h.List)
		docs.GET("/:number/:version", h.Get)
		docs.POST("/:number/:version/transition", h.Transition)
		docs.POST("/:number/:version/versions", h.CreateNextVersion)
		docs.POST("/:number/:version/dependencies", h.AddDependency)
		docs.GET("/:number/:version/dependencies", h.ListDependencies)
		docs.GET("/:number/:version/history", h.History)
	}
}

// CreateRequest creates a new DRAFT document. An empty number requests
// allocation from the per-type, per-year sequence.
type CreateRequest struct {
	Number           string           `json:"number"`
	Title            string           `json:"title" binding:"required"`
	DocumentType     DocumentType     `json:"document_type" binding:"required"`
	AuthorID         string           `json:"author_id" binding:"required"`
	SensitivityLabel SensitivityLabel `json:"sensitivity_label"`
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SensitivityLabel != "" && !req.SensitivityLabel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sensitivity label"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()

	number := req.Number
	if number == "" {
		var err error
		number, err = h.repo.NextDocumentNumber(ctx, req.DocumentType.NumberPrefix(), now.Year())
		if err != nil {
			h.logger.Error("document number allocation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to allocate document number"})
			return
		}
	}

	doc := &Document{
		Number:           number,
		Version:          1,
		Title:            req.Title,
		DocumentType:     req.DocumentType,
		SensitivityLabel: req.SensitivityLabel,
		State:            workflows.StateDraft,
		AuthorID:         req.AuthorID,
		StateEnteredAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.repo.CreateDocument(ctx, doc); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) List(c *gin.Context) {
	var states []workflows.State
	if s := c.Query("state"); s != "" {
		state := workflows.State(s)
		if !state.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state"})
			return
		}
		states = append(states, state)
	}

	docs, err := h.repo.ListDocuments(c.Request.Context(), states...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) Get(c *gin.Context) {
	key, ok := h.keyParam(c)
	if !ok {
		return
	}
	doc, err := h.repo.GetDocument(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// TransitionRequest submits one transition attempt.
type TransitionRequest struct {
	Action    workflows.Action  `json:"action" binding:"required"`
	ActorID   string            `json:"actor_id" binding:"required"`
	ActorRole workflows.Role    `json:"actor_role" binding:"required"`
	Payload   workflows.Payload `json:"payload"`
}

func (h *Handler) Transition(c *gin.Context) {
	key, ok := h.keyParam(c)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.ActorRole.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown actor role"})
		return
	}

	actor := workflows.Actor{ID: req.ActorID, Role: req.ActorRole}
	state, err := h.attempter.Attempt(c.Request.Context(), key, req.Action, actor, req.Payload)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"number": key.Number, "version": key.Version, "state": state})
}

// NextVersionRequest creates the successor DRAFT of an EFFECTIVE document.
type NextVersionRequest struct {
	AuthorID string `json:"author_id" binding:"required"`
}

func (h *Handler) CreateNextVersion(c *gin.Context) {
	key, ok := h.keyParam(c)
	if !ok {
		return
	}
	var req NextVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next, err := h.versions.CreateNextVersion(c.Request.Context(), key, req.AuthorID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, next)
}

// DependencyRequest adds a manual dependency edge from this document.
type DependencyRequest struct {
	DependsOnNumber  string `json:"depends_on_number" binding:"required"`
	DependsOnVersion int    `json:"depends_on_version" binding:"required"`
	CreatedBy        string `json:"created_by" binding:"required"`
}

func (h *Handler) AddDependency(c *gin.Context) {
	key, ok := h.keyParam(c)
	if !ok {
		return
	}
	var req DependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edge, err := h.versions.AddDependency(c.Request.Context(), key,
		Key{Number: req.DependsOnNumber, Version: req.DependsOnVersion}, req.CreatedBy)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

func (h *Handler) ListDependencies(c *gin.Context) {
	key, ok := h.keyParam(c)
	if !ok {
		return
	}
	edges, err := h.repo.ListEdgesFrom(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, edges)
}

func (h *Handler) History(c *gin.Context) {
	key, ok := h.keyParam(c)
	if !ok {
		return
	}
	records, err := h.repo.ListAudit(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) keyParam(c *gin.Context) (Key, bool) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return Key{}, false
	}
	return Key{Number: c.Param("number"), Version: version}, true
}

// renderError maps the rejection taxonomy onto HTTP statuses.
func (h *Handler) renderError(c *gin.Context, err error) {
	var rej *workflows.Rejection
	if errors.As(err, &rej) {
		status := http.StatusInternalServerError
		switch rej.Code {
		case workflows.CodeDocumentNotFound:
			status = http.StatusNotFound
		case workflows.CodeInvalidTransition:
			status = http.StatusConflict
		case workflows.CodeUnauthorizedActor:
			status = http.StatusForbidden
		case workflows.CodeGuardNotSatisfied:
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": rej.Reason, "code": rej.Code})
		return
	}

	switch {
	case errors.Is(err, ErrPredecessorNotEffective), errors.Is(err, ErrRenewalInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDependencyCycle):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
