package documents

import (
	"context"

	"quality-portal/document-control-backend/internal/audit"
	"quality-portal/document-control-backend/pkg/workflows"
)

// Repository is the durable state owned by the workflow engine: document
// versions, dependency edges, and the append-only transition audit log.
//
// Get methods return (nil, nil) when no row exists.
type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, key Key) (*Document, error)
	ListDocuments(ctx context.Context, states ...workflows.State) ([]Document, error)
	ListVersions(ctx context.Context, number string) ([]Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error)

	// ApplyTransition persists the mutated document and appends the audit
	// record atomically: either both are durable or neither is.
	ApplyTransition(ctx context.Context, doc *Document, rec *audit.TransitionRecord) error

	// AppendAudit records a transition attempt that did not change state.
	AppendAudit(ctx context.Context, rec *audit.TransitionRecord) error
	ListAudit(ctx context.Context, key Key) ([]audit.TransitionRecord, error)

	CreateEdge(ctx context.Context, edge *DependencyEdge) error
	// ListEdgesFrom returns the edges whose dependent side is key.
	ListEdgesFrom(ctx context.Context, key Key) ([]DependencyEdge, error)
}
