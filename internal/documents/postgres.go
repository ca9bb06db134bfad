package documents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"quality-portal/document-control-backend/internal/audit"
	"quality-portal/document-control-backend/pkg/workflows"
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns the production Repository backed by Postgres.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (
			number, version, title, document_type, sensitivity_label, state,
			author_id, reviewer_id, approver_id, effective_date, review_due,
			predecessor_version, state_entered_at, escalated_at, rejection_reason,
			created_at, updated_at
		) VALUES (
			:number, :version, :title, :document_type, :sensitivity_label, :state,
			:author_id, :reviewer_id, :approver_id, :effective_date, :review_due,
			:predecessor_version, :state_entered_at, :escalated_at, :rejection_reason,
			:created_at, :updated_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

func (r *postgresRepository) GetDocument(ctx context.Context, key Key) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc,
		"SELECT * FROM documents WHERE number = $1 AND version = $2", key.Number, key.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &doc, err
}

func (r *postgresRepository) ListDocuments(ctx context.Context, states ...workflows.State) ([]Document, error) {
	docs := []Document{}
	if len(states) == 0 {
		err := r.db.SelectContext(ctx, &docs, "SELECT * FROM documents ORDER BY number, version")
		return docs, err
	}
	query, args, err := sqlx.In("SELECT * FROM documents WHERE state IN (?) ORDER BY number, version", states)
	if err != nil {
		return nil, err
	}
	err = r.db.SelectContext(ctx, &docs, r.db.Rebind(query), args...)
	return docs, err
}

func (r *postgresRepository) ListVersions(ctx context.Context, number string) ([]Document, error) {
	docs := []Document{}
	err := r.db.SelectContext(ctx, &docs,
		"SELECT * FROM documents WHERE number = $1 ORDER BY version", number)
	return docs, err
}

func (r *postgresRepository) UpdateDocument(ctx context.Context, doc *Document) error {
	return updateDocument(ctx, r.db, doc)
}

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

func updateDocument(ctx context.Context, e namedExecer, doc *Document) error {
	query := `
		UPDATE documents SET
			title = :title,
			sensitivity_label = :sensitivity_label,
			state = :state,
			reviewer_id = :reviewer_id,
			approver_id = :approver_id,
			effective_date = :effective_date,
			review_due = :review_due,
			state_entered_at = :state_entered_at,
			escalated_at = :escalated_at,
			rejection_reason = :rejection_reason,
			updated_at = :updated_at
		WHERE number = :number AND version = :version`
	res, err := e.NamedExecContext(ctx, query, doc)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s not found", doc.Key())
	}
	return nil
}

func (r *postgresRepository) NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error) {
	var seq int
	err := r.db.GetContext(ctx, &seq, `
		INSERT INTO document_numbers (prefix, year, seq) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET seq = document_numbers.seq + 1
		RETURNING seq`, prefix, year)
	if err != nil {
		return "", fmt.Errorf("failed to allocate document number: %w", err)
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq), nil
}

func (r *postgresRepository) ApplyTransition(ctx context.Context, doc *Document, rec *audit.TransitionRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateDocument(ctx, tx, doc); err != nil {
		return err
	}
	if err := appendAudit(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepository) AppendAudit(ctx context.Context, rec *audit.TransitionRecord) error {
	return appendAudit(ctx, r.db, rec)
}

func appendAudit(ctx context.Context, e namedExecer, rec *audit.TransitionRecord) error {
	query := `
		INSERT INTO workflow_transitions (
			id, number, version, from_state, to_state, action,
			actor_id, actor_role, outcome, reason, comment, created_at
		) VALUES (
			:id, :number, :version, :from_state, :to_state, :action,
			:actor_id, :actor_role, :outcome, :reason, :comment, :created_at
		)`
	_, err := e.NamedExecContext(ctx, query, rec)
	return err
}

func (r *postgresRepository) ListAudit(ctx context.Context, key Key) ([]audit.TransitionRecord, error) {
	records := []audit.TransitionRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM workflow_transitions
		WHERE number = $1 AND version = $2
		ORDER BY created_at, id`, key.Number, key.Version)
	return records, err
}

func (r *postgresRepository) CreateEdge(ctx context.Context, edge *DependencyEdge) error {
	query := `
		INSERT INTO dependency_edges (
			id, dependent_number, dependent_version, depends_on_number,
			depends_on_version, note, created_by, created_at
		) VALUES (
			:id, :dependent_number, :dependent_version, :depends_on_number,
			:depends_on_version, :note, :created_by, :created_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, edge)
	return err
}

func (r *postgresRepository) ListEdgesFrom(ctx context.Context, key Key) ([]DependencyEdge, error) {
	edges := []DependencyEdge{}
	err := r.db.SelectContext(ctx, &edges, `
		SELECT * FROM dependency_edges
		WHERE dependent_number = $1 AND dependent_version = $2
		ORDER BY created_at, id`, key.Number, key.Version)
	return edges, err
}
