package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"quality-portal/document-control-backend/pkg/workflows"
)

// DocumentType classifies a controlled document.
type DocumentType string

const (
	TypePolicy          DocumentType = "POLICY"
	TypeSOP             DocumentType = "SOP"
	TypeWorkInstruction DocumentType = "WORK_INSTRUCTION"
)

// NumberPrefix returns the prefix used when allocating document numbers of
// this type, e.g. SOP-2026-0001.
func (t DocumentType) NumberPrefix() string {
	switch t {
	case TypePolicy:
		return "POL"
	case TypeWorkInstruction:
		return "WI"
	default:
		return "SOP"
	}
}

// SensitivityLabel is the classification tag attached to a document version.
type SensitivityLabel string

const (
	SensitivityPublic       SensitivityLabel = "PUBLIC"
	SensitivityInternal     SensitivityLabel = "INTERNAL"
	SensitivityConfidential SensitivityLabel = "CONFIDENTIAL"
)

// Valid reports whether l is a known label.
func (l SensitivityLabel) Valid() bool {
	switch l {
	case SensitivityPublic, SensitivityInternal, SensitivityConfidential:
		return true
	}
	return false
}

// Key uniquely identifies one version of a controlled document.
type Key struct {
	Number  string `json:"number"`
	Version int    `json:"version"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s v%02d.00", k.Number, k.Version)
}

// Document is one version of a controlled document. Versions are never hard
// deleted; superseded versions move to OBSOLETE and remain for audit.
type Document struct {
	Number             string           `json:"number" db:"number"`
	Version            int              `json:"version" db:"version"`
	Title              string           `json:"title" db:"title"`
	DocumentType       DocumentType     `json:"document_type" db:"document_type"`
	SensitivityLabel   SensitivityLabel `json:"sensitivity_label,omitempty" db:"sensitivity_label"`
	State              workflows.State  `json:"state" db:"state"`
	AuthorID           string           `json:"author_id" db:"author_id"`
	ReviewerID         string           `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ApproverID         string           `json:"approver_id,omitempty" db:"approver_id"`
	EffectiveDate      *time.Time       `json:"effective_date,omitempty" db:"effective_date"`
	ReviewDue          *time.Time       `json:"review_due,omitempty" db:"review_due"`
	PredecessorVersion *int             `json:"predecessor_version,omitempty" db:"predecessor_version"`
	StateEnteredAt     time.Time        `json:"state_entered_at" db:"state_entered_at"`
	EscalatedAt        *time.Time       `json:"escalated_at,omitempty" db:"escalated_at"`
	RejectionReason    string           `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// Key returns the document's unique identity.
func (d *Document) Key() Key {
	return Key{Number: d.Number, Version: d.Version}
}

// PredecessorKey returns the key of the version this one was created from.
func (d *Document) PredecessorKey() (Key, bool) {
	if d.PredecessorVersion == nil {
		return Key{}, false
	}
	return Key{Number: d.Number, Version: *d.PredecessorVersion}, true
}

// Snapshot builds the guard view of the document. SupersededByEffective is
// filled in by the executor where the supersede action needs it.
func (d *Document) Snapshot() workflows.Snapshot {
	return workflows.Snapshot{
		State:            d.State,
		AuthorID:         d.AuthorID,
		ReviewerID:       d.ReviewerID,
		ApproverID:       d.ApproverID,
		SensitivityLabel: string(d.SensitivityLabel),
		EffectiveDate:    d.EffectiveDate,
		ReviewDue:        d.ReviewDue,
		HasPredecessor:   d.PredecessorVersion != nil,
		StateEnteredAt:   d.StateEnteredAt,
		EscalatedAt:      d.EscalatedAt,
	}
}

// DependencyEdge is a directed relation: the dependent document's content
// depends on the depended-upon document. Edges must not form a cycle at
// creation time; copies made during up-versioning are not re-validated.
type DependencyEdge struct {
	ID               uuid.UUID `json:"id" db:"id"`
	DependentNumber  string    `json:"dependent_number" db:"dependent_number"`
	DependentVersion int       `json:"dependent_version" db:"dependent_version"`
	DependsOnNumber  string    `json:"depends_on_number" db:"depends_on_number"`
	DependsOnVersion int       `json:"depends_on_version" db:"depends_on_version"`
	Note             string    `json:"note,omitempty" db:"note"`
	CreatedBy        string    `json:"created_by" db:"created_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// DependentKey returns the edge's dependent side.
func (e *DependencyEdge) DependentKey() Key {
	return Key{Number: e.DependentNumber, Version: e.DependentVersion}
}

// DependsOnKey returns the edge's depended-upon side.
func (e *DependencyEdge) DependsOnKey() Key {
	return Key{Number: e.DependsOnNumber, Version: e.DependsOnVersion}
}
