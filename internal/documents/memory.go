package documents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quality-portal/document-control-backend/internal/audit"
	"quality-portal/document-control-backend/pkg/workflows"
)

// memoryRepository is a Repository kept entirely in process memory. It backs
// the dev mode of the API server and the engine's scenario tests, where a
// Postgres instance would add nothing but setup cost.
type memoryRepository struct {
	mu      sync.RWMutex
	docs    map[Key]Document
	records []audit.TransitionRecord
	edges   []DependencyEdge
	seq     map[string]int
}

// NewMemoryRepository returns an empty in-memory Repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		docs: make(map[Key]Document),
		seq:  make(map[string]int),
	}
}

func (r *memoryRepository) CreateDocument(ctx context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := doc.Key()
	if _, exists := r.docs[key]; exists {
		return fmt.Errorf("document %s already exists", key)
	}
	r.docs[key] = *doc
	return nil
}

func (r *memoryRepository) GetDocument(ctx context.Context, key Key) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[key]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (r *memoryRepository) ListDocuments(ctx context.Context, states ...workflows.State) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[workflows.State]bool, len(states))
	for _, s := range states {
		wanted[s] = true
	}
	var docs []Document
	for _, doc := range r.docs {
		if len(states) == 0 || wanted[doc.State] {
			docs = append(docs, doc)
		}
	}
	sortDocs(docs)
	return docs, nil
}

func (r *memoryRepository) ListVersions(ctx context.Context, number string) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var docs []Document
	for _, doc := range r.docs {
		if doc.Number == number {
			docs = append(docs, doc)
		}
	}
	sortDocs(docs)
	return docs, nil
}

func sortDocs(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Number != docs[j].Number {
			return docs[i].Number < docs[j].Number
		}
		return docs[i].Version < docs[j].Version
	})
}

func (r *memoryRepository) UpdateDocument(ctx context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(doc)
}

func (r *memoryRepository) updateLocked(doc *Document) error {
	key := doc.Key()
	if _, ok := r.docs[key]; !ok {
		return fmt.Errorf("document %s not found", key)
	}
	r.docs[key] = *doc
	return nil
}

func (r *memoryRepository) NextDocumentNumber(ctx context.Context, prefix string, year int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter := fmt.Sprintf("%s-%d", prefix, year)
	r.seq[counter]++
	return fmt.Sprintf("%s-%04d", counter, r.seq[counter]), nil
}

func (r *memoryRepository) ApplyTransition(ctx context.Context, doc *Document, rec *audit.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateLocked(doc); err != nil {
		return err
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *memoryRepository) AppendAudit(ctx context.Context, rec *audit.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *memoryRepository) ListAudit(ctx context.Context, key Key) ([]audit.TransitionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var records []audit.TransitionRecord
	for _, rec := range r.records {
		if rec.Number == key.Number && rec.Version == key.Version {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *memoryRepository) CreateEdge(ctx context.Context, edge *DependencyEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, *edge)
	return nil
}

func (r *memoryRepository) ListEdgesFrom(ctx context.Context, key Key) ([]DependencyEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var edges []DependencyEdge
	for _, e := range r.edges {
		if e.DependentNumber == key.Number && e.DependentVersion == key.Version {
			edges = append(edges, e)
		}
	}
	return edges, nil
}
