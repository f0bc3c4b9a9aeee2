// Package store provides persistence for documents, templates, access attempts
// and carrier objects, backed by MongoDB or by memory.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/root-sector/docvault/types"
)

// MemoryObjectStore implements interfaces.ObjectStore in memory
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStore creates an empty object store
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

// Put stores a copy of data
func (s *MemoryObjectStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the object or types.ErrNotFound
func (s *MemoryObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q: %w", key, types.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// MemoryDocumentStore implements interfaces.DocumentStore in memory
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*types.DocumentRecord
}

// NewMemoryDocumentStore creates an empty document store
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]*types.DocumentRecord)}
}

// Create inserts a new record
func (s *MemoryDocumentStore) Create(ctx context.Context, record *types.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[record.ID]; exists {
		return fmt.Errorf("%w: document %q already exists", types.ErrValidation, record.ID)
	}
	s.docs[record.ID] = record.Clone()
	return nil
}

// Get returns a snapshot of the record
func (s *MemoryDocumentStore) Get(ctx context.Context, id string) (*types.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, types.ErrNotFound)
	}
	return rec.Clone(), nil
}

// UpdateWindow replaces the access window of a document
func (s *MemoryDocumentStore) UpdateWindow(ctx context.Context, id string, window types.AccessWindow, updatedAt time.Time) error {
	return s.update(ctx, id, func(rec *types.DocumentRecord) {
		rec.Window = window
		rec.UpdatedAt = updatedAt
	})
}

// MarkRevoked sets the terminal revoked status
func (s *MemoryDocumentStore) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	return s.update(ctx, id, func(rec *types.DocumentRecord) {
		rec.Status = types.DocumentRevoked
		rec.RevokedAt = &revokedAt
		rec.UpdatedAt = revokedAt
	})
}

func (s *MemoryDocumentStore) update(ctx context.Context, id string, fn func(rec *types.DocumentRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q: %w", id, types.ErrNotFound)
	}
	next := rec.Clone()
	fn(next)
	s.docs[id] = next
	return nil
}

// ListByOwner returns the owner's documents ordered by creation time
func (s *MemoryDocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]*types.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*types.DocumentRecord, 0)
	for _, rec := range s.docs {
		if rec.OwnerID == ownerID {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryTemplateStore implements interfaces.TemplateStore in memory. Stored
// templates are never mutated; Replace swaps whole values.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]*types.BiometricTemplate
}

type templateKey struct {
	owner string
	kind  types.BiometricKind
}

// NewMemoryTemplateStore creates an empty template store
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[templateKey]*types.BiometricTemplate)}
}

// Get returns a snapshot of the active template
func (s *MemoryTemplateStore) Get(ctx context.Context, ownerID string, kind types.BiometricKind) (*types.BiometricTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := s.templates[templateKey{ownerID, kind}]
	s.mu.RUnlock()
	if !ok {
		return nil, types.ErrTemplateNotFound
	}
	return t.Clone(), nil
}

// Replace stores a copy of template as the active one
func (s *MemoryTemplateStore) Replace(ctx context.Context, template *types.BiometricTemplate) (*types.BiometricTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := template.Clone()
	s.mu.Lock()
	s.templates[templateKey{stored.OwnerID, stored.Kind}] = stored
	s.mu.Unlock()
	return stored.Clone(), nil
}

// Delete removes a template. Removing a missing template returns ErrTemplateNotFound.
func (s *MemoryTemplateStore) Delete(ctx context.Context, ownerID string, kind types.BiometricKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := templateKey{ownerID, kind}
	if _, ok := s.templates[key]; !ok {
		return types.ErrTemplateNotFound
	}
	delete(s.templates, key)
	return nil
}

// DeleteOwner removes all of an owner's templates
func (s *MemoryTemplateStore) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.templates {
		if key.owner == ownerID {
			delete(s.templates, key)
			removed++
		}
	}
	return removed, nil
}

// MemoryAttemptStore implements interfaces.AttemptStore in memory
type MemoryAttemptStore struct {
	mu       sync.RWMutex
	attempts map[string][]types.AccessAttempt
}

// NewMemoryAttemptStore creates an empty attempt store
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{attempts: make(map[string][]types.AccessAttempt)}
}

// Append records an attempt
func (s *MemoryAttemptStore) Append(ctx context.Context, attempt *types.AccessAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a := *attempt
	if attempt.SimilarityScore != nil {
		v := *attempt.SimilarityScore
		a.SimilarityScore = &v
	}
	s.mu.Lock()
	s.attempts[a.DocumentID] = append(s.attempts[a.DocumentID], a)
	s.mu.Unlock()
	return nil
}

// List returns a document's attempts in sequence order
func (s *MemoryAttemptStore) List(ctx context.Context, documentID string) ([]*types.AccessAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	stored := s.attempts[documentID]
	out := make([]*types.AccessAttempt, len(stored))
	for i := range stored {
		a := stored[i]
		out[i] = &a
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// LastSequence returns the highest sequence recorded for a document
func (s *MemoryAttemptStore) LastSequence(ctx context.Context, documentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last int64
	for _, a := range s.attempts[documentID] {
		if a.Sequence > last {
			last = a.Sequence
		}
	}
	return last, nil
}
