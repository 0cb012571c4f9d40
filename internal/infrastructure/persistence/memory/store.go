// Package memory provides an in-process thesis store and lineage locker.
// It backs unit tests and single-process runs without Redis.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// Store implements thesis.Repository with copy-on-read semantics.
type Store struct {
	mu        sync.RWMutex
	byID      map[shared.LineageID]*thesis.Thesis
	byStudent map[shared.UserID]shared.LineageID
}

var _ thesis.Repository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byID:      make(map[shared.LineageID]*thesis.Thesis),
		byStudent: make(map[shared.UserID]shared.LineageID),
	}
}

// Get returns a copy of the stored lineage.
func (s *Store) Get(ctx context.Context, id shared.LineageID) (*thesis.Thesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrThesisNotFound
	}
	return t.Clone(), nil
}

// GetByStudent returns a copy of the student's lineage.
func (s *Store) GetByStudent(ctx context.Context, studentID shared.UserID) (*thesis.Thesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byStudent[studentID]
	if !ok {
		return nil, shared.ErrThesisNotFound
	}
	return s.byID[id].Clone(), nil
}

// Save applies the transition if the stored revision matches.
func (s *Store) Save(ctx context.Context, tr *thesis.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tr == nil || tr.Thesis == nil {
		return shared.NewDomainError("thesis", "Save", shared.ErrInvalidInput, "transition is required")
	}
	next := tr.Thesis

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.byID[next.Lineage.ID]
	switch {
	case tr.ExpectedRevision == 0 && exists:
		return shared.ErrStaleRevision
	case tr.ExpectedRevision == 0:
		if _, taken := s.byStudent[next.Lineage.StudentID]; taken {
			return shared.ErrStaleRevision
		}
	case !exists:
		return shared.ErrThesisNotFound
	case current.Revision != tr.ExpectedRevision:
		return shared.ErrStaleRevision
	}

	if exists && !next.Ledger.Extends(current.Ledger) {
		return shared.WrapError("thesis", "Save", shared.ErrInvariantViolation,
			"ledger does not extend the stored one", shared.ErrInvalidVersionSequence)
	}

	s.byID[next.Lineage.ID] = next.Clone()
	s.byStudent[next.Lineage.StudentID] = next.Lineage.ID
	return nil
}

// ListByStatus returns copies ordered by last update, newest first.
func (s *Store) ListByStatus(ctx context.Context, status thesis.Status, page shared.Pagination) ([]*thesis.Thesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var matched []*thesis.Thesis
	for _, t := range s.byID {
		if t.State.Status == status {
			matched = append(matched, t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.State.UpdatedAt.Equal(b.State.UpdatedAt) {
			return a.State.UpdatedAt.After(b.State.UpdatedAt)
		}
		return a.Lineage.ID < b.Lineage.ID
	})

	start := page.Offset()
	if start >= len(matched) {
		return []*thesis.Thesis{}, nil
	}
	end := start + page.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// Len returns the number of stored lineages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
