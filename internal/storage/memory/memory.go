// Package memory provides the in-memory submission store used by default and
// in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tempwallets/txrelay/internal/storage"
)

// Store is a mutex-guarded in-memory SubmissionStore.
type Store struct {
	mu      sync.RWMutex
	records map[string]storage.SubmissionRecord
}

var _ storage.SubmissionStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]storage.SubmissionRecord)}
}

func (s *Store) CreateSubmission(ctx context.Context, rec storage.SubmissionRecord) (storage.SubmissionRecord, error) {
	_ = ctx
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, rec storage.SubmissionRecord) (storage.SubmissionRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		return storage.SubmissionRecord{}, storage.ErrNotFound
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (storage.SubmissionRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return storage.SubmissionRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListSubmissionsByAccount(ctx context.Context, accountKey string, limit int) ([]storage.SubmissionRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.SubmissionRecord
	for _, rec := range s.records {
		if rec.AccountKey == accountKey {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
