// Package store provides storage backends for GeoShift.
//
// This file implements the in-memory store used by tests and the demo entry.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// InMemoryStore is a thread-safe in-memory implementation of Store.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions []models.Session
	pending  map[string]models.PendingRecord
	skips    map[string]struct{} // userID|fenceID|day
	samples  []models.PingPongSample
	fences   map[string][]models.Fence
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pending: make(map[string]models.PendingRecord),
		skips:   make(map[string]struct{}),
		fences:  make(map[string][]models.Fence),
	}
}

func (s *InMemoryStore) GetOpenSession(userID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if s.sessions[i].UserID == userID && s.sessions[i].ClosedAt == nil {
			sess := s.sessions[i]
			return &sess, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) CreateSession(userID, fenceID, fenceName string, kind models.SessionKind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].UserID == userID && s.sessions[i].ClosedAt == nil {
			return "", models.ErrSessionAlreadyOpen
		}
	}
	sess := models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		FenceID:   fenceID,
		FenceName: fenceName,
		Kind:      kind,
		OpenedAt:  time.Now(),
	}
	s.sessions = append(s.sessions, sess)
	return sess.ID, nil
}

func (s *InMemoryStore) CloseSession(userID string, adjustmentMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if s.sessions[i].UserID == userID && s.sessions[i].ClosedAt == nil {
			closedAt := time.Now().Add(-time.Duration(adjustmentMinutes) * time.Minute)
			if closedAt.Before(s.sessions[i].OpenedAt) {
				closedAt = s.sessions[i].OpenedAt
			}
			s.sessions[i].ClosedAt = &closedAt
			return nil
		}
	}
	return models.ErrNoOpenSession
}

func (s *InMemoryStore) ListSessions(userID string, limit int) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Session
	for i := range s.sessions {
		if s.sessions[i].UserID == userID {
			result = append(result, s.sessions[i])
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.After(result[j].OpenedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InMemoryStore) SavePending(rec models.PendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[rec.UserID] = rec
	return nil
}

func (s *InMemoryStore) LoadPending(userID string) (*models.PendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.pending[userID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ClearPending(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
	return nil
}

func skipKey(userID, fenceID, day string) string {
	return userID + "|" + fenceID + "|" + day
}

func (s *InMemoryStore) AddSkip(userID, fenceID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skips[skipKey(userID, fenceID, day)] = struct{}{}
	return nil
}

func (s *InMemoryStore) IsSkipped(userID, fenceID, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.skips[skipKey(userID, fenceID, day)]
	return ok, nil
}

func (s *InMemoryStore) PurgeSkipsBefore(day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.skips {
		parts := key[len(key)-len(day):]
		if parts < day {
			delete(s.skips, key)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) AddSample(sample models.PingPongSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *InMemoryStore) RecentSamples(fenceID string, since time.Time) ([]models.PingPongSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.PingPongSample
	for _, sample := range s.samples {
		if sample.FenceID == fenceID && !sample.Timestamp.Before(since) {
			result = append(result, sample)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *InMemoryStore) PurgeSamplesBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.samples[:0]
	removed := 0
	for _, sample := range s.samples {
		if sample.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, sample)
	}
	s.samples = kept
	return removed, nil
}

func (s *InMemoryStore) ListFences(userID string) ([]models.Fence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fences := make([]models.Fence, len(s.fences[userID]))
	copy(fences, s.fences[userID])
	return fences, nil
}

func (s *InMemoryStore) ReplaceFences(userID string, fences []models.Fence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]models.Fence, len(fences))
	copy(copied, fences)
	s.fences[userID] = copied
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
