package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// ttlMap is a mutex guarded map whose entries expire lazily on read
type ttlMap struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

func newTTLMap(now func() time.Time) *ttlMap {
	if now == nil {
		now = time.Now
	}
	return &ttlMap{data: make(map[string]entry), now: now}
}

// getLocked returns a live value and drops it if it has expired
func (m *ttlMap) getLocked(key string) (string, bool) {
	e, ok := m.data[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return "", false
	}
	return e.value, true
}

func (m *ttlMap) setLocked(key, value string, ttl time.Duration) {
	m.data[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
}

// MemoryRefreshStore is an in-memory implementation of the RefreshRecordStore interface
type MemoryRefreshStore struct {
	m *ttlMap
}

var _ ports.RefreshRecordStore = (*MemoryRefreshStore)(nil)

// NewMemoryRefreshStore creates a new in-memory refresh record store.
// A nil clock uses time.Now.
func NewMemoryRefreshStore(now func() time.Time) *MemoryRefreshStore {
	return &MemoryRefreshStore{m: newTTLMap(now)}
}

// Put overwrites the refresh record for a principal
func (s *MemoryRefreshStore) Put(ctx context.Context, principalID, refreshToken string, ttl time.Duration) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.m.setLocked(principalID, refreshToken, ttl)
	return nil
}

// Get returns the current refresh token for a principal
func (s *MemoryRefreshStore) Get(ctx context.Context, principalID string) (string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	value, ok := s.m.getLocked(principalID)
	if !ok {
		return "", core.ErrRefreshRecordAbsent
	}
	return value, nil
}

// Delete removes the refresh record for a principal
func (s *MemoryRefreshStore) Delete(ctx context.Context, principalID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	delete(s.m.data, principalID)
	return nil
}

// CompareAndSwap rotates the refresh record under the store lock
func (s *MemoryRefreshStore) CompareAndSwap(ctx context.Context, principalID, current, next string, ttl time.Duration) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	value, ok := s.m.getLocked(principalID)
	if !ok {
		return core.ErrRefreshRecordAbsent
	}
	if value != current {
		return core.ErrRefreshTokenMismatch
	}
	s.m.setLocked(principalID, next, ttl)
	return nil
}

// MemoryChallengeStore is an in-memory implementation of the ChallengeStore interface
type MemoryChallengeStore struct {
	m *ttlMap
}

var _ ports.ChallengeStore = (*MemoryChallengeStore)(nil)

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore(now func() time.Time) *MemoryChallengeStore {
	return &MemoryChallengeStore{m: newTTLMap(now)}
}

// Save stores a challenge answer with its TTL
func (s *MemoryChallengeStore) Save(ctx context.Context, sessionID, answer string, ttl time.Duration) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.m.setLocked(sessionID, answer, ttl)
	return nil
}

// Consume deletes the challenge only when the answer matches
func (s *MemoryChallengeStore) Consume(ctx context.Context, sessionID, answer string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	value, ok := s.m.getLocked(sessionID)
	if !ok || value != answer {
		return false, nil
	}
	delete(s.m.data, sessionID)
	return true, nil
}

// Delete removes a challenge regardless of its answer
func (s *MemoryChallengeStore) Delete(ctx context.Context, sessionID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	delete(s.m.data, sessionID)
	return nil
}
