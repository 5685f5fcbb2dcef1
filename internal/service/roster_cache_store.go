package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RosterCacheStore caches the managed-class set per user so the policy scope
// for every request does not hit the roster tables. Invalidation is by epoch
// bump, so stale entries simply stop being addressable.
type RosterCacheStore interface {
	Get(ctx context.Context, userID string) ([]string, bool, error)
	Set(ctx context.Context, userID string, classIDs []string, ttl time.Duration) error
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

type NoopRosterCacheStore struct{}

func NewNoopRosterCacheStore() *NoopRosterCacheStore { return &NoopRosterCacheStore{} }

func (s *NoopRosterCacheStore) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, nil
}

func (s *NoopRosterCacheStore) Set(context.Context, string, []string, time.Duration) error {
	return nil
}

func (s *NoopRosterCacheStore) InvalidateUser(context.Context, string) error { return nil }

func (s *NoopRosterCacheStore) InvalidateAll(context.Context) error { return nil }

type rosterCacheEntry struct {
	classIDs  []string
	expiresAt time.Time
}

type InMemoryRosterCacheStore struct {
	mu          sync.RWMutex
	data        map[string]rosterCacheEntry
	globalEpoch uint64
	userEpoch   map[string]uint64
}

func NewInMemoryRosterCacheStore() *InMemoryRosterCacheStore {
	return &InMemoryRosterCacheStore{
		data:      make(map[string]rosterCacheEntry),
		userEpoch: make(map[string]uint64),
	}
}

func (s *InMemoryRosterCacheStore) Get(_ context.Context, userID string) ([]string, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	key := s.cacheKeyLocked(userID)
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]string(nil), entry.classIDs...), true, nil
}

func (s *InMemoryRosterCacheStore) Set(_ context.Context, userID string, classIDs []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.cacheKeyLocked(userID)] = rosterCacheEntry{
		classIDs:  append([]string(nil), classIDs...),
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryRosterCacheStore) InvalidateUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userEpoch[userID]++
	return nil
}

func (s *InMemoryRosterCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalEpoch++
	return nil
}

func (s *InMemoryRosterCacheStore) cacheKeyLocked(userID string) string {
	return buildRosterCacheKey(s.globalEpoch, s.userEpoch[userID], userID)
}

func buildRosterCacheKey(globalEpoch, userEpoch uint64, userID string) string {
	return fmt.Sprintf("managedcls:g%d:u%d:user:%s", globalEpoch, userEpoch, userID)
}
