package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance-session-service/internal/domain"
)

// stubRosterRepo counts lookups so tests can observe cache hits.
type stubRosterRepo struct {
	managed      map[string][]string
	own          map[string][]string
	managedCalls int
	ownCalls     int
}

func (s *stubRosterRepo) StudentsInClass(string) ([]string, error) { return nil, nil }

func (s *stubRosterRepo) ClassesOfStudent(studentID string) ([]string, error) {
	s.ownCalls++
	return s.own[studentID], nil
}

func (s *stubRosterRepo) ClassesManagedBy(userID string) ([]string, error) {
	s.managedCalls++
	return s.managed[userID], nil
}

func (s *stubRosterRepo) AddEnrollment(string, string) error   { return nil }
func (s *stubRosterRepo) AddManagedClass(string, string) error { return nil }

func TestScopeResolverUsesClaimsForOwnClasses(t *testing.T) {
	roster := &stubRosterRepo{own: map[string][]string{"u1": {"from-roster"}}}
	resolver := NewScopeResolver(NewNoopRosterCacheStore(), roster, time.Minute)

	scope, err := resolver.Resolve(context.Background(), Actor{ID: "u1", Role: domain.RoleStudent, ClassIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(scope.OwnClassIDs) != 1 || scope.OwnClassIDs[0] != "c1" {
		t.Fatalf("expected claims-provided classes, got %v", scope.OwnClassIDs)
	}
	if roster.ownCalls != 0 {
		t.Fatalf("claims must satisfy own classes without a roster read, got %d calls", roster.ownCalls)
	}
}

func TestScopeResolverFallsBackToRosterForOwnClasses(t *testing.T) {
	roster := &stubRosterRepo{own: map[string][]string{"u1": {"c7"}}}
	resolver := NewScopeResolver(NewNoopRosterCacheStore(), roster, time.Minute)

	scope, err := resolver.Resolve(context.Background(), Actor{ID: "u1", Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(scope.OwnClassIDs) != 1 || scope.OwnClassIDs[0] != "c7" {
		t.Fatalf("expected roster fallback, got %v", scope.OwnClassIDs)
	}
	if roster.ownCalls != 1 {
		t.Fatalf("expected one roster read, got %d", roster.ownCalls)
	}
}

func TestScopeResolverCachesManagedClasses(t *testing.T) {
	roster := &stubRosterRepo{managed: map[string][]string{"u1": {"c1", "c2"}}}
	resolver := NewScopeResolver(NewInMemoryRosterCacheStore(), roster, time.Minute)
	actor := Actor{ID: "u1", Role: domain.RoleCounselor, ClassIDs: []string{"ignored"}}

	for i := 0; i < 3; i++ {
		scope, err := resolver.Resolve(context.Background(), actor)
		if err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
		if len(scope.ManagedClassIDs) != 2 {
			t.Fatalf("resolve #%d: expected 2 managed classes, got %v", i, scope.ManagedClassIDs)
		}
	}
	if roster.managedCalls != 1 {
		t.Fatalf("expected a single roster read behind the cache, got %d", roster.managedCalls)
	}

	if err := resolver.InvalidateUser(context.Background(), "u1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), actor); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if roster.managedCalls != 2 {
		t.Fatalf("invalidation must force a refetch, got %d calls", roster.managedCalls)
	}
}

func TestScopeResolverZeroTTLSkipsCache(t *testing.T) {
	roster := &stubRosterRepo{managed: map[string][]string{"u1": {"c1"}}}
	resolver := NewScopeResolver(NewInMemoryRosterCacheStore(), roster, 0)
	actor := Actor{ID: "u1", Role: domain.RoleCounselor, ClassIDs: []string{"c1"}}

	for i := 0; i < 2; i++ {
		if _, err := resolver.Resolve(context.Background(), actor); err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
	}
	if roster.managedCalls != 2 {
		t.Fatalf("zero ttl must bypass the cache, got %d calls", roster.managedCalls)
	}
}

func TestScopeResolverRejectsMissingActorID(t *testing.T) {
	resolver := NewScopeResolver(NewNoopRosterCacheStore(), &stubRosterRepo{}, time.Minute)
	_, err := resolver.Resolve(context.Background(), Actor{Role: domain.RoleAdmin})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing actor id, got %v", err)
	}
}
