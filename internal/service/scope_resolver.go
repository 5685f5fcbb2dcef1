package service

import (
	"context"
	"fmt"
	"time"

	"attendance-session-service/internal/authz"
	"attendance-session-service/internal/repository"
)

// ScopeResolver turns an actor into the policy Scope: managed classes come
// from the roster store (cached), own classes from the identity claims with a
// roster fallback for tokens that omit them.
type ScopeResolver struct {
	cache  RosterCacheStore
	roster repository.RosterRepository
	ttl    time.Duration
}

func NewScopeResolver(cache RosterCacheStore, roster repository.RosterRepository, ttl time.Duration) *ScopeResolver {
	return &ScopeResolver{cache: cache, roster: roster, ttl: ttl}
}

func (r *ScopeResolver) Resolve(ctx context.Context, actor Actor) (authz.Scope, error) {
	if actor.ID == "" {
		return authz.Scope{}, fmt.Errorf("%w: missing actor id", ErrValidation)
	}
	scope := authz.Scope{OwnClassIDs: actor.ClassIDs}
	if len(scope.OwnClassIDs) == 0 {
		own, err := r.roster.ClassesOfStudent(actor.ID)
		if err != nil {
			return authz.Scope{}, err
		}
		scope.OwnClassIDs = own
	}

	if r.cache != nil && r.ttl > 0 {
		cached, ok, err := r.cache.Get(ctx, actor.ID)
		if err == nil && ok {
			scope.ManagedClassIDs = cached
			return scope, nil
		}
	}
	managed, err := r.roster.ClassesManagedBy(actor.ID)
	if err != nil {
		return authz.Scope{}, err
	}
	if r.cache != nil && r.ttl > 0 {
		_ = r.cache.Set(ctx, actor.ID, managed, r.ttl)
	}
	scope.ManagedClassIDs = managed
	return scope, nil
}

func (r *ScopeResolver) InvalidateUser(ctx context.Context, userID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.InvalidateUser(ctx, userID)
}

func (r *ScopeResolver) InvalidateAll(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.InvalidateAll(ctx)
}
