package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRosterCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRosterCacheStore(client redis.UniversalClient, prefix string) *RedisRosterCacheStore {
	if prefix == "" {
		prefix = "roster_scope"
	}
	return &RedisRosterCacheStore{client: client, prefix: prefix}
}

func (s *RedisRosterCacheStore) Get(ctx context.Context, userID string) ([]string, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	key, err := s.dataKey(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var classIDs []string
	if err := json.Unmarshal(raw, &classIDs); err != nil {
		return nil, false, err
	}
	return classIDs, true, nil
}

func (s *RedisRosterCacheStore) Set(ctx context.Context, userID string, classIDs []string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	key, err := s.dataKey(ctx, userID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(classIDs)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisRosterCacheStore) InvalidateUser(ctx context.Context, userID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.userEpochKey(userID)).Err()
}

func (s *RedisRosterCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.globalEpochKey()).Err()
}

func (s *RedisRosterCacheStore) dataKey(ctx context.Context, userID string) (string, error) {
	pipe := s.client.Pipeline()
	globalEpochCmd := pipe.Get(ctx, s.globalEpochKey())
	userEpochCmd := pipe.Get(ctx, s.userEpochKey(userID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return "", err
	}
	globalEpoch, err := parseEpoch(globalEpochCmd)
	if err != nil {
		return "", err
	}
	userEpoch, err := parseEpoch(userEpochCmd)
	if err != nil {
		return "", err
	}
	return buildRosterCacheKey(globalEpoch, userEpoch, userID), nil
}

func parseEpoch(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func (s *RedisRosterCacheStore) globalEpochKey() string {
	return s.prefix + ":epoch:global"
}

func (s *RedisRosterCacheStore) userEpochKey(userID string) string {
	return s.prefix + ":epoch:user:" + userID
}
