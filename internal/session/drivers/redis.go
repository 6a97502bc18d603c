package drivers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/gradebot/internal/session"
)

const (
	// Redis key prefix for sessions
	sessionKeyPrefix = "gradebot:session:"

	scanBatch = 100
)

// RedisStore implements session.Store on Redis. Every write sets the key
// TTL to the idle timeout, so Redis reclaims idle sessions itself.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store whose keys live for ttl after
// the last write.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = session.DefaultIdleTimeout
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Get implements session.Store.
func (s *RedisStore) Get(ctx context.Context, userID string) (*session.Session, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return session.Decode(val)
}

// Save implements session.Store.
func (s *RedisStore) Save(ctx context.Context, sess *session.Session) error {
	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.UserID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Expired implements session.Store. Keys expire through their TTL, so
// there is never anything left to reclaim.
func (s *RedisStore) Expired(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

// Len implements session.Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}

// Close implements session.Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a user.
func (s *RedisStore) key(userID string) string {
	return sessionKeyPrefix + userID
}
