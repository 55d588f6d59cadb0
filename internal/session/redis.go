package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"applydesk/internal/util"
)

const keyPrefix = "applydesk:session:"

// RedisStore keeps sessions in Redis with TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// New creates an empty session with a fresh token and CSRF token.
func (s *RedisStore) New(ctx context.Context) (*Session, error) {
	sess := &Session{
		Token:     util.NewToken(),
		CSRFToken: util.NewToken(),
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get resolves a token to its session.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	raw, err := s.client.Get(ctx, keyPrefix+token).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	sess := &Session{}
	if err := json.Unmarshal([]byte(raw), sess); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	sess.Token = token
	return sess, true, nil
}

// Save writes the session state, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+sess.Token, raw, s.ttl).Err()
}

// Delete removes the session.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}
