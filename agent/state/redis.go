package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig tunes the shared-backend store. TTL bounds how long an idle
// session survives between turns.
type RedisConfig struct {
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"ritobank:session:"`
	TTL       time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

// RedisStore keeps session state in Redis as JSON, one key per session.
type RedisStore struct {
	rdb       redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(rdb redis.Cmdable, cfg RedisConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ritobank:session:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	payload, err := r.rdb.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var s SessionState
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("stored session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *SessionState) error {
	if s == nil {
		return ErrNilSessionState
	}
	if s.SessionID == "" {
		return ErrEmptySessionID
	}
	if err := s.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}
	if err := r.rdb.Set(ctx, r.key(s.SessionID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := r.rdb.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisStore) key(sessionID string) string {
	return r.keyPrefix + sessionID
}
