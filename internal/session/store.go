package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON values with a TTL.
type RedisStore struct {
	Client redis.Cmdable
	Prefix string
}

func (r RedisStore) key(id string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "petlog:session:"
	}
	return prefix + id
}

// Save writes s under its id.
func (r RedisStore) Save(ctx context.Context, s Session, ttl time.Duration) error {
	if r.Client == nil {
		return errors.New("session: redis client not configured")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.key(s.ID), data, ttl).Err()
}

// Load reads the session stored under id.
func (r RedisStore) Load(ctx context.Context, id string) (Session, error) {
	if r.Client == nil {
		return Session{}, errors.New("session: redis client not configured")
	}
	data, err := r.Client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	return s, nil
}

// Delete removes the session stored under id.
func (r RedisStore) Delete(ctx context.Context, id string) error {
	if r.Client == nil {
		return errors.New("session: redis client not configured")
	}
	return r.Client.Del(ctx, r.key(id)).Err()
}
