package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kinobot:session:"

// Redis is a Store backed by a Redis server, shared between bot replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures NewRedis. Only Addr is mandatory.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, o RedisOptions) (*Redis, error) {
	opts := &redis.Options{Addr: o.Addr}
	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB != 0 {
		opts.DB = o.DB
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	ttl := o.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func key(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

// Get returns the user's state, or StateNone on a miss.
func (r *Redis) Get(ctx context.Context, userID int64) (State, error) {
	v, err := r.client.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, fmt.Errorf("get session: %w", err)
	}
	return State(v), nil
}

// Set stores s with the configured TTL. Setting StateNone clears it.
func (r *Redis) Set(ctx context.Context, userID int64, s State) error {
	if s == StateNone {
		return r.Clear(ctx, userID)
	}
	if err := r.client.Set(ctx, key(userID), string(s), r.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Clear deletes the user's state.
func (r *Redis) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
