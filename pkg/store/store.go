// Package store provides the Redis-backed key-value adapter used by the
// cache layer. It owns connection lifecycle and eviction policy: the
// instance is configured for bounded memory with least-recently-used
// eviction so cold entries are silently dropped instead of failing writes
// under memory pressure.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Config holds the store connection and eviction settings.
type Config struct {
	// Addr is the Redis address (host:port).
	Addr string

	// Password is the Redis password (empty for none).
	Password string

	// DB is the Redis database number.
	DB int

	// MaxMemory is the memory ceiling applied on connect (e.g. "2gb").
	MaxMemory string

	// MaxMemoryPolicy is the eviction policy applied on connect.
	MaxMemoryPolicy string

	// ConnectAttempts bounds the number of initial connection attempts.
	ConnectAttempts int

	// ConnectBackoff is the initial delay between connection attempts.
	// The delay doubles after each failed attempt.
	ConnectBackoff time.Duration

	// OpTimeout bounds fire-and-forget operations that run detached
	// from the caller's context.
	OpTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		MaxMemory:       "2gb",
		MaxMemoryPolicy: "allkeys-lru",
		ConnectAttempts: 5,
		ConnectBackoff:  500 * time.Millisecond,
		OpTimeout:       5 * time.Second,
	}
}

// Store is a thin adapter over a shared, TTL-capable Redis instance.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    zerolog.Logger
}

// Connect creates a store and verifies connectivity with bounded
// retry/backoff. Exhausting the attempt ceiling fails the whole adapter.
// On success the instance is configured for LRU eviction under the
// configured memory ceiling.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	backoff := cfg.ConnectBackoff
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			break
		}

		logger.Warn().
			Err(lastErr).
			Str("addr", cfg.Addr).
			Int("attempt", attempt).
			Int("max_attempts", cfg.ConnectAttempts).
			Msg("Store connection failed")

		if attempt == cfg.ConnectAttempts {
			_ = client.Close()
			return nil, fmt.Errorf("connect store after %d attempts: %w", cfg.ConnectAttempts, lastErr)
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("connect store: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	s := &Store{
		client:    client,
		opTimeout: cfg.OpTimeout,
		logger:    logger,
	}

	if err := s.configureEviction(ctx, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("maxmemory", cfg.MaxMemory).
		Str("policy", cfg.MaxMemoryPolicy).
		Msg("Store connected")

	return s, nil
}

// configureEviction applies the LRU eviction policy and memory ceiling.
func (s *Store) configureEviction(ctx context.Context, cfg Config) error {
	if cfg.MaxMemoryPolicy != "" {
		if err := s.client.ConfigSet(ctx, "maxmemory-policy", cfg.MaxMemoryPolicy).Err(); err != nil {
			return fmt.Errorf("configure eviction policy: %w", err)
		}
	}
	if cfg.MaxMemory != "" {
		if err := s.client.ConfigSet(ctx, "maxmemory", cfg.MaxMemory).Err(); err != nil {
			return fmt.Errorf("configure memory ceiling: %w", err)
		}
	}
	return nil
}

// Get retrieves the raw bytes stored under key.
// Returns ErrNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store get %q: %w", key, err)
	}
	return data, nil
}

// Set stores value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store set %q: %w", key, err)
	}
	return nil
}

// Refresh resets the TTL of an existing key without touching its payload.
// It is fire-and-forget: the caller does not block on completion and
// failures are logged, never surfaced. This is an at-most-once, best-effort
// operation.
func (s *Store) Refresh(key string, ttl time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()

		ok, err := s.client.Expire(ctx, key, ttl).Result()
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("TTL refresh failed")
			return
		}
		if !ok {
			// Key expired or was evicted between read and refresh.
			s.logger.Debug().Str("key", key).Msg("TTL refresh skipped, key gone")
		}
	}()
}

// Ping verifies connectivity to the underlying instance.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store delete %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// NewWithClient wraps an existing Redis client without applying eviction
// configuration. Intended for tests and embedding scenarios where the
// caller owns the client lifecycle.
func NewWithClient(client *redis.Client, logger zerolog.Logger) *Store {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		client:    client,
		opTimeout: 5 * time.Second,
		logger:    logger,
	}
}
