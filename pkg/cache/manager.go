package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hubcache/hubcache/pkg/store"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidKey indicates an empty or malformed cache key.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrInvalidEnvelope indicates a nil or structurally invalid envelope.
	ErrInvalidEnvelope = errors.New("invalid cache envelope")
)

// Manager provides typed read/write operations over the store adapter.
//
// Reads fail open: store failures and malformed payloads are reported as
// misses so the request path degrades toward the upstream instead of
// erroring. Stored throttling envelopes are purged on read and treated as
// absent (self-healing).
type Manager struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewManager creates a cache manager over the given store adapter.
func NewManager(st *store.Store, logger zerolog.Logger) *Manager {
	if st == nil {
		panic("store cannot be nil")
	}
	return &Manager{
		store:  st,
		logger: logger,
	}
}

// GetValue retrieves the envelope stored under key.
// Returns ErrCacheMiss if the key is absent, the stored payload is
// malformed, the store is unreachable, or the payload recorded a
// throttling outcome.
func (m *Manager) GetValue(ctx context.Context, key string) (*Envelope, error) {
	data, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		return nil, ErrCacheMiss
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, purging")
		m.deleteQuiet(ctx, key)
		return nil, ErrCacheMiss
	}

	// A cached throttling outcome must not be served as truth once the
	// situation may have changed.
	if env.Kind() == KindThrottled {
		CacheSelfHeals.Inc()
		m.logger.Info().Str("key", key).Int("status", env.Status).
			Msg("Purging stale throttling entry")
		m.deleteQuiet(ctx, key)
		return nil, ErrCacheMiss
	}

	if !env.Valid() {
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Str("key", key).Int("status", env.Status).
			Msg("Invalid cache envelope, purging")
		m.deleteQuiet(ctx, key)
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &env, nil
}

// SetValue persists an envelope under key with the caller-supplied TTL.
// The TTL is used as given, never extended. Throttling envelopes are
// silently skipped: they are not worth caching.
func (m *Manager) SetValue(ctx context.Context, key string, env *Envelope, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if env == nil {
		return ErrInvalidEnvelope
	}
	if env.Kind() == KindThrottled {
		CacheSkippedWrites.Inc()
		m.logger.Debug().Str("key", key).Int("status", env.Status).
			Msg("Skipping persistence of throttling envelope")
		return nil
	}
	if !env.Valid() {
		return fmt.Errorf("%w: status %d", ErrInvalidEnvelope, env.Status)
	}
	if ttl < time.Second {
		return fmt.Errorf("%w: ttl %v below one second", ErrInvalidEnvelope, ttl)
	}

	data, err := json.Marshal(env)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache envelope: %w", err)
	}

	if err := m.store.Set(ctx, key, data, ttl); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	m.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cache entry written")
	return nil
}

// Refresh resets the TTL of an existing entry without touching its
// payload. Fire-and-forget, see store.Store.Refresh.
func (m *Manager) Refresh(key string, ttl time.Duration) {
	m.store.Refresh(key, ttl)
}

// Ping verifies store connectivity, for health reporting.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.store.Delete(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return err
	}
	return nil
}

// SetUserMaxPageCount records how many pages exist for an owner-scoped
// repository listing.
func (m *Manager) SetUserMaxPageCount(ctx context.Context, owner string, count int, ttl time.Duration) error {
	if owner == "" {
		return ErrInvalidKey
	}
	if count < 1 {
		return fmt.Errorf("invalid max page count %d for %q", count, owner)
	}

	key := UserReposMaxPageKey(owner)
	if err := m.store.Set(ctx, key, []byte(strconv.Itoa(count)), ttl); err != nil {
		CacheErrors.WithLabelValues("counter").Inc()
		return err
	}
	return nil
}

// GetUserMaxPageCount returns the recorded page count for an owner.
// The stored representation may carry incidental quoting or whitespace
// from older writers; a value that still fails to parse is treated as
// absent and purged. Returns ErrCacheMiss when no usable counter exists.
func (m *Manager) GetUserMaxPageCount(ctx context.Context, owner string) (int, error) {
	key := UserReposMaxPageKey(owner)

	data, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("counter").Inc()
		m.logger.Warn().Err(err).Str("key", key).Msg("Counter read failed, treating as miss")
		return 0, ErrCacheMiss
	}

	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(data)), `"`))
	count, err := strconv.Atoi(cleaned)
	if err != nil {
		CacheErrors.WithLabelValues("counter").Inc()
		m.logger.Warn().Str("key", key).Str("value", string(data)).
			Msg("Unparseable max page counter, purging")
		m.deleteQuiet(ctx, key)
		return 0, ErrCacheMiss
	}

	return count, nil
}

func (m *Manager) deleteQuiet(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache delete failed")
	}
}
