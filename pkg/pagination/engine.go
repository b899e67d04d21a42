// Package pagination implements the stateless page model on top of the
// cursor-based upstream listings. It owns the cursor chain for the global
// repository listing, the owner-scoped page counters and the negative
// caching of missing entities.
package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/hubcache/hubcache/pkg/cache"
	"github.com/hubcache/hubcache/pkg/github"
	"github.com/hubcache/hubcache/pkg/scheduler"
)

// TTLConfig holds the cache lifetimes per result class.
type TTLConfig struct {
	// Positive applies to successful listing and detail results.
	Positive time.Duration

	// Owner applies to owner-scoped results (profiles, owner repository
	// pages and their page counters).
	Owner time.Duration

	// Negative applies to cached not-found and out-of-range results.
	Negative time.Duration
}

// DefaultTTLConfig returns the default cache lifetimes.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Positive: time.Hour,
		Owner:    2 * time.Hour,
		Negative: 10 * time.Minute,
	}
}

// trendingPayload is the success payload of a trending page: the page
// items plus the total page count derived from the same fetch.
type trendingPayload struct {
	Items      []github.TrendingRepo `json:"items"`
	TotalPages int                   `json:"total_pages"`
}

// Engine resolves page requests by consulting the cache, scheduling
// upstream fetches for misses and fanning fetched record sets out into
// cached pages. Concurrent requests for the same key are collapsed into
// a single resolution.
type Engine struct {
	cache  *cache.Manager
	sched  *scheduler.Scheduler
	hub    *github.Client
	ttl    TTLConfig
	logger zerolog.Logger
	group  singleflight.Group
}

// NewEngine creates a pagination engine.
func NewEngine(cm *cache.Manager, sched *scheduler.Scheduler, hub *github.Client, ttl TTLConfig, logger zerolog.Logger) *Engine {
	if cm == nil {
		panic("cache manager cannot be nil")
	}
	if sched == nil {
		panic("scheduler cannot be nil")
	}
	if hub == nil {
		panic("upstream client cannot be nil")
	}
	return &Engine{
		cache:  cm,
		sched:  sched,
		hub:    hub,
		ttl:    ttl,
		logger: logger,
	}
}

// RepositoryPage resolves page n of the global repository listing.
//
// Page 1 always starts from cursor zero. Any later page derives its
// upstream cursor from the cached predecessor page; if that predecessor
// is absent the chain is broken and the caller is redirected to page 1.
// The redirect is not cached: the chain may be intact again moments
// later. A cached copy of page n itself is deliberately not consulted
// here, so a broken chain wins over stale content.
func (e *Engine) RepositoryPage(ctx context.Context, page int) (*cache.Envelope, error) {
	if page < 1 {
		return cache.RedirectTo(1), nil
	}

	return e.collapse(cache.RepositoryPageKey(page), func() (*cache.Envelope, error) {
		var since int64
		if page > 1 {
			prev, err := e.cache.GetValue(ctx, cache.RepositoryPageKey(page-1))
			if err != nil {
				e.logger.Info().Int("page", page).Msg("Cursor chain broken, redirecting to page 1")
				return cache.RedirectTo(1), nil
			}
			since, err = cursorFromPage(prev)
			if err != nil {
				e.logger.Warn().Err(err).Int("page", page).Msg("Unusable predecessor page, redirecting to page 1")
				return cache.RedirectTo(1), nil
			}
		}

		var records []github.RepoSummary
		err := e.sched.Schedule(ctx, func(ctx context.Context) error {
			result, err := e.hub.ListRepositories(ctx, since)
			if err != nil {
				return err
			}
			records = result
			return nil
		})
		if err != nil {
			return nil, err
		}

		pages := splitPages(records, PageSize)
		var requested *cache.Envelope
		for i, chunk := range pages {
			env, err := cache.Success(chunk)
			if err != nil {
				return nil, err
			}
			e.cacheWrite(ctx, cache.RepositoryPageKey(page+i), env, e.ttl.Positive)
			if i == 0 {
				requested = env
			}
		}

		if requested == nil {
			// Upstream returned no records past this cursor; the listing
			// simply ends here.
			env, err := cache.Success([]github.RepoSummary{})
			if err != nil {
				return nil, err
			}
			e.cacheWrite(ctx, cache.RepositoryPageKey(page), env, e.ttl.Positive)
			return env, nil
		}
		return requested, nil
	})
}

// RepositoryDetail resolves a single repository by identifier. Upstream
// not-found results are cached negatively so repeated probes for missing
// identifiers never reach the upstream within the negative TTL.
func (e *Engine) RepositoryDetail(ctx context.Context, id int64) (*cache.Envelope, error) {
	key := cache.RepoDetailKey(id)
	return e.collapse(key, func() (*cache.Envelope, error) {
		if env, err := e.cache.GetValue(ctx, key); err == nil {
			return env, nil
		}

		var detail *github.RepoDetail
		err := e.sched.Schedule(ctx, func(ctx context.Context) error {
			result, err := e.hub.GetRepository(ctx, id)
			if err != nil {
				return err
			}
			detail = result
			return nil
		})
		if err != nil {
			if github.IsNotFound(err) {
				env := notFoundEnvelope(err)
				e.cacheWrite(ctx, key, env, e.ttl.Negative)
				return env, nil
			}
			return nil, err
		}

		env, err := cache.Success(detail)
		if err != nil {
			return nil, err
		}
		e.cacheWrite(ctx, key, env, e.ttl.Positive)
		return env, nil
	})
}

// UserProfile resolves an account profile, caching not-found negatively.
func (e *Engine) UserProfile(ctx context.Context, login string) (*cache.Envelope, error) {
	key := cache.UserProfileKey(login)
	return e.collapse(key, func() (*cache.Envelope, error) {
		if env, err := e.cache.GetValue(ctx, key); err == nil {
			return env, nil
		}

		var profile *github.UserProfile
		err := e.sched.Schedule(ctx, func(ctx context.Context) error {
			result, err := e.hub.GetUser(ctx, login)
			if err != nil {
				return err
			}
			profile = result
			return nil
		})
		if err != nil {
			if github.IsNotFound(err) {
				env := notFoundEnvelope(err)
				e.cacheWrite(ctx, key, env, e.ttl.Negative)
				return env, nil
			}
			return nil, err
		}

		env, err := cache.Success(profile)
		if err != nil {
			return nil, err
		}
		e.cacheWrite(ctx, key, env, e.ttl.Owner)
		return env, nil
	})
}

// UserRepositoryPage resolves page n of one account's repository listing.
//
// The upstream returns the full owner-scoped set in a single call, so
// unlike the global listing there is no cursor chain: any page can be
// requested cold. A recorded page counter short-circuits out-of-range
// requests to a cached redirect without touching the upstream.
func (e *Engine) UserRepositoryPage(ctx context.Context, login string, page int) (*cache.Envelope, error) {
	if page < 1 {
		return cache.RedirectTo(1), nil
	}

	key := cache.UserReposPageKey(login, page)
	return e.collapse(key, func() (*cache.Envelope, error) {
		if env, err := e.cache.GetValue(ctx, key); err == nil {
			return env, nil
		}

		if maxPage, err := e.cache.GetUserMaxPageCount(ctx, login); err == nil && page > maxPage {
			env := cache.RedirectTo(1)
			e.cacheWrite(ctx, key, env, e.ttl.Negative)
			return env, nil
		}

		var records []github.OwnedRepo
		err := e.sched.Schedule(ctx, func(ctx context.Context) error {
			result, err := e.hub.ListUserRepositories(ctx, login)
			if err != nil {
				return err
			}
			records = result
			return nil
		})
		if err != nil {
			if github.IsNotFound(err) {
				env := notFoundEnvelope(err)
				e.cacheWrite(ctx, key, env, e.ttl.Negative)
				return env, nil
			}
			return nil, err
		}

		pages := splitPages(records, PageSize)
		maxPage := len(pages)
		if maxPage == 0 {
			maxPage = 1
		}

		var requested *cache.Envelope
		for i, chunk := range pages {
			env, err := cache.Success(chunk)
			if err != nil {
				return nil, err
			}
			e.cacheWrite(ctx, cache.UserReposPageKey(login, i+1), env, e.ttl.Owner)
			if i+1 == page {
				requested = env
			}
		}
		if err := e.cache.SetUserMaxPageCount(ctx, login, maxPage, e.ttl.Owner); err != nil {
			e.logger.Warn().Err(err).Str("login", login).Msg("Failed to record page counter")
		}

		if page > maxPage {
			env := cache.RedirectTo(1)
			e.cacheWrite(ctx, key, env, e.ttl.Negative)
			return env, nil
		}
		if requested == nil {
			// Page 1 of an account with no repositories.
			env, err := cache.Success([]github.OwnedRepo{})
			if err != nil {
				return nil, err
			}
			e.cacheWrite(ctx, key, env, e.ttl.Owner)
			return env, nil
		}
		return requested, nil
	})
}

// TrendingPage resolves page n of a trending listing for the given period
// and optional language filter. One upstream search yields every page of
// the listing; the success payload carries the total page count so
// clients can render pagination without a second request.
func (e *Engine) TrendingPage(ctx context.Context, period, language string, page int) (*cache.Envelope, error) {
	if page < 1 {
		return cache.RedirectTo(1), nil
	}

	key := cache.TrendingPageKey(period, language, page)
	return e.collapse(key, func() (*cache.Envelope, error) {
		if env, err := e.cache.GetValue(ctx, key); err == nil {
			return env, nil
		}

		var records []github.TrendingRepo
		err := e.sched.Schedule(ctx, func(ctx context.Context) error {
			result, err := e.hub.SearchTrending(ctx, period, language)
			if err != nil {
				return err
			}
			records = result
			return nil
		})
		if err != nil {
			return nil, err
		}

		pages := splitPages(records, PageSize)
		totalPages := len(pages)
		if totalPages == 0 {
			totalPages = 1
		}

		var requested *cache.Envelope
		for i, chunk := range pages {
			env, err := cache.Success(trendingPayload{Items: chunk, TotalPages: totalPages})
			if err != nil {
				return nil, err
			}
			e.cacheWrite(ctx, cache.TrendingPageKey(period, language, i+1), env, e.ttl.Positive)
			if i+1 == page {
				requested = env
			}
		}

		if page > totalPages {
			env := cache.RedirectTo(1)
			e.cacheWrite(ctx, key, env, e.ttl.Negative)
			return env, nil
		}
		if requested == nil {
			env, err := cache.Success(trendingPayload{Items: []github.TrendingRepo{}, TotalPages: 1})
			if err != nil {
				return nil, err
			}
			e.cacheWrite(ctx, key, env, e.ttl.Positive)
			return env, nil
		}
		return requested, nil
	})
}

// TTL exposes the configured lifetimes so the serving layer can refresh
// entries it reads with the class-appropriate TTL.
func (e *Engine) TTL() TTLConfig {
	return e.ttl
}

// collapse funnels concurrent resolutions of the same key through one
// execution; every waiter receives the shared result.
func (e *Engine) collapse(key string, fn func() (*cache.Envelope, error)) (*cache.Envelope, error) {
	v, err, _ := e.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*cache.Envelope), nil
}

// cacheWrite persists an envelope, logging and dropping failures. Serving
// the fresh result matters more than caching it.
func (e *Engine) cacheWrite(ctx context.Context, key string, env *cache.Envelope, ttl time.Duration) {
	if err := e.cache.SetValue(ctx, key, env, ttl); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// notFoundEnvelope converts an upstream not-found error into its cacheable
// negative envelope, preserving the upstream message when present.
func notFoundEnvelope(err error) *cache.Envelope {
	message := "Not Found"
	var apiErr *github.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}
	return cache.NotFound(message)
}
