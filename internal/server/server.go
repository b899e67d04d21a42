// Package server exposes the cached pagination layer over HTTP. Handlers
// are thin: the cache middleware answers hits and refreshes their TTL,
// everything else is delegated to the pagination engine.
package server

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/hubcache/hubcache/pkg/cache"
	"github.com/hubcache/hubcache/pkg/pagination"
	"github.com/hubcache/hubcache/pkg/scheduler"
)

// Options holds the server dependencies.
type Options struct {
	Logger zerolog.Logger
	Engine *pagination.Engine
	Cache  *cache.Manager
}

type server struct {
	logger zerolog.Logger
	engine *pagination.Engine
	cache  *cache.Manager
}

// New builds the Fiber application with all routes and middleware wired.
func New(opts Options) (*fiber.App, error) {
	if opts.Engine == nil {
		return nil, errors.New("pagination engine is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache manager is required")
	}

	s := &server{
		logger: opts.Logger,
		engine: opts.Engine,
		cache:  opts.Cache,
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.Use(metricsMiddleware())

	app.Get("/healthz", s.handleHealth)
	app.Get("/repositories/full", s.handleRepositoryPage)
	app.Get("/repositories/detail/:id", s.handleRepositoryDetail)
	app.Get("/user/:username", s.handleUserProfile)
	app.Get("/user/:username/repos/:page", s.handleUserRepositoryPage)
	app.Get("/trending", s.handleTrending)

	return app, nil
}

func (s *server) handleHealth(c fiber.Ctx) error {
	if err := s.cache.Ping(requestContext(c)); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  "store unreachable",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *server) handleRepositoryPage(c fiber.Ctx) error {
	page, err := parsePage(c.Query("page", "1"))
	if err != nil {
		return badRequest(c, "invalid page number")
	}

	ctx := requestContext(c)
	key := cache.RepositoryPageKey(page)
	if env, err := s.cache.GetValue(ctx, key); err == nil {
		s.refresh(key, env, s.engine.TTL().Positive)
		return s.renderEnvelope(c, env)
	}

	env, err := s.engine.RepositoryPage(ctx, page)
	if err != nil {
		return s.renderError(c, err)
	}
	return s.renderEnvelope(c, env)
}

func (s *server) handleRepositoryDetail(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id < 1 {
		return badRequest(c, "invalid repository id")
	}

	ctx := requestContext(c)
	key := cache.RepoDetailKey(id)
	if env, err := s.cache.GetValue(ctx, key); err == nil {
		s.refresh(key, env, s.engine.TTL().Positive)
		return s.renderEnvelope(c, env)
	}

	env, err := s.engine.RepositoryDetail(ctx, id)
	if err != nil {
		return s.renderError(c, err)
	}
	return s.renderEnvelope(c, env)
}

func (s *server) handleUserProfile(c fiber.Ctx) error {
	login := c.Params("username")
	if login == "" {
		return badRequest(c, "missing username")
	}

	ctx := requestContext(c)
	key := cache.UserProfileKey(login)
	if env, err := s.cache.GetValue(ctx, key); err == nil {
		s.refresh(key, env, s.engine.TTL().Owner)
		return s.renderEnvelope(c, env)
	}

	env, err := s.engine.UserProfile(ctx, login)
	if err != nil {
		return s.renderError(c, err)
	}
	return s.renderEnvelope(c, env)
}

func (s *server) handleUserRepositoryPage(c fiber.Ctx) error {
	login := c.Params("username")
	if login == "" {
		return badRequest(c, "missing username")
	}
	page, err := parsePage(c.Params("page"))
	if err != nil {
		return badRequest(c, "invalid page number")
	}

	ctx := requestContext(c)
	key := cache.UserReposPageKey(login, page)
	if env, err := s.cache.GetValue(ctx, key); err == nil {
		s.refresh(key, env, s.engine.TTL().Owner)
		return s.renderEnvelope(c, env)
	}

	env, err := s.engine.UserRepositoryPage(ctx, login, page)
	if err != nil {
		return s.renderError(c, err)
	}
	return s.renderEnvelope(c, env)
}

func (s *server) handleTrending(c fiber.Ctx) error {
	period := c.Query("period", "week")
	language := c.Query("language")
	page, err := parsePage(c.Query("page", "1"))
	if err != nil {
		return badRequest(c, "invalid page number")
	}

	ctx := requestContext(c)
	key := cache.TrendingPageKey(period, language, page)
	if env, err := s.cache.GetValue(ctx, key); err == nil {
		s.refresh(key, env, s.engine.TTL().Positive)
		return s.renderEnvelope(c, env)
	}

	env, err := s.engine.TrendingPage(ctx, period, language, page)
	if err != nil {
		return s.renderError(c, err)
	}
	return s.renderEnvelope(c, env)
}

// refresh resets a hit entry's TTL, fire-and-forget. Negative entries keep
// the negative lifetime so a missing upstream record is re-probed sooner.
func (s *server) refresh(key string, env *cache.Envelope, normalTTL time.Duration) {
	ttl := normalTTL
	if env.Kind() == cache.KindNotFound {
		ttl = s.engine.TTL().Negative
	}
	s.cache.Refresh(key, ttl)
}

// renderEnvelope maps a cache envelope onto the HTTP response.
func (s *server) renderEnvelope(c fiber.Ctx, env *cache.Envelope) error {
	switch env.Kind() {
	case cache.KindSuccess:
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).Send(env.Data)
	case cache.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": env.Error})
	case cache.KindRedirect:
		return c.Status(fiber.StatusSeeOther).JSON(fiber.Map{
			"redirect": true,
			"page":     env.Page,
		})
	default:
		s.logger.Error().Int("status", env.Status).Msg("Unrenderable envelope")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// renderError maps resolution failures onto the HTTP response. Exhausted
// retries against a throttling upstream surface as 503 so clients know to
// back off; everything else is an opaque 500.
func (s *server) renderError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrRetryExhausted), scheduler.IsThrottle(err):
		s.logger.Warn().Err(err).Str("request_id", RequestID(c)).Msg("Upstream throttled")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "upstream rate limited, try again later",
		})
	case errors.Is(err, scheduler.ErrShuttingDown):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "shutting down",
		})
	default:
		s.logger.Error().Err(err).Str("request_id", RequestID(c)).Msg("Request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func badRequest(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

// parsePage parses a positive page number.
func parsePage(raw string) (int, error) {
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if page < 1 {
		return 0, errors.New("page below 1")
	}
	return page, nil
}

// requestContext returns the request-scoped context, falling back to the
// background context when Fiber has none attached.
func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
