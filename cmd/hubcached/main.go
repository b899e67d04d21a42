// Command hubcached runs the caching proxy in front of the upstream
// hosting API: Redis-backed response cache, stateless pagination and a
// throttle-aware upstream scheduler behind an HTTP interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubcache/hubcache/internal/config"
	"github.com/hubcache/hubcache/internal/server"
	"github.com/hubcache/hubcache/pkg/cache"
	"github.com/hubcache/hubcache/pkg/github"
	"github.com/hubcache/hubcache/pkg/logging"
	"github.com/hubcache/hubcache/pkg/pagination"
	"github.com/hubcache/hubcache/pkg/scheduler"
	"github.com/hubcache/hubcache/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hubcached: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		Output:     os.Stderr,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, storeConfig(cfg), logging.NewLogger("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	cm := cache.NewManager(st, logging.NewLogger("cache"))
	sched := scheduler.New(schedulerConfig(cfg), logging.NewLogger("scheduler"))

	hub, err := github.NewClient(github.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Token:     cfg.Upstream.Token,
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.Upstream.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	engine := pagination.NewEngine(cm, sched, hub, ttlConfig(cfg), logging.NewLogger("pagination"))

	app, err := server.New(server.Options{
		Logger: logging.NewLogger("server"),
		Engine: engine,
		Cache:  cm,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics listener started")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Server started")
		listenErr <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	// Drain order: stop taking requests, let the in-flight upstream call
	// finish, then release the store.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Scheduler shutdown incomplete")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics listener shutdown incomplete")
		}
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

func storeConfig(cfg *config.Config) store.Config {
	sc := store.DefaultConfig(cfg.Redis.Addr)
	sc.Password = cfg.Redis.Password
	sc.DB = cfg.Redis.DB
	sc.MaxMemory = cfg.Redis.MaxMemory
	sc.MaxMemoryPolicy = cfg.Redis.MaxMemoryPolicy
	return sc
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		MinInterval: cfg.Scheduler.MinInterval,
		MaxRetries:  cfg.Scheduler.MaxRetries,
		BaseDelay:   cfg.Scheduler.BaseDelay,
		QueueSize:   cfg.Scheduler.QueueSize,
	}
}

func ttlConfig(cfg *config.Config) pagination.TTLConfig {
	return pagination.TTLConfig{
		Positive: cfg.TTL.Positive,
		Owner:    cfg.TTL.Owner,
		Negative: cfg.TTL.Negative,
	}
}
