// Package app builds and holds the long-lived services shared by the commands:
// the store, the quota governor, the call-counted gateway and the discovery engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/api"
	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/clock/system"
	"github.com/JakeFAU/tuml/internal/config"
	"github.com/JakeFAU/tuml/internal/discovery"
	"github.com/JakeFAU/tuml/internal/gateway"
	"github.com/JakeFAU/tuml/internal/id/uuid"
	"github.com/JakeFAU/tuml/internal/logging"
	"github.com/JakeFAU/tuml/internal/policy/ratelimit"
	"github.com/JakeFAU/tuml/internal/quota"
	"github.com/JakeFAU/tuml/internal/storage"
	"github.com/JakeFAU/tuml/internal/store"
	"github.com/JakeFAU/tuml/internal/tumblr"
)

// Clock is the time source and sleeper shared by the governor and the gateway.
type Clock interface {
	blog.Clock
	quota.Sleeper
}

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store
	governor *quota.Governor
	gateway  *gateway.Gateway
	engine   *discovery.Engine
}

// Build creates the application's dependencies from configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	st, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
		MaxConns:    cfg.Storage.MaxConns,
	}, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	client, err := tumblr.New(tumblr.Config{
		BaseURL:   cfg.API.BaseURL,
		APIKey:    cfg.API.ConsumerKey,
		Timeout:   cfg.APITimeout(),
		UserAgent: cfg.API.UserAgent,
	}, logger.Named("tumblr"))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("api client init failed: %w", err)
	}

	a, err := New(cfg, logger, st, client, system.New())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

// New wires the services around an already opened store and remote client.
func New(cfg config.Config, logger *zap.Logger, st store.Store, client gateway.Client, clock Clock) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	governor, err := quota.NewGovernor(st, quota.Ceilings{
		PerMinute: cfg.Quota.PerMinute,
		PerHour:   cfg.Quota.PerHour,
		PerDay:    cfg.Quota.PerDay,
	}, clock, clock, logger.Named("quota"))
	if err != nil {
		return nil, fmt.Errorf("governor init failed: %w", err)
	}

	var pacer gateway.Pacer
	if cfg.API.RequestsPerSecond > 0 {
		pacer = ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.API.RequestsPerSecond,
			Burst:             cfg.API.Burst,
		})
		logger.Info("Request pacing enabled",
			zap.Float64("requests_per_second", cfg.API.RequestsPerSecond),
			zap.Int("burst", cfg.API.Burst),
		)
	}

	gw, err := gateway.New(client, governor, st, pacer, clock, uuid.New(), logger.Named("gateway"))
	if err != nil {
		return nil, fmt.Errorf("gateway init failed: %w", err)
	}

	engine := discovery.NewEngine(st, gw, clock, discovery.Config{
		PostsPerBlog: cfg.Discovery.PostsPerBlog,
		AvatarHeight: cfg.Discovery.AvatarHeight,
	}, logger.Named("discovery"))

	logger.Debug("Application services initialized",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int("quota_per_minute", cfg.Quota.PerMinute),
		zap.Int("quota_per_hour", cfg.Quota.PerHour),
		zap.Int("quota_per_day", cfg.Quota.PerDay),
	)
	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		governor: governor,
		gateway:  gw,
		engine:   engine,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the persistence layer.
func (a *App) Store() store.Store { return a.store }

// Governor returns the quota governor.
func (a *App) Governor() *quota.Governor { return a.governor }

// Engine returns the discovery engine.
func (a *App) Engine() *discovery.Engine { return a.engine }

// Handler builds the read-only HTTP API.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.store, a.governor, a.logger.Named("api")).Handler()
}

// Serve runs the HTTP API until ctx is canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("Logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
