package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/freshcart/internal/config"
	"github.com/utafrali/freshcart/internal/handler"
	"github.com/utafrali/freshcart/internal/notify"
	"github.com/utafrali/freshcart/internal/session"
	"github.com/utafrali/freshcart/internal/shell"
	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/database"
	"github.com/utafrali/freshcart/pkg/health"
	"github.com/utafrali/freshcart/pkg/logger"
	"github.com/utafrali/freshcart/pkg/query"
	"github.com/utafrali/freshcart/pkg/tokenstore"
	"github.com/utafrali/freshcart/pkg/tracing"
)

// App wires together all dependencies and runs the storefront client.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	tracerShutdown func(context.Context) error
	api            *apiclient.Client
	cache          *query.Client
	session        *session.Context
	shell          *shell.Shell
	adminServer    *http.Server
	in             io.Reader
}

// NewApp creates a new application instance, initializing all dependencies.
// The shell reads commands from in and prints to out.
func NewApp(cfg *config.Config, log *slog.Logger, in io.Reader, out io.Writer) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tracing.
	traceCfg := tracing.DefaultConfig("storefront")
	traceCfg.Environment = cfg.Environment
	traceCfg.Enabled = cfg.OTELEnabled
	traceCfg.Endpoint = cfg.OTELEndpoint
	traceCfg.SampleRate = cfg.OTELSampleRate
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         log,
		tracerShutdown: tracerShutdown,
		in:             in,
	}

	// Request layer.
	apiCfg := apiclient.DefaultConfig(cfg.APIURL)
	apiCfg.Timeout = cfg.HTTPTimeout
	apiCfg.RateLimitRPS = cfg.RateLimitRPS
	apiCfg.RateLimitBurst = cfg.RateLimitBurst
	if !cfg.BreakerEnabled {
		apiCfg.Breaker = nil
	}

	// Credential slot.
	tokens, err := a.openTokenStore(ctx)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	a.api = apiclient.New(apiCfg, tokens, log.With(slog.String("layer", "apiclient")))

	// Query cache and resource layer.
	opts := query.DefaultOptions()
	opts.StaleTime = cfg.QueryStaleTime
	opts.GCTime = cfg.QueryGCTime
	opts.RefetchInterval = cfg.QueryRefetchInterval
	opts.Retry = query.RetryCount(cfg.QueryRetry)
	a.cache = query.NewClient(
		query.WithDefaults(opts),
		query.WithLogger(log.With(slog.String("layer", "query"))),
	)
	a.session = session.New(a.api, tokens, a.cache, log.With(slog.String("layer", "session")))

	errs := notify.NewHandler(notify.NewWriterNotifier(out), log)
	a.shell = shell.New(a.session, errs, out, log)

	// Health checks.
	healthHandler := health.NewHandler()
	if a.rdb != nil {
		healthHandler.RegisterCritical("token_store", func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterNonCritical("storefront_api", func(ctx context.Context) error {
		if a.api.BreakerState() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})

	router := handler.NewRouter(a.session, a.api, healthHandler, log, handler.RouterConfig{
		PprofCIDRs: cfg.PprofCIDRs,
		Cookie: tokenstore.CookieOptions{
			Name:   cfg.TokenCookie,
			Secure: cfg.IsProduction(),
		},
	})
	a.adminServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminHTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// openTokenStore builds the configured credential slot.
func (a *App) openTokenStore(ctx context.Context) (tokenstore.Store, error) {
	switch a.cfg.TokenStore {
	case config.TokenStoreCookie:
		store, err := tokenstore.NewCookieStore(nil, a.cfg.APIURL, tokenstore.CookieOptions{
			Name:   a.cfg.TokenCookie,
			Secure: a.cfg.IsProduction(),
		})
		if err != nil {
			return nil, fmt.Errorf("open cookie token store: %w", err)
		}
		a.logger.Info("credential kept in cookie jar", slog.String("cookie", a.cfg.TokenCookie))
		return store, nil

	case config.TokenStoreRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPass,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis token store: %w", err)
		}
		a.rdb = rdb
		store := tokenstore.NewRedisStore(rdb, a.cfg.SessionID)
		a.logger.Info("credential kept in Redis",
			slog.String("addr", a.cfg.RedisAddr),
			slog.String("key", store.Key()),
		)
		return store, nil

	default:
		a.logger.Info("credential kept in memory")
		return tokenstore.NewMemoryStore(), nil
	}
}

// Session exposes the resource layer.
func (a *App) Session() *session.Context {
	return a.session
}

// Run starts the admin server, the cache loop and the shell, and blocks
// until the shell quits or ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	parent := ctx
	ctx, cancel := context.WithCancel(logger.WithSessionID(ctx, a.cfg.SessionID))
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting admin HTTP server", slog.String("addr", a.adminServer.Addr))
		if err := a.adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.cache.Run(gctx)
	})

	// Resolve the session user up front so status is known before the
	// first command.
	g.Go(func() error {
		if _, err := a.session.Me(gctx); err != nil && gctx.Err() == nil {
			a.logger.WarnContext(gctx, "initial session lookup failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		err := a.shell.Run(gctx, a.in)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdownServer()
	})

	err := g.Wait()
	if parent.Err() != nil {
		a.logger.Info("shutdown signal received")
	}
	return errors.Join(err, a.Shutdown())
}

func (a *App) shutdownServer() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.adminServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin http server shutdown: %w", err)
	}
	return nil
}

// Shutdown flushes traces and closes the token store connection.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}
