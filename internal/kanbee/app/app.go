package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	httpapi "github.com/aussiebroadwan/kanbee/internal/kanbee/http"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/identity"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/memory"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/postgres"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/sqlite"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

const redisKeyPrefix = "kanbee:"

// Application owns every long-lived dependency of the server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	cache      cache.Cache
	keyManager *jwtx.KeyManager
	metrics    *metrics.Metrics

	// Services
	userService         *service.UserService
	sessionService      *service.SessionService
	authService         *service.AuthService
	quoteService        *service.QuoteService
	housekeepingService *service.HousekeepingService
	coordinator         *coordinator.Coordinator

	// Realtime
	bus     *realtime.Router
	gateway *realtime.Gateway

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "kanbee",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	ctx := context.Background()

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initCache(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initRealtime()
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	if err := app.housekeepingService.Start(); err != nil {
		app.closeBackends()
		return err
	}

	app.logger.Info("kanbee starting",
		"port", app.cfg.Port,
		"database", app.cfg.DatabaseDriver,
		"cache", app.cfg.CacheDriver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeBackends()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains HTTP, disconnects realtime clients and closes the backends.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down kanbee...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Hijacked websocket connections are not tracked by the server.
	if n := app.bus.CloseAll(realtime.ReasonShutdown); n > 0 {
		app.logger.Info("realtime clients disconnected", "count", n)
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("kanbee stopped")
	return nil
}

func (app *Application) closeBackends() error {
	var errs []error
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database ready", "driver", app.cfg.DatabaseDriver)
	return nil
}

// OpenStore connects to the configured database without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	case "memory":
		return memory.NewStore(), nil
	case "sqlite", "":
		return sqlite.NewStore(cfg.DatabaseFile)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func (app *Application) initCache(ctx context.Context) error {
	var c cache.Cache
	switch app.cfg.CacheDriver {
	case "redis":
		r, err := cache.NewRedis(ctx, app.cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c = r
	default:
		c = cache.NewMemory(nil)
	}

	app.cache = cache.NewObserved(c, app.metrics)
	app.logger.Info("cache ready", "driver", app.cfg.CacheDriver)
	return nil
}

func (app *Application) initServices() error {
	pepper, err := LoadPepper(app.cfg)
	if err != nil {
		return err
	}

	app.userService = &service.UserService{
		Store:         app.db,
		Cache:         app.cache,
		Hasher:        cryptox.PasswordHasher{Pepper: pepper},
		SessionTTL:    app.cfg.SessionTTL,
		AvatarBaseURL: strings.TrimSuffix(app.cfg.ClientURL, "/"),
	}
	app.sessionService = &service.SessionService{
		Store:      app.db,
		Users:      app.userService,
		Keys:       app.keyManager,
		Issuer:     app.cfg.Issuer,
		Metrics:    app.metrics,
		AccessTTL:  app.cfg.AccessTokenTTL,
		SessionTTL: app.cfg.SessionTTL,
	}
	app.authService = &service.AuthService{
		Users:     app.userService,
		Sessions:  app.sessionService,
		Providers: app.identityProviders(),
	}
	app.quoteService = &service.QuoteService{
		Store: app.db,
		Cache: app.cache,
		Users: app.userService,
		TTL:   app.cfg.QuoteCacheTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingSchedule,
	)
	return nil
}

// identityProviders registers every provider that has a client id.
func (app *Application) identityProviders() *identity.Registry {
	callback := func(slug string) string {
		return strings.TrimSuffix(app.cfg.PublicURL, "/") + "/v1/auth/" + slug + "/callback"
	}

	var providers []identity.Provider
	if c := app.cfg.Google; c.Enabled() {
		providers = append(providers, identity.NewGoogle(identity.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  callback("google"),
		}))
	}
	if c := app.cfg.GitHub; c.Enabled() {
		providers = append(providers, identity.NewGitHub(identity.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  callback("github"),
		}))
	}

	reg := identity.NewRegistry(providers...)
	if names := reg.Names(); len(names) > 0 {
		app.logger.Info("identity providers enabled", "providers", names)
	}
	return reg
}

func (app *Application) initRealtime() {
	app.bus = realtime.NewRouter(app.logger, app.metrics)

	app.coordinator = &coordinator.Coordinator{
		Store:      app.db,
		Cache:      app.cache,
		Users:      app.userService,
		Membership: &service.MembershipService{},
		Bus:        app.bus,
		Metrics:    app.metrics,
		ProjectTTL: app.cfg.ProjectCacheTTL,
	}

	app.gateway = realtime.NewGateway(realtime.GatewayConfig{
		AllowedOrigins: app.cfg.WSAllowedOrigins,
		SendQueue:      app.cfg.WSSendQueue,
		RateEvents:     app.cfg.WSRateEvents,
		RateWindow:     app.cfg.WSRateWindow,
	}, app.bus, app.sessionService, app.coordinator)
}

// initHTTP builds the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.cache,
		app.logger,
	)

	router.AuthService = app.authService
	router.SessionService = app.sessionService
	router.UserService = app.userService
	router.QuoteService = app.quoteService
	router.Coordinator = app.coordinator
	router.Metrics = app.metrics
	router.Gateway = app.gateway
	router.Cookie = httpx.RefreshCookie{
		Name:   app.cfg.RefreshCookieName,
		Path:   "/v1/auth",
		Secure: app.cfg.CookieSecure,
	}
	router.ClientURL = app.cfg.ClientURL
	router.AuthLimit = httpx.ParseRateLimitFromEnv("AUTH", httpx.AuthLimit)
	router.APILimit = httpx.ParseRateLimitFromEnv("API", httpx.APILimit)
	router.PublicLimit = httpx.ParseRateLimitFromEnv("PUBLIC", httpx.PublicLimit)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Migrate applies pending migrations to the configured database and exits.
func Migrate(ctx context.Context, cfg Config) error {
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return nil
}
