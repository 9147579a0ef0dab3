// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/subscription-garden/internal/config"
	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/bissquit/subscription-garden/internal/pkg/ctxlog"
	"github.com/bissquit/subscription-garden/internal/pkg/httputil"
	"github.com/bissquit/subscription-garden/internal/pkg/metrics"
	"github.com/bissquit/subscription-garden/internal/pkg/postgres"
	"github.com/bissquit/subscription-garden/internal/subscriptions"
	"github.com/bissquit/subscription-garden/internal/subscriptions/email"
	subscriptionspostgres "github.com/bissquit/subscription-garden/internal/subscriptions/postgres"
	"github.com/bissquit/subscription-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	service       *subscriptions.Service
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	registry, err := domain.NewCategoryRegistry(cfg.CategoryList())
	if err != nil {
		return nil, fmt.Errorf("build category registry: %w", err)
	}

	policy, err := subscriptions.ParsePolicy(cfg.Subscriptions.Policy)
	if err != nil {
		return nil, err
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(registry, policy)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version.Version, version.GitCommit, string(app.service.Policy())).Set(1)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and blocks until the main server stops.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"policy", a.service.Policy(),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(registry *domain.CategoryRegistry, policy subscriptions.Policy) (*chi.Mux, error) {
	emailSender, err := email.NewSender(email.Config{
		Enabled:         a.config.Email.Enabled,
		SMTPHost:        a.config.Email.SMTPHost,
		SMTPPort:        a.config.Email.SMTPPort,
		SMTPUser:        a.config.Email.SMTPUser,
		SMTPPassword:    a.config.Email.SMTPPassword,
		FromAddress:     a.config.Email.FromAddress,
		BreakerFailures: a.config.Email.BreakerFailures,
		BreakerTimeout:  a.config.Email.BreakerTimeout,
		Timeout:         a.config.Email.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	var notifier subscriptions.Notifier
	if a.config.Email.Enabled {
		notifier = emailSender
	} else {
		slog.Warn("email sender is disabled: confirmation emails will not be sent")
	}

	repo := subscriptionspostgres.NewRepository(a.db)
	a.service = subscriptions.NewService(repo, registry, policy, notifier)

	return NewRouter(RouterConfig{
		AllowedOrigins:    a.config.CORS.AllowedOrigins,
		RequestsPerSecond: a.config.RateLimit.RequestsPerSecond,
		Burst:             a.config.RateLimit.Burst,
	}, a.logger, subscriptions.NewHandler(a.service), a.readyzHandler), nil
}

// RouterConfig holds HTTP routing settings.
type RouterConfig struct {
	AllowedOrigins    []string
	RequestsPerSecond float64
	Burst             int
}

// NewRouter wires middleware and routes around the subscriptions handler.
func NewRouter(cfg RouterConfig, logger *slog.Logger, handler *subscriptions.Handler, readyz http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthzHandler)
	r.Get("/readyz", readyz)
	r.Get("/version", versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	limiter := httputil.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	r.Group(func(r chi.Router) {
		if limiter.Enabled() {
			r.Use(limiter.Middleware)
		}
		handler.RegisterRoutes(r)
	})
	handler.RegisterPublicRoutes(r)

	return r
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
