package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/auth"
	"github.com/dgellow/restaurant-reviews/internal/config"
	"github.com/dgellow/restaurant-reviews/internal/idp"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/server"
	"github.com/dgellow/restaurant-reviews/internal/session"
	"github.com/dgellow/restaurant-reviews/internal/storage"
	"github.com/dgellow/restaurant-reviews/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout          = 30 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

// App is the complete restaurant review application
type App struct {
	config            config.Config
	storage           storage.Storage
	monitor           *storage.Monitor
	handler           http.Handler
	httpServer        *server.HTTPServer
	shutdownTelemetry telemetry.ShutdownFunc
}

// NewApp builds the application and all of its dependencies
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("app", "Building application", map[string]any{
		"addr":       cfg.Addr,
		"storage":    string(cfg.Storage.Kind),
		"auth":       string(cfg.AuthMode),
		"production": cfg.Production,
	})

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:      cfg.Telemetry.Enabled,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		AppInsights:  cfg.Telemetry.AppInsightsConnectionString != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		stopTelemetry(shutdownTelemetry)
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, err := setupProvider(cfg)
	if err != nil {
		store.Close()
		stopTelemetry(shutdownTelemetry)
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}

	sessions, err := session.NewStore([]byte(cfg.Session.SecretKey), session.Options{
		MaxAge: cfg.Session.MaxAge,
		Secure: cfg.SecureCookies(),
	})
	if err != nil {
		store.Close()
		stopTelemetry(shutdownTelemetry)
		return nil, fmt.Errorf("failed to setup session store: %w", err)
	}

	monitor := storage.NewMonitor(store, cfg.Storage.HealthCheckInterval)

	handler, err := server.NewHandler(server.Dependencies{
		Storage:      store,
		Monitor:      monitor,
		Flow:         auth.NewFlow(provider),
		SessionStore: sessions,
		SiteURL:      cfg.SiteURL(),
		Production:   cfg.Production,
	})
	if err != nil {
		store.Close()
		stopTelemetry(shutdownTelemetry)
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		config:            cfg,
		storage:           store,
		monitor:           monitor,
		handler:           handler,
		httpServer:        server.NewHTTPServer(handler, cfg.Addr),
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and monitors storage until ctx is cancelled, a shutdown
// signal arrives or one of them fails. Pending spans are flushed and storage
// is closed before returning.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	defer stopTelemetry(a.shutdownTelemetry)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.LogInfoWithFields("app", "Starting application", map[string]any{
		"addr": a.config.Addr,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.monitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
			"reason":  shutdownReason(ctx, gctx),
			"timeout": shutdownTimeout.String(),
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		log.LogErrorWithFields("app", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("app", "Application shutdown complete", nil)
	return nil
}

// Close releases the storage backend
func (a *App) Close() error {
	return a.storage.Close()
}

// stopTelemetry flushes pending spans with its own deadline, since the
// caller's context is usually already cancelled.
func stopTelemetry(shutdown telemetry.ShutdownFunc) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.LogErrorWithFields("telemetry", "Failed to flush spans", map[string]any{
			"error": err.Error(),
		})
	}
}

func shutdownReason(parent, group context.Context) string {
	if parent.Err() != nil {
		return "signal or context cancelled"
	}
	if cause := context.Cause(group); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause.Error()
	}
	return "component stopped"
}

func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Kind {
	case config.StorageMemory:
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		return storage.NewMemoryStorage(), nil
	case config.StorageSQLite, "":
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path": cfg.SQLitePath,
		})
		return storage.NewSQLiteStorage(ctx, cfg.SQLitePath)
	case config.StoragePostgres:
		log.LogInfoWithFields("storage", "Using PostgreSQL storage", map[string]any{
			"max_conns": cfg.DatabaseMaxConns,
		})
		return storage.NewPostgresStorage(ctx, storage.PostgresConfig{
			URL:      string(cfg.DatabaseURL),
			MaxConns: cfg.DatabaseMaxConns,
		})
	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.FirestoreProjectID,
			"database": cfg.FirestoreDatabase,
			"prefix":   cfg.FirestorePrefix,
		})
		return storage.NewFirestoreStorage(ctx, storage.FirestoreConfig{
			ProjectID:        cfg.FirestoreProjectID,
			Database:         cfg.FirestoreDatabase,
			CollectionPrefix: cfg.FirestorePrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage kind %q", cfg.Kind)
	}
}

// setupProvider returns nil when authentication is disabled, which puts the
// login flow in degraded mode.
func setupProvider(cfg config.Config) (idp.Provider, error) {
	if cfg.AuthMode != config.AuthModeAzure {
		log.LogWarnWithFields("app", "Azure authentication not configured, login is disabled", nil)
		return nil, nil
	}
	provider, err := idp.NewAzureProvider(idp.AzureConfig{
		TenantID:      cfg.Azure.TenantID,
		ClientID:      string(cfg.Azure.ClientID),
		ClientSecret:  string(cfg.Azure.ClientSecret),
		RedirectURI:   cfg.Azure.RedirectURI,
		AuthorityHost: cfg.Azure.AuthorityHost,
		GraphMeURL:    cfg.Azure.GraphMeURL,
		Scopes:        cfg.Azure.Scopes,
		Timeout:       cfg.Azure.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
