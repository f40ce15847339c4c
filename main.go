package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/blogapi/internal/auth"
	cfg "github.com/example/blogapi/internal/config"
	"github.com/example/blogapi/internal/logging"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type App struct {
	DB      DB
	Auth    *auth.Service
	Tokens  *auth.TokenService
	Log     *slog.Logger
	Metrics *Metrics

	registry    *prometheus.Registry
	corsOrigins []string
}

// AppOptions carries what NewApp needs beyond the store.
type AppOptions struct {
	Tokens      *auth.TokenService
	Hasher      auth.PasswordHasher
	Log         *slog.Logger
	CORSOrigins []string
}

func NewApp(db DB, opts AppOptions) *App {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	registry := newRegistry()
	return &App{
		DB:          db,
		Auth:        auth.NewService(db, opts.Hasher, opts.Tokens),
		Tokens:      opts.Tokens,
		Log:         opts.Log,
		Metrics:     NewMetrics(registry),
		registry:    registry,
		corsOrigins: opts.CORSOrigins,
	}
}

// Handler builds the router and wraps it in the global middleware. CORS and
// logging sit outside the router so preflight and unmatched requests pass
// through them too.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.Instrument)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/test", a.HandleTest).Methods(http.MethodGet)

	api.HandleFunc("/users/register", a.HandleRegister).Methods(http.MethodPost)
	api.HandleFunc("/users/login", a.HandleLogin).Methods(http.MethodPost)
	api.HandleFunc("/users/{userId:[0-9]+}/posts", a.HandleListUserPosts).Methods(http.MethodGet)

	api.HandleFunc("/posts", a.HandleListPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts", a.RequireAuth(a.HandleCreatePost)).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id:[0-9]+}", a.HandleGetPost).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id:[0-9]+}", a.RequireAuth(a.HandleUpdatePost)).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id:[0-9]+}", a.RequireAuth(a.HandleDeletePost)).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return RequestID(a.CORS(SecurityHeaders(a.Logging(r))))
}

// openDB connects the configured adapter, applying migrations first when
// MIGRATE_ON_START is set.
func openDB(c *cfg.Config, log *slog.Logger) (DB, error) {
	if c.MigrateOnStart && c.DBAdapter != "memory" {
		if err := ApplyMigrations(c.DBAdapter, c.MigrationDSN(), log); err != nil {
			return nil, err
		}
	}

	switch c.DBAdapter {
	case "sqlite":
		return NewSQLiteDB(c.SQLiteFile)
	case "postgres":
		return NewPostgresDB(c.PostgresDSN, PoolConfig{
			MaxOpenConns:    c.MaxOpenConns,
			MaxIdleConns:    c.MaxIdleConns,
			ConnMaxLifetime: c.ConnMaxLifetime,
		})
	case "memory":
		log.Warn("using in-memory database (not recommended for production)")
		return NewMemoryDB(), nil
	}
	return nil, errors.New("unsupported DB_ADAPTER: " + c.DBAdapter)
}

func main() {
	c, err := cfg.New()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	log := logging.Setup("blogapi", version, c.LogFormat, c.LogLevel, os.Stderr)
	slog.SetDefault(log)
	if c.UsingDefaultSecret() {
		log.Warn("JWT_SECRET not set; signing tokens with the development default")
	}

	db, err := openDB(c, log)
	if err != nil {
		log.Error("database init", "adapter", c.DBAdapter, "error", err)
		os.Exit(1)
	}
	log.Info("database ready", "adapter", c.DBAdapter)

	tokens, err := auth.NewTokenService([]byte(c.JwtSecret), auth.WithTTL(c.TokenTTL), auth.WithIssuer(c.JwtIssuer))
	if err != nil {
		log.Error("token service", "error", err)
		os.Exit(1)
	}

	app := NewApp(db, AppOptions{
		Tokens:      tokens,
		Hasher:      auth.NewBcryptHasher(c.BcryptCost),
		Log:         log,
		CORSOrigins: c.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Handler:           app.Handler(),
		Addr:              ":" + c.Port,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", c.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	if err := app.DB.Close(); err != nil {
		log.Error("close database", "error", err)
	}
	log.Info("server exited properly")
}
