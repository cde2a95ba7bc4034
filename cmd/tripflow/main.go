package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tripflow/internal/api"
	"tripflow/pkg/config"
	"tripflow/pkg/engine"
	"tripflow/pkg/logging"
	"tripflow/pkg/store"
	"tripflow/pkg/version"
)

var (
	configPath = flag.String("config", "configs/tripflow.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// A .env next to the binary may carry overrides (address, db path).
	_ = godotenv.Load()

	if *initConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyEnvOverrides(appCfg)

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("TripFlow started", "version", version.Version)

	var audit store.AuditStore
	if appCfg.Audit.Enabled {
		st, err := store.NewSQLiteStore(appCfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer st.Close()
		audit = st
		slog.Info("Audit store ready", "path", appCfg.Audit.Path)
	}

	eng := engine.New(appCfg.Engine, audit)

	return runServer(ctx, appCfg, eng, audit)
}

// applyEnvOverrides lets a .env or the environment trump the config file for
// the settings that differ per deployment.
func applyEnvOverrides(cfg *config.Config) {
	if addr := os.Getenv("TRIPFLOW_ADDR"); addr != "" {
		cfg.Server.Address = addr
	}
	if path := os.Getenv("TRIPFLOW_AUDIT_DB"); path != "" {
		cfg.Audit.Path = path
		cfg.Audit.Enabled = true
	}
}

func runServer(ctx context.Context, cfg *config.Config, eng *engine.Engine, audit store.AuditStore) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewSessionHandler(eng),
		api.NewEventsHandler(eng),
		api.NewActionHandler(eng),
		api.NewReplanHandler(eng),
		api.NewFeedHandler(eng),
		api.NewHistoryHandler(audit),
		api.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
