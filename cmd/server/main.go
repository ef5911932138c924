package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/config"
	"github.com/commercekit/dataport/internal/logging"
	"github.com/commercekit/dataport/internal/profile"
	"github.com/commercekit/dataport/internal/session"
	"github.com/commercekit/dataport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"files_dir", cfg.Engine.FilesDir,
		"error_policy", cfg.Engine.ErrorPolicy,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Ensure profile and session tables exist
	profiles := profile.NewStore(pool)
	if err := profiles.Init(ctx); err != nil {
		slog.Error("failed to initialize profile store", "error", err)
		os.Exit(1)
	}
	sessions := session.NewStore(pool)
	if err := sessions.Init(ctx); err != nil {
		slog.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}

	// Ensure the exchange file directory exists
	if err := os.MkdirAll(cfg.Engine.FilesDir, 0o755); err != nil {
		slog.Error("failed to create files directory", "dir", cfg.Engine.FilesDir, "error", err)
		os.Exit(1)
	}

	// Register data adapters. Each run gets a fresh instance so message
	// logs never leak between sessions.
	policy := adapter.ErrorPolicy(cfg.Engine.ErrorPolicy)
	shops := adapter.NewPgShopConfig(pool, cfg.Engine.GlobalPaymentID)
	registry := adapter.NewRegistry()
	registry.Register("customer", func() adapter.DataAdapter {
		return adapter.NewCustomerAdapter(pool, adapter.NewPgIntrospector(pool), adapter.NewEncoderRegistry(), shops, policy, slog.Default())
	})
	registry.Register("order", func() adapter.DataAdapter {
		return adapter.NewOrderAdapter(pool, policy, slog.Default())
	})

	server := web.NewServer(profiles, sessions, registry, web.Config{
		FilesDir:       cfg.Engine.FilesDir,
		PageLimit:      cfg.Engine.PageLimit,
		MaxRecordCount: cfg.Engine.MaxRecordCount,
	}, slog.Default())

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
