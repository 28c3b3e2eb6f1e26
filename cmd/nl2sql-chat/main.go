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

	"github.com/joho/godotenv"

	"github.com/nl2sqlchat/nl2sqlchat/internal/api"
	"github.com/nl2sqlchat/nl2sqlchat/internal/api/uistatic"
	"github.com/nl2sqlchat/nl2sqlchat/internal/auth"
	"github.com/nl2sqlchat/nl2sqlchat/internal/chat"
	"github.com/nl2sqlchat/nl2sqlchat/internal/config"
	"github.com/nl2sqlchat/nl2sqlchat/internal/export"
	"github.com/nl2sqlchat/nl2sqlchat/internal/nl2sql"
	"github.com/nl2sqlchat/nl2sqlchat/internal/observability"
	"github.com/nl2sqlchat/nl2sqlchat/internal/query/sqldb"
	"github.com/nl2sqlchat/nl2sqlchat/internal/schooldb"
	s3store "github.com/nl2sqlchat/nl2sqlchat/internal/storage/s3"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("nl2sql-chat")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	db, dialect, err := schooldb.Open(startupCtx, schooldb.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open school database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := schooldb.Bootstrap(startupCtx, db, dialect); err != nil {
		logger.Error("failed to bootstrap school database", slog.Any("error", err))
		_ = db.Close()
		os.Exit(1)
	}
	logger.Info("school database ready",
		slog.String("driver", string(dialect)),
		slog.Int("students", len(schooldb.Students())),
		slog.Int("departments", len(schooldb.Departments())),
	)

	bridge, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:            cfg.AI.BaseURL,
		APIKey:             cfg.AI.APIKey,
		Model:              cfg.AI.Model,
		SQLTemperature:     cfg.AI.SQLTemperature,
		SummaryTemperature: cfg.AI.SummaryTemperature,
		Timeout:            cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize chat-completion client", slog.Any("error", err))
		os.Exit(1)
	}

	queryEngine := sqldb.NewEngine(db)
	sessions := chat.NewManager(cfg.Session.TTL, cfg.Session.CleanupInterval, logger)
	defer sessions.Close()

	assistant := &chat.Assistant{
		Translator:  bridge,
		Summarizer:  bridge,
		Engine:      queryEngine,
		Schema:      schooldb.SchemaDescription(),
		RowLimit:    cfg.Query.RowLimit,
		StepTimeout: cfg.AI.Timeout,
		Logger:      logger,
	}

	deps := api.Dependencies{
		Logger:      logger,
		QueryEngine: queryEngine,
		Assistant:   assistant,
		Sessions:    sessions,
		UI:          uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(db),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimout: time.Second,
	}
	if cfg.Export.Enabled {
		objectStore, err := s3store.New(startupCtx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = &export.Exporter{Store: objectStore, URLExpiry: cfg.Export.URLExpiry}
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting chat server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("chat server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down chat server", slog.Int("open_sessions", sessions.Count()))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}
