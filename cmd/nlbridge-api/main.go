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

	"github.com/nlbridge/nlbridge/internal/api"
	"github.com/nlbridge/nlbridge/internal/auth"
	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/backend/cassandra"
	"github.com/nlbridge/nlbridge/internal/backend/lakehouse"
	"github.com/nlbridge/nlbridge/internal/backend/mysql"
	"github.com/nlbridge/nlbridge/internal/backend/postgres"
	"github.com/nlbridge/nlbridge/internal/backend/sqlite"
	"github.com/nlbridge/nlbridge/internal/config"
	"github.com/nlbridge/nlbridge/internal/executor"
	"github.com/nlbridge/nlbridge/internal/observability"
	"github.com/nlbridge/nlbridge/internal/translate"
)

func main() {
	cfg, err := config.LoadFromEnv("nlbridge-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	pool := executor.NewPool()
	registerBackend(pool, logger, postgres.NewDriver(), cfg.Postgres)
	registerBackend(pool, logger, mysql.NewDriver(), cfg.MySQL)
	registerBackend(pool, logger, sqlite.NewDriver(), cfg.SQLite)
	registerBackend(pool, logger, cassandra.NewDriver(), cfg.Cassandra)
	registerBackend(pool, logger, lakehouse.NewDriver(), cfg.Lakehouse)
	defer func() { _ = pool.Close() }()

	var completer translate.Completer
	if cfg.AI.APIKey != "" {
		client, err := translate.NewOpenAIClient(translate.OpenAIConfig{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize completion client", slog.Any("error", err))
			os.Exit(1)
		}
		completer = client
	} else {
		logger.Warn("no completion API key configured; ask requests will fail until one is set")
	}

	engine := translate.NewEngine(completer, translate.Options{
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})

	exec := executor.New(pool, engine, executor.Timeouts{
		Connect:   cfg.Ask.ConnectTimeout,
		Translate: cfg.Ask.TranslateTimeout,
		Execute:   cfg.Ask.ExecuteTimeout,
	}, logger)

	deps := api.Dependencies{
		Logger:            logger,
		Executor:          exec,
		Readiness:         api.CheckCompletionConfig(cfg),
		DependencyTimeout: time.Second,
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
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func registerBackend(pool *executor.Pool, logger *slog.Logger, driver backend.Driver, cfg config.BackendConfig) {
	if !cfg.Enabled {
		return
	}
	connCfg := connConfig(cfg)
	if err := connCfg.Validate(driver.Kind()); err != nil {
		logger.Error("invalid backend config",
			slog.String("backend", string(driver.Kind())),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
	pool.Register(driver, connCfg)
	logger.Info("registered backend", slog.String("backend", string(driver.Kind())))
}

func connConfig(cfg config.BackendConfig) backend.ConnConfig {
	return backend.ConnConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
		Secret:   cfg.Password,
		TLS: backend.TLSConfig{
			Verify:     cfg.TLSVerify,
			CACert:     cfg.TLSCACert,
			ClientCert: cfg.TLSClientCert,
			ClientKey:  cfg.TLSClientKey,
		},
	}
}
