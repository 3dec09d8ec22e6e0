// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/audit"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/config"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/executors"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/logging"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/orchestrator"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/persistence/postgres"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/registry"
	httptransport "github.com/Sohailahussien/AI-Chat-APP-sub000/internal/transport/http"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	var (
		pool   *pgxpool.Pool
		health httptransport.HealthChecker
	)
	if cfg.UsesPostgres() {
		var err error
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:    int32(cfg.DatabaseMaxConns),
			PingTimeout: 3 * time.Second,
		})
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				log.Fatalf("schema migration failed: %v", err)
			}
		}
		health = postgres.NewSchemaHealthChecker(pool)
	}

	chainStore, err := newChainStore(cfg, pool, logger)
	if err != nil {
		log.Fatalf("chain store: %v", err)
	}
	auditStore, closeAudit, err := newAuditStore(ctx, cfg, pool, logger)
	if err != nil {
		log.Fatalf("audit store: %v", err)
	}
	defer closeAudit()

	chains := registry.New(registry.Deps{Store: chainStore, Logger: logger})
	collaborators := executors.NewCollaborators(executors.Endpoints{
		LLM:       cfg.LLMEndpoint,
		Tools:     cfg.ToolEndpoint,
		Translate: cfg.TranslateEndpoint,
		Secret:    cfg.CollaboratorSecret,
		Timeout:   cfg.CollaboratorTimeout,
	}, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Chains:     chains,
		Audit:      audit.NewLog(auditStore, logger),
		LLM:        collaborators.LLM,
		Tools:      collaborators.Tools,
		Translator: collaborators.Translator,
		Logger:     logger,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Chains:              chains,
		Executor:            orch,
		Audit:               orch,
		Health:              health,
		Logger:              logger,
		AdminToken:          cfg.AdminToken,
		ExecutionsPerMinute: cfg.ExecutionsPerMinute,
		Version:             Version,
		Commit:              Commit,
		BuildDate:           BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"store_backend", cfg.StoreBackend,
			"audit_backend", cfg.AuditBackend,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

func newChainStore(cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (registry.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return registry.NewMemoryStore(), nil
	case config.BackendPostgres:
		return registry.NewPostgresStore(pool, logger), nil
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func newAuditStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (audit.Store, func(), error) {
	noop := func() {}

	switch cfg.AuditBackend {
	case config.BackendMemory:
		return audit.NewMemoryStore(), noop, nil
	case config.BackendPostgres:
		return audit.NewPostgresStore(pool, logger), noop, nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close failed", "error", err)
			}
		}
		return audit.NewRedisStore(client, cfg.RedisAuditKey, logger), closeClient, nil
	default:
		return nil, noop, fmt.Errorf("unsupported AUDIT_BACKEND %q", cfg.AuditBackend)
	}
}
