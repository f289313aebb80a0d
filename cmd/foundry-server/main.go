// Foundry Server — оркестратор job: очередь, dispatch на workers,
// pipeline стадий, статистика, аварийная остановка.
//
// Сервер:
//   - Регистрирует workers из конфигурации
//   - Принимает job через HTTP API и (опционально) из RabbitMQ
//   - Архивирует завершённые job (memory + PostgreSQL/SQLite/RabbitMQ)
//   - Запускает периодические job по расписанию
//
// Использование:
//
//	foundry-server [-config foundry.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Foundry/internal/api"
	"github.com/shaiso/Foundry/internal/archive"
	"github.com/shaiso/Foundry/internal/config"
	"github.com/shaiso/Foundry/internal/mq"
	"github.com/shaiso/Foundry/internal/orchestrator"
	"github.com/shaiso/Foundry/internal/pipeline"
	"github.com/shaiso/Foundry/internal/recurring"
	"github.com/shaiso/Foundry/internal/registry"
	"github.com/shaiso/Foundry/internal/repo"
	"github.com/shaiso/Foundry/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("FOUNDRY_CONFIG"), "path to YAML config")
	flag.Parse()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting foundry-server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Workers
	reg := registry.New(logger)
	for _, w := range cfg.Workers {
		if err := reg.Register(w); err != nil {
			logger.Error("failed to register worker", "worker_id", w.ID, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("workers registered", "count", reg.Len())

	// Стадии
	stages := pipeline.NewDefaultRegistry(cfg.Pipeline.MinStageDelay, cfg.Pipeline.MaxStageDelay)
	for name, url := range cfg.Pipeline.Webhooks {
		stages.Register(name, &pipeline.WebhookStage{URL: url, Timeout: cfg.Pipeline.WebhookTimeout})
		logger.Info("webhook stage configured", "stage", name, "url", url)
	}

	executor := pipeline.NewExecutor(pipeline.Config{
		Stages:        stages,
		PassThreshold: &cfg.Pipeline.QualityThreshold,
		Logger:        logger,
		Metrics:       metrics,
	})

	// Архивы
	memory := archive.NewMemory(cfg.Archive.MemoryCapacity)
	archives := archive.NewMulti(archive.Named{Name: "memory", Store: memory})

	if cfg.Archive.PostgresURL != "" {
		pool, err := repo.NewPool(ctx, cfg.Archive.PostgresURL)
		if err != nil {
			logger.Warn("PostgreSQL not available, archive disabled", "error", err)
		} else {
			defer pool.Close()
			completions := repo.NewCompletionRepo(pool)
			if err := completions.Migrate(ctx); err != nil {
				logger.Warn("failed to migrate completed_jobs", "error", err)
			} else {
				archives.Add("postgres", completions)
				logger.Info("postgres archive enabled")
			}
		}
	}

	if cfg.Archive.SQLitePath != "" {
		sqlite, err := archive.NewSQLite(cfg.Archive.SQLitePath)
		if err != nil {
			logger.Warn("failed to open sqlite archive", "path", cfg.Archive.SQLitePath, "error", err)
		} else {
			defer sqlite.Close()
			archives.Add("sqlite", sqlite)
			logger.Info("sqlite archive enabled", "path", cfg.Archive.SQLitePath)
		}
	}

	// RabbitMQ
	var mqConn *mq.Connection
	if cfg.MQ.URL != "" {
		mqConn, err = mq.NewConnection(mq.ConnectionConfig{
			URL:     cfg.MQ.URL,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			logger.Warn("RabbitMQ not available, running in HTTP-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			if cfg.MQ.PublishCompleted {
				archives.Add("amqp", archive.NewEventPublisher(mq.NewPublisher(mqConn, logger)))
			}
		}
	}

	var intake *mq.Connection
	if cfg.MQ.ConsumeSubmitted {
		intake = mqConn
	}

	// Orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Registry:       reg,
		Executor:       executor,
		Archive:        archives,
		Metrics:        metrics,
		Conn:           intake,
		PollInterval:   cfg.Orchestrator.PollInterval,
		RecentLimit:    cfg.Orchestrator.RecentLimit,
		ArchiveTimeout: cfg.Orchestrator.ArchiveTimeout,
		Logger:         logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Периодические job
	scheduler, err := recurring.New(recurring.Config{
		Schedules: cfg.Schedules,
		Submitter: orch,
		Logger:    logger,
	}, time.Now())
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if scheduler.Len() > 0 {
		go scheduler.Run(ctx)
	}

	// HTTP API
	handler := api.NewHandler(api.Config{
		Orchestrator: orch,
		Archive:      memory,
		Schedules:    scheduler,
		Logger:       logger,
		Metrics:      metrics,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	shutdown(srv, orch, logger)
}

// shutdown останавливает HTTP-сервер, затем оркестратор.
func shutdown(srv *http.Server, orch *orchestrator.Orchestrator, logger *slog.Logger) {
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	orch.Stop()
	logger.Info("foundry-server stopped")
}
