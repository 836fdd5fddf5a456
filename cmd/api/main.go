package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/config"
	"github.com/mbelshaw/dailyoffice-back/internal/generator"
	httpserver "github.com/mbelshaw/dailyoffice-back/internal/http"
	"github.com/mbelshaw/dailyoffice-back/internal/http/handlers"
	"github.com/mbelshaw/dailyoffice-back/internal/ledger"
	"github.com/mbelshaw/dailyoffice-back/internal/queue"
	"github.com/mbelshaw/dailyoffice-back/internal/service"
	"github.com/mbelshaw/dailyoffice-back/internal/store"
	"github.com/mbelshaw/dailyoffice-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[dailyoffice-back] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, ledgerCloser := setupLedger(ctx, cfg, logger)
	defer ledgerCloser()

	artifacts := setupArtifactStore(ctx, cfg, logger)

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	documentGenerator := generator.NewRemoteGenerator(generator.RemoteConfig{
		BaseURL:    cfg.GeneratorBaseURL,
		Timeout:    time.Duration(cfg.GeneratorTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.GeneratorRetries,
		AuthToken:  cfg.GeneratorAuthToken,
	})
	if !documentGenerator.Available() {
		logger.Printf("GENERATOR_BASE_URL not configured, generation requests will fail")
	}

	leaseTTL := time.Duration(cfg.JobLeaseSeconds) * time.Second
	orchestrator := service.NewOrchestrator(service.OrchestratorDependencies{
		Store:          artifacts,
		Ledger:         jobs,
		Producer:       producer,
		Generator:      documentGenerator,
		Logger:         logger,
		PendingTimeout: time.Duration(cfg.PendingTimeoutSeconds) * time.Second,
	})

	api := handlers.NewAPI(orchestrator)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(consumer, jobs, artifacts, documentGenerator, leaseTTL, logger)
		go processor.Start(ctx)
		logger.Printf("worker enabled and started")
	} else {
		logger.Printf("worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupLedger(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (ledger.JobsLedger, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory job ledger")
		return ledger.NewMemoryJobsLedger(), func() {}
	}

	pgLedger, err := ledger.NewPostgresJobsLedger(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres ledger, fallback to memory: %v", err)
		return ledger.NewMemoryJobsLedger(), func() {}
	}
	logger.Printf("postgres job ledger initialized")
	return pgLedger, func() {
		pgLedger.Close()
	}
}

func setupArtifactStore(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) store.ArtifactStore {
	ttl := time.Duration(cfg.ArtifactTTLDays) * 24 * time.Hour

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using in-memory artifact store")
		return store.NewMemoryArtifactStore(store.MemoryConfig{
			TTL:        ttl,
			MaxEntries: cfg.ArtifactCacheMaxEntries,
		})
	}

	redisStore, err := store.NewRedisArtifactStore(ctx, store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      ttl,
	})
	if err != nil {
		logger.Printf("failed to initialize redis artifact store, fallback to memory: %v", err)
		return store.NewMemoryArtifactStore(store.MemoryConfig{
			TTL:        ttl,
			MaxEntries: cfg.ArtifactCacheMaxEntries,
		})
	}
	logger.Printf("redis artifact store initialized")
	return redisStore
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	var (
		baseProducer queue.Producer
		consumer     queue.Consumer
		baseCloser   = func() {}
	)

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, 3, logger)
		baseProducer = local
		consumer = local
	} else {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Stream:      cfg.RedisStream,
			DLQStream:   cfg.RedisDLQ,
			Group:       cfg.RedisGroup,
			Consumer:    cfg.RedisConsumer,
			MaxAttempts: 3,
		})
		if err != nil {
			logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
			local := queue.NewLocalQueue(512, 3, logger)
			baseProducer = local
			consumer = local
		} else {
			logger.Printf("redis streams queue initialized")
			baseProducer = streams
			consumer = streams
			baseCloser = func() {
				_ = streams.Close()
			}
		}
	}

	producer := baseProducer
	batchingCloser := func() {}
	if cfg.QueueBatchingEnabled {
		batching := queue.NewBatchingProducer(ctx, baseProducer, queue.BatchingConfig{
			MaxBatchSize:       cfg.QueueBatchSize,
			FlushInterval:      time.Duration(cfg.QueueBatchFlushMS) * time.Millisecond,
			FlushTimeout:       time.Duration(cfg.QueueBatchFlushTimeoutMS) * time.Millisecond,
			QueueCapacity:      cfg.QueueBatchQueueCapacity,
			MaxInFlightBatches: cfg.QueueBatchMaxInFlight,
		})
		producer = batching
		batchingCloser = batching.Close
		logger.Printf(
			"queue batching enabled size=%d flush_ms=%d queue_capacity=%d max_in_flight=%d",
			cfg.QueueBatchSize,
			cfg.QueueBatchFlushMS,
			cfg.QueueBatchQueueCapacity,
			cfg.QueueBatchMaxInFlight,
		)
	}

	return producer, consumer, func() {
		batchingCloser()
		baseCloser()
	}
}
