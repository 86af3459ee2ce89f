package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/stock-ledger-service/internal/api"
	"github.com/wms-platform/stock-ledger-service/internal/application"
	"github.com/wms-platform/stock-ledger-service/internal/config"
	"github.com/wms-platform/stock-ledger-service/internal/infrastructure/backend"
	kafkaRelay "github.com/wms-platform/stock-ledger-service/internal/infrastructure/kafka"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	"github.com/wms-platform/stock-ledger-service/pkg/kafka"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	"github.com/wms-platform/stock-ledger-service/pkg/resilience"
	"github.com/wms-platform/stock-ledger-service/pkg/tracing"
)

const serviceName = "stock-ledger-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.DefaultConfig(serviceName)).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting stock-ledger-service", "backend", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Service stopped with error")
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	tracerProvider, err := tracing.Initialize(ctx, cfg.TracingClientConfig(serviceName))
	if err != nil {
		// Continue without tracing
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	stores, err := backend.Open(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stores.Close(closeCtx)
	}()

	service := application.NewMovementService(
		stores.Events,
		application.NewSlotLocker(m),
		logger,
		m,
		&application.ServiceConfig{MaxConflictRetries: cfg.Ledger.MaxConflictRetries},
	)
	engine := projections.NewEngine(
		stores.Events,
		stores.Views,
		&projections.EngineConfig{BatchSize: cfg.Projections.BatchSize},
		logger,
		m,
		projections.DefaultProjections()...,
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Dependencies{
		ServiceName: serviceName,
		Service:     service,
		Engine:      engine,
		Reader:      projections.NewReader(stores.Views),
		Logger:      logger,
		Metrics:     m,
		Ready:       stores.Ready,

		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	kafkaConfig := cfg.KafkaClientConfig()

	if cfg.Relay.Enabled {
		producer := kafka.NewProducer(kafkaConfig)
		defer producer.Close()

		breaker := resilience.NewCircuitBreaker(
			resilience.DefaultCircuitBreakerConfig("kafka-relay"),
			logger.Logger,
			resilience.MetricsListener(m),
		)
		relay := kafkaRelay.NewEventRelay(stores.Events, stores.Views, producer, breaker, logger, m, &kafkaRelay.RelayConfig{
			Topic:        cfg.Kafka.Topic,
			PollInterval: cfg.Relay.PollInterval,
			BatchSize:    cfg.Relay.BatchSize,
		})
		if err := relay.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return relay.Stop()
		})
	}

	if cfg.Consumer.Enabled {
		// Kafka feeds the projections; an initial catch-up covers anything
		// published before the consumer group existed.
		if err := engine.CatchUpAll(gctx); err != nil {
			logger.WithError(err).Warn("Initial projection catch-up failed")
		}

		consumer := kafka.NewConsumer(kafkaConfig, logger.Logger)
		defer consumer.Close()

		handler := kafkaRelay.NewProjectionConsumer(cfg.Kafka.Topic, engine, logger, m)
		consumer.SubscribeAll(handler.Topic(), handler.Handle)
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		g.Go(func() error {
			return engine.Run(gctx, cfg.Projections.PollInterval)
		})
	}

	return g.Wait()
}
