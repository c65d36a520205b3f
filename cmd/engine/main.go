package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/linkflow-ai/workflow-engine/internal/execution/engine"
	exechttpapi "github.com/linkflow-ai/workflow-engine/internal/execution/httpapi"
	"github.com/linkflow-ai/workflow-engine/internal/node/nodes"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
	"github.com/linkflow-ai/workflow-engine/internal/platform/blobstore"
	"github.com/linkflow-ai/workflow-engine/internal/platform/cache"
	"github.com/linkflow-ai/workflow-engine/internal/platform/config"
	"github.com/linkflow-ai/workflow-engine/internal/platform/database"
	"github.com/linkflow-ai/workflow-engine/internal/platform/health"
	applogger "github.com/linkflow-ai/workflow-engine/internal/platform/logger"
	"github.com/linkflow-ai/workflow-engine/internal/platform/messaging/kafka"
	"github.com/linkflow-ai/workflow-engine/internal/platform/middleware"
	"github.com/linkflow-ai/workflow-engine/internal/platform/metrics"
	"github.com/linkflow-ai/workflow-engine/internal/platform/resilience"
	"github.com/linkflow-ai/workflow-engine/internal/platform/telemetry"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/store/historyindex"
	"github.com/linkflow-ai/workflow-engine/internal/store/mysql"
	"github.com/linkflow-ai/workflow-engine/internal/store/postgres"
	workflowhttpapi "github.com/linkflow-ai/workflow-engine/internal/workflow/httpapi"
	workflowservice "github.com/linkflow-ai/workflow-engine/internal/workflow/service"
)

// main wires the execution engine process: config, logger, the relational
// store (dialect chosen by config.Database.Driver, since the store
// interface is intentionally SQL-dialect-agnostic), the node registry
// (populated by internal/node/nodes's init() side effects, imported here
// for effect), the optional Redis-backed circuit breaker state, blob
// offload, the Mongo history mirror, the engine itself, the workflow
// definition service, and their combined HTTP surface. Mirrors this
// codebase's cmd/services/*/main.go shape: load config, build
// dependencies bottom-up, start, wait on a signal, shut down gracefully.
func main() {
	cfg, err := config.Load("engine")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := buildLogger(cfg.Logger.Level)
	defer log.Sync()
	log.Info("starting workflow engine", zap.String("version", cfg.Version))

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    cfg.Service.Name,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer tel.Close()

	st, closeStore := buildStore(cfg.Database, log)
	defer closeStore()

	buildCircuitBreakers(cfg, log)

	blobs, err := blobstore.New(context.Background(), cfg.S3)
	if err != nil {
		log.Fatal("failed to initialize blob store", zap.Error(err))
	}

	history, err := historyindex.New(context.Background(), cfg.Mongo, log)
	if err != nil {
		log.Warn("history index unavailable, continuing without it", zap.Error(err))
	}
	if history != nil {
		defer history.Close(context.Background())
	}

	eng := engine.New(st, registry.Global, log, blobs, history)
	eng.Install()

	publisher, closePublisher := buildEventPublisher(cfg.Kafka, log)
	defer closePublisher()
	workflows := workflowservice.New(st, registry.Global, publisher, log)

	m := metrics.NewMetrics(cfg.Service.Name)
	healthHandler := health.NewHandler(cfg.Service.Name, cfg.Version)
	healthHandler.AddCheck("store", func(ctx context.Context) error {
		_, err := st.ListWorkflows(ctx, false)
		return err
	})

	router := mux.NewRouter()
	router.Use(m.HTTPMetricsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(cfg.HTTP.MaxRequestBytes))
	router.Use(applogger.HTTPMiddleware(applogger.New(cfg.Logger)))
	router.HandleFunc("/healthz", healthHandler.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.ReadinessHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	workflowhttpapi.New(workflows, log).RegisterRoutes(router)
	exechttpapi.New(eng, st, log).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.Int("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	log.Info("workflow engine stopped gracefully")
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zapLevel
	logger, err := zc.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

// buildStore picks the relational dialect per config.Database.Driver,
// demonstrating store.Store's dialect-agnosticism.
func buildStore(cfg config.DatabaseConfig, log *zap.Logger) (store.Store, func()) {
	switch cfg.Driver {
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN())
		if err != nil {
			log.Fatal("failed to open mysql connection", zap.Error(err))
		}
		if err := db.PingContext(context.Background()); err != nil {
			log.Fatal("failed to ping mysql", zap.Error(err))
		}
		return mysql.New(db), func() { db.Close() }
	default:
		db, err := database.New(cfg)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		return postgres.New(db, cfg.Schema), func() { db.Close() }
	}
}

// buildCircuitBreakers installs the process-wide circuit breaker registry
// that circuit_breaker nodes share (state is visible across
// runs). When Redis is enabled, circuit state is additionally shared
// across engine instances via resilience.RedisStateStore.
func buildCircuitBreakers(cfg *config.Config, log *zap.Logger) {
	defaultConfig := resilience.DefaultCircuitBreakerConfig("")

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cache.Config{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: "circuit_breaker:",
		})
		if err != nil {
			log.Warn("redis unavailable, circuit breaker state stays process-local", zap.Error(err))
		} else {
			defaultConfig.Store = resilience.NewRedisStateStore(redisCache, 24*time.Hour)
		}
	}

	nodes.SetCircuitBreakerRegistry(resilience.NewCircuitBreakerRegistry(defaultConfig))
}

// buildEventPublisher starts the best-effort Kafka publisher used by the
// workflow service to announce domain events. When Kafka is disabled, the
// returned Publisher is a true nil interface, and workflowservice.Service
// skips publishing entirely rather than calling into a disabled producer.
func buildEventPublisher(cfg config.KafkaConfig, log *zap.Logger) (workflowservice.Publisher, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	pub, err := kafka.NewEventPublisher(&kafka.Config{Brokers: cfg.Brokers})
	if err != nil {
		log.Warn("kafka publisher unavailable, workflow events will not be published", zap.Error(err))
		return nil, func() {}
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Warn("failed to close kafka publisher", zap.Error(err))
		}
	}
}
