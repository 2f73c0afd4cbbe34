package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/deepresearch/internal/auth"
	"github.com/Kocoro-lab/deepresearch/internal/circuitbreaker"
	cfg "github.com/Kocoro-lab/deepresearch/internal/config"
	"github.com/Kocoro-lab/deepresearch/internal/health"
	"github.com/Kocoro-lab/deepresearch/internal/httpapi"
	_ "github.com/Kocoro-lab/deepresearch/internal/metrics" // Import for side effects
	"github.com/Kocoro-lab/deepresearch/internal/registry"
	"github.com/Kocoro-lab/deepresearch/internal/temporal"
	"github.com/Kocoro-lab/deepresearch/internal/tracing"
	"github.com/Kocoro-lab/deepresearch/internal/workflows"
)

func main() {
	configPath := flag.String("config", "", "path to research.yaml (defaults to $CONFIG_PATH or ./config/research.yaml)")
	flag.Parse()

	conf, err := cfg.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(conf.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	circuitbreaker.StartMetricsCollection(ctx)

	if err := tracing.Initialize(conf.Tracing, logger); err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	components, err := registry.Build(ctx, conf, registry.BuildOptions{}, logger)
	if err != nil {
		logger.Fatal("Failed to build research runtime", zap.Error(err))
	}
	defer components.Close()

	// Hot-reload research limits from the directory holding the config file
	configDir := getEnvOrDefault("CONFIG_DIR", "./config")
	if *configPath != "" {
		configDir = filepath.Dir(*configPath)
	}
	if configMgr, err := cfg.NewManager(configDir, logger.Named("config")); err != nil {
		logger.Warn("Config manager init failed", zap.Error(err))
	} else {
		configMgr.OnConfig(func(next *cfg.Config) {
			components.Pipeline.UpdateLimits(next.Research)
			logger.Info("Research limits reloaded",
				zap.Int("max_iterations", next.Research.MaxIterations),
				zap.Int("max_concurrent_researchers", next.Research.MaxConcurrentResearchers),
				zap.Int("max_clarification_rounds", next.Research.MaxClarificationRounds),
				zap.Bool("allow_clarification", next.Research.AllowClarification),
			)
		})
		if err := configMgr.Start(ctx); err != nil {
			logger.Warn("Config manager start failed", zap.Error(err))
		}
		defer configMgr.Stop()
	}

	// ------------------------------------------------------------------
	// Bring up Health manager and HTTP endpoints early so they respond
	// even if the Temporal worker is still starting.
	// ------------------------------------------------------------------
	hm := health.NewManager(logger)
	components.RegisterHealthCheckers(hm)
	httpMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(httpMux)
	httpMux.Handle("GET /metrics", promhttp.Handler())

	var jwtManager *auth.JWTManager
	if conf.Auth.Enabled {
		jwtManager, err = auth.NewJWTManager(conf.Auth.JWTSecret, conf.Auth.Issuer, conf.Auth.TokenTTL)
		if err != nil {
			logger.Fatal("Failed to initialize JWT manager", zap.Error(err))
		}
	} else {
		logger.Warn("Authentication disabled; every admin request runs as the dev user")
	}
	authMiddleware := auth.NewMiddleware(jwtManager, !conf.Auth.Enabled, logger)

	httpapi.NewStreamingHandler(components.Streams, logger).RegisterRoutes(httpMux, authMiddleware)
	if jwtManager != nil {
		httpapi.NewAuthHTTPHandler(jwtManager, logger).RegisterRoutes(httpMux, authMiddleware)
	}
	if components.Reports != nil {
		httpapi.NewArchiveHandler(components.Reports, components.DB, logger).RegisterRoutes(httpMux, authMiddleware)
	}

	adminPort := getEnvOrDefaultInt("ADMIN_PORT", conf.Service.AdminPort)
	adminServer := &http.Server{
		Addr:        ":" + strconv.Itoa(adminPort),
		Handler:     httpMux,
		ReadTimeout: 10 * time.Second,
		// Streams stay open, so writes are not bounded
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		_ = hm.Start(ctx)
		logger.Info("Admin HTTP server listening", zap.Int("port", adminPort))
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	// Initialize Temporal client and worker in background
	workerDone := make(chan struct{})
	stopWorker := make(chan interface{})
	go func() {
		defer close(workerDone)
		host := conf.Temporal.HostPort
		// TCP pre-check
		for i := 1; i <= 60; i++ {
			c, err := net.DialTimeout("tcp", host, 2*time.Second)
			if err == nil {
				_ = c.Close()
				break
			}
			logger.Warn("Waiting for Temporal TCP endpoint", zap.String("host", host), zap.Int("attempt", i))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		// Dial SDK with retry
		var tClient client.Client
		var err error
		for attempt := 1; ; attempt++ {
			tClient, err = client.Dial(client.Options{
				HostPort:  host,
				Namespace: conf.Temporal.Namespace,
				Logger:    temporal.NewZapAdapter(logger),
			})
			if err == nil {
				break
			}
			delay := time.Duration(attempt)
			if delay > 15 {
				delay = 15
			}
			logger.Warn("Temporal not ready, retrying", zap.Int("attempt", attempt), zap.String("host", host), zap.Duration("sleep", delay*time.Second), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay * time.Second):
			}
		}
		defer tClient.Close()
		_ = hm.RegisterChecker(health.NewTemporalHealthChecker(tClient))

		httpapi.NewSessionsHandler(tClient, conf.Temporal.TaskQueue, workflows.ResearchInput{
			ActivityTimeout:  conf.Temporal.ActivityTimeout,
			HeartbeatTimeout: conf.Temporal.HeartbeatTimeout,
			AnswerTimeout:    conf.Temporal.AnswerTimeout,
		}, logger).RegisterRoutes(httpMux, authMiddleware)
		logger.Info("Sessions API registered on admin HTTP server", zap.Int("port", adminPort))

		wk := worker.New(tClient, conf.Temporal.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize:     getEnvOrDefaultInt("WORKER_ACT", 10),
			MaxConcurrentWorkflowTaskExecutionSize: getEnvOrDefaultInt("WORKER_WF", 10),
		})
		reg := registry.NewResearchRegistry(components.NewActivities(), logger)
		if err := reg.RegisterWorkflows(wk); err != nil {
			logger.Error("Failed to register workflows", zap.Error(err))
		}
		if err := reg.RegisterActivities(wk); err != nil {
			logger.Error("Failed to register activities", zap.Error(err))
		}
		logger.Info("Temporal worker started", zap.String("queue", conf.Temporal.TaskQueue))
		if err := wk.Run(stopWorker); err != nil {
			logger.Error("Temporal worker exited with error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down research service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Service.ShutdownTimeout)
	defer shutdownCancel()

	close(stopWorker)
	cancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for Temporal worker to stop")
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin HTTP server shutdown failed", zap.Error(err))
	}
	_ = hm.Stop()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(err))
	}
}

func newLogger(c cfg.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		level, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
