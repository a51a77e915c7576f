package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/routerd/internal/application/orchestrator"
	"github.com/aescanero/routerd/internal/application/workers"
	"github.com/aescanero/routerd/internal/config"
	"github.com/aescanero/routerd/internal/graph"
	"github.com/aescanero/routerd/internal/hostpool"
	"github.com/aescanero/routerd/pkg/adapters/downstream"
	memoryevents "github.com/aescanero/routerd/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/routerd/pkg/adapters/events/redis"
	"github.com/aescanero/routerd/pkg/adapters/metrics/prometheus"
	httpapi "github.com/aescanero/routerd/pkg/api/http"
	"github.com/aescanero/routerd/pkg/api/websocket"
	"github.com/aescanero/routerd/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load process configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) > 1 {
		cfg.ConfigPath = os.Args[1]
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting routerd",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("config", cfg.ConfigPath))

	// Load and compile the routing document
	doc, err := config.LoadDocument(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	hosts, err := hostpool.New(doc.Hosts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	graphs := make(map[string]*graph.CompiledGraph, len(doc.Graphs))
	for name, decl := range doc.Graphs {
		g, err := graph.Compile(name, decl, hosts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		graphs[name] = g
	}

	// Initialize the event bus
	var eventBus ports.EventBus
	var redisClient *goredis.Client

	switch cfg.Events {
	case "redis":
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		eventBus, err = redisevents.NewStreamsEventBus(
			redisClient,
			"routerd-operators",
			fmt.Sprintf("routerd-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
	default:
		eventBus = memoryevents.NewInMemoryEventBus()
	}

	// Initialize application components
	metricsCollector := prometheus.NewCollector()

	dispatchPool := workers.NewPool(doc.Threads, metricsCollector, logger, 30*time.Second)
	if err := dispatchPool.Start(); err != nil {
		logger.Fatal("failed to start dispatch pool", zap.Error(err))
	}

	client := downstream.NewClient(cfg.DownstreamTimeout, logger)

	orch := orchestrator.New(hosts, dispatchPool, client, eventBus, metricsCollector, logger)

	// Initialize the HTTP front-end
	httpServer, err := httpapi.NewServer(&httpapi.Config{
		Document:     doc,
		Graphs:       graphs,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("routerd started",
		zap.Uint16("port", doc.Port),
		zap.Int("threads", doc.Threads),
		zap.Int("graphs", len(graphs)),
		zap.Int("routes", len(doc.Routes)))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := dispatchPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatch pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("routerd shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
