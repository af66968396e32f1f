// Package main starts the message dispatch router binary.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibs-source/dispatch/router/golang/internal/config"
	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/mediator"
	"github.com/ibs-source/dispatch/router/golang/internal/metrics"
	"github.com/ibs-source/dispatch/router/golang/internal/pool"
	"github.com/ibs-source/dispatch/router/golang/internal/ratelimit"
	"github.com/ibs-source/dispatch/router/golang/internal/router"
	"github.com/ibs-source/dispatch/router/golang/internal/source"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

const warningStoreCapacity = 256

func run() int {
	logger := log.New()
	logger.Info("Starting dispatch router")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	shutdownMetrics, sink, err := initializeTelemetry(cfg, logger)
	if err != nil {
		return 1
	}
	defer shutdownTelemetry(shutdownMetrics, logger)

	rt, limiter, warnings := initializeRouter(cfg, sink, logger)

	sources, err := initializeSources(cfg, rt, warnings, logger)
	if err != nil {
		logger.Error("Failed to initialize sources: %v", err)
		rt.Stop(false, time.Second)
		limiter.Stop()
		return 1
	}

	code := runMainLoop(sources, logger)

	logger.Info("Stopping router (drain=%v, budget=%s)",
		cfg.Router.DrainOnShutdown, cfg.Router.ShutdownTimeout)
	rt.Stop(cfg.Router.DrainOnShutdown, cfg.Router.ShutdownTimeout)
	limiter.Stop()

	logger.Info("Router stopped")
	return code
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Pools: %d configured", len(cfg.Router.PoolSpecs))
	for _, spec := range cfg.Router.PoolSpecs {
		logger.Info("  pool %s: concurrency=%d capacity=%d rateLimit=%d/min",
			spec.Code, spec.Concurrency, spec.QueueCapacity, spec.RateLimitPerMinute)
	}
	logger.Info("Sources: sqs=%v mqtt=%v redis=%v",
		cfg.SQS.Enabled, cfg.MQTT.Enabled, cfg.Redis.Enabled)
	return cfg, nil
}

func initializeTelemetry(cfg *config.Config, logger *log.Logger) (func(context.Context) error, metrics.Sink, error) {
	if !cfg.Telemetry.Enabled {
		return nil, metrics.Noop{}, nil
	}

	shutdown, err := metrics.InitProvider(context.Background(), metrics.ProviderConfig{
		Enabled:        true,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		logger.Fatal("Failed to initialize telemetry: %v", err)
	}

	sink, err := metrics.NewOTelSink(logger)
	if err != nil {
		logger.Fatal("Failed to create metrics sink: %v", err)
	}

	logger.Info("Telemetry enabled, exporting to %s", cfg.Telemetry.Endpoint)
	return shutdown, sink, nil
}

func shutdownTelemetry(shutdown func(context.Context) error, logger *log.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Error shutting down telemetry: %v", err)
	}
}

func initializeRouter(cfg *config.Config, sink metrics.Sink,
	logger *log.Logger) (*router.Router, *ratelimit.KeyLimiter, warning.Sink) {

	warnings := warning.NewStore(warningStoreCapacity, logger)
	limiter := ratelimit.New(cfg.Router.RateLimiterCleanup)

	med := mediator.NewHTTP(mediator.HTTPConfig{
		Timeout:             cfg.Mediator.Timeout,
		BreakerThreshold:    uint32(cfg.Mediator.BreakerThreshold), // #nosec G115 - validated positive
		BreakerResetTimeout: cfg.Mediator.BreakerResetTimeout,
		UserAgent:           cfg.Mediator.UserAgent,
	}, logger)

	rt := router.New(med, limiter, sink, warnings, logger, router.Options{
		EntryTTL:        cfg.Router.EntryTTL,
		CleanupInterval: cfg.Router.CleanupInterval,
		LeakInterval:    cfg.Router.LeakCheckInterval,
	})
	rt.Start()
	rt.Reconcile(poolConfigs(&cfg.Router))

	return rt, limiter, warnings
}

// poolConfigs maps the parsed pool specs onto pool configurations
func poolConfigs(rc *config.RouterConfig) []pool.Config {
	cfgs := make([]pool.Config, 0, len(rc.PoolSpecs))
	for _, spec := range rc.PoolSpecs {
		cfgs = append(cfgs, pool.Config{
			Code:               spec.Code,
			Concurrency:        spec.Concurrency,
			QueueCapacity:      spec.QueueCapacity,
			RateLimitPerMinute: spec.RateLimitPerMinute,
			GroupIdleTTL:       rc.GroupIdleTTL,
		})
	}
	return cfgs
}

func initializeSources(cfg *config.Config, intake source.Intake,
	warnings warning.Sink, logger *log.Logger) ([]source.Source, error) {

	var sources []source.Source

	if cfg.SQS.Enabled {
		s, err := source.NewSQS(context.Background(), &cfg.SQS, intake, warnings, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}

	if cfg.MQTT.Enabled {
		s, err := source.NewMQTT(&cfg.MQTT, intake, warnings, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}

	if cfg.Redis.Enabled {
		s, err := source.NewRedis(&cfg.Redis, intake, warnings, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}

	if len(sources) == 0 {
		logger.Warn("No sources enabled, router will sit idle")
	}

	return sources, nil
}

func runMainLoop(sources []source.Source, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, len(sources))
	for _, s := range sources {
		go func(s source.Source) {
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- err
			}
		}(s)
		logger.Info("Source %s started", s.Name())
	}

	code := 0
	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
	case err := <-errChan:
		logger.Error("Source error: %v", err)
		code = 1
	}

	cancel()
	closeSources(sources, logger)
	return code
}

func closeSources(sources []source.Source, logger *log.Logger) {
	for _, s := range sources {
		if err := s.Close(); err != nil {
			logger.Error("Error closing source %s: %v", s.Name(), err)
		}
	}
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
