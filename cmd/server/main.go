// Package main provides the entry point for the faultline demo service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/telemetry-lab/faultline/internal/apierrors"
	"github.com/telemetry-lab/faultline/internal/config"
	"github.com/telemetry-lab/faultline/internal/fault"
	"github.com/telemetry-lab/faultline/internal/handler"
	"github.com/telemetry-lab/faultline/internal/health"
	"github.com/telemetry-lab/faultline/internal/latency"
	"github.com/telemetry-lab/faultline/internal/metrics"
	"github.com/telemetry-lab/faultline/internal/server"
	"github.com/telemetry-lab/faultline/internal/store"
	"github.com/telemetry-lab/faultline/internal/sysinfo"
	"github.com/telemetry-lab/faultline/internal/tracking"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The logger depends on config, so this one failure goes to stderr.
		panic(err)
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("starting faultline",
		zap.String("version", health.Version),
		zap.Int("server_port", cfg.Server.Port),
		zap.Int64("simulation_seed", cfg.Simulation.Seed),
	)

	// Core state. One random source feeds both subsystems so a fixed seed
	// reproduces a whole demo run.
	m := metrics.NewMetrics()
	src := fault.NewSource(cfg.Simulation.Seed)
	faultHook := func(subsystem, category string) {
		m.RecordInjectedFault(subsystem, category)
	}
	apiInjector := fault.NewInjector("api", fault.APICategories,
		fault.WithSource(src), fault.WithFaultHook(faultHook))
	healthInjector := fault.NewInjector("health", fault.HealthCategories,
		fault.WithSource(src), fault.WithFaultHook(faultHook))

	agg := tracking.New()
	errh := apierrors.NewHandler(logger, agg)
	errh.SetRecorder(m)
	lat := latency.NewTracker(1024)
	system := sysinfo.NewReader()

	predictions, err := store.OpenPredictionLog(cfg.Storage.PredictionsPath)
	if err != nil {
		logger.Fatal("failed to open prediction log", zap.Error(err))
	}
	defer predictions.Close()

	checker := health.NewChecker(healthInjector, system, agg, errh, logger)

	h := handler.New(handler.Deps{
		Users:       store.NewUserStore(),
		Predictions: predictions,
		Injector:    apiInjector,
		Health:      checker,
		Tracker:     agg,
		Errors:      errh,
		System:      system,
		Latency:     lat,
		Logger:      logger,
	})

	m.SetHealthStatus(true)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		logger.Info("metrics server started",
			zap.Int("port", cfg.Metrics.Port),
			zap.String("path", cfg.Metrics.Path),
		)
	}

	srv := server.New(server.Deps{
		Config:  cfg,
		Handler: h,
		Health:  checker,
		Errors:  errh,
		Tracker: agg,
		Latency: lat,
		Metrics: m,
		Logger:  logger,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")
	m.SetHealthStatus(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("faultline shutdown complete")
}

// initLogger builds the zap logger from config.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
