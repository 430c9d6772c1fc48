package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/text/language"

	"github.com/irfndi/stockcast-go/internal/api"
	"github.com/irfndi/stockcast-go/internal/api/handlers"
	"github.com/irfndi/stockcast-go/internal/cache"
	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/database"
	"github.com/irfndi/stockcast-go/internal/export"
	"github.com/irfndi/stockcast-go/internal/ingestion"
	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/internal/services"
	"github.com/irfndi/stockcast-go/internal/telemetry"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

const serviceName = "stockcast"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flags.String("input", "", "directory holding one CSV file per period")
	flags.String("output", "", "directory for CSV reports")
	flags.String("target-period", "", "label of the period to forecast")
	flags.StringSlice("periods", nil, "historical period labels in order")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.Bool("serve", false, "serve the results API after the run")
	flags.Int("port", 0, "results API port")
	flags.Int64("seed", 0, "random seed for model training")
	flags.Bool("skip-run", false, "serve the last stored forecast without running the pipeline")
	flags.Bool("check-telegram", false, "validate the Telegram notifier settings and exit")
	return flags
}

func run(args []string) error {
	// A missing .env is fine outside development.
	_ = godotenv.Load()

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := config.BindFlags(flags); err != nil {
		return err
	}
	skipRun, _ := flags.GetBool("skip-run")
	checkOnly, _ := flags.GetBool("check-telegram")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validateRunMode(skipRun, checkOnly, cfg.Server.Enabled); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogrusLogger(cfg.LogLevel, cfg.LogFormat)
	if checkOnly {
		return checkTelegram(ctx, cfg.Telegram, logger, os.Stdout)
	}

	otlpConfig := logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.OTLPLogs,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	}
	if otlpConfig.Enabled {
		if otlpConfig.Endpoint, err = telemetry.LogsEndpoint(cfg.Telemetry.OTLPEndpoint); err != nil {
			return err
		}
	}
	stdLogger := logging.NewStandardOTLPLogger(otlpConfig)
	defer func() {
		if err := stdLogger.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
		}
	}()
	if otlpConfig.Enabled {
		logProvider, err := logging.NewOTLPLogProvider(otlpConfig)
		if err != nil {
			logger.WithError(err).Warn("OTLP log export disabled")
		} else if logProvider != nil {
			logger.AddHook(logging.NewOTLPHook(logProvider.Logger(serviceName), logger.GetLevel()))
			defer func() { _ = logProvider.Shutdown(context.Background()) }()
		}
	}

	provider, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	optimizer := services.NewResourceOptimizer(services.ResourceOptimizerConfig{}, nil, stdLogger.WithComponent("resources"))
	if err := optimizer.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("Failed to sample host resources")
	}
	optimizer.ApplyTo(&cfg.Models)
	stdLogger.LogResourceStats(serviceName, optimizer.SystemInfo())

	recovery := services.NewDefaultErrorRecoveryManager(logger)

	memory := interfaces.NewMemoryReportStore()
	sinks := []interfaces.PredictionSink{memory}
	var store interfaces.ReportStore = memory
	health := map[string]handlers.HealthChecker{}

	if cfg.Export.CSV {
		sinks = append(sinks, export.NewCSVWriter(cfg.Export.OutputDir, logger))
	}

	if cfg.Export.Postgres {
		var db *database.PostgresDB
		err := recovery.ExecuteWithRetry(ctx, services.PolicyDatabaseConnect, func(ctx context.Context) error {
			var err error
			db, err = database.NewPostgresConnection(ctx, cfg.Database, logger)
			return err
		})
		if err != nil {
			return err
		}
		defer db.Close()

		repo := database.NewPredictionRepository(database.NewTracedPool(db.Pool, provider.Tracer()), logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, repo)
		store = guarded("postgres_reads", repo, store, logger)
		health["database"] = db
	}

	if cfg.Export.Redis {
		var rdb *database.RedisClient
		err := recovery.ExecuteWithRetry(ctx, services.PolicyRedisConnect, func(ctx context.Context) error {
			var err error
			rdb, err = database.NewRedisConnection(ctx, cfg.Redis, logger)
			return err
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		// Validate already rejected malformed TTLs.
		ttl, _ := time.ParseDuration(cfg.Redis.TTL)
		predictionCache := cache.NewPredictionCache(rdb.Client, ttl, logger)
		sinks = append(sinks, predictionCache)
		store = guarded("redis_reads", predictionCache, store, logger)
		health["redis"] = rdb
	}

	notifier, err := services.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.WithError(err).Warn("Telegram notifications disabled")
	} else if notifier.Enabled() {
		sinks = append(sinks, notifier)
	}

	var runErr error
	if !skipRun {
		runErr = runForecast(ctx, cfg, provider, optimizer, recovery, stdLogger, logger, sinks)
		if runErr != nil && !cfg.Server.Enabled {
			return runErr
		}
	}

	if cfg.Server.Enabled {
		if err := serve(ctx, cfg, store, health, stdLogger, logger); err != nil {
			return err
		}
	}
	return runErr
}

// errNothingToDo is returned when --skip-run leaves neither a run nor a server.
var errNothingToDo = errors.New("--skip-run requires --serve or server.enabled")

func validateRunMode(skipRun, checkOnly, serve bool) error {
	if skipRun && !checkOnly && !serve {
		return errNothingToDo
	}
	return nil
}

// guarded reads primary behind a circuit breaker and falls back to the store
// configured before it.
func guarded(name string, primary, fallback interfaces.ReportStore, logger *logrus.Logger) interfaces.ReportStore {
	breaker := services.NewCircuitBreaker(name, services.CircuitBreakerConfig{}, logger)
	return services.NewGuardedReportStore(primary, fallback, breaker, logger)
}

func runForecast(ctx context.Context, cfg *config.Config, provider *telemetry.Provider, optimizer *services.ResourceOptimizer,
	recovery *services.ErrorRecoveryManager, stdLogger *logging.StandardLogger, logger *logrus.Logger, sinks []interfaces.PredictionSink) error {
	source := ingestion.NewCSVSource(cfg.Ingestion, logger)
	pipeline := services.NewForecastPipeline(cfg, source, telemetry.NewStageTracer(provider.Tracer()), logger, sinks...).
		WithRecovery(recovery)

	started := time.Now()
	report, err := pipeline.Run(ctx)
	if report == nil {
		optimizer.RecordRun("", time.Since(started), 0, true)
		return fmt.Errorf("forecast run failed: %w", err)
	}

	optimizer.RecordRun(report.Summary.RunID, time.Since(started), report.Summary.TotalItems, err != nil)
	printSummary(os.Stdout, *report, language.English)
	stdLogger.LogBusinessEvent("forecast_published", map[string]interface{}{
		"run_id":          report.Summary.RunID,
		"target_period":   report.Summary.TargetPeriod,
		"items":           report.Summary.TotalItems,
		"high_priority":   len(report.HighPriorityItems),
		"estimated_value": report.Summary.TotalEstimatedValue.StringFixed(2),
	})

	if err != nil {
		stdLogger.WithRunID(report.Summary.RunID).Error("One or more prediction sinks failed", "error", err.Error())
		return err
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, store interfaces.ReportStore, health map[string]handlers.HealthChecker,
	stdLogger *logging.StandardLogger, logger *logrus.Logger) error {
	router := api.NewRouter(api.RouterConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		Version:        cfg.Telemetry.ServiceVersion,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Store:          store,
		Health:         health,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(serviceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	stdLogger.LogShutdown(serviceName, "signal received")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}
