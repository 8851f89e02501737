package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/agent-governor/agent-governor/internal/alerts"
	"github.com/agent-governor/agent-governor/internal/api"
	"github.com/agent-governor/agent-governor/internal/config"
	"github.com/agent-governor/agent-governor/internal/logging"
	"github.com/agent-governor/agent-governor/internal/service/analytics"
	"github.com/agent-governor/agent-governor/internal/service/budget"
	"github.com/agent-governor/agent-governor/internal/service/cost"
	"github.com/agent-governor/agent-governor/internal/service/telemetry"
	"github.com/agent-governor/agent-governor/internal/storage"
)

func main() {
	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv("GOVERNOR_CONFIG"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize logging
	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logger.Info("starting agent governor",
		slog.String("version", "0.1.0"),
		slog.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize stores
	metricStore := storage.NewMetricStore(db)
	budgetStore := storage.NewBudgetStore(db)

	// Alert delivery; the ledger always logs, Redis is optional
	var senders alerts.Multi
	if cfg.Alerts.RedisURL != "" {
		publisher, err := alerts.NewRedisPublisher(ctx, alerts.RedisConfig{
			URL:      cfg.Alerts.RedisURL,
			Password: cfg.Alerts.RedisPassword,
			Channel:  cfg.Alerts.Channel,
		})
		if err != nil {
			logger.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()
		senders = append(senders, publisher)
		logger.Info("publishing budget alerts to Redis", slog.String("channel", publisher.Channel()))
	}

	// Initialize services
	ledgerOpts := []budget.Option{budget.WithLogger(logger)}
	if len(senders) > 0 {
		ledgerOpts = append(ledgerOpts, budget.WithAlertSender(senders))
	}
	ledger := budget.New(budgetStore, budget.Config{
		DefaultDailyBudgetUSD:   cfg.Telemetry.DefaultDailyBudgetUSD,
		DefaultMonthlyBudgetUSD: cfg.Telemetry.DefaultMonthlyBudgetUSD,
		AlertThreshold:          cfg.Telemetry.BudgetAlertThreshold,
		ExceededAlertInterval:   cfg.Telemetry.ExceededAlertInterval,
	}, ledgerOpts...)

	trackerOpts := []telemetry.Option{telemetry.WithLogger(logger)}
	if cfg.Telemetry.SampleResources {
		sampler, err := telemetry.NewProcessSampler(ctx)
		if err != nil {
			logger.Warn("resource sampling unavailable", slog.String("error", err.Error()))
		} else {
			trackerOpts = append(trackerOpts, telemetry.WithSampler(sampler))
		}
	}
	tracker := telemetry.NewTracker(
		telemetry.NewRecorder(metricStore),
		ledger,
		cost.NewModel(cfg.Telemetry.PricePer1KTokens),
		telemetry.Config{
			EnableCostTracking:        cfg.Telemetry.EnableCostTracking,
			EnablePerformanceTracking: cfg.Telemetry.EnablePerformanceTracking,
		},
		trackerOpts...)

	analyticsService := analytics.New(metricStore, ledger)

	monitor := budget.NewMonitor(ledger,
		budget.WithMonitorLogger(logger),
		budget.WithMonitorInterval(cfg.Monitor.Interval))

	// Initialize API server (not ready yet)
	server := api.New(analyticsService, ledger, tracker,
		api.WithLogger(logger),
		api.WithHost(cfg.Server.Host),
		api.WithPort(cfg.Server.Port),
		api.WithAdminTokenHash(cfg.Server.AdminTokenHash),
		api.WithMonitor(monitor))

	// Start background services
	if err := monitor.Start(ctx); err != nil {
		logger.Error("failed to start budget monitor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Mark server as ready
	server.SetReady(true)

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		// Mark server as not ready to stop accepting new requests
		server.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		monitor.Stop()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
	}()

	// Start server
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
