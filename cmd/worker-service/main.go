package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/connectly/outreach-be/internal/actions"
	"github.com/connectly/outreach-be/internal/browser"
	"github.com/connectly/outreach-be/internal/config"
	"github.com/connectly/outreach-be/internal/worker"
	"github.com/connectly/outreach-be/internal/worker/storage"
	"github.com/connectly/outreach-be/shared/logger"
	"github.com/connectly/outreach-be/shared/metrics"
	"github.com/connectly/outreach-be/shared/postgresql"
	"github.com/connectly/outreach-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.Address, appLogger)
	}

	store := storage.NewStorage(dbClient.DB(), appLogger)
	reporter := worker.NewReporter(store, nil, appLogger)

	sessions := browser.NewManager(browser.Config{
		Headless:       cfg.Browser.Headless,
		ExecPath:       cfg.Browser.ExecPath,
		ProxyURL:       cfg.Browser.ProxyURL,
		UserDataDir:    cfg.Browser.UserDataDir,
		CookiesFile:    cfg.Browser.CookiesFile,
		UserAgent:      cfg.Browser.UserAgent,
		AcquireTimeout: cfg.Browser.AcquireTimeout,
		CloseTimeout:   cfg.Browser.CloseTimeout,
	}, appLogger)

	registry := actions.NewRegistry(actions.Config{
		NavTimeout:  cfg.Browser.NavTimeout,
		StepTimeout: cfg.Browser.StepTimeout,
	}, appLogger)

	processor := worker.NewProcessor(sessions, registry, reporter, store, worker.ProcessorConfig{
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		MaxAttempts:       cfg.Worker.MaxAttempts,
	}, appLogger)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:         appLogger,
		Queue:          rabbitClient,
		Runner:         processor,
		Store:          store,
		Reporter:       reporter,
		Concurrency:    cfg.Worker.Concurrency,
		PrefetchCount:  cfg.RabbitMQ.Consumer.PrefetchCount,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
		HealthInterval: cfg.Worker.HealthInterval,
		DrainTimeout:   cfg.Worker.DrainTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case <-workerInstance.Done():
		// The worker shut itself down, typically after a processing panic
		appLogger.Error("Worker stopped on its own, exiting")
	}

	// A second signal skips the drain and exits immediately
	go func() {
		sig := <-quit
		appLogger.Warn("Received second signal, forcing exit",
			slog.String("signal", sig.String()),
		)
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.DrainTimeout+10*time.Second)
	defer shutdownCancel()

	workerInstance.Shutdown(shutdownCtx)
	cancel()

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange,
		QueueName:         cfg.Queue,
		RetryQueueName:    cfg.RetryQueue,
		RoutingKey:        cfg.RoutingKey,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
