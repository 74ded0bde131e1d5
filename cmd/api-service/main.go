package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/monicap360/move-around-tms-sub008/internal/api/handler"
	"github.com/monicap360/move-around-tms-sub008/internal/api/router"
	"github.com/monicap360/move-around-tms-sub008/internal/config"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/health"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/storage"
	"github.com/monicap360/move-around-tms-sub008/shared/logger"
	"github.com/monicap360/move-around-tms-sub008/shared/postgresql"
	"github.com/monicap360/move-around-tms-sub008/shared/rabbitmq"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting payroll API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client with both scheduler queues
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Wire scheduler components: store, health monitor, dispatcher
	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	probe := health.NewStoreProbe(store, cfg.Scheduler.Health.Window)
	monitor := health.NewMonitor(probe, health.Config{
		CacheTTL:       cfg.Scheduler.Health.CacheTTL,
		MaxFailureRate: cfg.Scheduler.Health.MaxFailureRate,
		MaxQueueDepth:  cfg.Scheduler.Health.MaxQueueDepth,
	}, appLogger.Logger)

	dispatcher := scheduler.NewAMQPDispatcher(
		rabbitClient,
		cfg.RabbitMQ.DispatchQueue.RoutingKey,
		appLogger.Logger,
	)

	sched := scheduler.New(scheduler.Config{
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
	}, store, monitor, dispatcher, appLogger.Logger)

	// Re-acquire slots for runs that were in flight before the restart
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sched.Restore(startupCtx); err != nil {
		startupCancel()
		return fmt.Errorf("failed to restore scheduler state: %w", err)
	}
	startupCancel()

	// Consume worker results for the lifetime of the process
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	results := scheduler.NewResultConsumer(
		rabbitClient,
		sched,
		cfg.RabbitMQ.ResultsQueue.Name,
		appLogger.Logger,
	)

	consumerErr := make(chan error, 1)
	go func() {
		if err := results.Start(consumerCtx); err != nil {
			consumerErr <- err
		}
	}()

	// Promote whatever is already eligible after the restore
	sched.TryPromote(consumerCtx)

	// Initialize router
	r := initRouter(cfg.App.Environment, appLogger.Logger, sched, store, monitor, dbClient)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Payroll API service is running",
		slog.String("address", addr),
		slog.Int("max_concurrent_jobs", cfg.Scheduler.MaxConcurrentJobs),
	)

	// Wait for interrupt signal or a fatal consumer error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case err := <-consumerErr:
		appLogger.Error("Result consumer failed",
			slog.Any("error", err),
		)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		consumerCancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
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
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		Queues: []rabbitmq.QueueSpec{
			{
				Name:       cfg.DispatchQueue.Name,
				RoutingKey: cfg.DispatchQueue.RoutingKey,
				Durable:    cfg.DispatchQueue.Durable,
				AutoDelete: cfg.DispatchQueue.AutoDelete,
				Exclusive:  cfg.DispatchQueue.Exclusive,
			},
			{
				Name:       cfg.ResultsQueue.Name,
				RoutingKey: cfg.ResultsQueue.RoutingKey,
				Durable:    cfg.ResultsQueue.Durable,
				AutoDelete: cfg.ResultsQueue.AutoDelete,
				Exclusive:  cfg.ResultsQueue.Exclusive,
			},
		},
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(
	environment string,
	logger *slog.Logger,
	sched *scheduler.Scheduler,
	store *storage.Storage,
	monitor *health.Monitor,
	dbClient *postgresql.Client,
) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:    logger,
		Scheduler: sched,
		Reader:    store,
		Health:    monitor,
		DB:        dbClient,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
