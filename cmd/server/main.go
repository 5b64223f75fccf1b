package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/infrastructure/blockchain"
	"mark-operator.backend/internal/infrastructure/everclear"
	"mark-operator.backend/internal/infrastructure/jobs"
	"mark-operator.backend/internal/infrastructure/repositories"
	"mark-operator.backend/internal/interfaces/http/handlers"
	"mark-operator.backend/internal/interfaces/http/middleware"
	"mark-operator.backend/internal/usecases"
	"mark-operator.backend/pkg/logger"
	"mark-operator.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }

	// Protocol adapters are compiled in by build-specific registrations;
	// the open-source tree ships the orchestration core only.
	registeredAdapters []bridge.Adapter
	quotaSources       = map[bridge.Kind]usecases.QuotaSource{}
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize Logger
	initLog(cfg.Server.Env)
	defer logger.Sync()
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Initialize Redis
	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer redis.Close()
	logger.Info(context.Background(), "Redis initialized")

	// Set Gin mode
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database using GORM
	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database not available: %w", err)
	}
	if err := repositories.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info(context.Background(), "Connected to PostgreSQL")

	// Initialize repositories
	earmarkRepo := repositories.NewEarmarkRepository(db)
	opRepo := repositories.NewRebalanceOperationRepository(db)
	swapRepo := repositories.NewSwapOperationRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Initialize blockchain access
	signer := blockchain.NewSignerClient(cfg.Hub.RequestTimeout)
	clientFactory := blockchain.NewClientFactory()
	chainService := blockchain.NewEVMChainService(cfg.Chains, clientFactory, signer)

	// Initialize hub client and purchase cache
	hubClient := everclear.NewClient(cfg.Hub)
	purchaseStore := redis.NewPurchaseStore(cfg.Rebalance.PurchaseCacheTTL)

	// Initialize usecases
	registry := bridge.NewRegistry(registeredAdapters...)
	quota := usecases.NewQuotaChecker(quotaSources)
	accounting := usecases.NewAccounting(cfg.Chains, chainService, earmarkRepo, opRepo)
	planner := usecases.NewPlanner(cfg.Chains, cfg.Routes, registry, accounting)
	executor := usecases.NewExecutor(cfg.Chains, registry, chainService, earmarkRepo, opRepo, swapRepo, uow, quota)
	purchaser := usecases.NewHubPurchaser(hubClient)
	processor := usecases.NewEventProcessor(
		cfg.Chains, cfg.Rebalance, hubClient,
		accounting, planner, executor,
		earmarkRepo, purchaseStore, purchaser,
	)
	callbacks := usecases.NewCallbackProcessor(cfg.Chains, registry, chainService, earmarkRepo, opRepo, swapRepo)
	swaps := usecases.NewSwapProcessor(cfg.Chains, registry, opRepo, swapRepo)

	// Start the event queue and background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := usecases.NewEventQueue(processor, cfg.Rebalance.QueueWorkers)
	queue.Start(ctx)

	callbackLoop := jobs.NewCallbackLoop(callbacks, swaps, cfg.Rebalance.CallbackInterval)
	go callbackLoop.Start(ctx)

	expiryJob := jobs.NewOperationExpiryJob(opRepo, cfg.Rebalance.OperationTTL, cfg.Rebalance.ExpiryInterval)
	go expiryJob.Start(ctx)

	pruneJob := jobs.NewPurchaseCachePruneJob(purchaseStore, cfg.Rebalance.PurchaseCacheTTL)
	go pruneJob.Start(ctx)

	// Initialize router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerRoutes(r, routeDeps{
		webhookHandler: handlers.NewWebhookHandler(queue, cfg.Hub.MinBlockNumber),
		adminHandler:   handlers.NewAdminHandler(purchaseStore),
		healthHandler:  handlers.NewHealthHandler(),
		webhookSecret:  cfg.Hub.WebhookSecret,
	})

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Warn(context.Background(), "Shutting down")
		callbackLoop.Stop()
		expiryJob.Stop()
		pruneJob.Stop()
		queue.Stop()
		cancel()
	}()

	logger.Info(context.Background(), "Mark operator starting",
		zap.String("port", cfg.Server.Port),
		zap.Int("chains", len(cfg.Chains)),
		zap.Int("routes", len(cfg.Routes)))

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
