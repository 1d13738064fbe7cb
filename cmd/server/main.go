package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/broker"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/database"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/middleware"
	"github.com/fekuna/omnipos-stock-service/internal/stock"

	alertPkg "github.com/fekuna/omnipos-stock-service/internal/alert"
	alertH "github.com/fekuna/omnipos-stock-service/internal/alert/handler"
	alertNotifier "github.com/fekuna/omnipos-stock-service/internal/alert/notifier"
	alertRepoPkg "github.com/fekuna/omnipos-stock-service/internal/alert/repository"
	alertUCPkg "github.com/fekuna/omnipos-stock-service/internal/alert/usecase"

	stockH "github.com/fekuna/omnipos-stock-service/internal/stock/handler"
	stockListenerPkg "github.com/fekuna/omnipos-stock-service/internal/stock/listener"
	stockRepoPkg "github.com/fekuna/omnipos-stock-service/internal/stock/repository"
	stockUCPkg "github.com/fekuna/omnipos-stock-service/internal/stock/usecase"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthCheckInterval = 10 * time.Second

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect to Database and build repositories
	var (
		stockRepo stock.Repository
		alertRepo alertPkg.Repository
	)
	db, err := openDatabase(cfg)
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			appLogger.Fatal("Could not migrate database", zap.Error(err))
		}
		stockRepo = stockRepoPkg.NewSQLRepository(db)
		alertRepo = alertRepoPkg.NewSQLRepository(db)
		appLogger.Info("Connected to database", zap.String("driver", db.DriverName()))
	} else {
		stockRepo = stockRepoPkg.NewMemoryRepository()
		alertRepo = alertRepoPkg.NewMemoryRepository()
		appLogger.Warn("Using in-memory repositories, state is lost on restart")
	}

	// 4. Initialize Redis
	var (
		keys   stockUCPkg.KeyStore
		locker stockUCPkg.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		keys = redisClient
		locker = redisClient
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 5. Initialize Kafka
	var notifier alertPkg.Notifier = alertNotifier.NewLogNotifier(appLogger)
	var paymentConsumer *broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		alertProducer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AlertTopic,
		})
		defer alertProducer.Close()
		notifier = alertNotifier.NewKafkaNotifier(alertProducer)

		paymentConsumer = broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.PaymentTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer paymentConsumer.Close()
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("payment_topic", cfg.Kafka.PaymentTopic),
			zap.String("alert_topic", cfg.Kafka.AlertTopic),
		)
	}

	// 6. Initialize UseCases
	alertUC := alertUCPkg.NewAlertUseCase(alertRepo, notifier, cfg.Alert, appLogger, alertUCPkg.WithLevelReader(stockRepo))
	stockUC := stockUCPkg.NewStockUseCase(stockRepo, alertUC, keys, stockUCPkg.Config{
		ReservationTTL: cfg.Ledger.ReservationTTL,
		MaxRetries:     cfg.Ledger.MaxRetries,
		BackoffBase:    cfg.Ledger.BackoffBase,
		BackoffMax:     cfg.Ledger.BackoffMax,
		IdempotencyTTL: cfg.Ledger.IdempotencyTTL,
		SweepBatchSize: cfg.Ledger.SweepBatchSize,
	}, appLogger)

	// 7. Background workers
	sweeper := stockUCPkg.NewSweeper(stockUC, locker, cfg.Ledger.SweepInterval, appLogger)
	go sweeper.Start(ctx)

	if paymentConsumer != nil {
		paymentListener := stockListenerPkg.NewPaymentListener(paymentConsumer, stockUC, appLogger)
		go paymentListener.Start(ctx)
	}

	// 8. HTTP Server
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(appLogger))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/api/v1")
	protected := router.Group("/api/v1", auth.Middleware([]byte(cfg.JWT.SecretKey)))
	stockH.NewStockHandler(stockUC, appLogger).Register(public, protected)
	alertH.NewAlertHandler(alertUC, appLogger).Register(public, protected)

	httpServer := &http.Server{
		Addr:              normalizePort(cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// 9. gRPC Server
	port := normalizePort(cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	go watchHealth(ctx, stockRepo, healthServer, appLogger)

	appLogger.Info("Starting gRPC server", zap.String("port", port))
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}

// openDatabase returns nil for the memory driver.
func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	pool := &database.Config{
		Host:            cfg.Database.Postgres.Host,
		Port:            cfg.Database.Postgres.Port,
		User:            cfg.Database.Postgres.User,
		Password:        cfg.Database.Postgres.Password,
		DBName:          cfg.Database.Postgres.DBName,
		SSLMode:         cfg.Database.Postgres.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second,
	}

	switch cfg.Database.Driver {
	case database.DriverMemory:
		return nil, nil
	case database.DriverMySQL:
		return database.NewMySQL(cfg.Database.MySQLDSN, pool)
	default:
		return database.NewPostgres(pool)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// watchHealth mirrors repository reachability into the gRPC health status.
func watchHealth(ctx context.Context, repo pinger, hs *health.Server, log logger.ZapLogger) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			log.Warn("repository ping failed", zap.Error(err))
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	check()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func normalizePort(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
