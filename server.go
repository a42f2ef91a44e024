package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/handlers"
	"github.com/mmdatafocus/stock_backend/middlewares"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type closer func() error

func main() {
	settings := config.Load()
	config.SetLogLevel(settings.LogLevel)
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	db := config.ConnectDatabaseWithRetry(settings.Database)
	sqlDB, err := db.DB()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("sql handle: " + err.Error())
	}
	defer sqlDB.Close()

	// AutoMigrate can block tables; production runs it as a separate job.
	if !settings.SkipMigrations {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal("migrate: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	var rdb *redis.Client
	locker, err := newProductLocker(sigCtx, settings, logger, &rdb)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "locker"}).Fatal(err.Error())
	}

	store := models.NewGormStore(db)
	guard := workflow.NewConsistencyGuard(store, locker, logger)
	guard.LockTimeout = settings.LockTimeout
	guard.MaxRetries = settings.StockConflictRetries
	ledger := workflow.NewStockLedger(store, guard, logger)
	orders := workflow.NewOrderService(store, ledger, guard, logger)

	publisher, closePublisher, err := newStockEventPublisher(sigCtx, settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "events", "broker": settings.EventsBroker}).Fatal(err.Error())
	}
	defer closePublisher()

	// Publishes stock events AFTER commit.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		workflow.NewStockEventDispatcher(store, publisher, logger).Run(dispatcherCtx)
	}()

	if settings.RateLimitEnabled && rdb == nil {
		rdb, _ = config.ConnectRedisWithRetry(sigCtx, settings.RedisAddress)
	}
	r := newRouter(settings, logger, rdb)
	handlers.RegisterRoutes(r, orders, ledger)

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{
		"port":         settings.Port,
		"lock_backend": settings.LockBackend,
		"broker":       settings.EventsBroker,
	}).Info("stock service started")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	// The publisher is closed by defer; let the last batch settle first.
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		logger.WithFields(logrus.Fields{"field": "events"}).Warn("stock event dispatcher did not stop before shutdown deadline")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func newRouter(settings config.Settings, logger *logrus.Logger, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationId())
	r.Use(middlewares.IdempotencyKey())

	corsConfig := cors.DefaultConfig()
	if len(settings.CorsOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = settings.CorsOrigins
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationIdHeader, middlewares.IdempotencyKeyHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationIdHeader)
	r.Use(cors.New(corsConfig))

	if settings.RateLimitEnabled && rdb != nil {
		rateLimiter := middlewares.NewRateLimiter(rdb, settings.RateLimitMax, settings.RateLimitWindow)
		r.Use(rateLimiter.RateLimitMiddleware)
	}
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.NoRoute(handlers.NotFound)
	return r
}

// newProductLocker picks the per-product lock backend. The Redis client,
// when one is connected, is handed back through rdb for reuse.
func newProductLocker(ctx context.Context, settings config.Settings, logger *logrus.Logger, rdb **redis.Client) (workflow.ProductLocker, error) {
	switch settings.LockBackend {
	case config.LockBackendLocal, "":
		return workflow.NewLocalProductLocker(), nil
	case config.LockBackendRedis:
		client, lockClient := config.ConnectRedisWithRetry(ctx, settings.RedisAddress)
		if lockClient == nil {
			return nil, fmt.Errorf("redis not reachable at %s", settings.RedisAddress)
		}
		*rdb = client
		return workflow.NewRedisProductLocker(lockClient, settings.LockTTL, logger), nil
	case config.LockBackendMySQL:
		lockDB, err := config.OpenLockPool(settings.Database)
		if err != nil {
			return nil, err
		}
		return workflow.NewMySQLProductLocker(lockDB, logger), nil
	}
	return nil, fmt.Errorf("unknown LOCK_BACKEND %q", settings.LockBackend)
}

func newStockEventPublisher(ctx context.Context, settings config.Settings) (workflow.StockEventPublisher, closer, error) {
	noop := func() error { return nil }
	switch settings.EventsBroker {
	case config.BrokerNone, "":
		return workflow.DiscardPublisher{}, noop, nil
	case config.BrokerPubSub:
		p, err := config.NewPubSubPublisher(ctx, settings.PubSubProject, settings.PubSubCredJSON, settings.EventsTopic)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case config.BrokerRabbitMQ:
		p, err := config.NewRabbitPublisher(settings.AmqpURL, settings.EventsTopic)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case config.BrokerKafka:
		p, err := config.NewKafkaPublisher(settings.KafkaBrokers, settings.EventsTopic)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown EVENTS_BROKER %q", settings.EventsBroker)
}
