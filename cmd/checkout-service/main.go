// cmd/checkout-service/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"storefront/internal/locker"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/pkg/tracing"
	checkoutapp "storefront/internal/service/checkout/application"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	checkoutifaces "storefront/internal/service/checkout/interfaces"
	invapp "storefront/internal/service/inventory/application"
	invinfra "storefront/internal/service/inventory/infrastructure"
)

const (
	serviceName     = "checkout-service"
	lockEventsTopic = "checkout-events"
	alertsTopic     = "low-stock-alerts"
	reaperLeaseTTL  = 30 * time.Second
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := config.Load(os.Getenv("CHECKOUT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(serviceName)

	// 1. 初始化核心技术组件
	tp, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer(serviceName)

	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	redisClient, err := redis.NewClient(cfg.RedisAddrs)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}
	defer redisClient.Close()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	lockEventsWriter := mq.NewKafkaWriter(brokers, lockEventsTopic)
	defer lockEventsWriter.Close()
	alertsWriter := mq.NewKafkaWriter(brokers, alertsTopic)
	defer alertsWriter.Close()

	// 2. 组装库存引擎
	invRepo := invinfra.NewGormInventoryRepository(db)
	if err := invRepo.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate inventory schema: %v", err)
	}

	keyedLocks, cleanup, err := buildLocker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize keyed locker: %v", err)
	}
	defer cleanup()

	notifier := checkoutinfra.NewKafkaNotificationAdapter(lockEventsWriter, alertsWriter)
	engine := invapp.NewEngine(invRepo, keyedLocks, notifier, tracer)

	// 3. 组装结算锁服务
	lockRepo := checkoutinfra.NewGormLockRepository(db)
	if err := lockRepo.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate checkout schema: %v", err)
	}
	cartStore := checkoutinfra.NewGormCartStore(db)
	if err := cartStore.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate cart schema: %v", err)
	}

	pricing := checkoutinfra.NewPricingHTTPAdapter(httpclient.NewClient(tracer), cfg.PricingBaseURL)
	snapshots := checkoutapp.NewSnapshotService(lockRepo, pricing)
	stock := checkoutinfra.NewInventoryAdapter(engine)

	lockService := checkoutapp.NewLockService(lockRepo, cartStore, snapshots, stock, notifier, tracer, cfg.LockTTL)

	// 4. 进程内启动过期收割循环，多实例下由 Redis 租约保证单实例扫描
	lease, err := checkoutinfra.NewRedisReaperLease(redisClient, reaperLeaseTTL)
	if err != nil {
		log.Fatalf("failed to initialize reaper lease: %v", err)
	}
	reaper := checkoutapp.NewReaper(lockService, lockRepo, lease, cfg.ReapInterval, cfg.ReapBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reaper.Start(ctx)

	// 5. 启动 HTTP 服务
	mux := http.NewServeMux()
	checkoutifaces.NewCheckoutHandler(lockService).RegisterRoutes(mux)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		logger.Logger().Info().Str("addr", cfg.HTTPAddr).Msg("checkout service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger().Error().Err(err).Msg("http server shutdown failed")
	}
}

// buildLocker 配了 ZooKeeper 时用分布式锁，否则退化为进程内分片锁。
func buildLocker(cfg config.Config) (locker.KeyedLocker, func(), error) {
	if cfg.ZKServers == "" {
		return locker.NewSharded(), func() {}, nil
	}
	zkLocker, err := locker.NewZooKeeper(strings.Split(cfg.ZKServers, ","))
	if err != nil {
		return nil, nil, err
	}
	return zkLocker, zkLocker.Close, nil
}
