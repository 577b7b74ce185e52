// cmd/expiry-reaper/main.go
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"storefront/internal/locker"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/pkg/tracing"
	checkoutapp "storefront/internal/service/checkout/application"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	invapp "storefront/internal/service/inventory/application"
	invinfra "storefront/internal/service/inventory/infrastructure"
)

const (
	serviceName     = "expiry-reaper"
	lockEventsTopic = "checkout-events"
	alertsTopic     = "low-stock-alerts"
	reaperLeaseTTL  = 30 * time.Second
)

// 独立部署的过期锁收割进程：周期扫描、fail 过期锁、释放其库存占用。
// checkout-service 进程内也跑同样的循环，两边靠 Redis 租约互斥。
func main() {
	cfg, err := config.Load(os.Getenv("CHECKOUT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(serviceName)

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

	invRepo := invinfra.NewGormInventoryRepository(db)
	lockRepo := checkoutinfra.NewGormLockRepository(db)
	cartStore := checkoutinfra.NewGormCartStore(db)

	keyedLocks, cleanup, err := buildLocker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize keyed locker: %v", err)
	}
	defer cleanup()

	notifier := checkoutinfra.NewKafkaNotificationAdapter(lockEventsWriter, alertsWriter)
	engine := invapp.NewEngine(invRepo, keyedLocks, notifier, tracer)
	stock := checkoutinfra.NewInventoryAdapter(engine)

	// Reaper 只会 fail 锁，不走定价，PricingOracle 不需要真实现。
	lockService := checkoutapp.NewLockService(lockRepo, cartStore, nil, stock, notifier, tracer, cfg.LockTTL)

	lease, err := checkoutinfra.NewRedisReaperLease(redisClient, reaperLeaseTTL)
	if err != nil {
		log.Fatalf("failed to initialize reaper lease: %v", err)
	}
	reaper := checkoutapp.NewReaper(lockService, lockRepo, lease, cfg.ReapInterval, cfg.ReapBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	reaper.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger().Error().Err(err).Msg("http server shutdown failed")
	}
}

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
