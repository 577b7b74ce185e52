// cmd/inventory-service/main.go
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
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/tracing"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	invapp "storefront/internal/service/inventory/application"
	invinfra "storefront/internal/service/inventory/infrastructure"
	invifaces "storefront/internal/service/inventory/interfaces"
)

const (
	serviceName     = "inventory-service"
	lockEventsTopic = "checkout-events"
	alertsTopic     = "low-stock-alerts"
)

// 独立的库存运维面：水位查询、人工调整、流水审计、手工释放。
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

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	lockEventsWriter := mq.NewKafkaWriter(brokers, lockEventsTopic)
	defer lockEventsWriter.Close()
	alertsWriter := mq.NewKafkaWriter(brokers, alertsTopic)
	defer alertsWriter.Close()

	repo := invinfra.NewGormInventoryRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate inventory schema: %v", err)
	}

	keyedLocks, cleanup, err := buildLocker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize keyed locker: %v", err)
	}
	defer cleanup()

	notifier := checkoutinfra.NewKafkaNotificationAdapter(lockEventsWriter, alertsWriter)
	engine := invapp.NewEngine(repo, keyedLocks, notifier, tracer)

	mux := http.NewServeMux()
	invifaces.NewInventoryHandler(engine).RegisterRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		logger.Logger().Info().Str("addr", cfg.HTTPAddr).Msg("inventory service listening")
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
