// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 汇总了 checkout 子系统全部的运行时配置。
// 先读 YAML 文件（CHECKOUT_CONFIG 指定路径），再用环境变量覆盖，
// 保证容器环境下无文件也能启动。
type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	MySQLDSN       string        `yaml:"mysql_dsn"`
	RedisAddrs     string        `yaml:"redis_addrs"`
	KafkaBrokers   string        `yaml:"kafka_brokers"`
	ZKServers      string        `yaml:"zk_servers"` // 为空时使用进程内分片锁
	JaegerEndpoint string        `yaml:"jaeger_endpoint"`
	PricingBaseURL string        `yaml:"pricing_base_url"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
	ReapBatchSize  int           `yaml:"reap_batch_size"`
}

// Load 读取配置。path 为空时只使用默认值和环境变量。
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr:       ":8080",
		MySQLDSN:       "root:root@tcp(localhost:3306)/storefront?charset=utf8mb4&parseTime=True&loc=UTC",
		RedisAddrs:     "localhost:6379",
		KafkaBrokers:   "localhost:9092",
		JaegerEndpoint: "http://localhost:14268/api/traces",
		PricingBaseURL: "http://localhost:8085",
		LockTTL:        10 * time.Minute,
		ReapInterval:   30 * time.Second,
		ReapBatchSize:  100,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MySQLDSN = getEnv("MYSQL_DSN", cfg.MySQLDSN)
	cfg.RedisAddrs = getEnv("REDIS_ADDRS", cfg.RedisAddrs)
	cfg.KafkaBrokers = getEnv("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.ZKServers = getEnv("ZK_SERVERS", cfg.ZKServers)
	cfg.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", cfg.JaegerEndpoint)
	cfg.PricingBaseURL = getEnv("PRICING_BASE_URL", cfg.PricingBaseURL)
	cfg.LockTTL = durEnv("LOCK_TTL", cfg.LockTTL)
	cfg.ReapInterval = durEnv("REAP_INTERVAL", cfg.ReapInterval)
	cfg.ReapBatchSize = intEnv("REAP_BATCH_SIZE", cfg.ReapBatchSize)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func durEnv(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
