package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const (
	// EnvPrefix: префикс переменных окружения; "__" разделяет уровни вложенности:
	// ORDERSTOCK_STORAGE__POSTGRES_DSN -> storage.postgres_dsn.
	EnvPrefix = "ORDERSTOCK_"
	// EnvConfigPath указывает на необязательный YAML-файл конфигурации.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Драйверы хранилища агрегатов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Хранилища ключей идемпотентности.
const (
	IdempotencyBackendMemory   = "memory"
	IdempotencyBackendPostgres = "postgres"
	IdempotencyBackendRedis    = "redis"
)

// Config — настройки процесса orderstock.
type Config struct {
	HTTPAddr    string            `koanf:"http_addr"`
	GRPCAddr    string            `koanf:"grpc_addr"`
	MetricsAddr string            `koanf:"metrics_addr"`
	Log         LogConfig         `koanf:"log"`
	Storage     StorageConfig     `koanf:"storage"`
	Redis       RedisConfig       `koanf:"redis"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Kafka       KafkaConfig       `koanf:"kafka"`
	Outbox      OutboxConfig      `koanf:"outbox"`
	Tracing     TracingConfig     `koanf:"tracing"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type StorageConfig struct {
	Driver      string `koanf:"driver"`
	PostgresDSN string `koanf:"postgres_dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type IdempotencyConfig struct {
	Backend          string        `koanf:"backend"`
	TTL              time.Duration `koanf:"ttl"`
	CleanupInterval  time.Duration `koanf:"cleanup_interval"`
	CleanupBatchSize int           `koanf:"cleanup_batch_size"`
}

// KafkaConfig: пустой Brokers отключает Kafka, события outbox тогда уходят в лог.
type KafkaConfig struct {
	Brokers    string `koanf:"brokers"`
	ClientID   string `koanf:"client_id"`
	ItemTopic  string `koanf:"item_topic"`
	OrderTopic string `koanf:"order_topic"`
	DLQTopic   string `koanf:"dlq_topic"`
}

// BrokerList разбирает список брокеров через запятую.
func (c KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type OutboxConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
	MaxAttempts  int           `koanf:"max_attempts"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
	// MaxPending: порог backlog, выше которого /healthz сообщает degraded; 0 отключает проверку.
	MaxPending int `koanf:"max_pending"`
}

type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		Log:         LogConfig{Level: "info", Format: "text"},
		Storage:     StorageConfig{Driver: StorageDriverMemory},
		Redis:       RedisConfig{Addr: "localhost:6379"},
		Idempotency: IdempotencyConfig{
			Backend:          IdempotencyBackendMemory,
			TTL:              24 * time.Hour,
			CleanupInterval:  10 * time.Minute,
			CleanupBatchSize: 500,
		},
		Kafka: KafkaConfig{
			ClientID:   "orderstock",
			ItemTopic:  "orderstock.item.events",
			OrderTopic: "orderstock.order.events",
			DLQTopic:   "orderstock.dlq",
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			BatchSize:    100,
			MaxAttempts:  3,
			RetryDelay:   50 * time.Millisecond,
			MaxPending:   10000,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "orderstock",
			SampleRatio: 1,
		},
	}
}

// LoadConfig накладывает на DefaultConfig YAML-файл (если path не пуст) и переменные окружения ORDERSTOCK_*.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnv читает путь к файлу из ORDERSTOCK_CONFIG.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfig(os.Getenv(EnvConfigPath))
}

// Validate проверяет согласованность настроек до запуска зависимостей.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}

	switch c.Idempotency.Backend {
	case IdempotencyBackendMemory:
	case IdempotencyBackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for postgres idempotency backend")
		}
	case IdempotencyBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis idempotency backend")
		}
	default:
		return fmt.Errorf("unsupported idempotency.backend %q", c.Idempotency.Backend)
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("idempotency.ttl must be positive")
	}

	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be positive")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive")
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
		}
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}
	return nil
}

// ConfigureLogger применяет уровень и формат к стандартному логгеру logrus.
func ConfigureLogger(cfg LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
