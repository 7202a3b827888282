package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.Storage.Driver != StorageDriverMemory {
		t.Errorf("expected storage driver %s, got %s", StorageDriverMemory, cfg.Storage.Driver)
	}
	if cfg.Idempotency.Backend != IdempotencyBackendMemory {
		t.Errorf("expected idempotency backend %s, got %s", IdempotencyBackendMemory, cfg.Idempotency.Backend)
	}
	if cfg.Outbox.PollInterval <= 0 || cfg.Outbox.BatchSize <= 0 || cfg.Outbox.MaxAttempts <= 0 {
		t.Errorf("outbox defaults must be positive: %+v", cfg.Outbox)
	}
	if cfg.Idempotency.CleanupInterval <= 0 || cfg.Idempotency.CleanupBatchSize <= 0 {
		t.Errorf("cleanup defaults must be positive: %+v", cfg.Idempotency)
	}
	if cfg.Tracing.Enabled {
		t.Error("tracing must be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown storage driver", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: "storage.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = StorageDriverPostgres }, wantErr: "postgres_dsn"},
		{name: "postgres idempotency without dsn", mutate: func(c *Config) {
			c.Idempotency.Backend = IdempotencyBackendPostgres
		}, wantErr: "postgres_dsn"},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Idempotency.Backend = IdempotencyBackendRedis
			c.Redis.Addr = ""
		}, wantErr: "redis.addr"},
		{name: "unknown idempotency backend", mutate: func(c *Config) { c.Idempotency.Backend = "etcd" }, wantErr: "idempotency.backend"},
		{name: "zero ttl", mutate: func(c *Config) { c.Idempotency.TTL = 0 }, wantErr: "idempotency.ttl"},
		{name: "zero batch", mutate: func(c *Config) { c.Outbox.BatchSize = 0 }, wantErr: "outbox.batch_size"},
		{name: "sample ratio above one", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRatio = 1.5
		}, wantErr: "sample_ratio"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ORDERSTOCK_HTTP_ADDR", ":18080")
	t.Setenv("ORDERSTOCK_STORAGE__DRIVER", "postgres")
	t.Setenv("ORDERSTOCK_STORAGE__POSTGRES_DSN", "postgres://u:p@localhost:5432/db")
	t.Setenv("ORDERSTOCK_IDEMPOTENCY__TTL", "2h")
	t.Setenv("ORDERSTOCK_OUTBOX__BATCH_SIZE", "25")
	t.Setenv("ORDERSTOCK_KAFKA__BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.HTTPAddr != ":18080" {
		t.Errorf("expected HTTPAddr override, got %s", cfg.HTTPAddr)
	}
	if cfg.Storage.Driver != StorageDriverPostgres || cfg.Storage.PostgresDSN == "" {
		t.Errorf("expected postgres storage, got %+v", cfg.Storage)
	}
	if cfg.Idempotency.TTL != 2*time.Hour {
		t.Errorf("expected ttl 2h, got %s", cfg.Idempotency.TTL)
	}
	if cfg.Outbox.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.Outbox.BatchSize)
	}
	if got := cfg.Kafka.BrokerList(); len(got) != 2 || got[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", got)
	}
	// Незаданные ключи берутся из DefaultConfig.
	if cfg.GRPCAddr != ":50051" || cfg.Outbox.MaxAttempts != 3 {
		t.Errorf("defaults must survive partial overrides: %+v", cfg)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http_addr: ":7000"
log:
  level: debug
  format: json
outbox:
  poll_interval: 250ms
  max_attempts: 7
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ORDERSTOCK_OUTBOX__MAX_ATTEMPTS", "9")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.HTTPAddr != ":7000" {
		t.Errorf("expected HTTPAddr from file, got %s", cfg.HTTPAddr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Outbox.PollInterval != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %s", cfg.Outbox.PollInterval)
	}
	if cfg.Outbox.MaxAttempts != 9 {
		t.Errorf("environment must override file, got %d", cfg.Outbox.MaxAttempts)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Setenv("ORDERSTOCK_STORAGE__DRIVER", "mongo")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected validation error for unknown driver")
	}
}

func TestKafkaConfig_BrokerList(t *testing.T) {
	tests := map[string]int{
		"":                  0,
		"a:9092":            1,
		"a:9092,b:9092":     2,
		" a:9092 , ,b:9092": 2,
	}
	for raw, want := range tests {
		if got := (KafkaConfig{Brokers: raw}).BrokerList(); len(got) != want {
			t.Errorf("BrokerList(%q) = %v, want %d brokers", raw, got, want)
		}
	}
}

func TestConfigureLogger(t *testing.T) {
	if err := ConfigureLogger(LogConfig{Level: "warn", Format: "json"}); err != nil {
		t.Fatalf("ConfigureLogger failed: %v", err)
	}
	if err := ConfigureLogger(LogConfig{Level: "nope"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	_ = ConfigureLogger(LogConfig{Level: "info", Format: "text"})
}
