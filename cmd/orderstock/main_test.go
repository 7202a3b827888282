package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ORDERSTOCK_CONFIG", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory storage by default, got %s", cfg.Storage.Driver)
	}
}

func TestLoadConfig_AppliesLogLevel(t *testing.T) {
	t.Setenv("ORDERSTOCK_LOG__LEVEL", "debug")
	defer log.SetLevel(log.InfoLevel)

	if _, err := loadConfig(); err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("ORDERSTOCK_STORAGE__DRIVER", "postgres")
	t.Setenv("ORDERSTOCK_STORAGE__POSTGRES_DSN", "")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}
