package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/app"
)

// loadConfig читает конфигурацию и применяет настройки логгера.
func loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfigFromEnv()
	if err != nil {
		return app.Config{}, err
	}
	if err := app.ConfigureLogger(cfg.Log); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.Storage.Driver,
	}).Info("запускаем orderstock")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("orderstock остановлен")
}
