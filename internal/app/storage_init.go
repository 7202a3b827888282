package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/health"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/orderstock/internal/storage/redis"
)

const redisPingTimeout = 3 * time.Second

// runtimeDependencies — репозитории выбранных драйверов и то, что нужно закрыть при остановке.
type runtimeDependencies struct {
	itemRepo        domain.ItemRepository
	orderRepo       domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	// transactor объединяет сохранение агрегата и запись его событий в outbox.
	transactor domain.Transactor

	// expiringKeys: ключи идемпотентности истекают сами (TTL Redis), воркер очистки не нужен.
	expiringKeys bool

	checkers map[string]health.Checker
	closers  []func() error
}

// initRuntimeDependencies подключает хранилища согласно cfg.Storage и cfg.Idempotency.
// При ошибке уже открытые подключения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	deps = &runtimeDependencies{checkers: make(map[string]health.Checker)}
	defer func() {
		if err != nil {
			deps.close(logger)
			deps = nil
		}
	}()

	var store *postgres.Store
	needPostgres := cfg.Storage.Driver == StorageDriverPostgres || cfg.Idempotency.Backend == IdempotencyBackendPostgres
	if needPostgres {
		if cfg.Storage.PostgresDSN == "" {
			return deps, errors.New("postgres dsn is required")
		}
		store, err = postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return deps, err
		}
		deps.closers = append(deps.closers, store.Close)
		deps.checkers["postgres"] = health.NewPingChecker("postgres", true, store.Ping)

		if cfg.Storage.AutoMigrate {
			if err = store.MigrateUp(ctx, 0); err != nil {
				return deps, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
	}

	switch cfg.Storage.Driver {
	case StorageDriverMemory:
		deps.itemRepo = memory.NewItemRepository()
		deps.orderRepo = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.transactor = memory.NewTransactor()
	case StorageDriverPostgres:
		deps.itemRepo = postgres.NewItemRepository(store)
		deps.orderRepo = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.transactor = postgres.NewTransactor(store)
	default:
		return deps, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	backend := cfg.Idempotency.Backend
	if backend == "" {
		backend = IdempotencyBackendMemory
	}
	switch backend {
	case IdempotencyBackendMemory:
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
	case IdempotencyBackendPostgres:
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
	case IdempotencyBackendRedis:
		client, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			return deps, err
		}
		deps.closers = append(deps.closers, client.Close)
		deps.checkers["redis"] = health.NewPingChecker("redis", false, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client, redisstore.DefaultKeyPrefix)
		deps.expiringKeys = true
	default:
		return deps, fmt.Errorf("unsupported idempotency backend %q", backend)
	}

	logger.WithFields(log.Fields{
		"storage":     cfg.Storage.Driver,
		"idempotency": backend,
	}).Info("storage initialized")
	return deps, nil
}

func openRedis(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// close закрывает подключения в обратном порядке.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close storage connection")
		}
	}
	d.closers = nil
}
