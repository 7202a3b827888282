// Package app собирает процесс orderstock: конфигурацию, хранилища, сервисы команд,
// HTTP API, gRPC health, метрики и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	httpapi "github.com/vladislavdragonenkov/orderstock/internal/api/http"
	healthcheck "github.com/vladislavdragonenkov/orderstock/internal/health"
	"github.com/vladislavdragonenkov/orderstock/internal/metrics"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
	"github.com/vladislavdragonenkov/orderstock/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstock/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderstock/internal/service/ordering"
	"github.com/vladislavdragonenkov/orderstock/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderstock/internal/service/payment"
	"github.com/vladislavdragonenkov/orderstock/internal/service/shipping"
	"github.com/vladislavdragonenkov/orderstock/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// application — собранные компоненты без открытых сокетов.
type application struct {
	cfg        Config
	logger     *log.Entry
	deps       *runtimeDependencies
	publishers eventPublishers

	inventory *inventory.Service
	ordering  *ordering.Service
	router    http.Handler
	health    *healthcheck.Handler

	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
}

func newApplication(ctx context.Context, cfg Config, logger *log.Entry) (*application, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a := &application{cfg: cfg, logger: logger, deps: deps}
	a.publishers = initEventPublishers(cfg.Kafka, logger.WithField("component", "kafka"))

	recorder := outbox.NewEventRecorder(deps.outboxRepo, deps.timelineRepo, logger.WithField("component", "outbox-recorder"))
	pipeline := command.NewPipeline(recorder,
		command.WithTransactor(deps.transactor),
		command.WithLogger(logger.WithField("component", "command-pipeline")),
		command.WithMetrics(metrics.NewCommandMetrics()),
	)

	a.inventory = inventory.NewService(deps.itemRepo, pipeline, inventory.WithTimeline(deps.timelineRepo))
	a.ordering = ordering.NewService(deps.orderRepo, payment.NewStubGateway(), shipping.NewStubCarrier(), pipeline,
		ordering.WithTimeline(deps.timelineRepo))

	guardLogger := logger.WithField("component", "idempotency-guard")
	a.router = httpapi.NewRouter(httpapi.Dependencies{
		Inventory:   a.inventory,
		Ordering:    a.ordering,
		Guard:       idempotency.NewGuard(deps.idempotencyRepo, cfg.Idempotency.TTL, guardLogger),
		Metrics:     metrics.NewHTTPMetrics(nil),
		Logger:      logger.WithField("component", "http-api"),
		ServiceName: cfg.Tracing.ServiceName,
	})

	a.health = healthcheck.NewHandler(version.Version())
	for name, checker := range deps.checkers {
		a.health.RegisterChecker(name, checker)
	}
	if cfg.Outbox.MaxPending > 0 {
		a.health.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.Outbox.MaxPending))
	}

	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
	}
	if a.publishers.dlq != nil {
		workerOptions = append(workerOptions, outbox.WithDLQPublisher(a.publishers.dlq))
	}
	a.outboxWorker = outbox.NewWorker(deps.outboxRepo, a.publishers.events, workerOptions...)

	if !deps.expiringKeys {
		a.cleanupWorker = idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
			idempotency.WithInterval(cfg.Idempotency.CleanupInterval),
			idempotency.WithBatchSize(cfg.Idempotency.CleanupBatchSize),
		)
	}

	return a, nil
}

// startWorkers запускает фоновые воркеры до отмены ctx.
func (a *application) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.outboxWorker.Run(ctx)
	}()

	if a.cleanupWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.cleanupWorker.Run(ctx)
		}()
	}
}

func (a *application) close() {
	closeKafka(a.publishers.producer, a.logger)
	a.deps.close(a.logger)
}

// Run запускает HTTP API, gRPC health и сервер метрик и блокируется до отмены ctx
// или ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(log.Fields(version.Fields())).Info("starting orderstock")

	shutdownTracing, err := initTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	a.startWorkers(runCtx, &workers)
	defer workers.Wait()
	defer cancel()

	grpcServer, healthServer := newGRPCServer(logger)
	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, a.health)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: a.router, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(httpSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом, reflection и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// reflection нужен grpcurl и grpc_health_probe
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// stopGRPC ждёт завершения активных вызовов не дольше shutdownTimeout.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startMetricsServer запускает служебный HTTP-сервер: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
