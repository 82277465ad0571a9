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

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/cleanup"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/supplier"
	"github.com/vladislavdragonenkov/storefront/internal/service/taxonomy"
	"github.com/vladislavdragonenkov/storefront/internal/telemetry"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	serviceName = "storefront"

	paymentBreakerFailures = 5
	paymentBreakerReset    = 30 * time.Second
)

// services — прикладные сервисы поверх выбранного хранилища.
type services struct {
	suppliers *supplier.Service
	catalog   *catalog.Service
	taxonomy  *taxonomy.Service
	orders    *ordering.Service
	carts     *cart.Sessions
	guard     *idempotency.Guard
}

func newServices(cfg Config, deps *runtimeDependencies, m *metrics.StorefrontMetrics, logger *log.Entry) services {
	catalogSvc := catalog.NewService(deps.tx,
		catalog.WithLogger(logger.WithField("component", "catalog")),
		catalog.WithMetrics(m),
		catalog.WithCache(deps.catalogCache, cfg.CatalogCacheTTL),
	)
	paymentLogger := logger.WithField("component", "payment")
	payments := payment.NewResilientGateway(
		payment.NewStubGateway(),
		payment.DefaultRetryConfig(),
		payment.NewCircuitBreaker(paymentBreakerFailures, paymentBreakerReset, paymentLogger),
		paymentLogger,
	)
	orderSvc := ordering.NewService(deps.tx, payments,
		ordering.WithLogger(logger.WithField("component", "ordering")),
		ordering.WithMetrics(m),
		ordering.WithStockChangedHook(catalogSvc.InvalidateCache),
	)
	return services{
		suppliers: supplier.NewService(deps.tx,
			supplier.WithLogger(logger.WithField("component", "supplier")),
			supplier.WithMetrics(m),
		),
		catalog: catalogSvc,
		taxonomy: taxonomy.NewService(deps.tx,
			taxonomy.WithLogger(logger.WithField("component", "taxonomy")),
			taxonomy.WithChangeHook(catalogSvc.InvalidateCache),
		),
		orders: orderSvc,
		carts: cart.NewSessions(catalogSvc, orderSvc,
			cart.WithIdleTTL(cfg.CartIdleTTL),
			cart.WithMetrics(m),
			cart.WithLogger(logger.WithField("component", "cart")),
		),
		guard: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithTTL(cfg.IdempotencyTTL),
			idempotency.WithGuardLogger(logger.WithField("component", "idempotency")),
		),
	}
}

// Run поднимает gRPC back office, HTTP витрину, сервер метрик и фоновые
// воркеры, и блокируется до отмены ctx или ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Enabled:        cfg.OTelEnabled,
		OTLPEndpoint:   cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTelemetry(shutdownTracer, "tracer", logger)

	if shutdownMeter, err := telemetry.InitMeterProvider(telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
	}); err != nil {
		logger.WithError(err).Warn("runtime metrics are disabled")
	} else {
		defer shutdownTelemetry(shutdownMeter, "meter", logger)
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	m := metrics.NewStorefrontMetrics()
	svc := newServices(cfg, deps, m, logger)

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	defer closeKafkaProducer(kafkaProducer, logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer shutdownWorkers(stopWorkers, &workers, logger)

	publisher, dlqPublisher := outboxPublishers(kafkaProducer, logger)
	outboxOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlqPublisher != nil {
		outboxOptions = append(outboxOptions, outbox.WithDLQPublisher(dlqPublisher))
	}
	runWorker(workersCtx, &workers, outbox.NewWorker(deps.outboxRepo, publisher, outboxOptions...).Run)
	cleanupTasks := []cleanup.Task{
		cleanup.ExpiredIdempotencyKeys(deps.idempotencyRepo, cfg.IdempotencyCleanupBatchSize),
		cleanup.IdleCarts(svc.carts),
	}
	runWorker(workersCtx, &workers, cleanup.NewWorker(cleanupTasks,
		cleanup.WithLogger(logger.WithField("component", "cleanup-worker")),
		cleanup.WithInterval(cfg.IdempotencyCleanupInterval),
		cleanup.WithMetrics(m),
	).Run)

	consumer := startCatalogConsumer(workersCtx, cfg, kafkaProducer, svc.catalog.InvalidateCache, logger)
	defer stopConsumer(consumer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.cacheChecker != nil {
		healthHandler.RegisterChecker("cache", deps.cacheChecker)
	}

	grpcServer, healthServer := newGRPCServer(tokens, svc, logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	httpSrv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Deps{
			Catalog:  svc.catalog,
			Taxonomy: svc.taxonomy,
			Carts:    svc.carts,
			Orders:   svc.orders,
			Tokens:   tokens,
			Guard:    svc.guard,
			Health:   healthHandler,
			Logger:   logger.WithField("component", "http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP витрина слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		grpcServer.Stop()
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer собирает back office с метриками, аутентификацией,
// grpc.health.v1 и reflection.
func newGRPCServer(tokens *auth.Tokens, svc services, logger *log.Entry) (*grpc.Server, *health.Server) {
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

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.AuthInterceptor(tokens),
	))

	backOffice := grpcsvc.NewBackOffice(svc.suppliers, svc.catalog, svc.taxonomy, svc.orders, svc.guard,
		logger.WithField("layer", "grpc"))
	grpcsvc.RegisterBackOfficeServer(grpcServer, backOffice)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

// runWorker запускает фоновую функцию, учитывая её в wg.
func runWorker(ctx context.Context, wg *sync.WaitGroup, run func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(ctx)
	}()
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, wg *sync.WaitGroup, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if wg == nil {
		return
	}
	wg.Wait()
	logger.Info("background workers stopped")
}

// stopGRPC останавливает сервер, принудительно по истечении timeout.
func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func shutdownTelemetry(shutdown telemetry.Shutdown, name string, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.WithError(err).WithField("provider", name).Warn("telemetry shutdown with error")
	}
}
