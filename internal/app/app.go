package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/medistore/internal/health"
	"github.com/vladislavdragonenkov/medistore/internal/metrics"
	"github.com/vladislavdragonenkov/medistore/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/medistore/internal/service/grpc"
	"github.com/vladislavdragonenkov/medistore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/medistore/internal/service/inventory"
	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
	"github.com/vladislavdragonenkov/medistore/internal/service/outbox"
	"github.com/vladislavdragonenkov/medistore/internal/service/reviews"
	"github.com/vladislavdragonenkov/medistore/internal/tracing"
	httpapi "github.com/vladislavdragonenkov/medistore/internal/transport/http"
	"github.com/vladislavdragonenkov/medistore/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// App — собранный сервис: слушатели открыты, воркеры созданы, но не запущены.
type App struct {
	cfg    Config
	logger *log.Entry

	registry *prometheus.Registry
	storage  *runtimeDependencies
	broker   *brokerDependencies
	tracing  tracing.Shutdown

	httpServer    *http.Server
	metricsServer *http.Server
	grpcServer    *grpcsvc.Server

	httpListener    net.Listener
	grpcListener    net.Listener
	metricsListener net.Listener

	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
}

// Run собирает приложение и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	application, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

// New подключает хранилище и брокер, собирает сервисы и открывает слушатели.
// При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   log.WithField("component", "app"),
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.tracing, err = tracing.Setup(ctx, tracing.Config{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    "medistore",
		ServiceVersion: version.GetVersion(),
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return nil, err
	}

	if a.storage, err = initRuntimeDependencies(ctx, cfg, a.logger); err != nil {
		return nil, err
	}
	if a.broker, err = initBroker(ctx, cfg, a.logger); err != nil {
		return nil, err
	}

	orderMetrics := metrics.NewOrderMetricsWithRegisterer(a.registry)
	ledger := inventory.NewLedger(orderMetrics, log.WithField("component", "inventory"))
	orders := ordering.NewService(a.storage.uow, ledger, ordering.Options{
		PriceSource: cfg.PriceSource,
		Retry:       ordering.RetryConfig{MaxAttempts: cfg.OrderNumberAttempts},
		Metrics:     orderMetrics,
		Logger:      log.WithField("component", "ordering"),
	})
	catalogSvc := catalog.NewService(a.storage.uow, ledger, log.WithField("component", "catalog"))
	reviewSvc := reviews.NewService(a.storage.uow, log.WithField("component", "reviews"))
	guard := idempotency.NewGuard(a.storage.idempotencyRepo, cfg.IdempotencyTTL, a.logger)

	handler := httpapi.NewHandler(orders, catalogSvc, reviewSvc, guard, log.WithField("component", "http"))
	a.httpServer = &http.Server{Handler: handler.Routes(), ReadHeaderTimeout: readHeaderTimeout}

	a.grpcServer = grpcsvc.NewServer(
		grpcsvc.NewMarketplaceService(orders, guard, log.WithField("component", "grpc")),
		a.registry,
		log.WithField("component", "grpc"),
	)

	healthHandler := health.NewHandler(version.GetVersion())
	for name, check := range a.storage.checks {
		healthHandler.Register(name, check)
	}
	a.buildWorkers(healthHandler)
	a.metricsServer = &http.Server{Handler: a.metricsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}

	if a.httpListener, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return nil, fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	if a.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	if a.metricsListener, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}

	return a, nil
}

func (a *App) buildWorkers(healthHandler *health.Handler) {
	cfg := a.cfg

	if a.broker.publisher != nil {
		breaker := outbox.NewBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, log.WithField("component", "outbox-breaker"))
		a.outboxWorker = outbox.NewWorker(a.storage.outboxRepo, a.broker.publisher,
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(a.broker.dlqPublisher),
			outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(a.registry)),
			outbox.WithBreaker(breaker),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		healthHandler.Register("broker", func(context.Context) error {
			if breaker.State() == outbox.BreakerOpen {
				return fmt.Errorf("outbox publisher breaker is open: %w", health.ErrDegraded)
			}
			return nil
		})
	}

	if a.storage.cleanupExpired {
		a.cleanupWorker = idempotency.NewCleanupWorker(a.storage.idempotencyRepo,
			idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
			idempotency.WithMetrics(metrics.NewCleanupMetricsWithRegisterer(a.registry)),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
	}
}

func (a *App) metricsMux(healthHandler *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	return mux
}

// HTTPAddr возвращает фактический адрес REST-слушателя.
func (a *App) HTTPAddr() string { return a.httpListener.Addr().String() }

// GRPCAddr возвращает фактический адрес gRPC-слушателя.
func (a *App) GRPCAddr() string { return a.grpcListener.Addr().String() }

// MetricsAddr возвращает фактический адрес слушателя метрик.
func (a *App) MetricsAddr() string { return a.metricsListener.Addr().String() }

// Run обслуживает запросы и запускает воркеры. Отмена ctx останавливает всё
// с бюджетом ShutdownTimeout; возвращается ctx.Err() либо ошибка сервера.
func (a *App) Run(ctx context.Context) error {
	defer a.release()

	a.logger.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":    a.HTTPAddr(),
		"grpc_addr":    a.GRPCAddr(),
		"metrics_addr": a.MetricsAddr(),
		"storage":      a.cfg.StorageDriver,
		"broker":       a.cfg.Broker,
	}).Info("сервис запущен")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(a.httpServer, a.httpListener)
	})
	g.Go(func() error {
		return serveHTTP(a.metricsServer, a.metricsListener)
	})
	g.Go(func() error {
		if err := a.grpcServer.Serve(a.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	if a.outboxWorker != nil {
		g.Go(func() error {
			a.outboxWorker.Run(gctx)
			return nil
		})
	}
	if a.cleanupWorker != nil {
		g.Go(func() error {
			a.cleanupWorker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server %s: %w", lis.Addr(), err)
	}
	return nil
}

// shutdown останавливает серверы в пределах ShutdownTimeout.
func (a *App) shutdown() {
	a.logger.Info("получен сигнал остановки, останавливаем серверы")
	a.grpcServer.MarkNotServing()

	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	shutdownHTTP(ctx, a.httpServer, a.logger)
	shutdownHTTP(ctx, a.metricsServer, a.logger)

	select {
	case <-stopped:
	case <-ctx.Done():
		a.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		a.grpcServer.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// release закрывает брокер, хранилище и сбрасывает трейсы. Повторный вызов безопасен.
func (a *App) release() {
	for _, lis := range []net.Listener{a.httpListener, a.grpcListener, a.metricsListener} {
		if lis != nil {
			_ = lis.Close()
		}
	}
	if a.broker != nil {
		a.broker.close(a.logger)
	}
	if a.storage != nil {
		if err := a.storage.close(); err != nil {
			a.logger.WithError(err).Warn("failed to close storage")
		}
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.tracing(ctx); err != nil {
			a.logger.WithError(err).Warn("failed to flush traces")
		}
		a.tracing = nil
	}
}
