package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appcheckout "github.com/greenmart/checkout-core/internal/application/checkout"
	appinventory "github.com/greenmart/checkout-core/internal/application/inventory"
	apporder "github.com/greenmart/checkout-core/internal/application/order"
	apppayment "github.com/greenmart/checkout-core/internal/application/payment"
	domaininventory "github.com/greenmart/checkout-core/internal/domain/inventory"
	domainorder "github.com/greenmart/checkout-core/internal/domain/order"
	domainoutbox "github.com/greenmart/checkout-core/internal/domain/outbox"
	domainpayment "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/infrastructure/id"
	"github.com/greenmart/checkout-core/internal/infrastructure/memory"
	"github.com/greenmart/checkout-core/internal/infrastructure/observability/oteltrace"
	"github.com/greenmart/checkout-core/internal/infrastructure/observability/prometrics"
	"github.com/greenmart/checkout-core/internal/infrastructure/observability/telemetry"
	"github.com/greenmart/checkout-core/internal/infrastructure/observability/zaplogger"
	"github.com/greenmart/checkout-core/internal/infrastructure/outbox"
	paymentgw "github.com/greenmart/checkout-core/internal/infrastructure/payment"
	"github.com/greenmart/checkout-core/internal/infrastructure/postgres"
	"github.com/greenmart/checkout-core/internal/infrastructure/rabbitmq"
	"github.com/greenmart/checkout-core/internal/observability"
	"github.com/greenmart/checkout-core/internal/pkg/config"
	httppresentation "github.com/greenmart/checkout-core/internal/presentation/http"
)

func main() {
	cfg := config.Load()

	baseLogger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	if s, ok := baseLogger.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	tel := buildTelemetry(baseLogger)
	log := tel.Logger().With(observability.F("component", "main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories: Postgres when configured, in-memory otherwise.
	var (
		inventoryRepo domaininventory.Repository
		orderRepo     domainorder.Repository
		cartRepo      domainorder.CartRepository
		txnRepo       domainpayment.Repository
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres_open_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		inventoryRepo = postgres.NewInventoryRepository(db, cfg.LowStockThreshold)
		orderRepo = postgres.NewOrderRepository(db)
		txnRepo = postgres.NewTransactionRepository(db)
		// Carts are session state, kept in memory even with Postgres.
		cartRepo = memory.NewCartRepository()
		log.Info("storage_selected", observability.F("backend", "postgres"))
	} else {
		inventoryRepo = memory.NewInventoryRepository(cfg.LowStockThreshold)
		orderRepo = memory.NewOrderRepository()
		cartRepo = memory.NewCartRepository()
		txnRepo = memory.NewTransactionRepository()
		log.Info("storage_selected", observability.F("backend", "memory"))
	}

	// Event channel: RabbitMQ when configured, in-process bus otherwise.
	var publisher domainoutbox.Publisher
	if cfg.AMQPURL != "" {
		conn, ch, err := rabbitmq.SetupConn(cfg.AMQPURL)
		if err != nil {
			log.Error("rabbitmq_setup_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = ch.Close(); _ = conn.Close() }()
		publisher = rabbitmq.NewPublisher(ch)

		consumer := rabbitmq.NewConsumer(ch, tel.Logger())
		if err := consumer.Consume(ctx, rabbitmq.QueueLowStockAlerts, lowStockHandler(tel.Logger())); err != nil {
			log.Error("consumer_start_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		log.Info("events_selected", observability.F("backend", "rabbitmq"))
	} else {
		bus := outbox.NewBus(tel.Logger())
		bus.Subscribe(domaininventory.LowStockAlert{}.EventName(), func(ctx context.Context, e domainoutbox.Event) error {
			alert, ok := e.(domaininventory.LowStockAlert)
			if !ok {
				return nil
			}
			logLowStock(tel.Logger(), alert)
			return nil
		})
		bus.Start(ctx)
		defer bus.Stop(context.Background())
		publisher = bus
		log.Info("events_selected", observability.F("backend", "inprocess"))
	}

	idGenerator := id.NewUUIDGenerator()
	gateway := paymentgw.NewMockGateway()

	inventoryService := appinventory.NewService(inventoryRepo, publisher, tel)
	orderService := apporder.NewService(orderRepo, cartRepo, idGenerator, publisher, tel)
	paymentService := apppayment.NewService(txnRepo, gateway, idGenerator, cfg.PaymentTimeout, tel)
	orchestrator := appcheckout.NewOrchestrator(inventoryService, orderService, paymentService, tel)

	reconciler := appcheckout.NewReconciler(orderRepo, paymentService, orchestrator, gateway,
		cfg.ReconcileInterval, cfg.ReconcileAfter, tel)
	go reconciler.Run(ctx)

	handler := httppresentation.NewHandler(orchestrator, inventoryService, orderService, paymentService,
		promhttp.Handler(), tel)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	go func() {
		log.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", observability.F("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		log.Info("http_server_stopped")
	}
}

func buildTelemetry(logger observability.Logger) observability.Telemetry {
	reg := prometrics.New("greenmart", "checkout")

	counters := map[string]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(observability.MUsecaseRequests,
			"Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: reg.Counter(observability.MHTTPRequests,
			"Total number of HTTP requests.", "method", "route", "status"),
		observability.MEventPublishFailed: reg.Counter(observability.MEventPublishFailed,
			"Count of event publish failures.", "event"),
		observability.MCheckoutSagas: reg.Counter(observability.MCheckoutSagas,
			"Checkout runs by outcome.", "outcome"),
		observability.MReconciledOrders: reg.Counter(observability.MReconciledOrders,
			"Stale pending orders processed by the reconciler.", "outcome"),
	}
	histograms := map[string]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(observability.MUsecaseDuration,
			"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: reg.Histogram(observability.MHTTPRequestDuration,
			"Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route", "status"),
	}

	return telemetry.New(oteltrace.New("checkout-core"), logger, counters, histograms)
}

// lowStockHandler logs operator-facing alerts from the queue. Malformed
// payloads are surfaced as such so the consumer can drop them.
func lowStockHandler(logger observability.Logger) rabbitmq.MessageHandler {
	return func(ctx context.Context, body []byte) error {
		var alert domaininventory.LowStockAlert
		if err := rabbitmq.DecodeJSON(body, &alert); err != nil {
			return err
		}
		logLowStock(logger, alert)
		return nil
	}
}

func logLowStock(logger observability.Logger, alert domaininventory.LowStockAlert) {
	logger.Warn("low_stock_alert",
		observability.F("product_id", alert.ProductID),
		observability.F("quantity", alert.Quantity),
		observability.F("threshold", alert.LowStockThreshold),
	)
}
