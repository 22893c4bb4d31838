package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/lib/pq"

	"github.com/Druid-alpha/shoplux-BE/internal/auth"
	"github.com/Druid-alpha/shoplux-BE/internal/cart"
	"github.com/Druid-alpha/shoplux-BE/internal/catalog"
	"github.com/Druid-alpha/shoplux-BE/internal/checkout"
	"github.com/Druid-alpha/shoplux-BE/internal/config"
	"github.com/Druid-alpha/shoplux-BE/internal/email"
	"github.com/Druid-alpha/shoplux-BE/internal/invoice"
	"github.com/Druid-alpha/shoplux-BE/internal/messaging"
	"github.com/Druid-alpha/shoplux-BE/internal/notify"
	"github.com/Druid-alpha/shoplux-BE/internal/orders"
	"github.com/Druid-alpha/shoplux-BE/internal/outbox"
	"github.com/Druid-alpha/shoplux-BE/internal/payment"
	"github.com/Druid-alpha/shoplux-BE/internal/settlement"
	"github.com/Druid-alpha/shoplux-BE/internal/store"
	"github.com/Druid-alpha/shoplux-BE/internal/telemetry"
	"github.com/Druid-alpha/shoplux-BE/internal/worker"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require(append([]string{"postgres_url", "access_token_secret"}, cfg.PaymentSecrets()...)...); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "shop", cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("shop", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	httpClient := telemetry.NewHTTPClient(15 * time.Second)

	gateway, err := payment.NewGateway(cfg, httpClient)
	if err != nil {
		logger.Error("failed to configure payment gateway", "error", err)
		os.Exit(1)
	}

	st := store.NewPostgres(db)
	ledger := orders.NewOrderRepository(db)
	products := catalog.NewRepository(db)
	invoices := invoice.NewWriter(cfg.InvoiceDir, cfg.PublicBaseURL, cfg.Currency)
	authenticator := auth.NewAuthenticator(cfg.AccessTokenSecret, logger)

	checkoutService, err := checkout.NewInitiator(st, invoices, logger)
	if err != nil {
		logger.Error("failed to create checkout service", "error", err)
		os.Exit(1)
	}
	processor, err := settlement.NewProcessor(st, logger)
	if err != nil {
		logger.Error("failed to create settlement processor", "error", err)
		os.Exit(1)
	}
	paymentInitiator := payment.NewInitiator(st, gateway, logger,
		payment.WithCurrency(cfg.Currency),
		payment.WithCallbackURL(cfg.ClientURL+"/payment/success"),
	)

	events := outbox.NewRepository(db)
	if err := telemetry.RegisterOutboxBacklog(prometheus.DefaultRegisterer, events.Pending); err != nil {
		logger.Error("failed to register outbox metrics", "error", err)
		os.Exit(1)
	}

	var publisher outbox.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
		logger.Info("relaying order events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.OrderEventsTopic)
	} else {
		epilogue := worker.NewEpilogueHandler(invoices, ledger, newMailer(cfg, httpClient, logger), cfg.Currency, logger)
		publisher = outbox.PublisherFunc(func(ctx context.Context, _, _ string, payload []byte) error {
			return epilogue.Handle(ctx, payload)
		})
		logger.Info("no kafka brokers configured, running order epilogue in process")
	}
	relay := outbox.NewRelay(events, publisher, logger,
		outbox.WithInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
	)

	catalogHandler := catalog.NewHandler(products, logger)
	cartHandler := cart.NewHandler(cart.NewRepository(db), products, logger)
	checkoutHandler := checkout.NewHandler(checkoutService, logger)
	ordersHandler := orders.NewHandler(ledger, logger)
	paymentHandler := payment.NewHandler(paymentInitiator, logger)
	webhookHandler := settlement.NewWebhookHandler(gateway, processor, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(authenticator.Require(cartHandler.HandleGet)))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(authenticator.Require(cartHandler.HandleAdd)))
	mux.HandleFunc("DELETE /cart", telemetry.WithHTTPRoute(authenticator.Require(cartHandler.HandleClear)))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(authenticator.Require(checkoutHandler.HandleCreate)))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(authenticator.Require(ordersHandler.HandleList)))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(authenticator.Require(ordersHandler.HandleGet)))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(authenticator.RequireAdmin(ordersHandler.HandleUpdateStatus)))
	mux.HandleFunc("POST /payments/init", telemetry.WithHTTPRoute(authenticator.Require(paymentHandler.HandleInit)))
	mux.HandleFunc("POST /payments/webhook", telemetry.WithHTTPRoute(webhookHandler.HandleWebhook))
	mux.Handle("GET "+invoice.PathPrefix, http.StripPrefix(invoice.PathPrefix, http.FileServer(http.Dir(cfg.InvoiceDir))))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(mux, "shop"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = relay.Run(relayCtx)
	}()

	go func() {
		logger.Info("starting shop service", "port", cfg.Port, "payment_provider", gateway.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	stopRelay()
	<-relayDone
}

// newMailer picks how the in-process epilogue reaches customers: through the
// email service when one is configured, otherwise straight to SMTP or the log.
func newMailer(cfg *config.Config, client *http.Client, logger *slog.Logger) worker.Mailer {
	if cfg.EmailServiceURL != "" {
		return notify.NewHTTPMailer(cfg.EmailServiceURL, client)
	}
	if cfg.SMTPHost != "" {
		return notify.NewDirectMailer(email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}))
	}
	return notify.NewDirectMailer(email.NewLogSender(logger))
}
