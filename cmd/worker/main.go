package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/Druid-alpha/shoplux-BE/internal/config"
	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/invoice"
	"github.com/Druid-alpha/shoplux-BE/internal/messaging"
	"github.com/Druid-alpha/shoplux-BE/internal/notify"
	"github.com/Druid-alpha/shoplux-BE/internal/orders"
	"github.com/Druid-alpha/shoplux-BE/internal/telemetry"
	"github.com/Druid-alpha/shoplux-BE/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("kafka_brokers", "postgres_url", "email_service_url"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "order-worker", cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.ConsumerGroup,
		messaging.WithEventTypes(domain.EventOrderSettled, domain.EventOrderPaymentFailed))
	defer func() { _ = consumer.Close() }()

	epilogue := worker.NewEpilogueHandler(
		invoice.NewWriter(cfg.InvoiceDir, cfg.PublicBaseURL, cfg.Currency),
		orders.NewOrderRepository(db),
		notify.NewHTTPMailer(cfg.EmailServiceURL, telemetry.NewHTTPClient(10*time.Second)),
		cfg.Currency,
		logger,
	)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting order epilogue worker", "brokers", cfg.KafkaBrokers, "topic", cfg.OrderEventsTopic)

	if err := consumer.Consume(ctx, epilogue.Handle); err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
