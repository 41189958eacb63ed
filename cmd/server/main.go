package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/application/services"
	"github.com/sotaro-dev/meetup-payments/internal/config"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/provider"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest/handlers"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest/middleware"
	"github.com/sotaro-dev/meetup-payments/internal/metrics"
	"github.com/sotaro-dev/meetup-payments/internal/webhook"
	"github.com/sotaro-dev/meetup-payments/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payment service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	paymentRepo := postgres.NewPaymentRepository(db)
	ledgerRepo := postgres.NewEventLedgerRepository(db, cfg.Worker.ClaimLease)
	disputeRepo := postgres.NewDisputeRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)

	stripeClient := provider.NewStripeClient(cfg.Provider)

	collector := metrics.NewCollector()

	processor := webhook.NewProcessor(
		ledgerRepo,
		paymentRepo,
		disputeRepo,
		settlementRepo,
		collector,
		logger,
	)

	checkoutService := services.NewCheckoutService(paymentRepo, stripeClient, logger)
	cashService := services.NewCashStatusService(paymentRepo, logger)
	settlementService := services.NewSettlementService(settlementRepo, logger)

	retryWorker := worker.NewRetryWorker(
		ledgerRepo,
		stripeClient,
		processor,
		collector,
		cfg.Worker.Interval,
		cfg.Worker.BatchSize,
		logger,
	)

	h := handlers.NewHandlers(
		processor,
		retryWorker,
		checkoutService,
		cashService,
		settlementService,
		cfg.Provider.WebhookSecrets(),
		cfg.Provider.SignatureTolerance,
		cfg.Admin.RetrySecret,
		logger,
	)

	mux := http.NewServeMux()
	h.Register(mux)

	handler := middleware.Recovery(logger)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	metricsServer := collector.StartServer(cfg.Metrics.Port, func(ctx context.Context) error {
		return db.Pool.Ping(ctx)
	})

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go retryWorker.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
