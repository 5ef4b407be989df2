// PetCare Payments Service
//
// This is the main entry point for the reservation, escrow and payment
// reconciliation service. It wires up all dependencies and starts the HTTP
// server together with the payout outbox worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petcare/petcare-payments/config"
	"github.com/petcare/petcare-payments/internal/adapters/directory"
	"github.com/petcare/petcare-payments/internal/adapters/events"
	"github.com/petcare/petcare-payments/internal/adapters/mercadopago"
	"github.com/petcare/petcare-payments/internal/adapters/payouts"
	"github.com/petcare/petcare-payments/internal/adapters/storage"
	"github.com/petcare/petcare-payments/internal/core/ports"
	"github.com/petcare/petcare-payments/internal/core/service"
	"github.com/petcare/petcare-payments/internal/handlers"
)

const payoutLease = 2 * time.Minute

func main() {
	log.Println("Starting PetCare Payments Service...")

	// Load configuration
	cfg := config.Load()
	log.Printf("Configuration loaded: Port=%s, DirectoryURL=%s", cfg.Server.Port, cfg.Directory.BaseURL)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	warnOptional(cfg)

	// Infrastructure Layer
	db, err := storage.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Migration error: %v", err)
	}

	reservationRepo := storage.NewReservationRepository(db)
	paymentRepo := storage.NewPaymentRepository(db)
	reviewRepo := storage.NewReviewRepository(db)
	payoutRepo := storage.NewPayoutRepository(db)
	webhookLog := storage.NewWebhookEventRepository(db)

	mpAdapter, err := mercadopago.NewAdapter(cfg.MercadoPago.AccessToken, mercadopago.Settings{
		NotificationURL: cfg.MercadoPago.NotificationURL,
		SuccessURL:      cfg.MercadoPago.SuccessURL,
		FailureURL:      cfg.MercadoPago.FailureURL,
		PendingURL:      cfg.MercadoPago.PendingURL,
		Timeout:         cfg.MercadoPago.Timeout,
	})
	if err != nil {
		log.Fatalf("Mercado Pago error: %v", err)
	}
	webhookValidator := mercadopago.NewWebhookValidator(cfg.MercadoPago.WebhookSecret)

	directoryClient := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.APIKey)
	payoutClient := payouts.NewClient(cfg.Payouts.BaseURL, cfg.Payouts.APIKey, cfg.Payouts.Timeout)

	var publisher ports.EventPublisher
	if cfg.Broker.URL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Queue)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	} else {
		log.Println("Warning: AMQP_URL not set, events are only logged")
		publisher = events.NewLogPublisher(log.Printf)
	}

	rdb := connectRedis(cfg.Redis)

	// Service Layer
	dispatcher := service.NewPayoutDispatcher(payoutRepo, payoutClient, publisher, service.DispatcherSettings{
		MaxAttempts: cfg.Payouts.MaxAttempts,
		BatchSize:   cfg.Payouts.BatchSize,
		Lease:       payoutLease,
	})
	reservationService := service.NewReservationService(
		reservationRepo,
		paymentRepo,
		directoryClient,
		publisher,
		cfg.Escrow.CommissionPct,
		cfg.Escrow.DefaultLead,
	)
	checkoutService := service.NewCheckoutService(
		reservationRepo,
		paymentRepo,
		directoryClient,
		mpAdapter,
		cfg.MercadoPago.Currency,
	)
	escrowService := service.NewEscrowService(reservationRepo, publisher, dispatcher, cfg.Escrow.CommissionPct)
	reviewService := service.NewReviewService(reservationRepo, reviewRepo)
	reconciler := service.NewWebhookReconciler(
		webhookValidator,
		mpAdapter,
		reservationRepo,
		paymentRepo,
		webhookLog,
		publisher,
		cfg.MercadoPago.RejectInvalidSignatures,
	)

	// API Layer
	router := handlers.SetupRouter(
		handlers.NewReservationHandler(reservationService, checkoutService, escrowService, reviewService),
		handlers.NewWebhookHandler(reconciler),
		handlers.RouterConfig{
			GinMode:        cfg.Server.GinMode,
			JWTSecret:      cfg.Security.JWTSecret,
			InternalAPIKey: cfg.Security.InternalAPIKey,
			RateLimit:      handlers.RateLimitMiddleware(cfg.RateLimit, rdb),
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(ctx, cfg.Payouts.PollInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// connectRedis returns nil when redis is not configured or unreachable,
// which disables rate limiting.
func connectRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Println("Warning: REDIS_ADDR not set, rate limiting disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: redis unreachable at %s, rate limiting disabled: %v", cfg.Addr, err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func warnOptional(cfg *config.Config) {
	if cfg.MercadoPago.WebhookSecret == "" {
		log.Println("Warning: MP_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}
	if cfg.Security.InternalAPIKey == "" {
		log.Println("Warning: INTERNAL_API_KEY not set, internal routes are disabled")
	}
	if cfg.Payouts.BaseURL == "" {
		log.Println("Warning: PAYOUT_BASE_URL not set, payouts will fail until configured")
	}
}
