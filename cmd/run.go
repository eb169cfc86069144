package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"metering/application"
	"metering/config"
	"metering/database"
	"metering/fallback"
	"metering/httpapi"
	"metering/infrastructure"
	"metering/infrastructure/observability"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting metering service...")

	// Load configuration
	cfg := config.Get()

	// Initialize metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics := observability.GetMetrics()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Initialize NATS
	log.Printf("Connecting to NATS at %s...", cfg.NATSServers)
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	eventPublisher := infrastructure.NewNATSEventPublisher(natsClient, infrastructure.NewEventSubjectMapper())
	if err := eventPublisher.EnsureDomainEventStream(); err != nil {
		return fmt.Errorf("failed to ensure domain event stream: %w", err)
	}

	// Initialize application services
	uowFactory := infrastructure.NewUnitOfWorkFactory(db, eventPublisher)
	gateway := application.NewLedgerGateway(uowFactory, metrics)
	tracker := application.NewSessionTracker(uowFactory, gateway, eventPublisher)
	processor := application.NewCreditProcessor(gateway, eventPublisher)

	// Initialize fallback store and reconciler
	log.Printf("Opening fallback store at %s...", cfg.FallbackDBPath)
	fallbackStore, err := fallback.NewStore(cfg.FallbackDBPath)
	if err != nil {
		return fmt.Errorf("failed to open fallback store: %w", err)
	}
	reconciler := fallback.NewReconciler(fallbackStore, gateway, metrics,
		time.Duration(cfg.ReplayIntervalSeconds)*time.Second)
	reconciler.Start(ctx)

	// Start payment confirmation consumer
	paymentConsumer := infrastructure.NewPaymentConsumer(natsClient, processor)
	if err := paymentConsumer.Start(); err != nil {
		return fmt.Errorf("failed to start payment consumer: %w", err)
	}

	// Start HTTP API
	server := httpapi.NewServer(cfg.HTTPAddr, gateway, tracker, processor, fallbackStore)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.Printf("Service is running in %s mode...", cfg.Environment)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	// Cleanup resources
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	paymentConsumer.Stop()
	reconciler.Stop()

	if err := natsClient.Close(); err != nil {
		log.Printf("Error closing NATS connection: %v", err)
	}

	if err := fallbackStore.Close(); err != nil {
		log.Printf("Error closing fallback store: %v", err)
	}

	log.Println("Closing database connection...")
	db.Close()

	if metrics != nil {
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down metrics: %v", err)
		}
	}

	log.Println("Shutdown completed")
	return nil
}
