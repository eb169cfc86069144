package observability

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"metering/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the metering service
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	mutationsCounter      metric.Int64Counter
	mutationDurationHist  metric.Float64Histogram
	duplicatesCounter     metric.Int64Counter
	storageErrorsCounter  metric.Int64Counter
	sessionsStartedCounter metric.Int64Counter
	sessionsEndedCounter   metric.Int64Counter
	minutesBilledCounter   metric.Int64Counter
	fallbackReplaysCounter metric.Int64Counter
	fallbackPendingGauge   metric.Int64UpDownCounter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Println("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Println("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	// Create resource with service information
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	// Create appropriate exporter based on config
	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Println("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Printf("Using OTLP metric exporter: %s", mp.config.OTelOTLPEndpoint)

	case "none":
		log.Println("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	// Create meter provider with periodic reader
	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)

	// Set as global meter provider
	otel.SetMeterProvider(mp.meterProvider)

	mp.meter = mp.meterProvider.Meter("metering")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Println("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.mutationsCounter, err = mp.meter.Int64Counter(
		LedgerMutationsTotal,
		metric.WithDescription("Total number of ledger mutations applied"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create mutations counter: %w", err)
	}

	mp.mutationDurationHist, err = mp.meter.Float64Histogram(
		LedgerMutationDuration,
		metric.WithDescription("Duration of ledger mutations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create mutation duration histogram: %w", err)
	}

	mp.duplicatesCounter, err = mp.meter.Int64Counter(
		LedgerDuplicatesTotal,
		metric.WithDescription("Total number of duplicate mutations suppressed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create duplicates counter: %w", err)
	}

	mp.storageErrorsCounter, err = mp.meter.Int64Counter(
		LedgerStorageErrorsTotal,
		metric.WithDescription("Total number of storage failures during mutations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage errors counter: %w", err)
	}

	mp.sessionsStartedCounter, err = mp.meter.Int64Counter(
		SessionsStartedTotal,
		metric.WithDescription("Total number of sessions started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sessions started counter: %w", err)
	}

	mp.sessionsEndedCounter, err = mp.meter.Int64Counter(
		SessionsEndedTotal,
		metric.WithDescription("Total number of sessions ended"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sessions ended counter: %w", err)
	}

	mp.minutesBilledCounter, err = mp.meter.Int64Counter(
		MinutesBilledTotal,
		metric.WithDescription("Total minutes billed across all sessions"),
		metric.WithUnit("min"),
	)
	if err != nil {
		return fmt.Errorf("failed to create minutes billed counter: %w", err)
	}

	mp.fallbackReplaysCounter, err = mp.meter.Int64Counter(
		FallbackReplaysTotal,
		metric.WithDescription("Total number of fallback operations replayed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create fallback replays counter: %w", err)
	}

	mp.fallbackPendingGauge, err = mp.meter.Int64UpDownCounter(
		FallbackPendingOps,
		metric.WithDescription("Current number of fallback operations awaiting replay"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create fallback pending gauge: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordMutation records an applied ledger mutation with its duration
func (mp *MetricsProvider) RecordMutation(ctx context.Context, kind string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelKind, kind),
	)

	mp.mutationsCounter.Add(ctx, 1, attrs)
	mp.mutationDurationHist.Record(ctx, duration.Seconds(), attrs)
}

// RecordDuplicateSuppressed records an idempotency short-circuit
func (mp *MetricsProvider) RecordDuplicateSuppressed(ctx context.Context, kind string) {
	if !mp.isEnabled() {
		return
	}

	mp.duplicatesCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(LabelKind, kind),
		),
	)
}

// RecordStorageError records a storage failure during a mutation
func (mp *MetricsProvider) RecordStorageError(ctx context.Context) {
	if !mp.isEnabled() {
		return
	}

	mp.storageErrorsCounter.Add(ctx, 1)
}

// RecordSessionStarted records an admitted session
func (mp *MetricsProvider) RecordSessionStarted(ctx context.Context) {
	if !mp.isEnabled() {
		return
	}

	mp.sessionsStartedCounter.Add(ctx, 1)
}

// RecordSessionEnded records a closed session and the minutes it billed
func (mp *MetricsProvider) RecordSessionEnded(ctx context.Context, minutesBilled int64) {
	if !mp.isEnabled() {
		return
	}

	mp.sessionsEndedCounter.Add(ctx, 1)
	mp.minutesBilledCounter.Add(ctx, minutesBilled)
}

// RecordFallbackReplay records the outcome of a replayed fallback operation
func (mp *MetricsProvider) RecordFallbackReplay(ctx context.Context, outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.fallbackReplaysCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// UpdateFallbackPending adjusts the pending fallback operation gauge
func (mp *MetricsProvider) UpdateFallbackPending(ctx context.Context, delta int64) {
	if !mp.isEnabled() {
		return
	}

	mp.fallbackPendingGauge.Add(ctx, delta)
}

// isEnabled checks if metrics are enabled and initialized
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.config.OTelEnabled && mp.mutationsCounter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider, or nil if not initialized
func GetMetrics() *MetricsProvider {
	return globalMetrics
}
