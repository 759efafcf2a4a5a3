package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tradepost/tradepost/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	loginCounter         metric.Int64Counter
	throttleCounter      metric.Int64Counter
	sessionCounter       metric.Int64Counter
	csrfRejectionCounter metric.Int64Counter
	repositoryCounter    metric.Int64Counter
	lockoutDuration      metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("tradepost")
	loginCounter, err := meter.Int64Counter("auth.login.attempts")
	if err != nil {
		return nil, err
	}
	throttleCounter, err := meter.Int64Counter("auth.throttle.decisions")
	if err != nil {
		return nil, err
	}
	sessionCounter, err := meter.Int64Counter("session.lifecycle.events")
	if err != nil {
		return nil, err
	}
	csrfCounter, err := meter.Int64Counter("security.csrf.rejections")
	if err != nil {
		return nil, err
	}
	repoCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	lockoutDuration, err := meter.Float64Histogram("auth.lockout.retry_after_seconds")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		loginCounter:         loginCounter,
		throttleCounter:      throttleCounter,
		sessionCounter:       sessionCounter,
		csrfRejectionCounter: csrfCounter,
		repositoryCounter:    repoCounter,
		lockoutDuration:      lockoutDuration,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordLogin counts a login outcome: success, invalid_credentials, throttled
// or error.
func RecordLogin(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordThrottleDecision counts throttle admissions and blocks.
func RecordThrottleDecision(ctx context.Context, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.throttleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordLockout records how long a blocked client was told to wait.
func RecordLockout(ctx context.Context, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.lockoutDuration.Record(ctx, retryAfter.Seconds())
}

// RecordSessionEvent counts session lifecycle transitions: created, rotated,
// validated, expired, destroyed, purged. Expiry and explicit logout are
// deliberately separate values so the two terminal states stay
// distinguishable in telemetry.
func RecordSessionEvent(ctx context.Context, event string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordCSRFRejection counts rejected mutating requests by reason: missing or
// mismatch.
func RecordCSRFRejection(ctx context.Context, reason string) {
	m := current()
	if m == nil {
		return
	}
	m.csrfRejectionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
