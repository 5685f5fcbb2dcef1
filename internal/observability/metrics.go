package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"attendance-session-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	checkInCounter    metric.Int64Counter
	transitionCounter metric.Int64Counter
	qrRotationCounter metric.Int64Counter
	repoOpCounter     metric.Int64Counter
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

	meter := mp.Meter("attendance-session-service")
	checkInCounter, err := meter.Int64Counter("attendance.checkin.attempts")
	if err != nil {
		return nil, err
	}
	transitionCounter, err := meter.Int64Counter("attendance.session.transitions")
	if err != nil {
		return nil, err
	}
	qrRotationCounter, err := meter.Int64Counter("attendance.qrcode.rotations")
	if err != nil {
		return nil, err
	}
	repoOpCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		checkInCounter:    checkInCounter,
		transitionCounter: transitionCounter,
		qrRotationCounter: qrRotationCounter,
		repoOpCounter:     repoOpCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func loaded() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordCheckInAttempt tags every check-in with its outcome: success, or the
// failure class that short-circuited it (invalid_token, duplicate, closed...).
func RecordCheckInAttempt(ctx context.Context, outcome string) {
	m := loaded()
	if m == nil {
		return
	}
	m.checkInCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSessionTransition counts ACTIVE->CLOSED flips by trigger: auto_close
// or manual_close.
func RecordSessionTransition(ctx context.Context, trigger string) {
	m := loaded()
	if m == nil {
		return
	}
	m.transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

func RecordQRRotation(ctx context.Context, outcome string) {
	m := loaded()
	if m == nil {
		return
	}
	m.qrRotationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := loaded()
	if m == nil {
		return
	}
	m.repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
