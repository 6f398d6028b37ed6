package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	firingCounter  otelmetric.Int64Counter
	firingDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	firingCounter, _ := meter.Int64Counter(
		"hooks.fired",
		otelmetric.WithDescription("Number of hook firings processed"),
	)

	firingDuration, _ := meter.Float64Histogram(
		"hooks.firing.duration",
		otelmetric.WithDescription("Hook firing fan-out duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		firingCounter:  firingCounter,
		firingDuration: firingDuration,
	}
}

func (o *Observability) RecordFiring(ctx context.Context, hookType, status string) {
	if o.firingCounter != nil {
		o.firingCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("hook_type", hookType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordFiringDuration(ctx context.Context, duration time.Duration, hookType string) {
	if o.firingDuration != nil {
		o.firingDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("hook_type", hookType),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
