package notifier

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	telemetry "escrowd/observability/otel"
)

var (
	metricsOnce   sync.Once
	sharedMetrics *notifierMetrics
)

type notifierMetrics struct {
	dropped    metric.Int64Counter
	deliveries metric.Int64Counter
}

func queueMetrics() *notifierMetrics {
	metricsOnce.Do(func() {
		meter := telemetry.Meter()
		dropped, err := meter.Int64Counter("escrowd.notifier.dropped",
			metric.WithDescription("Events discarded before delivery, by reason."))
		if err != nil {
			dropped, _ = noop.NewMeterProvider().Meter(telemetry.InstrumentationName).Int64Counter("escrowd.notifier.dropped")
		}
		deliveries, err := meter.Int64Counter("escrowd.notifier.deliveries",
			metric.WithDescription("Sink deliveries, by sink and outcome."))
		if err != nil {
			deliveries, _ = noop.NewMeterProvider().Meter(telemetry.InstrumentationName).Int64Counter("escrowd.notifier.deliveries")
		}
		sharedMetrics = &notifierMetrics{dropped: dropped, deliveries: deliveries}
	})
	return sharedMetrics
}

func (m *notifierMetrics) recordDropped(reason string, count int) {
	if m == nil || m.dropped == nil || count <= 0 {
		return
	}
	m.dropped.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *notifierMetrics) recordDelivery(sink string, err error) {
	if m == nil || m.deliveries == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("outcome", outcome),
	))
}
