package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"escrowd/core/events"
)

type eventMetrics struct {
	transitions *prometheus.CounterVec
	fees        prometheus.Counter
	settled     prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking escrow events. It implements
// events.Emitter so it can sit directly on the engine's emitter chain.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "total",
				Help:      "Count of emitted events segmented by type.",
			}, []string{"type"}),
			fees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "fees_collected_total",
				Help:      "Platform fees withheld at funding time in the smallest unit.",
			}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "settled_total",
				Help:      "Value released to sellers in the smallest unit.",
			}),
		}
		prometheus.MustRegister(eventRegistry.transitions, eventRegistry.fees, eventRegistry.settled)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.transitions.WithLabelValues(labelEvent(evt.EventType())).Inc()
	switch e := evt.(type) {
	case events.EscrowFunded:
		m.fees.Add(bigToFloat(e.Fee))
	case events.EscrowCompleted:
		m.settled.Add(bigToFloat(e.SellerAmount))
	case events.Paused:
		Custody().SetPause(true)
	case events.Unpaused:
		Custody().SetPause(false)
	}
}
