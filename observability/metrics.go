package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "escrowd"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	custodyMetricsOnce sync.Once
	custodyRegistry    *CustodyMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// CustodyMetrics wraps gauges tracking the custody vault and the pause gate.
type CustodyMetrics struct {
	vault        prometheus.Gauge
	required     prometheus.Gauge
	healthy      prometheus.Gauge
	pauseEngaged prometheus.Gauge
}

// Custody exposes the custody metrics registry.
func Custody() *CustodyMetrics {
	custodyMetricsOnce.Do(func() {
		custodyRegistry = &CustodyMetrics{
			vault: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "custody",
				Name:      "vault_balance",
				Help:      "Value held by the custody vault in the smallest unit.",
			}),
			required: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "custody",
				Name:      "required_balance",
				Help:      "Outstanding deposits plus accumulated fees the vault must cover.",
			}),
			healthy: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "custody",
				Name:      "healthy",
				Help:      "Indicates whether the last custody check passed (1) or not (0).",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "custody",
				Name:      "pause_engaged",
				Help:      "Indicates whether the escrow pause gate is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			custodyRegistry.vault,
			custodyRegistry.required,
			custodyRegistry.healthy,
			custodyRegistry.pauseEngaged,
		)
	})
	return custodyRegistry
}

// RecordCheck stores the result of a custody verification.
func (m *CustodyMetrics) RecordCheck(vault, required *big.Int, healthy bool) {
	if m == nil {
		return
	}
	m.vault.Set(bigToFloat(vault))
	m.required.Set(bigToFloat(required))
	m.healthy.Set(boolToFloat(healthy))
}

// SetPause toggles the pause_engaged gauge.
func (m *CustodyMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	m.pauseEngaged.Set(boolToFloat(engaged))
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func labelEvent(eventType string) string {
	trimmed := strings.TrimSpace(eventType)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
