package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type launchMetrics struct {
	fanOuts     *prometheus.CounterVec
	claims      *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	valveOpen   *prometheus.GaugeVec
	valveFlips  *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	launchMetricsOnce sync.Once
	launchRegistry    *launchMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// gateway module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total gateway module requests segmented by module and operation.",
			}, []string{"module", "op", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total gateway module errors segmented by module, operation, and status code.",
			}, []string{"module", "op", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "launchcore",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "op"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
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
func (m *moduleMetrics) Observe(module, op string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, op, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, op, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, op).Observe(duration.Seconds())
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

// LaunchMetrics returns the registry tracking domain activity: mint fan-outs,
// vault claims, reward withdrawals, and valve state.
func LaunchMetrics() *launchMetrics {
	launchMetricsOnce.Do(func() {
		launchRegistry = &launchMetrics{
			fanOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "allocation",
				Name:      "fanouts_total",
				Help:      "Count of processed mint fan-outs segmented by asset.",
			}, []string{"asset"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "vault",
				Name:      "claims_total",
				Help:      "Count of vault claim operations segmented by asset.",
			}, []string{"asset"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "pool",
				Name:      "withdrawals_total",
				Help:      "Count of member withdrawals from distribution pools.",
			}, []string{"asset"}),
			valveOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "launchcore",
				Subsystem: "valve",
				Name:      "open",
				Help:      "Whether the safety valve is open (1) or closed (0) per asset.",
			}, []string{"asset"}),
			valveFlips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchcore",
				Subsystem: "valve",
				Name:      "transitions_total",
				Help:      "Count of valve transitions segmented by asset and direction.",
			}, []string{"asset", "direction"}),
		}
		prometheus.MustRegister(
			launchRegistry.fanOuts,
			launchRegistry.claims,
			launchRegistry.withdrawals,
			launchRegistry.valveOpen,
			launchRegistry.valveFlips,
		)
	})
	return launchRegistry
}

// RecordFanOut increments the fan-out counter for the asset.
func (m *launchMetrics) RecordFanOut(asset string) {
	if m == nil {
		return
	}
	m.fanOuts.WithLabelValues(asset).Inc()
}

// RecordClaim increments the claim counter for the asset.
func (m *launchMetrics) RecordClaim(asset string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(asset).Inc()
}

// RecordWithdrawal increments the withdrawal counter for the asset.
func (m *launchMetrics) RecordWithdrawal(asset string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(asset).Inc()
}

// RecordValve sets the open gauge and counts the transition.
func (m *launchMetrics) RecordValve(asset string, open bool) {
	if m == nil {
		return
	}
	direction := "close"
	value := 0.0
	if open {
		direction = "open"
		value = 1.0
	}
	m.valveOpen.WithLabelValues(asset).Set(value)
	m.valveFlips.WithLabelValues(asset, direction).Inc()
}
