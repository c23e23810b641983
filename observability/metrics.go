package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type relayMetrics struct {
	messages *prometheus.CounterVec
}

type leaseMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var (
	relayMetricsOnce sync.Once
	relayRegistry    *relayMetrics

	leaseMetricsOnce sync.Once
	leaseRegistry    *leaseMetrics
)

// RelayMetrics returns the lazily-initialised registry counting inbound relay
// messages segmented by source network and outcome.
func RelayMetrics() *relayMetrics {
	relayMetricsOnce.Do(func() {
		relayRegistry = &relayMetrics{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leasenet",
				Subsystem: "relay",
				Name:      "messages_total",
				Help:      "Total inbound relay messages segmented by source network and outcome.",
			}, []string{"network", "outcome"}),
		}
		prometheus.MustRegister(relayRegistry.messages)
	})
	return relayRegistry
}

// Observe records the outcome of a relay message.
func (m *relayMetrics) Observe(network, outcome string) {
	if m == nil {
		return
	}
	if network == "" {
		network = "unknown"
	}
	m.messages.WithLabelValues(network, outcome).Inc()
}

// LeaseMetrics returns the lazily-initialised registry recording lease
// operation activity on the RPC surface.
func LeaseMetrics() *leaseMetrics {
	leaseMetricsOnce.Do(func() {
		leaseRegistry = &leaseMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leasenet",
				Subsystem: "lease",
				Name:      "operations_total",
				Help:      "Total lease operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "leasenet",
				Subsystem: "lease",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for lease operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(leaseRegistry.operations, leaseRegistry.latency)
	})
	return leaseRegistry
}

// Observe records the outcome and duration of a lease operation.
func (m *leaseMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}
