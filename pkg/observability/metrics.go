// Package observability provides the metrics and tracing plumbing for the
// cache service.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Agent metrics
	AgentRuns        *prometheus.CounterVec
	AgentRunDuration *prometheus.HistogramVec
	EntitiesWritten  *prometheus.CounterVec
	EntitiesEvicted  *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec

	// On-demand metrics
	OnDemandRequests *prometheus.CounterVec

	// Store metrics
	CacheSize *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	agentRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Total number of agent refresh runs",
		},
		[]string{"agent_type", "status"},
	)

	agentRunDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_run_duration_seconds",
			Help:      "Duration of agent refresh runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent_type"},
	)

	entitiesWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_written_total",
			Help:      "Total number of entities merged into the cache",
		},
		[]string{"agent_type", "cache_namespace"},
	)

	entitiesEvicted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_evicted_total",
			Help:      "Total number of entities evicted by diff-based cleanup",
		},
		[]string{"agent_type"},
	)

	fetchFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Total number of aborted runs due to source fetch failures",
		},
		[]string{"agent_type"},
	)

	onDemandRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ondemand_requests_total",
			Help:      "Total number of on-demand refresh requests",
		},
		[]string{"request_type", "outcome"},
	)

	cacheSize := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entities",
			Help:      "Number of entities currently cached per namespace",
		},
		[]string{"cache_namespace"},
	)

	registry.MustRegister(
		agentRuns,
		agentRunDuration,
		entitiesWritten,
		entitiesEvicted,
		fetchFailures,
		onDemandRequests,
		cacheSize,
	)

	globalCollector = &Collector{
		registry:         registry,
		AgentRuns:        agentRuns,
		AgentRunDuration: agentRunDuration,
		EntitiesWritten:  entitiesWritten,
		EntitiesEvicted:  entitiesEvicted,
		FetchFailures:    fetchFailures,
		OnDemandRequests: onDemandRequests,
		CacheSize:        cacheSize,
	}
	return globalCollector
}

// Handler returns the HTTP handler serving this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveAgentRun records the outcome and duration of one refresh run
func (c *Collector) ObserveAgentRun(agentType, status string, elapsed time.Duration) {
	c.AgentRuns.WithLabelValues(agentType, status).Inc()
	c.AgentRunDuration.WithLabelValues(agentType).Observe(elapsed.Seconds())
}
