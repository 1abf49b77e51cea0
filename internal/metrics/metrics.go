// Package metrics exposes gateway metrics on a private Prometheus registry.
// A disabled Metrics accepts every call and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediation-router/internal/circuitbreaker"
	"mediation-router/internal/routing"
)

const namespace = "mediation_router"

// PoolSource reports connection counts summed over every route
type PoolSource interface {
	Totals() (leased, idle int)
}

// BreakerSource reports circuit breaker states
type BreakerSource interface {
	AllStats() []circuitbreaker.Stats
}

// Metrics implements routing.Observer, connpool.Observer and deployer.Observer
type Metrics struct {
	enabled  bool
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	apisDeployed     prometheus.Gauge
	deployOps        *prometheus.CounterVec
	poolAcquire      *prometheus.CounterVec
}

// New creates the metrics. When enabled is false every method is a no-op and
// Handler answers 404.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}
	if !enabled {
		return m
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.dispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Total number of resolved requests by outcome",
	}, []string{"outcome"})

	m.dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent selecting an API and resource",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	m.apisDeployed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "apis_deployed",
		Help:      "Number of deployed APIs",
	})

	m.deployOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deploy_operations_total",
		Help:      "Total number of deployment operations",
	}, []string{"operation", "status"})

	m.poolAcquire = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_acquire_total",
		Help:      "Total number of connection acquisitions by result",
	}, []string{"result"})

	m.registry.MustRegister(m.dispatchTotal, m.dispatchDuration, m.apisDeployed, m.deployOps, m.poolAcquire)
	return m
}

// Enabled reports whether metrics are recorded
func (m *Metrics) Enabled() bool {
	return m.enabled
}

// Registry returns the private registry, nil when disabled
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDispatch records one resolution
func (m *Metrics) ObserveDispatch(outcome routing.Outcome, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome.String()).Inc()
	m.dispatchDuration.Observe(elapsed.Seconds())
}

// ObserveAcquire records one pool acquisition
func (m *Metrics) ObserveAcquire(result string) {
	if !m.enabled {
		return
	}
	m.poolAcquire.WithLabelValues(result).Inc()
}

// ObserveDeploy records one deployment operation
func (m *Metrics) ObserveDeploy(operation, status string) {
	if !m.enabled {
		return
	}
	m.deployOps.WithLabelValues(operation, status).Inc()
}

// SetDeployed sets the number of deployed APIs
func (m *Metrics) SetDeployed(count int) {
	if !m.enabled {
		return
	}
	m.apisDeployed.Set(float64(count))
}

// RegisterPool reports pool_connections{state} from source at scrape time
func (m *Metrics) RegisterPool(source PoolSource) {
	if !m.enabled {
		return
	}
	m.registry.MustRegister(&poolCollector{source: source})
}

// RegisterBreakers reports circuit_breaker_open{breaker} from source at scrape time
func (m *Metrics) RegisterBreakers(source BreakerSource) {
	if !m.enabled {
		return
	}
	m.registry.MustRegister(&breakerCollector{source: source})
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	if !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

var poolConnectionsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "pool_connections"),
	"Pooled connections by state, summed over routes",
	[]string{"state"}, nil,
)

type poolCollector struct {
	source PoolSource
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolConnectionsDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	leased, idle := c.source.Totals()
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(leased), "leased")
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(idle), "idle")
}

var breakerOpenDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "circuit_breaker_open"),
	"1 when the route's circuit breaker rejects connect attempts",
	[]string{"breaker"}, nil,
)

type breakerCollector struct {
	source BreakerSource
}

func (c *breakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- breakerOpenDesc
}

func (c *breakerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.AllStats() {
		open := 0.0
		if s.State == circuitbreaker.StateOpen.String() {
			open = 1
		}
		ch <- prometheus.MustNewConstMetric(breakerOpenDesc, prometheus.GaugeValue, open, s.Name)
	}
}
