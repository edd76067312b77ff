// Package metrics holds the agent's own Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for passes, probes and triggers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	probeResults   *prometheus.CounterVec
	probeLatency   *prometheus.HistogramVec
	stateRefresh   *prometheus.CounterVec
	stateBlock     *prometheus.GaugeVec
	passDuration   *prometheus.HistogramVec
	triggers       *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	exportFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_dashboard_probe_results_total",
				Help: "Probe outcomes by blockchain, provider, method and status",
			},
			[]string{"blockchain", "provider", "api_method", "status"},
		),
		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_dashboard_probe_latency_seconds",
				Help:    "Latency of successful probes in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 55},
			},
			[]string{"blockchain", "provider", "api_method"},
		),
		stateRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_dashboard_state_refresh_total",
				Help: "State refresh outcomes per blockchain (success, config, fetch, store)",
			},
			[]string{"blockchain", "outcome"},
		),
		stateBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpc_dashboard_state_block_number",
				Help: "Latest block number written to the state store",
			},
			[]string{"blockchain"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_dashboard_pass_duration_seconds",
				Help:    "Duration of refresh and collection passes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pass"},
		),
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_dashboard_trigger_requests_total",
				Help: "Trigger requests by route and response code",
			},
			[]string{"route", "code"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpc_dashboard_circuit_breaker_state",
				Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		exportFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_dashboard_export_failures_total",
				Help: "Failed metric sink deliveries by sink",
			},
			[]string{"sink"},
		),
	}

	reg.MustRegister(
		m.probeResults,
		m.probeLatency,
		m.stateRefresh,
		m.stateBlock,
		m.passDuration,
		m.triggers,
		m.breakerState,
		m.exportFailures,
	)

	return m
}

// ObserveProbe records one probe outcome
func (m *Metrics) ObserveProbe(blockchain, provider, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.probeResults.WithLabelValues(blockchain, provider, method, status).Inc()
	if status == "success" {
		m.probeLatency.WithLabelValues(blockchain, provider, method).Observe(seconds)
	}
}

// RecordStateRefresh records one per-chain refresh outcome
func (m *Metrics) RecordStateRefresh(blockchain, outcome string) {
	if m == nil {
		return
	}
	m.stateRefresh.WithLabelValues(blockchain, outcome).Inc()
}

// SetStateBlock records the block number just stored for blockchain
func (m *Metrics) SetStateBlock(blockchain string, block uint64) {
	if m == nil {
		return
	}
	m.stateBlock.WithLabelValues(blockchain).Set(float64(block))
}

// ObservePass records how long a pass took
func (m *Metrics) ObservePass(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// RecordTrigger counts one trigger request
func (m *Metrics) RecordTrigger(route, code string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(route, code).Inc()
}

// SetBreakerState records a breaker transition
func (m *Metrics) SetBreakerState(breaker string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(breaker).Set(float64(state))
}

// RecordExportFailure counts one failed sink delivery
func (m *Metrics) RecordExportFailure(sink string) {
	if m == nil {
		return
	}
	m.exportFailures.WithLabelValues(sink).Inc()
}
