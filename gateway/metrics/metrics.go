// Package metrics exposes prometheus collectors for the gateway pools.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prpcg"

// Outcome labels for served requests
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
)

// Rotation reasons
const (
	RotationOverload = "overload"
	RotationFailure  = "failure"
)

// Recorder is what the pool needs to report activity
type Recorder interface {
	RecordRequest(chainID, outcome string)
	RecordUpstream(chainID, url string, latency time.Duration, err error)
	RecordRotation(chainID, reason string)
	SetInflight(chainID, url string, connections uint64)
	RecordSnapshotWrite(chainID string, err error)
	RecordBroadcast(chainID string, endpoints, failures int)
}

// Metrics implements Recorder on a prometheus registry
type Metrics struct {
	requests       *prometheus.CounterVec
	upstream       *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
	rotations      *prometheus.CounterVec
	inflight       *prometheus.GaugeVec
	snapshots      *prometheus.CounterVec
	broadcasts     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests served by the pool, by outcome",
		}, []string{"chain_id", "outcome"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Latency of upstream JSON-RPC exchanges",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain_id", "url"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed upstream JSON-RPC exchanges",
		}, []string{"chain_id", "url"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "Primary endpoint rotations, by reason",
		}, []string{"chain_id", "reason"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_connections",
			Help:      "Admitted connections per endpoint",
		}, []string{"chain_id", "url"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Pool snapshot writes, by result",
		}, []string{"chain_id", "result"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_results_total",
			Help:      "Per-endpoint results of bulk broadcasts",
		}, []string{"chain_id", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.upstream,
			m.upstreamErrors,
			m.rotations,
			m.inflight,
			m.snapshots,
			m.broadcasts,
		)
	}
	return m
}

func (m *Metrics) RecordRequest(chainID, outcome string) {
	m.requests.WithLabelValues(chainID, outcome).Inc()
}

func (m *Metrics) RecordUpstream(chainID, url string, latency time.Duration, err error) {
	if err != nil {
		m.upstreamErrors.WithLabelValues(chainID, url).Inc()
		return
	}
	m.upstream.WithLabelValues(chainID, url).Observe(latency.Seconds())
}

func (m *Metrics) RecordRotation(chainID, reason string) {
	m.rotations.WithLabelValues(chainID, reason).Inc()
}

func (m *Metrics) SetInflight(chainID, url string, connections uint64) {
	m.inflight.WithLabelValues(chainID, url).Set(float64(connections))
}

func (m *Metrics) RecordSnapshotWrite(chainID string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.snapshots.WithLabelValues(chainID, result).Inc()
}

func (m *Metrics) RecordBroadcast(chainID string, endpoints, failures int) {
	m.broadcasts.WithLabelValues(chainID, "ok").Add(float64(endpoints - failures))
	m.broadcasts.WithLabelValues(chainID, "error").Add(float64(failures))
}

// Noop discards everything
type Noop struct{}

func (Noop) RecordRequest(string, string)                       {}
func (Noop) RecordUpstream(string, string, time.Duration, error) {}
func (Noop) RecordRotation(string, string)                      {}
func (Noop) SetInflight(string, string, uint64)                 {}
func (Noop) RecordSnapshotWrite(string, error)                  {}
func (Noop) RecordBroadcast(string, int, int)                   {}
