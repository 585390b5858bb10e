// Package metrics collects Prometheus metrics for index synchronization,
// search and inference. Metrics live on a private registry; the CLI reads
// them back through Snapshot.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "snapnotes"

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	inferenceLatency *prometheus.HistogramVec
	syncOperations   *prometheus.CounterVec
	searchRequests   *prometheus.CounterVec
	indexRecords     *prometheus.GaugeVec
	reconcilePending prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.inferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "inference_seconds",
			Help:      "Embedding inference latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "outcome"},
	)

	m.syncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Index synchronization operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.searchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	m.indexRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "records",
			Help:      "Vectors held by each index",
		},
		[]string{"index"},
	)

	m.reconcilePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "reconcile_pending",
			Help:      "Notes waiting for index reconciliation",
		},
	)

	m.registry.MustRegister(
		m.inferenceLatency,
		m.syncOperations,
		m.searchRequests,
		m.indexRecords,
		m.reconcilePending,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func (m *Metrics) ObserveInference(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inferenceLatency.WithLabelValues(provider, outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) SyncOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.syncOperations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) SearchRequest(mode string, err error) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(mode, outcome(err)).Inc()
}

func (m *Metrics) SetIndexRecords(index string, n int) {
	if m == nil {
		return
	}
	m.indexRecords.WithLabelValues(index).Set(float64(n))
}

func (m *Metrics) SetReconcilePending(n int) {
	if m == nil {
		return
	}
	m.reconcilePending.Set(float64(n))
}

// Sample is one flattened metric value. Histograms report their sample count.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Snapshot gathers the registry into a sorted list of samples.
func (m *Metrics) Snapshot() ([]Sample, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			samples = append(samples, Sample{
				Name:   mf.GetName(),
				Labels: formatLabels(metric.GetLabel()),
				Value:  value(mf.GetType(), metric),
			})
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Labels < samples[j].Labels
	})
	return samples, nil
}

func value(t dto.MetricType, metric *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(metric.GetHistogram().GetSampleCount())
	}
	return 0
}

func formatLabels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return strings.Join(parts, ",")
}
