package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics aggregates the engine's prometheus collectors.
type Metrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	poolCount  prometheus.GaugeFunc
}

// NewMetrics registers the engine collectors with the given registerer.
// poolCount reports the current number of pool records.
func NewMetrics(registry prometheus.Registerer, poolCount func() float64) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "defiswap",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations by kind and outcome.",
			},
			[]string{"op", "result"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "defiswap",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Engine operation latency by kind.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		poolCount: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "defiswap",
				Subsystem: "engine",
				Name:      "pools",
				Help:      "Number of pool records in the registry.",
			},
			poolCount,
		),
	}

	registry.MustRegister(m.opsTotal, m.opDuration, m.poolCount)
	return m
}

// observe records one operation outcome.
func (m *Metrics) observe(op string, err error, timer *prometheus.Timer) {
	timer.ObserveDuration()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.opsTotal.WithLabelValues(op, result).Inc()
}
