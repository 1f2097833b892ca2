package selector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the prometheus metrics for the selection cycle.
type Metrics struct {
	CycleDuration       prometheus.Histogram
	CandidatesEvaluated prometheus.Counter
	Adjustments         *prometheus.CounterVec
	QuadChanges         prometheus.Counter
	StreamChurn         *prometheus.CounterVec
	SlotsOccupied       prometheus.Gauge
}

// NewMetrics creates and registers all selector metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "selector_cycle_duration_seconds",
				Help:    "Time spent computing one quad selection cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		CandidatesEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "selector_candidates_evaluated_total",
				Help: "Total number of candidates scored by the selector",
			},
		),
		Adjustments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selector_priority_adjustments_total",
				Help: "Total number of priority adjustments applied, by rule",
			},
			[]string{"adjustment"},
		),
		QuadChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "selector_quad_changes_total",
				Help: "Total number of cycles that produced a different quad",
			},
		),
		StreamChurn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selector_stream_churn_total",
				Help: "Streams added to and removed from the quad",
			},
			[]string{"direction"},
		),
		SlotsOccupied: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "selector_slots_occupied",
				Help: "Number of occupied quad slots after the last cycle",
			},
		),
	}

	reg.MustRegister(
		m.CycleDuration,
		m.CandidatesEvaluated,
		m.Adjustments,
		m.QuadChanges,
		m.StreamChurn,
		m.SlotsOccupied,
	)

	return m
}
