package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes decision counters and check latency. All recording helpers
// are nil-safe so the core can run without a registry wired in.
type Metrics struct {
	Decisions         *prometheus.CounterVec
	FailOpen          prometheus.Counter
	CheckDuration     prometheus.Histogram
	ViolationsDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Admission decisions by rule, algorithm and outcome",
			},
			[]string{"rule", "algorithm", "outcome"},
		),
		FailOpen: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratelimit_fail_open_total",
				Help: "Requests admitted because the counter store was unavailable",
			},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratelimit_check_duration_seconds",
				Help:    "Latency of rate limit checks",
				Buckets: prometheus.DefBuckets,
			},
		),
		ViolationsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ratelimit_violations_dropped_total",
				Help: "Violation records dropped because the log buffer was full",
			},
		),
	}

	reg.MustRegister(m.Decisions, m.FailOpen, m.CheckDuration, m.ViolationsDropped)
	return m
}

func (m *Metrics) decision(rule string, alg Algorithm, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(rule, string(alg), outcome).Inc()
}

func (m *Metrics) failOpen() {
	if m == nil {
		return
	}
	m.FailOpen.Inc()
}

func (m *Metrics) observeCheck(start time.Time) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) violationDropped() {
	if m == nil {
		return
	}
	m.ViolationsDropped.Inc()
}
