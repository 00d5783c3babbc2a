// Package metrics exposes the dispatcher and scorer Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by the services. A nil *Metrics is a no-op.
type Metrics struct {
	dispatchTotal   *prometheus.CounterVec
	deferralTotal   *prometheus.CounterVec
	passDuration    prometheus.Histogram
	sendDuration    *prometheus.SummaryVec
	scoreTotal      *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_dispatch_total",
				Help: "Dispatch loop invocations by result",
			},
			[]string{"result"},
		),
		deferralTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_dispatch_deferrals_total",
				Help: "Next-send deferrals by throttle reason",
			},
			[]string{"reason"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "campaign_dispatch_pass_duration_seconds",
				Help:    "Duration of one pass over all active campaigns",
				Buckets: prometheus.DefBuckets,
			},
		),
		sendDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "transport_send_duration_seconds",
				Help:       "Transport send latency by status",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
				MaxAge:     5 * time.Minute,
			},
			[]string{"status"},
		),
		scoreTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_scores_total",
				Help: "Conversation priority writes by mode and bucket",
			},
			[]string{"mode", "bucket"},
		),
		transitionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_transitions_total",
				Help: "Campaign status transitions by target status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(m.dispatchTotal, m.deferralTotal, m.passDuration, m.sendDuration, m.scoreTotal, m.transitionTotal)
	return m
}

// ObserveDispatch counts one dispatch invocation
func (m *Metrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
}

// ObserveDeferral counts a next-send deferral
func (m *Metrics) ObserveDeferral(reason string) {
	if m == nil {
		return
	}
	m.deferralTotal.WithLabelValues(reason).Inc()
}

// ObservePass records the duration of a full pass
func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
}

// ObserveSend records one transport call
func (m *Metrics) ObserveSend(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveScore counts one priority write
func (m *Metrics) ObserveScore(mode, bucket string) {
	if m == nil {
		return
	}
	m.scoreTotal.WithLabelValues(mode, bucket).Inc()
}

// ObserveTransition counts a campaign status change
func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(status).Inc()
}
