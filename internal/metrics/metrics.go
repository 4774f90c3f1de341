// Package metrics holds the Prometheus instruments exported by the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics records nothing.
type Metrics struct {
	GateDecisions    *prometheus.CounterVec
	GateDuration     prometheus.Histogram
	MembershipChecks *prometheus.CounterVec
	BroadcastSends   *prometheus.CounterVec
	IngestedPosts    *prometheus.CounterVec
	Searches         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the bot metrics with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinobot_gate_decisions_total",
			Help: "Enforcement gate decisions by reason.",
		}, []string{"reason", "allowed"}),
		GateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kinobot_gate_duration_seconds",
			Help:    "Duration of enforcement gate evaluations in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MembershipChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinobot_membership_checks_total",
			Help: "Channel membership checks by result.",
		}, []string{"result"}),
		BroadcastSends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinobot_broadcast_sends_total",
			Help: "Broadcast deliveries by result.",
		}, []string{"result"}),
		IngestedPosts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinobot_ingested_posts_total",
			Help: "Catalog posts ingested by outcome.",
		}, []string{"outcome"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinobot_searches_total",
			Help: "Catalog searches by match kind.",
		}, []string{"match"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveGate records a gate decision and its duration.
func (m *Metrics) ObserveGate(reason string, allowed bool, d time.Duration) {
	if m == nil {
		return
	}
	a := "false"
	if allowed {
		a = "true"
	}
	m.GateDecisions.WithLabelValues(reason, a).Inc()
	m.GateDuration.Observe(d.Seconds())
}

// ObserveMembership records the result of one membership check.
func (m *Metrics) ObserveMembership(result string) {
	if m == nil {
		return
	}
	m.MembershipChecks.WithLabelValues(result).Inc()
}

// ObserveBroadcast records one broadcast delivery.
func (m *Metrics) ObserveBroadcast(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.BroadcastSends.WithLabelValues("sent").Inc()
		return
	}
	m.BroadcastSends.WithLabelValues("failed").Inc()
}

// ObserveIngest records the outcome of ingesting one post.
func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.IngestedPosts.WithLabelValues(outcome).Inc()
}

// ObserveSearch records how a search was answered.
func (m *Metrics) ObserveSearch(match string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(match).Inc()
}
