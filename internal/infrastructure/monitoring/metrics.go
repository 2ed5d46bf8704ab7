// Package monitoring exposes Prometheus metrics for the navigation engine.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// NavigationsTotal counts finished navigations by outcome:
	// "applied", "error", "superseded", "fallback".
	NavigationsTotal *prometheus.CounterVec

	// Timeouts counts fired request timers.
	Timeouts prometheus.Counter

	// FullLoads counts degradations to a full page load.
	FullLoads prometheus.Counter

	// HistoryWrites counts history mutations by kind: "push", "replace".
	HistoryWrites *prometheus.CounterVec
}

// New creates metrics registered on reg. A nil registry leaves the
// collectors unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NavigationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "partialnav_navigations_total",
			Help: "Finished navigations by outcome",
		}, []string{"outcome"}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partialnav_timeouts_total",
			Help: "Request timers fired",
		}),
		FullLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partialnav_full_loads_total",
			Help: "Degradations to a full page load",
		}),
		HistoryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "partialnav_history_writes_total",
			Help: "History mutations by kind",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.NavigationsTotal, m.Timeouts, m.FullLoads, m.HistoryWrites)
	}
	return m
}

// Outcome labels for NavigationsTotal.
const (
	OutcomeApplied    = "applied"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
	OutcomeFallback   = "fallback"
)

// ServerMetrics holds the demo server's collectors.
type ServerMetrics struct {
	// Requests counts handled requests by route, status, and whether the
	// request asked for a partial response.
	Requests *prometheus.CounterVec
}

// NewServer creates server metrics registered on reg.
func NewServer(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "partialnav_server_requests_total",
			Help: "Handled requests by route, status, and response kind",
		}, []string{"route", "status", "partial"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests)
	}
	return m
}
