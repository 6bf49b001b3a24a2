package server

import (
	"github.com/popsu/covidpass/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors updated by the server.
type Metrics struct {
	Verifications     *prometheus.CounterVec
	TrustListKeys     prometheus.Gauge
	TrustListFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidpass",
			Name:      "verifications_total",
			Help:      "Certificates checked, by outcome.",
		}, []string{"outcome"}),
		TrustListKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covidpass",
			Name:      "trustlist_keys",
			Help:      "Keys in the current trust list.",
		}),
		TrustListFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covidpass",
			Name:      "trustlist_load_failures_total",
			Help:      "Trust list reloads that failed.",
		}),
	}
	reg.MustRegister(m.Verifications, m.TrustListKeys, m.TrustListFailures)
	return m
}

func (m *Metrics) observe(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeOutcome(o verify.Outcome) {
	m.observe(o.String())
}
