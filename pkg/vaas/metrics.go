package vaas

import "github.com/prometheus/client_golang/prometheus"

// metrics bundles the optional Prometheus collectors emitted by a
// Connection and its TokenProvider. A Connection built without a
// Registerer gets a metrics value whose collectors are never registered
// anywhere; the Inc()/Add() calls on them are still safe and still count,
// the values are just not exported. No operation updates inflightRequests,
// so that gauge always reads 0.
type metrics struct {
	requestsTotal    *prometheus.CounterVec
	inflightRequests prometheus.Gauge
	tokenRefreshes   prometheus.Counter
	uploadBytesTotal prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaas_requests_total",
			Help: "Total verdict requests issued, labeled by operation and outcome.",
		}, []string{"operation", "outcome"}),
		inflightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaas_inflight_requests",
			Help: "Verdict requests currently awaiting a response.",
		}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaas_token_refreshes_total",
			Help: "Total OAuth2 token-endpoint round-trips performed.",
		}),
		uploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaas_upload_bytes_total",
			Help: "Total bytes uploaded via the upload-on-unknown protocol.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.inflightRequests, m.tokenRefreshes, m.uploadBytesTotal)
	}
	return m
}

func (m *metrics) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
}
