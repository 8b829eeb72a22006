// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Direction label values for the byte counter.
const (
	DirectionDownstream = "downstream" // client to upstream server
	DirectionUpstream   = "upstream"   // upstream server to client
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	DialFailures      prometheus.Counter

	MessagesTotal    prometheus.Counter
	HeadersRewritten prometheus.Counter
	BytesForwarded   *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nntp_proxy_connections_total",
			Help: "Total accepted client connections.",
		}),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nntp_proxy_connections_active",
			Help: "Client connections currently being relayed.",
		}),

		DialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nntp_proxy_upstream_dial_failures_total",
			Help: "Upstream dials that failed, dropping the client connection.",
		}),

		MessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nntp_proxy_messages_total",
			Help: "POST messages relayed through to their terminator line.",
		}),

		HeadersRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nntp_proxy_headers_rewritten_total",
			Help: "Content-Type header lines rewritten inside POST messages.",
		}),

		BytesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nntp_proxy_bytes_forwarded_total",
			Help: "Bytes forwarded by relay direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.DialFailures,
		m.MessagesTotal,
		m.HeadersRewritten,
		m.BytesForwarded,
	)

	return m
}
