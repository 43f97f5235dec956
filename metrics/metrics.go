// Package metrics exposes connection and packet counters over
// Prometheus, the observability layer the distilled core intentionally
// left out as an external collaborator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the process's Prometheus metrics against a private
// registry, so this package never touches the global default registry.
type Collector struct {
	reg *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	SegmentsTotal     *prometheus.CounterVec
	ParseErrors       prometheus.Counter
	RSTsSent          prometheus.Counter
}

// New builds a Collector with all metrics registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trust_connections_active",
			Help: "Number of TCBs currently tracked in the connection table.",
		}),
		SegmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trust_segments_total",
			Help: "Inbound segments handled by an existing connection, partitioned by flag set. Segments to an unknown flow (connection-opening SYNs, segments answered with a port-closed RST) and outbound segments (SYN-ACKs, writes, RSTs) are not counted here.",
		}, []string{"flags"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trust_parse_errors_total",
			Help: "IPv4/TCP frames dropped due to a header parse failure.",
		}),
		RSTsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trust_rst_sent_total",
			Help: "Port-closed RST segments emitted for non-SYN segments to an unknown flow. RSTs sent for an unacceptable ACK in SYN_RCVD are not counted.",
		}),
	}
	reg.MustRegister(c.ConnectionsActive, c.SegmentsTotal, c.ParseErrors, c.RSTsSent)
	return c
}

// Handler returns the http.Handler serving this collector's registry in
// the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
