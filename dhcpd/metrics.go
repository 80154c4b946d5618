package dhcpd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts events by kind.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics creates the event counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pe_dhcpd",
			Name:      "events_total",
			Help:      "Number of datagrams handled, by outcome.",
		}, []string{"event"}),
	}
	if err := reg.Register(m.events); err != nil {
		return nil, err
	}
	// Pre-create the series so that rate() works from the first event.
	for k := EventMalformed; k <= EventSendFailed; k++ {
		m.events.WithLabelValues(k.String())
	}
	return m, nil
}

// Observe counts e. It is an EventSink.
func (m *Metrics) Observe(e Event) {
	m.events.WithLabelValues(e.Kind.String()).Inc()
}

// MetricsHandler serves the metrics gathered by g in the Prometheus
// exposition format.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
