package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkadit/payswitch/internal/transaction"
)

var _ transaction.Metrics = (*Metrics)(nil)

// Metrics records switch activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	transactions      *prometheus.CounterVec
	reversals         *prometheus.CounterVec
	responderDuration prometheus.Histogram
	activeConnections prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payswitch_transactions_total",
				Help: "Transactions that reached a final state",
			},
			[]string{"state"},
		),
		reversals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payswitch_reversals_total",
				Help: "Reversals sent to the issuer",
			},
			[]string{"reason"},
		),
		responderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payswitch_responder_duration_seconds",
				Help:    "Issuer round-trip time",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "payswitch_active_connections",
				Help: "Open terminal connections",
			},
		),
		connectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payswitch_connections_total",
				Help: "Accepted terminal connections",
			},
			[]string{"transport"},
		),
	}
}

func (m *Metrics) TransactionCompleted(state transaction.State) {
	m.transactions.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) ReversalSent(reason string) {
	m.reversals.WithLabelValues(reason).Inc()
}

func (m *Metrics) ResponderDuration(d time.Duration) {
	m.responderDuration.Observe(d.Seconds())
}

// ConnectionOpened counts an accepted connection on transport ("tcp" or "tls").
func (m *Metrics) ConnectionOpened(transport string) {
	m.connectionsTotal.WithLabelValues(transport).Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed(string) {
	m.activeConnections.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
