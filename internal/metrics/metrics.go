// Package metrics собирает счётчики Prometheus сервера.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	documentsCreated    *prometheus.CounterVec
	eventsDelivered     *prometheus.CounterVec
	connections         prometheus.Gauge
	predictionsRejected *prometheus.CounterVec
	requests            *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liga",
			Name:      "documents_created_total",
			Help:      "Documents created, by collection.",
		}, []string{"collection"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liga",
			Name:      "realtime_events_delivered_total",
			Help:      "Change events written to websocket clients, by topic.",
		}, []string{"topic"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "liga",
			Name:      "realtime_connections",
			Help:      "Open websocket connections.",
		}),
		predictionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liga",
			Name:      "predictions_rejected_total",
			Help:      "Prediction submissions rejected, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liga",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documentsCreated,
		m.eventsDelivered,
		m.connections,
		m.predictionsRejected,
		m.requests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DocumentCreated(collection string) {
	m.documentsCreated.WithLabelValues(collection).Inc()
}

func (m *Metrics) Request(route, code string) {
	m.requests.WithLabelValues(route, code).Inc()
}

// realtime.Observer

func (m *Metrics) ClientConnected()            { m.connections.Inc() }
func (m *Metrics) ClientDisconnected()         { m.connections.Dec() }
func (m *Metrics) EventDelivered(topic string) { m.eventsDelivered.WithLabelValues(topic).Inc() }

// predictions.Recorder

func (m *Metrics) PredictionRejected(reason string) {
	m.predictionsRejected.WithLabelValues(reason).Inc()
}
