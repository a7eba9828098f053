// Package metrics holds the Prometheus collectors for the service. A single
// Metrics value satisfies the metric hooks of the checkout coordinator, the
// live registry, the outbox relay and the HTTP middleware.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grocery"

type Metrics struct {
	registry *prometheus.Registry

	checkouts       *prometheus.CounterVec
	checkoutLatency *prometheus.HistogramVec
	compensations   *prometheus.CounterVec
	dispatchFailed  *prometheus.CounterVec

	liveOpen      prometheus.Gauge
	liveClosed    *prometheus.CounterVec
	livePushed    *prometheus.CounterVec
	relayed       *prometheus.CounterVec
	relayFailures *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		checkoutLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Checkout latency by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_compensations_total",
			Help:      "Stock compensation runs by result.",
		}, []string{"result"}),
		dispatchFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_dispatch_failures_total",
			Help:      "Events that could not be handed to the dispatcher.",
		}, []string{"source"}),
		liveOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_channels_open",
			Help:      "Open live subscription channels.",
		}),
		liveClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_channels_closed_total",
			Help:      "Closed live channels by reason.",
		}, []string{"reason"}),
		livePushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_messages_delivered_total",
			Help:      "Live messages delivered to channels by topic.",
		}, []string{"topic"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox records written to the broker by topic.",
		}, []string{"topic"}),
		relayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relay_failures_total",
			Help:      "Failed broker writes by topic.",
		}, []string{"topic"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.checkouts, m.checkoutLatency, m.compensations, m.dispatchFailed,
		m.liveOpen, m.liveClosed, m.livePushed,
		m.relayed, m.relayFailures,
		m.httpRequests, m.httpLatency,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveCheckout(result string, elapsed time.Duration) {
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCompensation(result string) {
	m.compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDispatchFailure(source string) {
	m.dispatchFailed.WithLabelValues(source).Inc()
}

func (m *Metrics) SetOpenChannels(n int) {
	m.liveOpen.Set(float64(n))
}

func (m *Metrics) ObserveChannelClosed(reason string) {
	m.liveClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePushed(topic string, delivered int) {
	if delivered <= 0 {
		return
	}
	m.livePushed.WithLabelValues(topicFamily(topic)).Add(float64(delivered))
}

func (m *Metrics) ObserveRelayed(topic string, n int) {
	m.relayed.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) ObserveRelayFailure(topic string) {
	m.relayFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// topicFamily keeps label cardinality bounded: "order:42" becomes "order".
func topicFamily(topic string) string {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ':' {
			if topic[:i] == "admin" {
				return topic
			}
			return topic[:i]
		}
	}
	return topic
}
