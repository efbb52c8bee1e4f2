package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderfeed"

// Prom exports metrics through its own registry so several instances
// (tests, multiple servers) never collide.
type Prom struct {
	registry *prometheus.Registry

	ingestTotal   *prometheus.CounterVec
	cacheDuration prometheus.Histogram
	httpDuration  *prometheus.HistogramVec
	kafkaDuration *prometheus.HistogramVec
	fanoutTotal   *prometheus.CounterVec
	connections   *prometheus.GaugeVec
	retryQueue    *prometheus.CounterVec
}

func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_total",
				Help:      "Ingested orders by outcome.",
			},
			[]string{"outcome"},
		),
		cacheDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_put_duration_seconds",
				Help:      "Order cache write latency.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route and status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		kafkaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "kafka_message_duration_seconds",
				Help:      "Kafka message handling latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"ok"},
		),
		fanoutTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fanout_sends_total",
				Help:      "Event sends to push connections by result.",
			},
			[]string{"result"},
		),
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_connections",
				Help:      "Open push connections per shop.",
			},
			[]string{"shop"},
		),
		retryQueue: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_queue_total",
				Help:      "Retry queue transitions by outcome.",
			},
			[]string{"outcome"},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.ingestTotal,
		p.cacheDuration,
		p.httpDuration,
		p.kafkaDuration,
		p.fanoutTotal,
		p.connections,
		p.retryQueue,
	)
	return p
}

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prom) ObserveIngest(outcome string, cacheMs float64) {
	p.ingestTotal.WithLabelValues(outcome).Inc()
	if cacheMs > 0 {
		p.cacheDuration.Observe(cacheMs / 1000)
	}
}

func (p *Prom) ObserveHTTP(method, route string, status int, durMs float64) {
	p.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(durMs / 1000)
}

func (p *Prom) ObserveKafka(processMs float64, ok bool) {
	p.kafkaDuration.WithLabelValues(strconv.FormatBool(ok)).Observe(processMs / 1000)
}

func (p *Prom) ObserveFanout(delivered, evicted int) {
	p.fanoutTotal.WithLabelValues("delivered").Add(float64(delivered))
	p.fanoutTotal.WithLabelValues("evicted").Add(float64(evicted))
}

func (p *Prom) SetConnections(shopID string, n int) {
	p.connections.WithLabelValues(shopID).Set(float64(n))
}

func (p *Prom) ObserveRetryQueue(outcome string) {
	p.retryQueue.WithLabelValues(outcome).Inc()
}
