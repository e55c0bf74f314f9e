package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iago/food-search-pipeline/internal/domain"
)

const namespace = "food_search"

// Pipeline holds the collectors shared by the front-end and the stage
// processes.
type Pipeline struct {
	gatherer prometheus.Gatherer

	deliveries      *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	published       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// New registers the pipeline collectors on reg. Collectors already present
// on reg are reused, so New may be called more than once per registry.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Pipeline {
	return &Pipeline{
		gatherer: gatherer,
		deliveries: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_deliveries_total",
				Help:      "Deliveries consumed by a stage, by terminal result.",
			},
			[]string{"stage", "result"},
		)),
		deliveryLatency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_delivery_duration_seconds",
				Help:      "Time from receiving a delivery to settling it.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		)),
		published: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "published_messages_total",
				Help:      "Publish attempts by route and result.",
			},
			[]string{"broker", "destination", "result"},
		)),
		httpRequests: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)),
		httpLatency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		)),
	}
}

// NewDefault registers on the process-wide Prometheus registry.
func NewDefault() *Pipeline {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}

func (p *Pipeline) ObserveDelivery(stage, result string, elapsed time.Duration) {
	p.deliveries.WithLabelValues(stage, result).Inc()
	p.deliveryLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (p *Pipeline) ObservePublish(route domain.Route, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.published.WithLabelValues(route.Broker, route.Destination, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Middleware records HTTP request duration and count, labelled with the chi
// route pattern.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := strconv.Itoa(ww.status)
		p.httpRequests.WithLabelValues(r.Method, path, status).Inc()
		p.httpLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
