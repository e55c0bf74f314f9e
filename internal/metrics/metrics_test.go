package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/food-search-pipeline/internal/domain"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

func TestObserveDelivery(t *testing.T) {
	p := newPipeline(t)

	p.ObserveDelivery("resolver", "acked", 10*time.Millisecond)
	p.ObserveDelivery("resolver", "acked", 20*time.Millisecond)
	p.ObserveDelivery("resolver", "nacked", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.deliveries.WithLabelValues("resolver", "acked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.deliveries.WithLabelValues("resolver", "nacked")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.deliveryLatency))
}

func TestObservePublish(t *testing.T) {
	p := newPipeline(t)
	route := domain.Route{Broker: "RedisBroker", Destination: "SearchRequest"}

	p.ObservePublish(route, nil)
	p.ObservePublish(route, errors.New("closed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.published.WithLabelValues("RedisBroker", "SearchRequest", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.published.WithLabelValues("RedisBroker", "SearchRequest", "error")))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg, reg)
	second := New(reg, reg)

	first.ObserveDelivery("recorder", "acked", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(second.deliveries.WithLabelValues("recorder", "acked")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	p := newPipeline(t)
	r := chi.NewRouter()
	r.Use(p.Middleware)
	r.Get("/api/v1/food/search/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/food/search/abc", http.NoBody))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/api/v1/food/search/{id}", "404")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	p := newPipeline(t)
	p.ObserveDelivery("materializer", "acked", time.Millisecond)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "food_search_stage_deliveries_total"))
}
