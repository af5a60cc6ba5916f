package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taja_http_request_duration_seconds",
		Help:    "Latency of API requests by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	shopEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taja_shop_events_total",
		Help: "Shop changes recorded in the activity log, by action.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(requestDuration, shopEvents)
}

// Instrument records the latency of every request under its route pattern,
// so /api/shops/42/ and /api/shops/43/ share one series.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// ShopEvent counts one activity log entry of the given action type.
func ShopEvent(action string) {
	shopEvents.WithLabelValues(action).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
