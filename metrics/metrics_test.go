package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/shops/{id}/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/shops/1/", "/shops/2/"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	n := testutil.CollectAndCount(requestDuration, "taja_http_request_duration_seconds")
	assert.Equal(t, 1, n, "both requests share one series")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `route="/shops/{id}/"`))
	assert.True(t, strings.Contains(rec.Body.String(), `status="418"`))
}

func TestShopEvent(t *testing.T) {
	before := testutil.ToFloat64(shopEvents.WithLabelValues("CREATE"))
	ShopEvent("CREATE")
	assert.Equal(t, before+1, testutil.ToFloat64(shopEvents.WithLabelValues("CREATE")))
}
