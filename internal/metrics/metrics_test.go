package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSettlement(t *testing.T) {
	m := New()
	m.ObserveSettlement("jackpot-lottery", StatusSubmitted, 20*time.Millisecond)
	m.ObserveSettlement("jackpot-lottery", StatusSubmitted, 30*time.Millisecond)
	m.ObserveSettlement("up-or-down", StatusFailed, time.Millisecond)
	m.AddEntries("jackpot-lottery", 3)
	m.ObserveProbe("up-or-down", "absent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.settlements.WithLabelValues("jackpot-lottery", StatusSubmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("up-or-down", StatusFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.entries.WithLabelValues("jackpot-lottery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("up-or-down", "absent")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSettlement("g", StatusFailed, time.Second)
	m.AddEntries("g", 1)
	m.ObserveProbe("g", "match")
}

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/games/{game}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games/up-or-down", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/games/{game}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "round_settler_http_requests_total"))
}
