package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGrade("essay", "manual")
		m.ObserveTransition("draft", "submitted")
		m.ObserveResult("pending")
		m.ObserveGradebookSync("ok")
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveGrade("numeric", "correct")
	m.ObserveGrade("numeric", "correct")
	m.ObserveTransition("draft", "submitted")
	m.ObserveResult("passed")
	m.ObserveGradebookSync("failed")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, `grading_results_total{outcome="correct",type="numeric"} 2`)
	assert.Contains(t, body, `review_transitions_total{from="draft",to="submitted"} 1`)
	assert.Contains(t, body, `assessment_results_total{status="passed"} 1`)
	assert.Contains(t, body, `gradebook_syncs_total{outcome="failed"} 1`)
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/attempts/{attemptID}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	r.Handle("/metrics", m.Handler())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/attempts/abc", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `http_request_duration_seconds_count{method="GET",route="/attempts/{attemptID}",status="418"} 1`), body)
}
