// Package metrics exposes Prometheus collectors for grading, review and HTTP.
// All Observe* methods are no-ops on a nil *Metrics so callers need no guards.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	GradeResults    *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Results         *prometheus.CounterVec
	GradebookSyncs  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		GradeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grading_results_total",
				Help: "Question grades produced, by question type and outcome",
			},
			[]string{"type", "outcome"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_transitions_total",
				Help: "Review workflow transitions applied",
			},
			[]string{"from", "to"},
		),
		Results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessment_results_total",
				Help: "Assessment results stored, by status",
			},
			[]string{"status"},
		),
		GradebookSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gradebook_syncs_total",
				Help: "Score passbacks to the external gradebook, by outcome",
			},
			[]string{"outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
	m.Registry.MustRegister(
		m.GradeResults,
		m.Transitions,
		m.Results,
		m.GradebookSyncs,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveGrade(qtype, outcome string) {
	if m == nil {
		return
	}
	m.GradeResults.WithLabelValues(qtype, outcome).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveResult(status string) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveGradebookSync(outcome string) {
	if m == nil {
		return
	}
	m.GradebookSyncs.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
