package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	registry *prometheus.Registry

	// Decisions counts classifier outcomes by access mode, statement kind
	// and allow/deny.
	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "postgres_mcp",
		Name:      "decisions_total",
		Help:      "Classifier decisions by access mode, statement kind and outcome.",
	}, []string{"mode", "kind", "outcome"})

	// StatementSeconds measures end to end statement handling per serving
	// surface.
	StatementSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "postgres_mcp",
		Name:      "statement_seconds",
		Help:      "Statement handling latency by serving surface and outcome.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"surface", "outcome"})
)

// Init registers all collectors on a fresh registry. Without it the vectors
// above still record but are not exported anywhere.
func Init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(Decisions, StatementSeconds)
}

// ObserveStatement records one handled statement on a serving surface.
func ObserveStatement(surface, outcome string, start time.Time) {
	StatementSeconds.WithLabelValues(surface, outcome).Observe(time.Since(start).Seconds())
}

func router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve exposes /metrics and /healthz on addr. It blocks until the listener
// fails.
func Serve(addr string) error {
	if registry == nil {
		return errors.New("telemetry not initialized")
	}
	log.Info().Str("addr", addr).Msg("serving metrics")
	return http.ListenAndServe(addr, router())
}
