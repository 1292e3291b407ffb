// Package observability exposes Prometheus metrics for migration runs.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Records       *prometheus.CounterVec
	Pages         *prometheus.CounterVec
	Images        *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrator_records_total",
				Help: "Records processed, by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		Pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrator_pages_total",
				Help: "Page fetches, by job and status",
			},
			[]string{"job", "status"},
		),
		Images: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrator_images_total",
				Help: "Image sideload attempts, by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "migrator_fetch_duration_seconds",
				Help:    "Duration of page fetches from the legacy API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}
	m.registry.MustRegister(m.Records, m.Pages, m.Images, m.FetchDuration)
	return m
}

func (m *Metrics) Record(job, outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) Page(job, status string) {
	if m == nil {
		return
	}
	m.Pages.WithLabelValues(job, status).Inc()
}

func (m *Metrics) Image(outcome string) {
	if m == nil {
		return
	}
	m.Images.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFetch(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(job).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
