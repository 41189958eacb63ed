// Package metrics exposes Prometheus counters for webhook ingestion and the
// retry worker, plus a small /metrics + /healthz server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	EventsProcessed *prometheus.CounterVec
	WorkerBatches   prometheus.Counter
	WorkerEvents    *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_processed_total",
			Help: "Webhook events processed, by final outcome.",
		}, []string{"outcome"}),
		WorkerBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retry_worker_batches_total",
			Help: "Retry worker batches executed.",
		}),
		WorkerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retry_worker_events_total",
			Help: "Ledger entries redrained by the retry worker, by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(c.EventsProcessed, c.WorkerBatches, c.WorkerEvents)
	return c
}

// ObserveEvent records the final outcome of one webhook event.
func (c *Collector) ObserveEvent(outcome string) {
	c.EventsProcessed.WithLabelValues(outcome).Inc()
}

type HealthFunc func(ctx context.Context) error

// StartServer runs a lightweight HTTP server serving /metrics and /healthz in
// its own goroutine and returns it for shutdown.
func (c *Collector) StartServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
