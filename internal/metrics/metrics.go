// Package metrics exposes bridge counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Notifications prometheus.Counter
	Forwarded     prometheus.Counter
	Throttled     prometheus.Counter
	DecodeFaults  prometheus.Counter
	SendFailures  prometheus.Counter
	Reconnects    *prometheus.CounterVec
	HeartRate     prometheus.Gauge
	Battery       prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrbridge_notifications_total",
			Help: "Heart-rate notifications received from the peripheral.",
		}),
		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrbridge_forwarded_total",
			Help: "Samples sent to the OSC receiver.",
		}),
		Throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrbridge_throttled_total",
			Help: "Samples suppressed by the chatbox rate limit.",
		}),
		DecodeFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrbridge_decode_faults_total",
			Help: "Notifications discarded because they could not be decoded.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hrbridge_send_failures_total",
			Help: "Samples that could not be sent to the OSC receiver.",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrbridge_reconnects_total",
			Help: "Reconnects by cause.",
		}, []string{"reason"}),
		HeartRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hrbridge_heart_rate_bpm",
			Help: "Most recent heart rate.",
		}),
		Battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hrbridge_battery_percent",
			Help: "Battery level read at connect time; -1 when unknown.",
		}),
	}
	m.registry.MustRegister(
		m.Notifications,
		m.Forwarded,
		m.Throttled,
		m.DecodeFaults,
		m.SendFailures,
		m.Reconnects,
		m.HeartRate,
		m.Battery,
	)
	return m
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve runs the HTTP endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("[METRICS] listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
