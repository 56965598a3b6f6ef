// Package metrics exposes controller counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"stripctl/internal/logger"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	Registry       *prometheus.Registry
	Commands       *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	Renders        prometheus.Counter
	StatePublishes prometheus.Counter
	MQTTConnected  prometheus.Gauge
	QueueDropped   prometheus.Counter
}

// New конструктор.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stripctl_commands_total",
			Help: "Commands applied to the strip, by source.",
		}, []string{"source"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stripctl_frames_dropped_total",
			Help: "Inbound messages dropped, by reason.",
		}, []string{"reason"}),
		Renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stripctl_renders_total",
			Help: "Frames handed to the strip driver.",
		}),
		StatePublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stripctl_state_publishes_total",
			Help: "Home Assistant state messages published.",
		}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stripctl_mqtt_connected",
			Help: "1 while the MQTT session is connected.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stripctl_mqtt_queue_dropped_total",
			Help: "MQTT messages dropped because the inbound queue was full.",
		}),
	}
	m.Registry.MustRegister(m.Commands, m.Dropped, m.Renders, m.StatePublishes, m.MQTTConnected, m.QueueDropped)
	return m
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, log logger.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.With(logger.Fields{"module": "metrics"}).Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
