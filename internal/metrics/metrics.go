package metrics

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "presencewatch"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "total",
			Help:      "Number of presence probes by result.",
		}, []string{"result"},
	)
	probeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "errors_total",
			Help:      "Number of probes that could not be performed.",
		},
	)
	probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Probe latency, bounded by the configured timeout.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2, 3, 5},
		},
	)
	consecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Current consecutive failed probes.",
		},
	)
	devicePresent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_present",
			Help:      "1 when the last probe found the device.",
		},
	)
	thresholdTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_trips_total",
			Help:      "Times the failure threshold was reached.",
		},
	)
	appStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "starts_total",
			Help:      "Number of managed application launches.",
		},
	)
	appStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "stops_total",
			Help:      "Number of stop actions issued for the managed application.",
		},
	)
	appRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "running",
			Help:      "1 when the managed application was last seen running.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{probes, probeErrors, probeDuration, consecutiveFailures, devicePresent, thresholdTrips, appStarts, appStops, appRunning}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve binds addr and serves /metrics in the background. Bind errors are
// returned; later serve errors are logged. Stop it with Shutdown.
func Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener stopped", slog.String("addr", srv.Addr), slog.Any("error", err))
		}
	}()
	return srv, nil
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveProbe(result string, seconds float64) {
	if regOK.Load() {
		probes.WithLabelValues(result).Inc()
		probeDuration.Observe(seconds)
	}
}

func IncProbeError() {
	if regOK.Load() {
		probeErrors.Inc()
	}
}

func SetFailures(n int) {
	if regOK.Load() {
		consecutiveFailures.Set(float64(n))
	}
}

func SetDevicePresent(present bool) {
	if regOK.Load() {
		devicePresent.Set(boolValue(present))
	}
}

func IncTrip() {
	if regOK.Load() {
		thresholdTrips.Inc()
	}
}

func IncStart() {
	if regOK.Load() {
		appStarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		appStops.Inc()
	}
}

func SetAppRunning(running bool) {
	if regOK.Load() {
		appRunning.Set(boolValue(running))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
