package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersNoopBeforeRegister(t *testing.T) {
	regOK.Store(false)
	before := testutil.ToFloat64(appStarts)
	IncStart()
	if testutil.ToFloat64(appStarts) != before {
		t.Fatalf("helpers must not record before Register")
	}
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	ObserveProbe("present", 0.01)
	ObserveProbe("absent", 3)
	IncProbeError()
	SetFailures(2)
	SetDevicePresent(true)
	IncTrip()
	IncStart()
	IncStop()
	SetAppRunning(true)

	if got := testutil.ToFloat64(consecutiveFailures); got != 2 {
		t.Fatalf("consecutive_failures=%v", got)
	}
	if got := testutil.ToFloat64(devicePresent); got != 1 {
		t.Fatalf("device_present=%v", got)
	}
	if got := testutil.ToFloat64(probes.WithLabelValues("absent")); got < 1 {
		t.Fatalf("probe_total{absent}=%v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"presencewatch_probe_total":            false,
		"presencewatch_probe_errors_total":     false,
		"presencewatch_probe_duration_seconds": false,
		"presencewatch_consecutive_failures":   false,
		"presencewatch_device_present":         false,
		"presencewatch_threshold_trips_total":  false,
		"presencewatch_app_starts_total":       false,
		"presencewatch_app_stops_total":        false,
		"presencewatch_app_running":            false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncTrip()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "presencewatch_threshold_trips_total") {
		t.Fatalf("metrics output missing trips counter")
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := Serve("127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if resp, err := http.Get("http://" + srv.Addr + "/metrics"); err == nil {
		_ = resp.Body.Close()
		t.Fatalf("listener still serving after shutdown")
	}

	if _, err := Serve("127.0.0.1:-1"); err == nil {
		t.Fatalf("expected bind error")
	}
}
