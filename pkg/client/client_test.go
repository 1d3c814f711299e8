package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StatusResponse{Device: "192.168.1.24", App: "Discord", Failures: 3, Threshold: 5, AppRunning: true})
	})
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"limit must be a positive integer"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([]HistoryEvent{{ID: "1", Type: "app_stop"}, {ID: "2", Type: "device_absent"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t)
	c, err := New(Config{BaseURL: srv.URL + "/api/", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Device != "192.168.1.24" || st.Failures != 3 || !st.AppRunning {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !c.IsReachable(context.Background()) {
		t.Fatalf("expected reachable")
	}
}

func TestHistory(t *testing.T) {
	srv := newTestServer(t)
	c, _ := New(Config{BaseURL: srv.URL + "/api"})
	evs, err := c.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(evs) != 2 || evs[0].Type != "app_stop" {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if _, err := c.History(context.Background(), 0); err == nil || !strings.Contains(err.Error(), "positive integer") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestUnreachable(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	if c.IsReachable(context.Background()) {
		t.Fatalf("expected unreachable")
	}
	if _, err := c.Status(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c, _ := New(Config{BaseURL: srv.URL})
	if _, err := c.Status(context.Background()); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected HTTP 404 error, got %v", err)
	}
}

func TestNew_BadCACert(t *testing.T) {
	if _, err := New(Config{CACert: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Fatalf("expected error for missing CA file")
	}
	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{CACert: bad}); err == nil {
		t.Fatalf("expected error for unparsable CA file")
	}
	if _, err := New(Config{Insecure: true}); err != nil {
		t.Fatalf("insecure config should not fail: %v", err)
	}
}
