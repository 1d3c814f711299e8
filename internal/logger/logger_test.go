package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestWriter_DefaultsToStderr(t *testing.T) {
	cfg := Config{}
	if cfg.Writer() != os.Stderr {
		t.Fatalf("expected stderr writer when no file path is set")
	}
}

func TestWriter_FileDefaults(t *testing.T) {
	cfg := Config{File: FileConfig{Path: filepath.Join(t.TempDir(), "pw.log")}}
	l, ok := cfg.Writer().(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	_ = l.Close()
}

func TestWriter_FileOverrides(t *testing.T) {
	cfg := Config{File: FileConfig{Path: filepath.Join(t.TempDir(), "pw.log"), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}}
	l := cfg.Writer().(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
	_ = l.Close()
}

func TestNewSlogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw.log")
	cfg := Config{Slog: SlogConfig{Level: LevelInfo, Format: FormatText, Color: true}, File: FileConfig{Path: path}}
	log := cfg.NewSlogger()
	log.Info("device present", slog.String("address", "192.168.1.24"))
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "device present") || !strings.Contains(s, "address=192.168.1.24") {
		t.Fatalf("unexpected log content: %q", s)
	}
	if strings.Contains(s, "\033[") {
		t.Fatalf("file output must not contain ANSI codes: %q", s)
	}
}

func TestNewSloggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelDebug, Format: FormatJSON}}
	cfg.NewSloggerTo(&buf).Debug("tick", slog.Int("failures", 2))
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if m["msg"] != "tick" || m["failures"] != float64(2) {
		t.Fatalf("unexpected record: %v", m)
	}
	if _, ok := m["time"]; ok {
		t.Fatalf("time key should be dropped when timestamps are off")
	}
}

func TestNewSloggerTo_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelWarn}}
	log := cfg.NewSloggerTo(&buf)
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filter not applied: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	log := slog.New(h).With(slog.String("component", "watcher"))
	log.Error("stop failed")
	out := buf.String()
	if !strings.Contains(out, "\033[31mERROR\033[0m") {
		t.Fatalf("expected red ERROR prefix, got %q", out)
	}
	if !strings.Contains(out, "component=watcher") {
		t.Fatalf("attrs lost on derived handler: %q", out)
	}
	if strings.Contains(out, "time=") || strings.Contains(out, "level=") {
		t.Fatalf("time/level keys should be dropped: %q", out)
	}
}
