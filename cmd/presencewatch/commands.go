package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/presencewatch/internal/config"
	"github.com/loykin/presencewatch/internal/history"
	"github.com/loykin/presencewatch/internal/history/factory"
	"github.com/loykin/presencewatch/internal/metrics"
	"github.com/loykin/presencewatch/internal/probe"
	"github.com/loykin/presencewatch/internal/process"
	"github.com/loykin/presencewatch/internal/server"
	"github.com/loykin/presencewatch/internal/watcher"
	"github.com/loykin/presencewatch/pkg/client"
)

const shutdownTimeout = 5 * time.Second

// runWatch wires config, logging, metrics, history and the status server
// around the watcher and blocks until a signal arrives or an action fails.
func runWatch(ctx context.Context, f RunFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log := cfg.Log.NewSlogger()
	slog.SetDefault(log)

	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() {
			if err := removePidFile(f.PidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("failed to remove PID file", slog.String("path", f.PidFile), slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if cfg.Metrics.Listen != "" {
			msrv, err := metrics.Serve(cfg.Metrics.Listen)
			if err != nil {
				return fmt.Errorf("metrics listener: %w", err)
			}
			log.Info("metrics listening", slog.String("addr", msrv.Addr))
			defer shutdown(msrv)
		}
	}

	opts := []watcher.Option{watcher.WithLogger(log)}
	var reader history.Reader
	if cfg.History.Enabled && len(cfg.History.Sinks) > 0 {
		fan, err := factory.NewFanout(cfg.History.Sinks)
		if err != nil {
			return err
		}
		defer func() {
			if err := fan.Close(); err != nil {
				log.Warn("closing history sinks", slog.Any("error", err))
			}
		}()
		opts = append(opts, watcher.WithHistory(fan))
		reader = firstReader(fan)
	}

	prober := probe.NewARPProber(cfg.Device.Interface, cfg.Watch.Timeout)
	w := watcher.New(watcher.SettingsFrom(cfg), prober, process.NewOSController(log), opts...)

	if cfg.Server.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		srv, err := server.NewServer(cfg.Server.Listen, server.NewRouter(w, reader, cfg.Server.BasePath, cfg.Metrics.Enabled))
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		log.Info("status server listening", slog.String("addr", srv.Addr), slog.String("base", cfg.Server.BasePath))
		defer shutdown(srv)
	}

	return w.Run(ctx)
}

// shutdown stops srv, waiting up to shutdownTimeout for open requests.
func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// firstReader returns the first sink that can read back its events.
func firstReader(sinks history.Fanout) history.Reader {
	for _, s := range sinks {
		if r, ok := s.(history.Reader); ok {
			return r
		}
	}
	return nil
}

func runProbe(ctx context.Context, out io.Writer, ip string, f ProbeFlags) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", ip, err)
	}
	p := probe.NewARPProber(f.Interface, f.Timeout)
	res, err := p.Probe(ctx, addr)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, res)
	return nil
}

func runCheck(ctx context.Context, out io.Writer, name string) error {
	running, err := process.NewOSController(nil).IsRunning(ctx, name)
	if err != nil {
		return err
	}
	state := "not running"
	if running {
		state = "running"
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", name, state)
	return nil
}

// statusView is what status prints.
type statusView struct {
	Status  client.StatusResponse `json:"status" yaml:"status"`
	History []client.HistoryEvent `json:"history,omitempty" yaml:"history,omitempty"`
}

func runStatus(ctx context.Context, out io.Writer, f StatusFlags) error {
	if err := checkFormat(f.Output); err != nil {
		return err
	}
	c, err := client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		CACert:   f.CACert,
		Insecure: f.Insecure,
	})
	if err != nil {
		return err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("query %s: %w", f.APIUrl, err)
	}
	view := statusView{Status: st}
	if f.History > 0 {
		if view.History, err = c.History(ctx, f.History); err != nil {
			return fmt.Errorf("query history: %w", err)
		}
	}
	return writeOutput(out, f.Output, view)
}
