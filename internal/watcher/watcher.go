// Package watcher ties presence probes to the lifecycle of the managed app.
//
// Each tick probes the device once. Consecutive absences are counted; when
// the count reaches the threshold the app is stopped and the count resets.
// A present device resets the count and starts the app if it is not running.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loykin/presencewatch/internal/config"
	"github.com/loykin/presencewatch/internal/history"
	"github.com/loykin/presencewatch/internal/metrics"
	"github.com/loykin/presencewatch/internal/probe"
	"github.com/loykin/presencewatch/internal/process"
)

// ErrAction wraps failures of the process controller. They end Run.
var ErrAction = errors.New("process action failed")

const historyTimeout = 2 * time.Second

// Settings are the loop parameters. Use SettingsFrom to derive them from a
// loaded config.
type Settings struct {
	Device           netip.Addr
	App              process.App
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
	CountProbeErrors bool
	ProbeOnStart     bool
}

// SettingsFrom maps a validated config onto loop settings.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Device: cfg.Addr(),
		App: process.App{
			Path:    cfg.App.Path,
			Name:    cfg.App.ProcessName,
			Args:    cfg.App.Args,
			WorkDir: cfg.App.WorkDir,
			Env:     cfg.App.Env,
		},
		Interval:         cfg.Watch.Interval,
		Timeout:          cfg.Watch.Timeout,
		FailureThreshold: cfg.Watch.FailureThreshold,
		CountProbeErrors: cfg.Watch.CountProbeErrors,
		ProbeOnStart:     cfg.Watch.ProbeOnStart,
	}
}

// Action is what a tick asked the controller to do.
type Action int

const (
	ActionNone Action = iota
	ActionStarted
	ActionStopped
)

func (a Action) String() string {
	switch a {
	case ActionStarted:
		return "started"
	case ActionStopped:
		return "stopped"
	default:
		return "none"
	}
}

// Outcome describes one tick.
type Outcome struct {
	Result   probe.Result
	ProbeErr error // non-nil when the device could not be probed
	Failures int   // counter after the tick
	Action   Action
	PID      int // set when Action == ActionStarted
	Killed   int // set when Action == ActionStopped
}

// State is a point-in-time copy of the watcher state.
type State struct {
	Device      string    `json:"device"`
	App         string    `json:"app"`
	Prober      string    `json:"prober"`
	Threshold   int       `json:"threshold"`
	Failures    int       `json:"failures"`
	LastResult  string    `json:"last_result,omitempty"`
	LastProbeAt time.Time `json:"last_probe_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	AppRunning  bool      `json:"app_running"`
	Probes      uint64    `json:"probes"`
	Trips       uint64    `json:"trips"`
	Starts      uint64    `json:"starts"`
	Stops       uint64    `json:"stops"`
}

// Watcher is the presence polling loop.
type Watcher struct {
	s      Settings
	prober probe.Prober
	ctrl   process.Controller
	clock  clockwork.Clock
	logger *slog.Logger
	sink   history.Sink

	tickMu sync.Mutex // serializes Tick

	mu    sync.Mutex
	state State
	seen  bool // a result has been recorded
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option { return func(w *Watcher) { w.clock = c } }

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

// WithHistory records presence edges and app actions to sink.
func WithHistory(sink history.Sink) Option { return func(w *Watcher) { w.sink = sink } }

// New builds a watcher. Settings must already be valid.
func New(s Settings, p probe.Prober, c process.Controller, opts ...Option) *Watcher {
	w := &Watcher{s: s, prober: p, ctrl: c}
	for _, o := range opts {
		o(w)
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With(slog.String("device", s.Device.String()), slog.String("app", s.App.Name))
	w.state = State{
		Device:    s.Device.String(),
		App:       s.App.Name,
		Prober:    p.Describe(),
		Threshold: s.FailureThreshold,
	}
	return w
}

// Snapshot returns a copy of the current state.
func (w *Watcher) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run ticks every interval until ctx is cancelled, which returns nil.
// A controller failure stops the loop and is returned.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.s.Interval)
	defer ticker.Stop()

	w.logger.Info("watching",
		slog.Duration("interval", w.s.Interval),
		slog.Int("threshold", w.s.FailureThreshold),
		slog.String("prober", w.prober.Describe()))

	if w.s.ProbeOnStart {
		if err := w.step(ctx); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case <-ticker.Chan():
			if err := w.step(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) step(ctx context.Context) error {
	if _, err := w.Tick(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// Tick runs one probe and applies the transition.
func (w *Watcher) Tick(ctx context.Context) (Outcome, error) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	res, perr := w.probe(ctx)
	if perr != nil && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	counted := perr == nil || w.s.CountProbeErrors

	w.mu.Lock()
	prev, seen := w.state.LastResult, w.seen
	w.state.Probes++
	w.state.LastProbeAt = w.clock.Now()
	w.state.LastError = ""
	if perr != nil {
		w.state.LastError = perr.Error()
	}
	if counted {
		w.seen = true
		w.state.LastResult = res.String()
	}
	failures := w.state.Failures
	w.mu.Unlock()

	out := Outcome{Result: res, ProbeErr: perr}

	if perr != nil {
		metrics.IncProbeError()
		w.logger.Warn("probe error", slog.Any("error", perr))
		w.record(ctx, history.EventProbeError, failures, perr.Error())
		if !counted {
			out.Failures = failures
			return out, nil
		}
	}

	if !seen || prev != res.String() {
		t, n := history.EventDeviceAbsent, failures+1
		if res == probe.Present {
			t, n = history.EventDevicePresent, 0
		}
		w.record(ctx, t, n, "")
	}
	metrics.SetDevicePresent(res == probe.Present)

	var err error
	if res == probe.Present {
		out, err = w.onPresent(ctx, out)
	} else {
		out, err = w.onAbsent(ctx, out, failures+1)
	}
	metrics.SetFailures(out.Failures)
	return out, err
}

func (w *Watcher) probe(ctx context.Context) (probe.Result, error) {
	pctx := ctx
	if w.s.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, w.s.Timeout)
		defer cancel()
	}
	began := time.Now()
	res, err := w.prober.Probe(pctx, w.s.Device)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// our own timeout ran out: the device did not answer in time
		res, err = probe.Absent, nil
	}
	label := res.String()
	if err != nil {
		label = "error"
		res = probe.Absent
	}
	metrics.ObserveProbe(label, time.Since(began).Seconds())
	return res, err
}

func (w *Watcher) onAbsent(ctx context.Context, out Outcome, failures int) (Outcome, error) {
	w.logger.Debug("device absent", slog.Int("failures", failures))

	if failures < w.s.FailureThreshold {
		w.setFailures(failures)
		out.Failures = failures
		return out, nil
	}

	w.mu.Lock()
	w.state.Failures = 0
	w.state.Trips++
	w.mu.Unlock()
	metrics.IncTrip()
	out.Failures = 0

	n, err := w.ctrl.Stop(ctx, w.s.App.Name)
	if err != nil {
		w.logger.Error("stop app failed", slog.Any("error", err))
		return out, fmt.Errorf("%w: stop %s: %w", ErrAction, w.s.App.Name, err)
	}
	out.Action, out.Killed = ActionStopped, n

	w.mu.Lock()
	w.state.Stops++
	w.state.AppRunning = false
	w.mu.Unlock()
	metrics.IncStop()
	metrics.SetAppRunning(false)

	w.logger.Info("device gone, app stopped", slog.Int("threshold", w.s.FailureThreshold), slog.Int("killed", n))
	w.record(ctx, history.EventAppStop, failures, fmt.Sprintf("killed %d", n))
	return out, nil
}

func (w *Watcher) onPresent(ctx context.Context, out Outcome) (Outcome, error) {
	w.setFailures(0)
	out.Failures = 0

	running, err := w.ctrl.IsRunning(ctx, w.s.App.Name)
	if err != nil {
		w.logger.Error("process lookup failed", slog.Any("error", err))
		return out, fmt.Errorf("%w: lookup %s: %w", ErrAction, w.s.App.Name, err)
	}
	if running {
		w.setRunning(true)
		return out, nil
	}

	pid, err := w.ctrl.Start(ctx, w.s.App)
	if err != nil {
		w.logger.Error("start app failed", slog.Any("error", err))
		return out, fmt.Errorf("%w: start %s: %w", ErrAction, w.s.App.Path, err)
	}
	out.Action, out.PID = ActionStarted, pid

	w.mu.Lock()
	w.state.Starts++
	w.mu.Unlock()
	w.setRunning(true)
	metrics.IncStart()

	w.logger.Info("device present, app started", slog.Int("pid", pid))
	w.record(ctx, history.EventAppStart, 0, fmt.Sprintf("pid %d", pid))
	return out, nil
}

func (w *Watcher) setFailures(n int) {
	w.mu.Lock()
	w.state.Failures = n
	w.mu.Unlock()
}

func (w *Watcher) setRunning(b bool) {
	w.mu.Lock()
	w.state.AppRunning = b
	w.mu.Unlock()
	metrics.SetAppRunning(b)
}

// record sends a history event. Failures are logged only.
func (w *Watcher) record(ctx context.Context, t history.EventType, failures int, detail string) {
	if w.sink == nil {
		return
	}
	e := history.NewEvent(t, w.clock.Now(), w.s.Device.String(), w.s.App.Name)
	e.Failures = failures
	e.Detail = detail
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := w.sink.Send(hctx, e); err != nil {
		w.logger.Warn("history send failed", slog.String("event", string(t)), slog.Any("error", err))
	}
}
