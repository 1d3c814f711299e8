// Package process detects, stops and starts the managed application.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// App describes how to launch the managed application and how it shows up
// in the process table.
type App struct {
	Path    string
	Name    string // process name to match; base name of Path when empty
	Args    []string
	WorkDir string
	Env     []string // extra K=V pairs merged over the OS environment
}

// Controller isolates the platform process APIs.
type Controller interface {
	// IsRunning reports whether a process named name exists.
	IsRunning(ctx context.Context, name string) (bool, error)
	// Stop kills every process named name and returns how many were
	// signalled. No match is not an error. It does not wait for exit.
	Stop(ctx context.Context, name string) (int, error)
	// Start launches app detached and returns its PID without waiting.
	Start(ctx context.Context, app App) (int, error)
}

type entry struct {
	PID  int32
	Name string
}

// table is the OS process table.
type table interface {
	list(ctx context.Context) ([]entry, error)
	kill(ctx context.Context, pid int32) error
}

// OSController implements Controller on top of gopsutil.
type OSController struct {
	tbl    table
	logger *slog.Logger
}

// NewOSController returns a controller for the local process table.
func NewOSController(logger *slog.Logger) *OSController {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSController{tbl: gopsTable{}, logger: logger}
}

func (c *OSController) IsRunning(ctx context.Context, name string) (bool, error) {
	procs, err := c.tbl.list(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		if sameName(p.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (c *OSController) Stop(ctx context.Context, name string) (int, error) {
	procs, err := c.tbl.list(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	killed := 0
	var errs []error
	for _, p := range procs {
		if !sameName(p.Name, name) {
			continue
		}
		if err := c.tbl.kill(ctx, p.PID); err != nil {
			if isGone(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("kill %s (pid %d): %w", name, p.PID, err))
			continue
		}
		c.logger.Debug("process killed", slog.String("name", name), slog.Int("pid", int(p.PID)))
		killed++
	}
	return killed, errors.Join(errs...)
}

// isGone reports errors meaning the process already exited.
func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, gopsproc.ErrorProcessNotRunning) ||
		errors.Is(err, syscall.ESRCH)
}

type gopsTable struct{}

func (gopsTable) list(ctx context.Context) ([]entry, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(procs))
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// exited or not readable; neither can be ours to manage
			continue
		}
		out = append(out, entry{PID: p.Pid, Name: n})
	}
	return out, nil
}

func (gopsTable) kill(ctx context.Context, pid int32) error {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}
