package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Start spawns app detached from this process with stdio on the null device.
// The child is reaped in the background; readiness is not checked.
func (c *OSController) Start(ctx context.Context, app App) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if app.Path == "" {
		return 0, fmt.Errorf("start: empty path")
	}
	// Not CommandContext: the child must outlive the caller's context.
	// #nosec G204
	cmd := exec.Command(app.Path, app.Args...)
	cmd.Dir = app.WorkDir
	cmd.Env = mergeEnv(os.Environ(), app.Env)
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer func() { _ = null.Close() }()
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", app.Path, err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	c.logger.Debug("process spawned", slog.String("path", app.Path), slog.Int("pid", pid))
	return pid, nil
}

// mergeEnv applies extra K=V pairs over base. ${VAR} references in extra
// values are expanded against the pairs merged so far, so
// PATH=/opt/bin:${PATH} extends the inherited PATH. Output is sorted.
func mergeEnv(base, extra []string) []string {
	m := make(map[string]string, len(base)+len(extra))
	put := func(kv string, exp bool) {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return
		}
		v := kv[i+1:]
		if exp {
			v = expand(v, m)
		}
		m[kv[:i]] = v
	}
	for _, kv := range base {
		put(kv, false)
	}
	for _, kv := range extra {
		put(kv, true)
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		if v, ok := m[s[i+2:i+j]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}
