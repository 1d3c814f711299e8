package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// copySleep installs a copy of sleep under a unique short name so the test
// can find it in the process table without colliding with other processes.
func copySleep(t *testing.T) (string, string) {
	t.Helper()
	var src string
	for _, p := range []string{"/bin/sleep", "/usr/bin/sleep"} {
		if _, err := os.Stat(p); err == nil {
			src = p
			break
		}
	}
	if src == "" {
		t.Skip("sleep binary not found")
	}
	// multi-call binaries (busybox, coreutils) dispatch on argv[0]
	if real, err := filepath.EvalSymlinks(src); err != nil || filepath.Base(real) != "sleep" {
		t.Skip("sleep is not a standalone binary")
	}
	name := fmt.Sprintf("pwsleep%d", os.Getpid()%100000)
	dst := filepath.Join(t.TempDir(), name)
	in, err := os.Open(src)
	if err != nil {
		t.Fatalf("open %s: %v", src, err)
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY, 0o755)
	if err != nil {
		t.Fatalf("create %s: %v", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return dst, name
}

func waitRunning(t *testing.T, c *OSController, name string, want bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ok, err := c.IsRunning(context.Background(), name)
		if err != nil {
			t.Fatalf("IsRunning: %v", err)
		}
		if ok == want {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("process %s running=%v not observed", name, want)
}

func TestStartStop_RealProcess(t *testing.T) {
	requireUnix(t)
	path, name := copySleep(t)
	c := NewOSController(nil)
	ctx := context.Background()

	pid, err := c.Start(ctx, App{Path: path, Name: name, Args: []string{"30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("unexpected pid %d", pid)
	}
	waitRunning(t, c, name, true)

	n, err := c.Stop(ctx, name)
	if err != nil || n < 1 {
		t.Fatalf("stop: n=%d err=%v", n, err)
	}
	waitRunning(t, c, name, false)

	// second stop has nothing to do
	n, err = c.Stop(ctx, name)
	if err != nil || n != 0 {
		t.Fatalf("idempotent stop: n=%d err=%v", n, err)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	c := NewOSController(nil)
	if _, err := c.Start(context.Background(), App{Path: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected error for missing executable")
	}
	if _, err := c.Start(context.Background(), App{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewOSController(nil).Start(ctx, App{Path: "/bin/true"}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestIsRunning_RealTable(t *testing.T) {
	c := NewOSController(nil)
	ok, err := c.IsRunning(context.Background(), "___no_such_process___")
	if err != nil || ok {
		t.Fatalf("expected false,nil got %v %v", ok, err)
	}
}
