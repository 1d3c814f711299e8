package process

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
)

type fakeTable struct {
	procs   []entry
	listErr error
	killErr map[int32]error
	killed  []int32
}

func (f *fakeTable) list(context.Context) ([]entry, error) { return f.procs, f.listErr }

func (f *fakeTable) kill(_ context.Context, pid int32) error {
	if err := f.killErr[pid]; err != nil {
		return err
	}
	f.killed = append(f.killed, pid)
	return nil
}

func newFake(procs ...entry) (*OSController, *fakeTable) {
	tbl := &fakeTable{procs: procs, killErr: map[int32]error{}}
	return &OSController{tbl: tbl, logger: NewOSController(nil).logger}, tbl
}

func TestIsRunning(t *testing.T) {
	c, _ := newFake(entry{PID: 10, Name: "bash"}, entry{PID: 11, Name: "Discord"})
	ok, err := c.IsRunning(context.Background(), "Discord")
	if err != nil || !ok {
		t.Fatalf("expected running, got %v %v", ok, err)
	}
	ok, err = c.IsRunning(context.Background(), "slack")
	if err != nil || ok {
		t.Fatalf("expected not running, got %v %v", ok, err)
	}
}

func TestIsRunning_ListError(t *testing.T) {
	c, tbl := newFake()
	tbl.listErr = errors.New("boom")
	if _, err := c.IsRunning(context.Background(), "x"); err == nil {
		t.Fatalf("expected list error to surface")
	}
}

func TestStop_KillsAllMatches(t *testing.T) {
	c, tbl := newFake(
		entry{PID: 1, Name: "Discord"},
		entry{PID: 2, Name: "bash"},
		entry{PID: 3, Name: "Discord"},
	)
	n, err := c.Stop(context.Background(), "Discord")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 kills, got %d %v", n, err)
	}
	if len(tbl.killed) != 2 || tbl.killed[0] != 1 || tbl.killed[1] != 3 {
		t.Fatalf("unexpected kills: %v", tbl.killed)
	}
}

func TestStop_NoMatchIsNoop(t *testing.T) {
	c, tbl := newFake(entry{PID: 2, Name: "bash"})
	n, err := c.Stop(context.Background(), "Discord")
	if err != nil || n != 0 || len(tbl.killed) != 0 {
		t.Fatalf("expected no-op, got %d %v %v", n, err, tbl.killed)
	}
}

func TestStop_VanishedProcessIsNotAnError(t *testing.T) {
	c, tbl := newFake(entry{PID: 1, Name: "Discord"}, entry{PID: 2, Name: "Discord"})
	tbl.killErr[1] = os.ErrProcessDone
	tbl.killErr[2] = syscall.ESRCH
	n, err := c.Stop(context.Background(), "Discord")
	if err != nil || n != 0 {
		t.Fatalf("vanished processes should be ignored, got %d %v", n, err)
	}
}

func TestStop_KillErrorSurfaces(t *testing.T) {
	c, tbl := newFake(entry{PID: 1, Name: "Discord"}, entry{PID: 2, Name: "Discord"})
	tbl.killErr[1] = syscall.EPERM
	n, err := c.Stop(context.Background(), "Discord")
	if n != 1 || !errors.Is(err, syscall.EPERM) {
		t.Fatalf("expected one kill and EPERM, got %d %v", n, err)
	}
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv(
		[]string{"HOME=/home/me", "PATH=/bin", "=bad", "noequals"},
		[]string{"PATH=/opt/bin:${PATH}", "DATA=${HOME}/data", "KEEP=${UNKNOWN}x"},
	)
	want := []string{
		"DATA=/home/me/data",
		"HOME=/home/me",
		"KEEP=${UNKNOWN}x",
		"PATH=/opt/bin:/bin",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %q want %q (all=%v)", i, got[i], want[i], got)
		}
	}
}
