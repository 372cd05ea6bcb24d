package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/smazurov/spawn/internal/process"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

var errLaunch = errors.New("exec: no such file")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProcess is a process.Handle the test terminates explicitly.
type fakeProcess struct {
	pid          int
	launchedAt   time.Time
	exitOnSignal bool
	done         chan struct{}
	once         sync.Once
	status       process.ExitStatus
	signals      chan os.Signal
}

func (p *fakeProcess) Pid() int                       { return p.pid }
func (p *fakeProcess) Done() <-chan struct{}          { return p.done }
func (p *fakeProcess) ExitStatus() process.ExitStatus { return p.status }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.signals <- sig
	if p.exitOnSignal {
		p.exit(process.ExitStatus{})
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.exit(process.ExitStatus{Code: -1, Signal: syscall.SIGKILL})
	return nil
}

func (p *fakeProcess) exit(status process.ExitStatus) {
	p.once.Do(func() {
		p.status = status
		close(p.done)
	})
}

func (p *fakeProcess) exitCode(code int) {
	p.exit(process.ExitStatus{Code: code})
}

// fakeLauncher hands out fakeProcesses and records every launch.
type fakeLauncher struct {
	clock        *fakeclock.FakeClock
	launched     chan *fakeProcess
	exitOnSignal bool

	mu       sync.Mutex
	count    int
	failures map[int]bool // launch numbers (1-based) that fail
	argv     []string
	env      []string
}

func newFakeLauncher(clk *fakeclock.FakeClock) *fakeLauncher {
	return &fakeLauncher{
		clock:    clk,
		launched: make(chan *fakeProcess, 64),
		failures: make(map[int]bool),
	}
}

func (l *fakeLauncher) failOn(n ...int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, i := range n {
		l.failures[i] = true
	}
}

func (l *fakeLauncher) Launch(argv, env []string) (process.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	l.argv, l.env = argv, env
	if l.failures[l.count] {
		return nil, errLaunch
	}

	p := &fakeProcess{
		pid:          1000 + l.count,
		launchedAt:   l.clock.Now(),
		exitOnSignal: l.exitOnSignal,
		done:         make(chan struct{}),
		signals:      make(chan os.Signal, 4),
	}
	l.launched <- p
	return p, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

type stateChange struct {
	old  State
	info SlotInfo
}

// harness wires a pool to a fake clock and launcher and checks the watcher
// invariant on every transition.
type harness struct {
	t        *testing.T
	clock    *fakeclock.FakeClock
	launcher *fakeLauncher
	pool     *Pool
	changes  chan stateChange
	exits    chan process.ExitStatus
	cancel   context.CancelFunc
	done     chan error
}

func testConfig(slots int) Config {
	cfg := DefaultConfig()
	cfg.Slots = slots
	cfg.Command = []string{"worker", "--flag"}
	cfg.Environment = []string{"A=1"}
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   fakeclock.NewFakeClock(time.Now()),
		changes: make(chan stateChange, 1024),
		exits:   make(chan process.ExitStatus, 1024),
	}
	h.launcher = newFakeLauncher(h.clock)

	pool, err := NewPool(cfg, &PoolOptions{
		Launcher: h.launcher,
		Clock:    h.clock,
		Logger:   testLogger(),
		OnStateChange: func(old State, info SlotInfo) {
			h.checkWatchers(info)
			h.changes <- stateChange{old: old, info: info}
		},
		OnExit: func(_, _ int, status process.ExitStatus) {
			h.exits <- status
		},
	})
	require.NoError(t, err)
	h.pool = pool
	return h
}

// checkWatchers runs on the event loop: the notified slot may be mid
// hand-off (starting), every other slot must be settled.
func (h *harness) checkWatchers(changed SlotInfo) {
	for _, s := range h.pool.slots {
		want := 0
		switch s.state {
		case StateRunning, StateWaiting:
			want = 1
		case StateStarting:
			if s.index != changed.Index {
				h.t.Errorf("slot %d starting while slot %d changes state", s.index, changed.Index)
			}
		}
		if got := s.armedWatchers(); got != want {
			h.t.Errorf("slot %d in state %s has %d armed watchers, want %d", s.index, s.state, got, want)
		}
	}
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.pool.Start())
	h.run()
}

func (h *harness) run() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() {
		h.done <- h.pool.Run(ctx)
	}()
	h.t.Cleanup(cancel)
}

func (h *harness) nextLaunch() *fakeProcess {
	h.t.Helper()
	select {
	case p := <-h.launcher.launched:
		return p
	case <-time.After(testTimeout):
		h.t.Fatal("timeout waiting for launch")
		return nil
	}
}

func (h *harness) expectNoLaunch() {
	h.t.Helper()
	select {
	case p := <-h.launcher.launched:
		h.t.Fatalf("unexpected launch of pid %d", p.pid)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitState consumes state changes until slot reaches state.
func (h *harness) waitState(slot int, state State) SlotInfo {
	h.t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case c := <-h.changes:
			if c.info.Index == slot && c.info.State == state {
				return c.info
			}
		case <-deadline:
			h.t.Fatalf("timeout waiting for slot %d to reach %s", slot, state)
			return SlotInfo{}
		}
	}
}

func (h *harness) waitRun() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(testTimeout):
		h.t.Fatal("timeout waiting for pool to finish")
		return nil
	}
}
