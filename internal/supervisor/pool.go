package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/smazurov/spawn/internal/process"
	"github.com/smazurov/spawn/internal/reactor"
)

// killTimeout bounds the wait for children after SIGKILL during shutdown.
const killTimeout = 5 * time.Second

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("pool already started")

// Pool keeps Config.Slots copies of a command running.
//
// Start launches every slot, Run drives restarts until the loop drains or
// the context is cancelled, Shutdown stops the children that are left.
// Start, Run and Shutdown must be called from the same goroutine, in order.
type Pool struct {
	cfg      Config
	opts     PoolOptions
	launcher process.Launcher
	clock    clock.Clock
	reactor  *reactor.Reactor
	slots    []*Slot
	logger   *slog.Logger
	started  bool
}

// NewPool validates cfg and creates the pool's slots. Nothing is launched yet.
func NewPool(cfg Config, opts *PoolOptions) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &PoolOptions{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	reactorLogger := opts.ReactorLogger
	if reactorLogger == nil {
		reactorLogger = logger
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = process.NewExecLauncher(logger)
	}

	p := &Pool{
		cfg:      cfg.clone(),
		opts:     *opts,
		launcher: launcher,
		clock:    clk,
		reactor:  reactor.New(clk, reactorLogger),
		logger:   logger,
	}

	p.slots = make([]*Slot, cfg.Slots)
	for i := range p.slots {
		p.slots[i] = newSlot(p, i)
	}

	return p, nil
}

// Config returns a copy of the pool configuration.
func (p *Pool) Config() Config {
	return p.cfg.clone()
}

// Start launches every slot in index order before any event is processed.
// The first launch failure is returned; slots started before it are left
// running.
func (p *Pool) Start() error {
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	for _, s := range p.slots {
		if err := s.spawn(false); err != nil {
			s.stop(StopReasonLaunchFailure)
			return fmt.Errorf("failed to spawn slot %d: %w", s.index, err)
		}
	}

	p.logger.Info("Process pool started", "slots", len(p.slots), "command", p.cfg.Command)
	return nil
}

// Run drives the event loop. It returns nil once no slot is supervised any
// more, or ctx.Err() when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	return p.reactor.Run(ctx)
}

// Snapshot returns the state of every slot. Call it when Run is not running,
// or from an OnStateChange/OnExit callback.
func (p *Pool) Snapshot() []SlotInfo {
	infos := make([]SlotInfo, len(p.slots))
	for i, s := range p.slots {
		infos[i] = s.Info()
	}
	return infos
}

// Status returns the state of every slot and may be called from any
// goroutine while Run is running. The snapshot is taken on the event loop.
func (p *Pool) Status(ctx context.Context) ([]SlotInfo, error) {
	result := make(chan []SlotInfo, 1)
	if err := p.reactor.Post(ctx, func() { result <- p.Snapshot() }); err != nil {
		return nil, err
	}
	select {
	case infos := <-result:
		return infos, nil
	case <-p.reactor.Done():
		// the loop may have run fn right before returning
		select {
		case infos := <-result:
			return infos, nil
		default:
			return nil, reactor.ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops supervision and terminates the remaining children: SIGINT
// first, SIGKILL for those still alive after timeout. Call after Run returned.
func (p *Pool) Shutdown(timeout time.Duration) {
	var live []*Slot
	for _, s := range p.slots {
		if s.state == StateRunning && s.proc != nil {
			live = append(live, s)
		}
		if !s.state.IsTerminal() {
			s.stop(StopReasonShutdown)
		}
	}

	if len(live) == 0 {
		p.logger.Info("Process pool stopped")
		return
	}

	p.logger.Info("Stopping processes", "count", len(live), "timeout", timeout)
	for _, s := range live {
		s.sendStopSignal()
	}

	if remaining := p.waitForExit(live, timeout); len(remaining) > 0 {
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "count", len(remaining))
		for _, s := range remaining {
			if err := s.proc.Kill(); err != nil {
				s.logger.Error("Failed to kill process", "pid", s.proc.Pid(), "error", err)
			}
		}
		for _, s := range p.waitForExit(remaining, killTimeout) {
			s.logger.Error("Process did not exit after kill signal", "pid", s.proc.Pid())
		}
	}

	p.logger.Info("Process pool stopped")
}

// waitForExit waits up to timeout for the slots' children and returns those
// still alive.
func (p *Pool) waitForExit(slots []*Slot, timeout time.Duration) []*Slot {
	timer := p.clock.NewTimer(timeout)
	defer timer.Stop()

	for i, s := range slots {
		select {
		case <-s.proc.Done():
		case <-timer.C():
			var remaining []*Slot
			for _, r := range slots[i:] {
				select {
				case <-r.proc.Done():
				default:
					remaining = append(remaining, r)
				}
			}
			return remaining
		}
	}
	return nil
}

// sendStopSignal sends SIGINT to the slot's child without waiting.
func (s *Slot) sendStopSignal() {
	s.logger.Info("Sending SIGINT to process", "pid", s.proc.Pid())
	if err := s.proc.Signal(syscall.SIGINT); err != nil {
		s.logger.Warn("Failed to send SIGINT", "pid", s.proc.Pid(), "error", err)
	}
}

func (p *Pool) notifyStateChange(oldState State, info SlotInfo) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(oldState, info)
	}
}

func (p *Pool) notifyExit(slot, pid int, status process.ExitStatus) {
	if p.opts.OnExit != nil {
		p.opts.OnExit(slot, pid, status)
	}
}
