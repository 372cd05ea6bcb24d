package supervisor

import (
	"log/slog"
	"time"

	"github.com/smazurov/spawn/internal/process"
	"github.com/smazurov/spawn/internal/reactor"
)

// Slot supervises one worker position of the pool.
//
// A slot is driven entirely by its two watchers: the exit watcher is armed
// while a child is alive and the restart timer while waiting to respawn.
// All methods run on the pool's event loop.
type Slot struct {
	index  int
	pool   *Pool
	logger *slog.Logger

	exit  *reactor.ExitWatcher
	timer *reactor.Timer

	state        State
	proc         process.Handle
	startedAt    time.Time
	restartCount int
	pendingDelay time.Duration
	lastExit     *process.ExitStatus
	lastError    error
	stopReason   StopReason
}

func newSlot(p *Pool, index int) *Slot {
	s := &Slot{
		index:  index,
		pool:   p,
		logger: p.logger.With("slot", index),
		state:  StateIdle,
	}
	s.exit = p.reactor.NewExitWatcher(func(*reactor.ExitWatcher) { s.onExit() })
	s.timer = p.reactor.NewTimer(func(*reactor.Timer) { s.onTimer() })
	return s
}

// Index returns the slot number.
func (s *Slot) Index() int {
	return s.index
}

// State returns the current state.
func (s *Slot) State() State {
	return s.state
}

// Info returns a snapshot of the slot.
func (s *Slot) Info() SlotInfo {
	info := SlotInfo{
		Index:        s.index,
		State:        s.state,
		StartedAt:    s.startedAt,
		RestartCount: s.restartCount,
		PendingDelay: s.pendingDelay,
		LastExit:     s.lastExit,
		LastError:    s.lastError,
		StopReason:   s.stopReason,
	}
	if s.proc != nil && s.state == StateRunning {
		info.PID = s.proc.Pid()
	}
	return info
}

// armedWatchers counts the slot's armed watchers.
func (s *Slot) armedWatchers() int {
	n := 0
	if s.exit.Active() {
		n++
	}
	if s.timer.Active() {
		n++
	}
	return n
}

// spawn launches a child and arms the exit watcher on success.
func (s *Slot) spawn(restart bool) error {
	s.setState(StateStarting)

	proc, err := s.pool.launcher.Launch(s.pool.cfg.Command, s.pool.cfg.Environment)
	if err != nil {
		s.lastError = err
		return err
	}

	s.proc = proc
	s.startedAt = s.pool.clock.Now()
	s.lastError = nil
	if restart {
		s.restartCount++
	}

	s.exit.Set(proc)
	s.exit.Start()
	s.logger.Info("Process started", "pid", proc.Pid())
	s.setState(StateRunning)
	return nil
}

// onExit handles termination of the slot's child.
func (s *Slot) onExit() {
	s.exit.Stop()

	pid := s.proc.Pid()
	status := s.proc.ExitStatus()
	outcome := status.Outcome()
	s.lastExit = &status
	s.pool.notifyExit(s.index, pid, status)

	if !s.pool.cfg.ShouldRespawn(outcome) {
		s.logger.Warn("Process failed, respawn on failure disabled, slot stopped",
			"pid", pid, "status", status.String())
		s.stop(StopReasonExitFailure)
		return
	}

	delay := s.pool.cfg.RestartDelay(outcome)
	if outcome == process.FailureExit {
		s.logger.Warn("Process failed", "pid", pid, "status", status.String(), "respawn_in", delay)
	} else {
		s.logger.Info("Process exited", "pid", pid, "status", status.String(), "respawn_in", delay)
	}
	s.wait(delay)
}

// onTimer respawns the child once the restart delay has elapsed.
func (s *Slot) onTimer() {
	s.timer.Stop()
	s.pendingDelay = 0

	if err := s.spawn(true); err != nil {
		if s.pool.cfg.RetryFailedLaunch {
			delay := s.pool.cfg.Interval + s.pool.cfg.Penalty
			s.logger.Error("Failed to respawn process, retrying", "error", err, "retry_in", delay)
			s.wait(delay)
			return
		}
		s.logger.Error("Failed to respawn process, slot no longer supervised", "error", err)
		s.stop(StopReasonLaunchFailure)
	}
}

func (s *Slot) wait(delay time.Duration) {
	s.pendingDelay = delay
	s.timer.Set(delay, 0)
	s.timer.Start()
	s.setState(StateWaiting)
}

// stop takes the slot out of supervision. No watcher stays armed.
func (s *Slot) stop(reason StopReason) {
	s.exit.Stop()
	s.timer.Stop()
	s.pendingDelay = 0
	s.stopReason = reason
	s.setState(StateStopped)
}

func (s *Slot) setState(state State) {
	old := s.state
	if old == state {
		return
	}
	s.state = state
	s.logger.Debug("Slot state changed", "old_state", old, "new_state", state)
	s.pool.notifyStateChange(old, s.Info())
}
