package supervisor

import (
	"time"

	"github.com/smazurov/spawn/internal/process"
)

// State represents the supervision state of a slot.
type State string

// Slot states.
const (
	StateIdle     State = "idle"     // Not started yet
	StateStarting State = "starting" // Inside a launch call
	StateRunning  State = "running"  // Child alive, exit watcher armed
	StateWaiting  State = "waiting"  // Restart timer armed
	StateStopped  State = "stopped"  // No longer supervised
)

// IsTerminal reports whether the slot will never be launched again.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// StopReason explains why a slot stopped.
type StopReason string

// Stop reasons.
const (
	StopReasonNone          StopReason = ""
	StopReasonExitFailure   StopReason = "exit_failure"   // failed while respawn on failure is disabled
	StopReasonLaunchFailure StopReason = "launch_failure" // the launch itself failed
	StopReasonShutdown      StopReason = "shutdown"       // pool shut down
)

// SlotInfo is a snapshot of a slot.
type SlotInfo struct {
	Index        int
	State        State
	PID          int
	StartedAt    time.Time
	RestartCount int
	PendingDelay time.Duration
	LastExit     *process.ExitStatus
	LastError    error
	StopReason   StopReason
}
