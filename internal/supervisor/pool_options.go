package supervisor

import (
	"log/slog"

	"code.cloudfoundry.org/clock"
	"github.com/smazurov/spawn/internal/process"
)

// StateChangeCallback is called on the event loop whenever a slot changes state.
// info reflects the new state.
type StateChangeCallback func(oldState State, info SlotInfo)

// ExitCallback is called on the event loop when a supervised child terminates,
// before the restart decision is applied.
type ExitCallback func(slot, pid int, status process.ExitStatus)

// PoolOptions configures a new Pool. All fields are optional.
type PoolOptions struct {
	// Launcher creates the child processes. Defaults to process.NewExecLauncher.
	Launcher process.Launcher

	// Clock drives restart timers. Defaults to wall time.
	Clock clock.Clock

	// OnStateChange observes slot transitions.
	OnStateChange StateChangeCallback

	// OnExit observes child terminations.
	OnExit ExitCallback

	// Logger for pool operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// ReactorLogger is used by the event loop. Defaults to Logger.
	ReactorLogger *slog.Logger
}
