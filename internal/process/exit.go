package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// Outcome classifies a terminated process.
type Outcome int

// Exit outcomes.
const (
	CleanExit   Outcome = iota // exited with status 0
	FailureExit                // non-zero status, killed by a signal, or not reaped cleanly
)

// String returns the outcome name used in logs and events.
func (o Outcome) String() string {
	switch o {
	case CleanExit:
		return "clean"
	case FailureExit:
		return "failure"
	default:
		return "unknown"
	}
}

// ExitStatus describes how a process terminated.
type ExitStatus struct {
	Code   int            // exit code, -1 when terminated by a signal
	Signal syscall.Signal // terminating signal, 0 when the process exited
	Err    error          // wait error that carries no exit status
}

// Signaled reports whether the process was terminated by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != 0
}

// Outcome classifies the status. Only a plain exit with code 0 is clean.
func (s ExitStatus) Outcome() Outcome {
	if s.Err == nil && !s.Signaled() && s.Code == 0 {
		return CleanExit
	}
	return FailureExit
}

func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("wait error: %v", s.Err)
	case s.Signaled():
		return "signal: " + s.Signal.String()
	default:
		return fmt.Sprintf("exit status %d", s.Code)
	}
}

// exitStatusFromError converts the result of exec.Cmd.Wait into an ExitStatus.
// Returns the zero status for nil, the code or signal for an ExitError, and
// code 1 with Err set for anything else.
func exitStatusFromError(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Code: -1, Signal: ws.Signal()}
		}
		return ExitStatus{Code: exitErr.ExitCode()}
	}
	return ExitStatus{Code: 1, Err: err}
}
