package process

import (
	"errors"
	"os"
	"os/exec"
)

// Handle is a launched process as seen by its supervisor.
type Handle interface {
	// Pid returns the OS process identifier.
	Pid() int

	// Done is closed once the process has terminated and been reaped.
	Done() <-chan struct{}

	// ExitStatus describes the termination. Only meaningful after Done is closed.
	ExitStatus() ExitStatus

	// Signal delivers sig to the process.
	Signal(sig os.Signal) error

	// Kill forcibly terminates the process.
	Kill() error
}

// Process is a Handle backed by an os/exec command.
type Process struct {
	cmd    *exec.Cmd
	pid    int
	done   chan struct{}
	status ExitStatus
}

// newProcess wraps a started command and begins reaping it.
func newProcess(cmd *exec.Cmd) *Process {
	p := &Process{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go p.wait()
	return p
}

// wait reaps the child exactly once; status is published by closing done.
func (p *Process) wait() {
	p.status = exitStatusFromError(p.cmd.Wait())
	close(p.done)
}

// Pid returns the OS process identifier.
func (p *Process) Pid() int {
	return p.pid
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitStatus returns the termination status, or the zero status while the
// process is still running.
func (p *Process) ExitStatus() ExitStatus {
	select {
	case <-p.done:
		return p.status
	default:
		return ExitStatus{}
	}
}

// Signal delivers sig to the process. Signalling a process that has already
// exited is not an error.
func (p *Process) Signal(sig os.Signal) error {
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Kill sends SIGKILL. Killing a process that has already exited is not an error.
func (p *Process) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
