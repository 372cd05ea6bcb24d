package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// ErrEmptyCommand is returned when asked to launch an empty argv.
var ErrEmptyCommand = errors.New("empty command")

// Launcher creates supervised processes.
// Implementations must not retry: a failed launch is reported to the caller.
type Launcher interface {
	Launch(argv, env []string) (Handle, error)
}

// ExecLauncher launches processes with os/exec.
type ExecLauncher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	logger *slog.Logger
}

// NewExecLauncher creates a launcher whose children share the supervisor's stdio.
// If logger is nil, slog.Default() is used.
func NewExecLauncher(logger *slog.Logger) *ExecLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger,
	}
}

// Launch starts argv[0] (resolved through PATH) with the given arguments and
// environment. A nil env inherits the supervisor's environment.
func (l *ExecLauncher) Launch(argv, env []string) (Handle, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	proc := newProcess(cmd)
	l.logger.Debug("Process started", "pid", proc.Pid(), "command", argv)
	return proc, nil
}
