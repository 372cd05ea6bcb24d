// Package process launches supervised subprocesses and reports how they exit.
//
// A Launcher turns an argv-style command and an environment into a Handle.
// ExecLauncher is the os/exec implementation used in production:
//   - The child inherits stdin, stdout and stderr of the supervisor
//   - The executable is looked up in PATH like execvp
//   - No retries: a failed start is returned to the caller as is
//
// Every Handle owns a single waiter goroutine. Done is closed once the child
// has been reaped, after which ExitStatus describes the termination and its
// Outcome (CleanExit or FailureExit).
//
// Example usage:
//
//	launcher := process.NewExecLauncher(logger)
//	proc, err := launcher.Launch([]string{"sleep", "1"}, os.Environ())
//	if err != nil {
//	    return err
//	}
//	<-proc.Done()
//	logger.Info("Child exited", "pid", proc.Pid(), "status", proc.ExitStatus())
package process
