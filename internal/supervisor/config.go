package supervisor

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/smazurov/spawn/internal/process"
)

// Defaults.
const (
	DefaultSlots           = 4
	DefaultInterval        = 200 * time.Millisecond
	DefaultPenalty         = time.Second
	DefaultGracefulTimeout = 5 * time.Second
)

// Configuration errors.
var (
	ErrEmptyCommand     = errors.New("no command given")
	ErrNoSlots          = errors.New("number of processes must be at least 1")
	ErrNegativeInterval = errors.New("respawn interval must not be negative")
	ErrNegativePenalty  = errors.New("respawn penalty must not be negative")
)

// Config holds the startup parameters of a pool. Treat it as read-only once
// handed to NewPool.
type Config struct {
	// Slots is the number of copies of Command kept running.
	Slots int

	// RespawnOnFailure restarts processes that exit with a failure.
	// Clean exits are always restarted.
	RespawnOnFailure bool

	// Interval is the delay before any respawn.
	Interval time.Duration

	// Penalty is added to Interval after a failure exit.
	Penalty time.Duration

	// Command is the argv to run; Command[0] is looked up in PATH.
	Command []string

	// Environment is passed to every child unmodified ("KEY=VALUE").
	Environment []string

	// RetryFailedLaunch re-arms the restart timer when a respawn launch
	// fails instead of giving the slot up.
	RetryFailedLaunch bool

	// GracefulTimeout bounds how long Shutdown waits after SIGINT before
	// killing children.
	GracefulTimeout time.Duration
}

// DefaultConfig returns the defaults with the supervisor's own environment.
func DefaultConfig() Config {
	return Config{
		Slots:            DefaultSlots,
		RespawnOnFailure: true,
		Interval:         DefaultInterval,
		Penalty:          DefaultPenalty,
		Environment:      os.Environ(),
		GracefulTimeout:  DefaultGracefulTimeout,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case len(c.Command) == 0 || c.Command[0] == "":
		return ErrEmptyCommand
	case c.Slots < 1:
		return fmt.Errorf("%w, got %d", ErrNoSlots, c.Slots)
	case c.Interval < 0:
		return fmt.Errorf("%w, got %s", ErrNegativeInterval, c.Interval)
	case c.Penalty < 0:
		return fmt.Errorf("%w, got %s", ErrNegativePenalty, c.Penalty)
	}
	return nil
}

// ShouldRespawn reports whether a slot is restarted after outcome.
func (c *Config) ShouldRespawn(outcome process.Outcome) bool {
	return outcome == process.CleanExit || c.RespawnOnFailure
}

// RestartDelay returns the delay before respawning after outcome: Interval
// for a clean exit, Interval+Penalty for any failure. The delay does not
// grow with repeated failures.
func (c *Config) RestartDelay(outcome process.Outcome) time.Duration {
	if outcome == process.CleanExit {
		return c.Interval
	}
	return c.Interval + c.Penalty
}

func (c Config) clone() Config {
	c.Command = slices.Clone(c.Command)
	c.Environment = slices.Clone(c.Environment)
	return c
}
