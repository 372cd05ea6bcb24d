// Package cmd implements the spawn command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/spawn/internal/config"
	"github.com/smazurov/spawn/internal/events"
	"github.com/smazurov/spawn/internal/logging"
	"github.com/smazurov/spawn/internal/process"
	"github.com/smazurov/spawn/internal/supervisor"
	"github.com/smazurov/spawn/internal/systemd"
	"github.com/smazurov/spawn/internal/version"
	"github.com/spf13/cobra"
)

// ErrInvalidSeconds is returned for an interval or penalty that is not a
// finite, non-negative number of seconds.
var ErrInvalidSeconds = errors.New("must be a non-negative number of seconds")

// maxSeconds is the largest interval or penalty a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// Options for the CLI - flat structure with toml mapping.
// Flag names derive from the field names (NoRespawn -> --no-respawn).
type Options struct {
	Config string

	NoRespawn         bool          `toml:"supervisor.no_respawn" env:"NO_RESPAWN"`
	Interval          float64       `toml:"supervisor.interval" env:"INTERVAL"`
	Number            uint          `toml:"supervisor.number" env:"NUMBER"`
	Penalty           float64       `toml:"supervisor.penalty" env:"PENALTY"`
	RetryFailedLaunch bool          `toml:"supervisor.retry_failed_launch" env:"RETRY_FAILED_LAUNCH"`
	GracefulTimeout   time.Duration `toml:"supervisor.graceful_timeout" env:"GRACEFUL_TIMEOUT"`
	Command           []string      `toml:"supervisor.command" env:"COMMAND" split:"shell"`

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
	WatchConfig   bool   `toml:"logging.watch" env:"WATCH_CONFIG"`
}

// NewRootCmd creates the root command. Everything after the first
// non-flag argument is the supervised command line.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "spawn [flags] [--] command [args...]",
		Short: "Keep several copies of a command running",
		Long: `Runs N copies of a command and restarts each one when it exits. ` +
			`A clean exit is restarted after the interval, a failure after interval plus penalty.`,
		Version: version.String(),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}
			if len(args) > 0 {
				opts.Command = args
			}

			cfg, err := buildConfig(opts)
			if err != nil {
				return err
			}

			// From here on errors are runtime failures, not usage mistakes.
			cmd.SilenceUsage = true
			return run(cmd.Context(), opts, cfg)
		},
	}

	cmd.SetVersionTemplate(versionTemplate())
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVarP(&opts.Config, "config", "c", "", "Path to TOML configuration file")
	flags.BoolVarP(&opts.NoRespawn, "no-respawn", "e", false, "Do not respawn processes that exit with a failure")
	flags.Float64VarP(&opts.Interval, "interval", "i", supervisor.DefaultInterval.Seconds(), "Respawn interval in seconds")
	flags.UintVarP(&opts.Number, "number", "n", supervisor.DefaultSlots, "Number of processes to keep running")
	flags.Float64VarP(&opts.Penalty, "penalty", "p", supervisor.DefaultPenalty.Seconds(), "Respawn penalty in seconds added after a failure")
	flags.BoolVar(&opts.RetryFailedLaunch, "retry-failed-launch", false, "Keep retrying a respawn whose launch failed")
	flags.DurationVar(&opts.GracefulTimeout, "graceful-timeout", supervisor.DefaultGracefulTimeout, "Time children get to exit after SIGINT on shutdown")
	flags.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	flags.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
	flags.BoolVar(&opts.WatchConfig, "watch-config", false, "Reload logging levels when the config file changes")

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func versionTemplate() string {
	info := version.Get()
	return fmt.Sprintf("spawn %s (commit %s, built %s, %s %s)\n",
		info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
}

// buildConfig converts CLI options into a validated pool configuration.
func buildConfig(opts *Options) (supervisor.Config, error) {
	cfg := supervisor.DefaultConfig()

	interval, err := secondsToDuration(opts.Interval)
	if err != nil {
		return cfg, fmt.Errorf("invalid interval %v: %w", opts.Interval, err)
	}
	penalty, err := secondsToDuration(opts.Penalty)
	if err != nil {
		return cfg, fmt.Errorf("invalid penalty %v: %w", opts.Penalty, err)
	}
	if opts.Number > math.MaxInt32 {
		return cfg, fmt.Errorf("invalid number %d: too many processes", opts.Number)
	}
	if !logging.ValidLevel(opts.LoggingLevel) {
		return cfg, fmt.Errorf("invalid logging level %q", opts.LoggingLevel)
	}
	if opts.LoggingFormat != "text" && opts.LoggingFormat != "json" {
		return cfg, fmt.Errorf("invalid logging format %q", opts.LoggingFormat)
	}

	cfg.Slots = int(opts.Number)
	cfg.RespawnOnFailure = !opts.NoRespawn
	cfg.Interval = interval
	cfg.Penalty = penalty
	cfg.Command = opts.Command
	cfg.RetryFailedLaunch = opts.RetryFailedLaunch
	cfg.GracefulTimeout = opts.GracefulTimeout

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func secondsToDuration(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds > maxSeconds {
		return 0, ErrInvalidSeconds
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// run supervises the pool until it drains or a termination signal arrives.
func run(parent context.Context, opts *Options, cfg supervisor.Config) error {
	loggingConfig, err := config.LoadLoggingConfig(opts.Config)
	if err != nil {
		return err
	}
	loggingConfig.Level = opts.LoggingLevel
	loggingConfig.Format = opts.LoggingFormat
	logging.Initialize(loggingConfig)

	logger := logging.GetLogger("main")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create event bus for in-process event handling
	eventBus := events.New()

	notifier := systemd.NewNotifier(cfg.Slots, eventBus, logging.GetLogger("systemd"))
	notifier.Start()
	defer notifier.Stop()

	if opts.WatchConfig && opts.Config != "" {
		watcher := config.NewLoggingWatcher(opts.Config, config.DefaultDebounce, func(c logging.Config) {
			logging.SetLevels(c)
			logger.Info("Logging levels reloaded", "level", c.Level, "modules", c.Modules)
		}, logging.GetLogger("config"))
		if startErr := watcher.Start(); startErr != nil {
			logger.Warn("Failed to watch config file", "path", opts.Config, "error", startErr)
		} else {
			defer watcher.Stop()
		}
	}

	pool, err := supervisor.NewPool(cfg, &supervisor.PoolOptions{
		Launcher:      process.NewExecLauncher(logging.GetLogger("process")),
		Logger:        logging.GetLogger("supervisor"),
		ReactorLogger: logging.GetLogger("reactor"),
		OnStateChange: publishStateChange(eventBus),
		OnExit:        publishExit(eventBus),
	})
	if err != nil {
		return err
	}

	if startErr := pool.Start(); startErr != nil {
		logger.Error("Failed to start process pool", "error", startErr)
		return startErr
	}

	notifier.Ready()
	logger.Info("Supervisor started",
		"version", version.String(),
		"processes", cfg.Slots,
		"respawn_on_failure", cfg.RespawnOnFailure,
		"interval", cfg.Interval,
		"penalty", cfg.Penalty)

	go logStatusOnSignal(ctx, pool, logger)

	runErr := pool.Run(ctx)
	switch {
	case runErr == nil:
		logger.Info("No processes left to supervise")
	case ctx.Err() != nil:
		logger.Info("Received shutdown signal")
		runErr = nil
	}

	notifier.Stopping()
	pool.Shutdown(cfg.GracefulTimeout)

	if runErr != nil {
		return fmt.Errorf("event loop: %w", runErr)
	}
	return nil
}

// logStatusOnSignal logs the slot table each time SIGUSR1 arrives.
func logStatusOnSignal(ctx context.Context, pool *supervisor.Pool, logger *slog.Logger) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-usr1:
			infos, err := pool.Status(ctx)
			if err != nil {
				return
			}
			for _, info := range infos {
				logger.Info("Slot status",
					"slot", info.Index,
					"state", info.State,
					"pid", info.PID,
					"restarts", info.RestartCount)
			}
		}
	}
}

func publishStateChange(bus *events.Bus) supervisor.StateChangeCallback {
	return func(old supervisor.State, info supervisor.SlotInfo) {
		ev := events.SlotStateChangedEvent{
			Slot:      info.Index,
			OldState:  string(old),
			NewState:  string(info.State),
			PID:       info.PID,
			Delay:     info.PendingDelay,
			Reason:    string(info.StopReason),
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if info.LastError != nil {
			ev.Error = info.LastError.Error()
		}
		bus.Publish(ev)
	}
}

func publishExit(bus *events.Bus) supervisor.ExitCallback {
	return func(slot, pid int, status process.ExitStatus) {
		ev := events.SlotExitedEvent{
			Slot:      slot,
			PID:       pid,
			ExitCode:  status.Code,
			Outcome:   status.Outcome().String(),
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if status.Signaled() {
			ev.Signal = status.Signal.String()
		}
		bus.Publish(ev)
	}
}
