package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/spawn/internal/logging"
)

const testDebounce = 50 * time.Millisecond

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startLoggingWatcher starts a watcher on path that forwards every applied
// config to the returned channel.
func startLoggingWatcher(t *testing.T, path string) <-chan logging.Config {
	t.Helper()
	applied := make(chan logging.Config, 10)
	watcher := NewLoggingWatcher(path, testDebounce, func(cfg logging.Config) {
		applied <- cfg
	}, newTestLogger())

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if err := watcher.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})

	// Give fsnotify time to register the directory
	time.Sleep(100 * time.Millisecond)
	return applied
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to rewrite config file: %v", err)
	}
}

func waitApplied(t *testing.T, applied <-chan logging.Config) logging.Config {
	t.Helper()
	select {
	case cfg := <-applied:
		return cfg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for logging levels to be applied")
		return logging.Config{}
	}
}

func expectNotApplied(t *testing.T, applied <-chan logging.Config) {
	t.Helper()
	select {
	case cfg := <-applied:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(4 * testDebounce):
	}
}

func TestLoggingWatcherAppliesNewLevels(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")
	applied := startLoggingWatcher(t, path)

	rewrite(t, path, "[logging]\nlevel = \"debug\"\n\n[logging.modules]\nsupervisor = \"warn\"\n")

	cfg := waitApplied(t, applied)
	if cfg.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Level)
	}
	if got := cfg.Modules["supervisor"]; got != "warn" {
		t.Errorf("supervisor level = %q, want warn", got)
	}
}

func TestLoggingWatcherSkipsUnchangedLevels(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"warn\"\nformat = \"text\"\n")
	applied := startLoggingWatcher(t, path)

	// Only format and supervisor settings change; neither is reloaded.
	rewrite(t, path, "[supervisor]\nnumber = 8\n\n[logging]\nlevel = \"warn\"\nformat = \"json\"\n")
	expectNotApplied(t, applied)
}

func TestLoggingWatcherKeepsLevelsOnBadFile(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")
	applied := startLoggingWatcher(t, path)

	rewrite(t, path, "[logging\nlevel = ")
	expectNotApplied(t, applied)

	// The watcher is still alive after a failed reload.
	rewrite(t, path, "[logging]\nlevel = \"error\"\n")
	if cfg := waitApplied(t, applied); cfg.Level != "error" {
		t.Errorf("Level = %q, want error", cfg.Level)
	}
}

func TestLoggingWatcherDebouncesBursts(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	last := make(chan logging.Config, 10)
	watcher := NewLoggingWatcher(path, 200*time.Millisecond, func(cfg logging.Config) {
		count.Add(1)
		last <- cfg
	}, newTestLogger())
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()
	time.Sleep(100 * time.Millisecond)

	for _, level := range []string{"debug", "warn", "debug", "error"} {
		rewrite(t, path, fmt.Sprintf("[logging]\nlevel = %q\n", level))
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Fatalf("expected 1 reload for a burst of writes, got %d", got)
	}
	if cfg := <-last; cfg.Level != "error" {
		t.Errorf("Level = %q, want error", cfg.Level)
	}
}

func TestLoggingWatcherRenameReplace(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")
	applied := startLoggingWatcher(t, path)

	// Atomic save: write a sibling file, then rename it over the config.
	tmp := filepath.Join(filepath.Dir(path), ".spawn.toml.tmp")
	if err := os.WriteFile(tmp, []byte("[logging.modules]\nprocess = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	if cfg := waitApplied(t, applied); cfg.Modules["process"] != "debug" {
		t.Errorf("process level = %q, want debug", cfg.Modules["process"])
	}
}

func TestLoggingWatcherIgnoresOtherFiles(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")
	applied := startLoggingWatcher(t, path)

	other := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(other, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNotApplied(t, applied)
}

func TestLoggingWatcherStop(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	watcher := NewLoggingWatcher(path, testDebounce, func(logging.Config) {
		count.Add(1)
	}, newTestLogger())
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop returned %v", err)
	}

	rewrite(t, path, "[logging]\nlevel = \"debug\"\n")
	time.Sleep(4 * testDebounce)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reload after Stop, got %d", got)
	}
}

func TestLoggingWatcherStartErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "spawn.toml") }},
		{"invalid file", func(t *testing.T) string { return writeConfigFile(t, "[logging\n") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			watcher := NewLoggingWatcher(tt.path(t), testDebounce, func(logging.Config) {}, newTestLogger())
			if err := watcher.Start(); err == nil {
				watcher.Stop()
				t.Fatal("expected Start to fail")
			}
		})
	}
}

func TestLoggingWatcherDrivesModuleLevels(t *testing.T) {
	path := writeConfigFile(t, "[logging]\nlevel = \"info\"\n")

	logger := logging.GetLogger("watcher-test")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled before reload")
	}

	reloaded := make(chan struct{}, 1)
	watcher := NewLoggingWatcher(path, testDebounce, func(cfg logging.Config) {
		logging.SetLevels(cfg)
		reloaded <- struct{}{}
	}, newTestLogger())
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()
	t.Cleanup(func() { logging.SetLevels(logging.Config{Level: "info"}) })
	time.Sleep(100 * time.Millisecond)

	rewrite(t, path, "[logging.modules]\nwatcher-test = \"debug\"\n")
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("module logger should follow the reloaded level")
	}
}
