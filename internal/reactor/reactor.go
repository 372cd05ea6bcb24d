// Package reactor is a single-goroutine event loop delivering process-exit
// and timer-expiry notifications to registered watchers.
//
// Watchers are created once and re-armed as often as needed, libev style:
//
//	exit := r.NewExitWatcher(func(w *reactor.ExitWatcher) { ... })
//	exit.Set(proc)
//	exit.Start()
//
//	timer := r.NewTimer(func(t *reactor.Timer) { ... })
//	timer.Set(200*time.Millisecond, 0)
//	timer.Start()
//
// Callbacks run one at a time on the goroutine that called Run. Watcher
// methods are not safe for concurrent use: call them before Run or from
// inside a callback.
package reactor

import (
	"context"
	"errors"
	"log/slog"

	"code.cloudfoundry.org/clock"
)

// ErrStopped is returned by Run once the loop has already finished.
var ErrStopped = errors.New("reactor stopped")

// Reactor dispatches watcher callbacks serially.
type Reactor struct {
	clock   clock.Clock
	logger  *slog.Logger
	queue   chan func()
	quit    chan struct{}
	active  int
	stopped bool
}

// New creates a reactor. A nil clock uses wall time, a nil logger slog.Default().
func New(clk clock.Clock, logger *slog.Logger) *Reactor {
	if clk == nil {
		clk = clock.NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		clock:  clk,
		logger: logger,
		queue:  make(chan func()),
		quit:   make(chan struct{}),
	}
}

// Clock returns the time source used for timers.
func (r *Reactor) Clock() clock.Clock {
	return r.clock
}

// Active returns the number of armed watchers.
func (r *Reactor) Active() int {
	return r.active
}

// Run dispatches callbacks until no watcher is armed or ctx is cancelled.
// Returns nil when the loop drained, ctx.Err() on cancellation.
// A reactor runs at most once.
func (r *Reactor) Run(ctx context.Context) error {
	if r.stopped {
		return ErrStopped
	}
	defer func() {
		r.stopped = true
		close(r.quit)
	}()

	r.logger.Debug("Event loop started", "watchers", r.active)

	for r.active > 0 {
		select {
		case <-ctx.Done():
			r.logger.Debug("Event loop cancelled", "watchers", r.active)
			return ctx.Err()
		case fn := <-r.queue:
			// both may be ready; cancellation wins
			if ctx.Err() != nil {
				r.logger.Debug("Event loop cancelled", "watchers", r.active)
				return ctx.Err()
			}
			fn()
		}
	}

	r.logger.Info("No active watchers left, event loop finished")
	return nil
}

// Done is closed once Run has returned.
func (r *Reactor) Done() <-chan struct{} {
	return r.quit
}

// Post runs fn on the loop goroutine, waiting until the loop accepts it.
// Unlike watcher methods it may be called from any goroutine. Returns
// ErrStopped if the loop finished first, ctx.Err() if ctx ends first.
// A posted fn is dropped if the loop is cancelled before running it.
func (r *Reactor) Post(ctx context.Context, fn func()) error {
	select {
	case r.queue <- fn:
		return nil
	case <-r.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver hands fn to the loop. Dropped if the loop has finished.
func (r *Reactor) deliver(fn func()) {
	select {
	case r.queue <- fn:
	case <-r.quit:
	}
}
