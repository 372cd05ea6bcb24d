package reactor

import "time"

// Waiter is anything whose termination can be watched, e.g. a process handle.
type Waiter interface {
	Done() <-chan struct{}
}

// ExitWatcher fires once when its target terminates.
// The watcher stays armed after firing until Stop or a new Start.
type ExitWatcher struct {
	r      *Reactor
	cb     func(*ExitWatcher)
	target Waiter
	active bool
	gen    uint64
	cancel chan struct{}
}

// NewExitWatcher creates a stopped exit watcher.
func (r *Reactor) NewExitWatcher(cb func(*ExitWatcher)) *ExitWatcher {
	return &ExitWatcher{r: r, cb: cb}
}

// Set binds the watcher to target. Takes effect on the next Start.
func (w *ExitWatcher) Set(target Waiter) {
	w.target = target
}

// Active reports whether the watcher is armed.
func (w *ExitWatcher) Active() bool {
	return w.active
}

// Start arms the watcher. No-op if already armed or no target is bound.
func (w *ExitWatcher) Start() {
	if w.active || w.target == nil {
		return
	}
	w.active = true
	w.r.active++
	w.gen++

	gen, done, cancel := w.gen, w.target.Done(), make(chan struct{})
	w.cancel = cancel

	go func() {
		select {
		case <-done:
			w.r.deliver(func() { w.fire(gen) })
		case <-cancel:
		}
	}()
}

// Stop disarms the watcher. Safe to call on a stopped watcher.
func (w *ExitWatcher) Stop() {
	if !w.active {
		return
	}
	w.active = false
	w.r.active--
	close(w.cancel)
	w.cancel = nil
}

func (w *ExitWatcher) fire(gen uint64) {
	// stale: stopped or re-armed since this delivery was queued
	if !w.active || w.gen != gen {
		return
	}
	w.cb(w)
}

// Timer fires after a delay and then, if repeat is non-zero, every repeat.
// A one-shot timer disarms itself before its callback runs.
type Timer struct {
	r      *Reactor
	cb     func(*Timer)
	after  time.Duration
	repeat time.Duration
	active bool
	gen    uint64
	cancel chan struct{}
}

// NewTimer creates a stopped timer.
func (r *Reactor) NewTimer(cb func(*Timer)) *Timer {
	return &Timer{r: r, cb: cb}
}

// Set configures the delays. Takes effect on the next Start.
func (t *Timer) Set(after, repeat time.Duration) {
	t.after = after
	t.repeat = repeat
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	return t.active
}

// Start arms the timer. No-op if already armed.
func (t *Timer) Start() {
	if t.active {
		return
	}
	t.active = true
	t.r.active++
	t.arm(t.after)
}

// Stop disarms the timer. Safe to call on a stopped timer.
func (t *Timer) Stop() {
	if !t.active {
		return
	}
	t.active = false
	t.r.active--
	close(t.cancel)
	t.cancel = nil
}

func (t *Timer) arm(d time.Duration) {
	t.gen++
	gen, cancel := t.gen, make(chan struct{})
	t.cancel = cancel

	timer := t.r.clock.NewTimer(d)
	go func() {
		select {
		case <-timer.C():
			t.r.deliver(func() { t.fire(gen) })
		case <-cancel:
			timer.Stop()
		}
	}()
}

func (t *Timer) fire(gen uint64) {
	if !t.active || t.gen != gen {
		return
	}
	if t.repeat > 0 {
		t.arm(t.repeat)
	} else {
		t.active = false
		t.r.active--
		t.cancel = nil
	}
	t.cb(t)
}
