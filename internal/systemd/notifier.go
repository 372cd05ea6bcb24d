// Package systemd reports supervisor readiness and slot status to the
// service manager through sd_notify.
package systemd

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/spawn/internal/events"
)

// NotifyFunc delivers one sd_notify state string. It reports false when
// notification is not supported, as daemon.SdNotify does.
type NotifyFunc func(state string) (bool, error)

func sdNotify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Notifier subscribes to slot events and keeps the service STATUS in line
// with the number of running slots and the failed exits seen so far.
type Notifier struct {
	notify      NotifyFunc
	eventBus    *events.Bus
	unsubscribe []func()
	logger      *slog.Logger
	total       int

	mu          sync.Mutex
	slotStates  map[int]string // slot -> state name
	failures    int
	lastFailure string
	lastStatus  string
	ready       bool
	disabled    bool
}

// NewNotifier creates a notifier for a pool of total slots.
// If logger is nil, slog.Default() is used.
func NewNotifier(total int, eventBus *events.Bus, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		notify:     sdNotify,
		eventBus:   eventBus,
		logger:     logger,
		total:      total,
		slotStates: make(map[int]string, total),
	}
}

// Start begins listening for slot state change and exit events.
func (n *Notifier) Start() {
	n.unsubscribe = append(n.unsubscribe,
		n.eventBus.Subscribe(func(e events.SlotStateChangedEvent) {
			n.handleStateChange(e)
		}),
		n.eventBus.Subscribe(func(e events.SlotExitedEvent) {
			n.handleExit(e)
		}),
	)
	n.logger.Debug("Service notifier started", "slots", n.total)
}

// Stop unsubscribes from events.
func (n *Notifier) Stop() {
	for _, unsubscribe := range n.unsubscribe {
		unsubscribe()
	}
	n.unsubscribe = nil
}

// Ready reports READY=1 together with the current status.
func (n *Notifier) Ready() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ready = true
	status := n.statusLocked()
	n.lastStatus = status
	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Stopping reports STOPPING=1.
func (n *Notifier) Stopping() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.send(daemon.SdNotifyStopping + "\nSTATUS=Stopping")
}

// Status returns the current status line.
func (n *Notifier) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusLocked()
}

func (n *Notifier) handleStateChange(e events.SlotStateChangedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.slotStates[e.Slot] = e.NewState
	n.updateLocked()
}

// handleExit counts failed exits. Clean exits leave the status alone.
func (n *Notifier) handleExit(e events.SlotExitedEvent) {
	if !e.IsFailure() {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.failures++
	if e.Signal != "" {
		n.lastFailure = fmt.Sprintf("slot %d: signal %s", e.Slot, e.Signal)
	} else {
		n.lastFailure = fmt.Sprintf("slot %d: exit %d", e.Slot, e.ExitCode)
	}
	n.updateLocked()
}

func (n *Notifier) updateLocked() {
	// Status updates before READY would be overwritten by it anyway.
	if !n.ready {
		return
	}
	status := n.statusLocked()
	if status == n.lastStatus {
		return
	}
	n.lastStatus = status
	n.send("STATUS=" + status)
}

func (n *Notifier) statusLocked() string {
	running := 0
	stopped := 0
	for _, state := range n.slotStates {
		switch state {
		case "running":
			running++
		case "stopped":
			stopped++
		}
	}

	parts := []string{fmt.Sprintf("%d/%d slots running", running, n.total)}
	if stopped > 0 {
		parts = append(parts, fmt.Sprintf("%d stopped", stopped))
	}
	if n.failures > 0 {
		parts = append(parts, fmt.Sprintf("%d failed exits, last %s", n.failures, n.lastFailure))
	}
	return strings.Join(parts, ", ")
}

func (n *Notifier) send(state string) {
	if n.disabled {
		return
	}
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("Failed to notify service manager", "error", err)
		return
	}
	if !sent {
		n.logger.Debug("Service manager notification not supported")
		n.disabled = true
	}
}
