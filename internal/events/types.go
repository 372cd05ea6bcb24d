package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeSlotStateChanged uint32 = iota + 1
	TypeSlotExited
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SlotStateChangedEvent is published on every slot transition.
type SlotStateChangedEvent struct {
	Slot      int           `json:"slot"`
	OldState  string        `json:"old_state"`
	NewState  string        `json:"new_state"`
	PID       int           `json:"pid,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// Type returns the event type identifier for SlotStateChangedEvent.
func (e SlotStateChangedEvent) Type() uint32 { return TypeSlotStateChanged }

// SlotExitedEvent is published when a supervised child terminates.
type SlotExitedEvent struct {
	Slot      int    `json:"slot"`
	PID       int    `json:"pid"`
	ExitCode  int    `json:"exit_code"`
	Signal    string `json:"signal,omitempty"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for SlotExitedEvent.
func (e SlotExitedEvent) Type() uint32 { return TypeSlotExited }

// IsFailure reports whether the exit counts as a failure.
func (e SlotExitedEvent) IsFailure() bool {
	return e.Outcome == "failure"
}
