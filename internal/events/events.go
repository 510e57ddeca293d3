// Package events defines the typed events the core emits. Delivery to
// Discord/desktop notifiers is an external adapter's concern (spec.md §1);
// this package only defines the values and a small in-process bus.
package events

import "time"

// Verb is the closed set of audit/event verbs from spec.md §3.
type Verb string

const (
	Blocked          Verb = "BLOCK"
	Unblocked        Verb = "UNBLOCK"
	Allowed          Verb = "ALLOW"
	Disallowed       Verb = "DISALLOW"
	PCActivated      Verb = "PC_ACTIVATE"
	PCDeactivated    Verb = "PC_DEACTIVATE"
	PanicStarted     Verb = "PANIC_START"
	PanicExtended    Verb = "PANIC_EXTEND"
	Paused           Verb = "PAUSE"
	Resumed          Verb = "RESUME"
	PendingCreated   Verb = "PENDING_CREATE"
	PendingExecuted  Verb = "PENDING_EXECUTE"
	PendingCancelled Verb = "PENDING_CANCEL"
	Sync             Verb = "SYNC"
)

// Event is one typed occurrence the reconciler or an operator command
// produced, ready for an external notifier to render.
type Event struct {
	At     time.Time
	Actor  string // "reconciler" | "user" | "watchdog"
	Verb   Verb
	Object string
	Detail map[string]string
	// Warning marks events like "executed a pending unblock whose target
	// will be re-blocked next tick" — informational, not an error.
	Warning bool
}

// Bus is a small buffered fan-out point. Components publish; nothing in
// this repo subscribes (the CLI's --verbose output prints the tick
// summary's errors, not bus events).
type Bus struct {
	ch chan Event
}

// NewBus returns a Bus with the given buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish sends e, dropping it if the bus is full and unread rather than
// blocking the reconciler on a slow or absent subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	select {
	case b.ch <- e:
	default:
	}
}

// Events exposes the receive-only channel for subscribers.
func (b *Bus) Events() <-chan Event {
	if b == nil {
		return nil
	}
	return b.ch
}
