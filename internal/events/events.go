// Package events implements the synchronous lifecycle notification bus for
// navigation. Listeners are invoked in registration order; for cancellable
// event types the first Veto short-circuits dispatch and the emitter honors
// the outcome.
package events

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Type identifies a lifecycle notification.
type Type string

const (
	// Send fires when a navigation begins issuing its request.
	Send Type = "send"
	// BeforeSend fires just before the transport call. Cancellable: a veto
	// abandons the navigation.
	BeforeSend Type = "beforeSend"
	// Timeout fires when the request timer expires. Cancellable: a veto
	// keeps the request alive instead of aborting it.
	Timeout Type = "timeout"
	// Success fires after the response has been applied to the container.
	Success Type = "success"
	// Error fires on a transport failure. Cancellable: a veto suppresses
	// the full-page fallback, not the error handling itself.
	Error Type = "error"
	// Complete fires when the transport finishes, regardless of outcome.
	Complete Type = "complete"
	// End fires after all other processing for a navigation.
	End Type = "end"
)

// Cancellable reports whether listeners may veto this event type.
func (t Type) Cancellable() bool {
	return t == BeforeSend || t == Timeout || t == Error
}

// Decision is a listener's verdict on a cancellable event.
type Decision bool

const (
	Proceed Decision = true
	Veto    Decision = false
)

// Snapshot is the effective option set a navigation runs with, after
// defaulting and merging, carried on its lifecycle events.
type Snapshot struct {
	URL      string
	Method   string
	Data     url.Values
	Fragment string
	Mode     string
	Timeout  time.Duration
}

// Event is the payload delivered to listeners.
type Event struct {
	Type Type

	// NavigationID identifies the navigation this event belongs to.
	NavigationID string

	// URL is the navigation URL as currently resolved, marker stripped.
	URL string

	// Container is the stable selector of the target container.
	Container string

	// Timeout is the effective request timeout.
	Timeout time.Duration

	// Options is the effective option set of the navigation.
	Options Snapshot

	// Status and Header describe the response, when one exists.
	Status int
	Header http.Header

	// Body is the raw response body for Success events.
	Body string

	// Err carries the transport error for Error events.
	Err error
}

// Listener observes lifecycle events. The return value is only consulted
// for cancellable event types.
type Listener func(*Event) Decision

// Bus is an ordered synchronous listener registry.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]Listener
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Type][]Listener)}
}

// On registers a listener for an event type. Listeners run in registration
// order.
func (b *Bus) On(t Type, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], fn)
}

// Emit dispatches ev to the listeners registered for its type. For
// cancellable types dispatch stops at the first Veto and Veto is returned;
// otherwise every listener runs and the result is Proceed.
func (b *Bus) Emit(ev *Event) Decision {
	b.mu.RLock()
	fns := b.listeners[ev.Type]
	b.mu.RUnlock()

	cancellable := ev.Type.Cancellable()
	for _, fn := range fns {
		if fn(ev) == Veto && cancellable {
			return Veto
		}
	}
	return Proceed
}
