package location

import "time"

// EventKind names a controller transition.
type EventKind string

const (
	EventStarted          EventKind = "started"
	EventWindowClosed     EventKind = "window_closed"
	EventCycleRestart     EventKind = "cycle_restart"
	EventFailure          EventKind = "failure"
	EventRestartScheduled EventKind = "restart_scheduled"
	EventBackground       EventKind = "background"
	EventStopped          EventKind = "stopped"
)

// Event is reported to an EventSink on every controller transition.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Phase     Phase     `json:"phase"`
	At        time.Time `json:"at"`
	Detail    string    `json:"detail,omitempty"`
}

// EventSink receives controller events. It runs with the controller locked
// and must not block or call back into the tracker's mutating methods.
type EventSink func(Event)

// SampleSink receives every accepted sample along with the session it was
// accepted in. The same constraints as EventSink apply.
type SampleSink func(sessionID string, s Sample)
