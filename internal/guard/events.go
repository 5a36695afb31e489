package guard

import "time"

type EventType string

const (
	EventFailureRecorded EventType = "failure_recorded"
	EventSuccessRecorded EventType = "success_recorded"
	EventTripped         EventType = "tripped"
	EventRejected        EventType = "rejected"
	EventProbeAdmitted   EventType = "probe_admitted"
	EventEvicted         EventType = "evicted"
	EventSwept           EventType = "swept"
	EventForgotten       EventType = "forgotten"
)

type Event struct {
	Type         EventType
	Key          string
	Failures     int
	BlockedUntil time.Time
	At           time.Time
}

// Observer receives guard events. It is called after the table lock is
// released and must not block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}
