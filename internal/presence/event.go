package presence

import "time"

// State is the occupancy label derived from the number of live sessions.
type State string

const (
	Vacant    State = "vacant"
	Occupied  State = "occupied"
	Contended State = "contended"
)

// StateFor maps a session count to its occupancy state
func StateFor(n int) State {
	switch {
	case n <= 0:
		return Vacant
	case n == 1:
		return Occupied
	default:
		return Contended
	}
}

// Level is the numeric form used by the occupancy gauge
func (s State) Level() float64 {
	switch s {
	case Occupied:
		return 1
	case Contended:
		return 2
	default:
		return 0
	}
}

type EventType string

const (
	EventStatus           EventType = "status"
	EventOccupancyChanged EventType = "occupancy_changed"
	EventShutdown         EventType = "shutdown"
	EventError            EventType = "error"
)

// Event is what every stream receives, JSON-encoded
type Event struct {
	Type    EventType `json:"type"`
	State   State     `json:"state,omitempty"`
	Count   int       `json:"count,omitempty"`
	Message string    `json:"message,omitempty"`
}

func StatusEvent(n int) Event {
	return Event{Type: EventStatus, State: StateFor(n), Count: n}
}

func ChangedEvent(s State, n int) Event {
	return Event{Type: EventOccupancyChanged, State: s, Count: n}
}

func ShutdownEvent() Event { return Event{Type: EventShutdown} }

func ErrorEvent(msg string) Event { return Event{Type: EventError, Message: msg} }

// Transition records a change of occupancy label
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Count int       `json:"count"`
	Cause string    `json:"cause"`
	At    time.Time `json:"at"`
}
