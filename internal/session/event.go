package session

// EventType classifies session lifecycle events.
type EventType int

const (
	EventCreated       EventType = iota // session created and active
	EventRosterChanged                  // roster replaced
	EventEnded                          // session moved to inactive
	EventDeleted                        // session record removed
)

var eventNames = map[EventType]string{
	EventCreated:       "created",
	EventRosterChanged: "roster_changed",
	EventEnded:         "ended",
	EventDeleted:       "deleted",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event carries a session snapshot to observers.
type Event struct {
	Type    EventType
	Session Session // snapshot (safe to retain)
}
