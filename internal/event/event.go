package event

import "time"

// Kind is the event type as it appears on the wire.
type Kind string

const (
	KindJoin    Kind = "system_join"
	KindLeave   Kind = "system_leave"
	KindMessage Kind = "message"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindJoin, KindLeave, KindMessage:
		return true
	}
	return false
}

// Event is one entry of the shared chat log.
type Event struct {
	ID        uint64    `json:"id" msgpack:"id"`
	Kind      Kind      `json:"type" msgpack:"type"`
	Text      string    `json:"message" msgpack:"message"`
	CreatedAt time.Time `json:"timestamp" msgpack:"timestamp"`
	// Author is nil for system events.
	Author *string `json:"username" msgpack:"username"`
}

// IsSystem reports whether the event was generated by the relay rather than
// posted by a user.
func (e Event) IsSystem() bool { return e.Kind != KindMessage }

// AuthorName returns the author or "" for system events.
func (e Event) AuthorName() string {
	if e.Author == nil {
		return ""
	}
	return *e.Author
}

// Stamp returns a copy of e carrying the committed id and creation time.
// Timestamps are truncated to milliseconds in UTC.
func (e Event) Stamp(id uint64, at time.Time) Event {
	e.ID = id
	e.CreatedAt = at.UTC().Truncate(time.Millisecond)
	return e
}
