package chatsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rzbill/relay/internal/event"
)

// Producer actions accepted by Send.
const (
	ActionJoin    = "join"
	ActionLeave   = "leave"
	ActionMessage = "message"
)

// JoinResult is returned by Join.
type JoinResult struct {
	MessageID uint64
	UserCount int
}

// LeaveResult is returned by Leave. MessageID is 0 when the user was not
// present and no leave event was written.
type LeaveResult struct {
	MessageID uint64
	UserCount int
}

// SendRequest is the combined producer request. Action defaults to message.
type SendRequest struct {
	Username string
	Message  string
	Action   string
}

// SendResult is returned by Send.
type SendResult struct {
	MessageID uint64
	UserCount int
}

// PollOptions controls GetUpdates.
type PollOptions struct {
	// Filter is an optional CEL expression evaluated per event.
	Filter string
}

// Updates is one poll response.
type Updates struct {
	Events    []event.Event
	UserCount int
	Users     []string
	// HighestID is the watermark the client should send next time. It
	// covers events dropped by the filter.
	HighestID  uint64
	ServerTime time.Time
}

// Stats summarizes the room.
type Stats struct {
	Streams        int
	UserCount      int
	LastMessageID  uint64
	Retained       int
	CorruptSkipped uint64
}

// FrameType tags a stream frame.
type FrameType string

const (
	FrameEvent     FrameType = "event"
	FramePing      FrameType = "ping"
	FrameUserCount FrameType = "user_count"
)

// Frame is one unit pushed to a streaming client. Event frames serialize as
// the bare event; ping and user_count frames carry a type field of their
// own.
type Frame struct {
	Type  FrameType
	Event event.Event
	Count int
	Users []string
}

type presenceFrame struct {
	Type  FrameType `json:"type"`
	Count int       `json:"count"`
	Users []string  `json:"users"`
}

// MarshalJSON renders the wire form of the frame.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameEvent:
		return json.Marshal(f.Event)
	case FramePing:
		return []byte(`{"type":"ping"}`), nil
	case FrameUserCount:
		users := f.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(presenceFrame{Type: FrameUserCount, Count: f.Count, Users: users})
	default:
		return nil, fmt.Errorf("chatsvc: unknown frame type %q", f.Type)
	}
}

// UnmarshalJSON parses any frame produced by MarshalJSON.
func (f *Frame) UnmarshalJSON(b []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	switch FrameType(head.Type) {
	case FramePing:
		*f = Frame{Type: FramePing}
		return nil
	case FrameUserCount:
		var p presenceFrame
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		*f = Frame{Type: FrameUserCount, Count: p.Count, Users: p.Users}
		return nil
	}
	var ev event.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return err
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("chatsvc: unknown frame type %q", head.Type)
	}
	*f = Frame{Type: FrameEvent, Event: ev}
	return nil
}

// StreamSink is implemented by transports to receive streamed frames.
type StreamSink interface {
	Send(Frame) error
	Context() context.Context
	Flush() error
}

// StreamOptions controls StreamSubscribe.
type StreamOptions struct {
	// Filter is an optional CEL expression evaluated per event.
	Filter string
}
