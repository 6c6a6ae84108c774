package transport

import (
	"bytes"
	"encoding/json"
)

type EventKind string

const (
	EventMessage        EventKind = "message"
	EventMessageChanged EventKind = "message_changed"
	EventMessageDeleted EventKind = "message_deleted"
	EventUserLogin      EventKind = "user_login"
	EventUserChanged    EventKind = "user_changed"
	EventUserDeleted    EventKind = "user_deleted"

	// EventUntyped carries a frame that named no event at all.
	EventUntyped EventKind = "untyped"

	// Locally generated.
	EventConnection      EventKind = "connection"
	EventTerminalFailure EventKind = "terminal_failure"
)

// Event is the one shape subscribers see, whatever the wire looked like.
type Event struct {
	Kind EventKind
	// Name is the event name as it appeared on the wire.
	Name    string
	Payload json.RawMessage

	// Set on EventConnection.
	Connected bool
	// Last transport error, on EventConnection (disconnect) and EventTerminalFailure.
	Err error
}

// Candidate field names, highest priority first.
var (
	typeFields    = []string{"type", "event", "action", "kind"}
	payloadFields = []string{"data", "payload", "message", "content"}
)

var wireKinds = map[string]EventKind{
	"new_message":     EventMessage,
	"message":         EventMessage,
	"changed_message": EventMessageChanged,
	"deleted_message": EventMessageDeleted,
	"new_login":       EventUserLogin,
	"changed_user":    EventUserChanged,
	"deleted_user":    EventUserDeleted,
}

// localKinds are published by the client itself and never taken from the wire.
var localKinds = map[EventKind]bool{
	EventUntyped:         true,
	EventConnection:      true,
	EventTerminalFailure: true,
}

// Normalize parses one inbound frame. The event name is taken from the first
// string-valued type field; the payload from the first object- or
// array-valued payload field, else the frame itself. A frame without any
// event name, or naming one of the client's own kinds, comes back as
// EventUntyped. Only frames that are not JSON at all are rejected.
func Normalize(frame []byte) (Event, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(frame, &obj); err != nil {
		if json.Valid(frame) {
			return Event{Kind: EventUntyped, Payload: json.RawMessage(frame)}, nil
		}
		return Event{}, err
	}

	name := ""
	for _, k := range typeFields {
		var s string
		if raw, ok := obj[k]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			name = s
			break
		}
	}
	if name == "" {
		return Event{Kind: EventUntyped, Payload: json.RawMessage(frame)}, nil
	}

	payload := json.RawMessage(frame)
	for _, k := range payloadFields {
		if raw, ok := obj[k]; ok && isContainer(raw) {
			payload = raw
			break
		}
	}

	kind, ok := wireKinds[name]
	switch {
	case ok:
	case localKinds[EventKind(name)]:
		// A server cannot speak for the local connection.
		kind = EventUntyped
	default:
		kind = EventKind(name)
	}
	return Event{Kind: kind, Name: name, Payload: payload}, nil
}

func isContainer(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '{' || raw[0] == '[')
}
