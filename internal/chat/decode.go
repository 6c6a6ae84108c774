package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotAMessage is returned when a payload has neither a sender nor a body.
var ErrNotAMessage = errors.New("chat: payload is not a message")

// Field candidates, in priority order. The backend has shipped several
// spellings of the same field over time.
var (
	idFields      = []string{"id", "_id", "messageId", "message_id"}
	senderFields  = []string{"senderUsername", "sender_username", "username", "sender", "from"}
	bodyFields    = []string{"message", "body", "content", "text"}
	timeFields    = []string{"createdAt", "created_at", "timestamp", "sentAt"}
	userIDFields  = []string{"id", "_id", "userId", "user_id"}
	userNameField = []string{"username", "name"}
	listFields    = []string{"messages", "users", "data", "items"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// DecodeMessage reads a single message in any of the known wire shapes.
func DecodeMessage(raw []byte) (Message, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Message{}, err
	}
	return MessageFromObject(obj)
}

// MessageFromObject is DecodeMessage for an already parsed JSON object.
// With ErrNotAMessage it still returns whatever fields it found.
func MessageFromObject(obj map[string]any) (Message, error) {
	// {"message": {...}} wraps the real record.
	if nested, ok := obj["message"].(map[string]any); ok {
		return MessageFromObject(nested)
	}

	m := Message{
		ID:     firstString(obj, idFields...),
		Sender: firstString(obj, senderFields...),
		Body:   firstString(obj, bodyFields...),
	}
	if m.Sender == "" {
		for _, k := range []string{"user", "sender", "from"} {
			if u, ok := obj[k].(map[string]any); ok {
				m.Sender = firstString(u, userNameField...)
				if m.Sender != "" {
					break
				}
			}
		}
	}
	m.CreatedAt = firstTime(obj, timeFields...)

	if m.Sender == "" && m.Body == "" {
		return m, ErrNotAMessage
	}
	return m, nil
}

// DecodeMessages reads a message list: either a bare array or an object
// wrapping one under a well-known key. Elements that are not messages are skipped.
func DecodeMessages(raw []byte) ([]Message, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(items))
	for _, it := range items {
		m, err := MessageFromObject(it)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// DecodeUser reads a user object, tolerating numeric ids.
func DecodeUser(raw []byte) (User, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return User{}, err
	}
	return UserFromObject(obj), nil
}

func UserFromObject(obj map[string]any) User {
	return User{
		ID:       firstString(obj, userIDFields...),
		Username: firstString(obj, userNameField...),
	}
}

func DecodeUsers(raw []byte) ([]User, error) {
	items, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(items))
	for _, it := range items {
		u := UserFromObject(it)
		if u.Username == "" {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("chat: expected a JSON object")
	}
	return obj, nil
}

func decodeList(raw []byte) ([]map[string]any, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}
	var arr []any
	switch t := v.(type) {
	case []any:
		arr = t
	case map[string]any:
		for _, k := range listFields {
			if a, ok := t[k].([]any); ok {
				arr = a
				break
			}
		}
		if arr == nil {
			return nil, errors.New("chat: object carries no list")
		}
	case nil:
		return nil, nil
	default:
		return nil, errors.New("chat: expected a JSON array")
	}

	out := make([]map[string]any, 0, len(arr))
	for _, a := range arr {
		if obj, ok := a.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstTime(obj map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if t, ok := parseTime(v); ok {
				return t
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return unixTime(n)
			}
			if f, err := v.Float64(); err == nil {
				return unixTime(int64(f))
			}
		}
	}
	return time.Time{}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unixTime(n), true
	}
	return time.Time{}, false
}

// unixTime accepts seconds or milliseconds.
func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
