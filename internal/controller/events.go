package controller

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/transport"
)

// eventTyping is relayed typing state: {"username": ..., "typing": bool}.
const eventTyping transport.EventKind = "typing"

func (c *Controller) onEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventMessage, transport.EventMessageChanged:
		msg, err := chat.DecodeMessage(ev.Payload)
		if err != nil {
			log.Warn().Err(err).Str("event", ev.Name).Msg("[controller] unreadable message event")
			return
		}
		c.feed.Upsert(msg)
		if c.relevant(msg) {
			c.rebuild()
		}

	case transport.EventMessageDeleted:
		id := deletedID(ev.Payload)
		if id == "" {
			log.Warn().Str("event", ev.Name).Msg("[controller] delete event without id")
			return
		}
		if c.feed.Remove(id) {
			c.rebuild()
		}

	case transport.EventUserLogin, transport.EventUserChanged, transport.EventUserDeleted:
		c.fetchUsers()

	case transport.EventConnection:
		if ev.Connected {
			c.render.RenderStatus(i18n.Text(c.lang, i18n.Connected))
			// Catch up on whatever was missed while disconnected.
			if !c.peer.IsZero() {
				c.fetchMessages()
			}
			return
		}
		c.render.RenderStatus(i18n.Text(c.lang, i18n.Disconnected))

	case transport.EventTerminalFailure:
		c.render.RenderStatus(i18n.Text(c.lang, i18n.ConnectionLost))

	case transport.EventUntyped:
		// Some backends push bare message records with no event name.
		msg, err := chat.DecodeMessage(ev.Payload)
		if err != nil || msg.Sender == "" {
			log.Debug().Str("name", ev.Name).Msg("[controller] ignoring untyped frame")
			return
		}
		c.feed.Upsert(msg)
		if c.relevant(msg) {
			c.rebuild()
		}

	case eventTyping:
		var p struct {
			Username string `json:"username"`
			Typing   bool   `json:"typing"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		if p.Username != "" && p.Username == c.peer.Username {
			c.render.RenderTyping(p.Username, p.Typing)
		}
	}
}

// relevant reports whether msg could appear in the current view. Own
// messages count: they may be attributed to the peer.
func (c *Controller) relevant(msg chat.Message) bool {
	if c.peer.IsZero() {
		return false
	}
	return msg.Sender == c.peer.Username || msg.Sender == c.self.Username
}

// deletedID accepts a bare id, {"id": ...} or a whole message.
func deletedID(payload json.RawMessage) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	m, err := chat.DecodeMessage(payload)
	if err != nil && !errors.Is(err, chat.ErrNotAMessage) {
		return ""
	}
	return m.ID
}
