package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
)

// textRenderer prints state as plain lines. A conversation is reprinted
// whole, but only messages not yet shown are written.
type textRenderer struct {
	self string

	mu    sync.Mutex
	out   io.Writer
	peer  string
	shown map[string]bool
}

func newTextRenderer(out io.Writer, self string) *textRenderer {
	return &textRenderer{out: out, self: self, shown: make(map[string]bool)}
}

func (r *textRenderer) RenderUsers(users []chat.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(users))
	for _, u := range users {
		if u.Username != r.self {
			names = append(names, u.Username)
		}
	}
	fmt.Fprintf(r.out, "* users: %s\n", strings.Join(names, ", "))
}

func (r *textRenderer) RenderConversation(peer chat.User, msgs []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if peer.Username != r.peer {
		r.peer = peer.Username
		r.shown = make(map[string]bool)
		fmt.Fprintf(r.out, "--- %s ---\n", peer.Username)
	}
	for _, m := range msgs {
		k := messageKey(m)
		if r.shown[k] {
			continue
		}
		r.shown[k] = true
		writeMessage(r.out, m)
	}
}

func (r *textRenderer) RenderTyping(user string, typing bool) {
	if !typing {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "* %s is typing...\n", user)
}

func (r *textRenderer) RenderStatus(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "* %s\n", text)
}

func (r *textRenderer) RenderError(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "! %s\n", text)
}

func writeMessage(w io.Writer, m chat.Message) {
	ts := "--:--"
	if !m.CreatedAt.IsZero() {
		ts = m.CreatedAt.Local().Format("15:04")
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", ts, m.Sender, m.Body)
}

// messageKey identifies a message for the shown set; edits print again.
func messageKey(m chat.Message) string {
	if m.ID != "" {
		return m.ID + "\x00" + m.Body
	}
	return m.Sender + "\x00" + m.CreatedAt.String() + "\x00" + m.Body
}
