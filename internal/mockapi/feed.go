package mockapi

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
)

// historyLimit caps GET /messages, newest kept.
const historyLimit = 500

// feed is the single global message list. Recipients are accepted on write
// and thrown away, like the real backend does.
type feed struct {
	now func() time.Time

	mu   sync.RWMutex
	msgs []chat.Message
}

func (f *feed) save(sender, body string) chat.Message {
	m := chat.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Body:      body,
		CreatedAt: f.now().UTC(),
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, m)
	f.mu.Unlock()
	return m
}

func (f *feed) recent() []chat.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	start := 0
	if len(f.msgs) > historyLimit {
		start = len(f.msgs) - historyLimit
	}
	out := make([]chat.Message, len(f.msgs)-start)
	copy(out, f.msgs[start:])
	return out
}
