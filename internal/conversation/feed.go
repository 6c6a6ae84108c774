package conversation

import "github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"

// Feed is the client's reconciled copy of the global feed, fed by both the
// poller and the real-time transport. Views are always rebuilt from the
// whole Feed, never patched.
type Feed struct {
	order []string
	byID  map[string]entry
	// messages without an id cannot be reconciled; they are kept as-is
	anon []chat.Message
	seq  uint64
}

type entry struct {
	msg chat.Message
	// seq of the Upsert that last wrote it
	seq uint64
}

func NewFeed() *Feed {
	return &Feed{byID: make(map[string]entry)}
}

// Mark returns the current arrival position. Take it when a fetch is issued
// and hand it to Replace with the result.
func (f *Feed) Mark() uint64 { return f.seq }

// Replace swaps in a fetched full feed. A message missing from the fetch is
// kept only when it arrived after mark, since the fetch may predate it;
// anything older was deleted on the server and is dropped.
func (f *Feed) Replace(all []chat.Message, mark uint64) {
	fetched := make(map[string]struct{}, len(all))
	next := &Feed{byID: make(map[string]entry, len(all)), seq: f.seq}
	for _, m := range all {
		if m.ID != "" {
			fetched[m.ID] = struct{}{}
		}
		next.put(m, 0)
	}
	for _, id := range f.order {
		if _, ok := fetched[id]; ok {
			continue
		}
		if e := f.byID[id]; e.seq > mark {
			next.put(e.msg, e.seq)
		}
	}
	*f = *next
}

// Upsert adds msg or replaces the message with the same id.
func (f *Feed) Upsert(msg chat.Message) {
	f.seq++
	f.put(msg, f.seq)
}

func (f *Feed) put(msg chat.Message, seq uint64) {
	if msg.ID == "" {
		f.anon = append(f.anon, msg)
		return
	}
	if _, ok := f.byID[msg.ID]; !ok {
		f.order = append(f.order, msg.ID)
	}
	f.byID[msg.ID] = entry{msg: msg, seq: seq}
}

// Remove deletes the message with the given id. It reports whether it existed.
func (f *Feed) Remove(id string) bool {
	if _, ok := f.byID[id]; !ok {
		return false
	}
	delete(f.byID, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return true
}

func (f *Feed) Len() int { return len(f.order) + len(f.anon) }

// Messages returns a copy of the feed in arrival order.
func (f *Feed) Messages() []chat.Message {
	out := make([]chat.Message, 0, f.Len())
	for _, id := range f.order {
		out = append(out, f.byID[id].msg)
	}
	return append(out, f.anon...)
}
