// Package conversation turns the backend's global message feed into the
// two-party thread between the local user and one peer.
package conversation

import (
	"sort"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
)

// Attributor answers whether a message the local user sent went to peer.
// *attribution.Cache implements it.
type Attributor interface {
	IsAttributedTo(msg chat.Message, peer string) bool
}

// BuildView filters all down to the conversation between self and peer,
// oldest first. Messages from peer are always kept; messages from self are
// kept only when attr confirms peer as the recipient. all is not modified.
// Callers must not invoke BuildView without a peer.
func BuildView(all []chat.Message, self, peer chat.User, attr Attributor) []chat.Message {
	seen := make(map[string]struct{}, len(all))
	out := make([]chat.Message, 0)
	for _, m := range all {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		switch {
		case m.Sender == peer.Username:
			out = append(out, m)
		case m.Sender == self.Username && attr != nil && attr.IsAttributedTo(m, peer.Username):
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
