// Package attribution remembers who the local user sent each message to.
//
// The backend's global feed records the sender of a message but never its
// recipient, so once a message has been sent only the sender's own client
// can tell which conversation it belongs to. The Cache keeps that mapping in
// the local key-value store, in a partition owned by exactly one local user.
//
// Two key derivations are supported. KeyByID (the default) keys entries on
// the server-assigned message id, falling back to the body key for messages
// the server acknowledged without one. KeyByBody keys entries on the sender and
// the message text; it works even when the server returns no id, but when the
// same user sends identical text to two peers inside the retention window the
// most recent record wins and the earlier conversation loses that message.
package attribution

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/kv"
)

const (
	DefaultRetention = time.Hour

	// LegacyKey held one cache shared by every account that ever logged in
	// on this profile. It is deleted on open.
	LegacyKey = "sentMessages"

	partitionPrefix = "attribution/"
)

type KeyMode int

const (
	KeyByID KeyMode = iota
	KeyByBody
)

// ParseKeyMode accepts "id" or "body".
func ParseKeyMode(s string) (KeyMode, error) {
	switch s {
	case "", "id":
		return KeyByID, nil
	case "body":
		return KeyByBody, nil
	}
	return KeyByID, fmt.Errorf("attribution: unknown key mode %q", s)
}

func (m KeyMode) String() string {
	if m == KeyByBody {
		return "body"
	}
	return "id"
}

type Entry struct {
	Recipient string    `json:"recipientUsername"`
	CreatedAt time.Time `json:"timestamp"`
}

// Cache is one user's partition. It is not safe for concurrent use; the
// controller's event loop is its only caller.
type Cache struct {
	store     kv.Store
	self      string
	mode      KeyMode
	retention time.Duration
	now       func() time.Time
	entries   map[string]Entry
}

type Option func(*Cache)

func WithKeyMode(m KeyMode) Option { return func(c *Cache) { c.mode = m } }

func WithRetention(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.retention = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// PartitionKey is the store key holding self's entries.
func PartitionKey(self string) string {
	return partitionPrefix + self
}

// Open loads self's partition, deleting the legacy shared cache first.
// A partition that cannot be parsed is treated as empty.
func Open(store kv.Store, self string, opts ...Option) (*Cache, error) {
	if self == "" {
		return nil, errors.New("attribution: empty username")
	}
	c := &Cache{
		store:     store,
		self:      self,
		retention: DefaultRetention,
		now:       time.Now,
		entries:   make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := purgeLegacy(store); err != nil {
		return nil, err
	}

	raw, err := store.Get(PartitionKey(self))
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("attribution: load %s: %w", self, err)
	default:
		if err := json.Unmarshal(raw, &c.entries); err != nil || c.entries == nil {
			log.Warn().Err(err).Str("user", self).Msg("[attribution] corrupt cache, starting empty")
			c.entries = make(map[string]Entry)
		}
	}
	return c, nil
}

// Partitions lists the users that have a partition in store.
func Partitions(store kv.Store) ([]string, error) {
	keys, err := store.Keys(partitionPrefix)
	if err != nil {
		return nil, fmt.Errorf("attribution: list partitions: %w", err)
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, partitionPrefix))
	}
	return users, nil
}

// DropAll deletes every partition in store and returns the users it removed.
func DropAll(store kv.Store) ([]string, error) {
	users, err := Partitions(store)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if err := store.Delete(PartitionKey(u)); err != nil {
			return nil, fmt.Errorf("attribution: drop %s: %w", u, err)
		}
	}
	return users, nil
}

func purgeLegacy(store kv.Store) error {
	_, err := store.Get(LegacyKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("attribution: probe legacy cache: %w", err)
	}
	if err := store.Delete(LegacyKey); err != nil {
		return fmt.Errorf("attribution: delete legacy cache: %w", err)
	}
	log.Info().Msg("[attribution] removed legacy shared cache")
	return nil
}

func (c *Cache) Self() string { return c.self }

// Record remembers that msg was sent to peer. Only call it after the backend
// has accepted the message.
func (c *Cache) Record(peer string, msg chat.Message) error {
	if peer == "" {
		return errors.New("attribution: empty recipient")
	}
	// Send responses do not always echo the sender.
	msg.Sender = c.self
	c.entries[c.key(msg)] = Entry{Recipient: peer, CreatedAt: c.now()}
	c.pruneLocked()
	return c.flush()
}

// IsAttributedTo reports whether msg was sent by the local user to peer.
func (c *Cache) IsAttributedTo(msg chat.Message, peer string) bool {
	if msg.Sender != c.self {
		return false
	}
	e, ok := c.entries[c.key(msg)]
	if !ok && c.mode == KeyByID && msg.ID != "" {
		// Recorded from a send response without an id; the feed copy has one.
		e, ok = c.entries[bodyKey(msg.Sender, msg.Body)]
	}
	if !ok || c.expired(e) {
		return false
	}
	return e.Recipient == peer
}

// Prune drops entries older than the retention window.
func (c *Cache) Prune() error {
	if c.pruneLocked() == 0 {
		return nil
	}
	return c.flush()
}

func (c *Cache) Len() int { return len(c.entries) }

func (c *Cache) pruneLocked() int {
	n := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache) expired(e Entry) bool {
	return c.now().Sub(e.CreatedAt) > c.retention
}

func (c *Cache) key(msg chat.Message) string {
	if c.mode == KeyByID && msg.ID != "" {
		return "id:" + msg.ID
	}
	return bodyKey(msg.Sender, msg.Body)
}

func bodyKey(sender, body string) string {
	h := xxhash.New()
	_, _ = h.WriteString(sender)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(body)
	return "body:" + strconv.FormatUint(h.Sum64(), 16)
}

func (c *Cache) flush() error {
	raw, err := json.Marshal(c.entries)
	if err != nil {
		return err
	}
	if err := c.store.Set(PartitionKey(c.self), raw); err != nil {
		return fmt.Errorf("attribution: save %s: %w", c.self, err)
	}
	return nil
}
