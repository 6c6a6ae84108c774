package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/attribution"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/kv"
)

var (
	alice = chat.User{ID: "1", Username: "alice"}
	bob   = chat.User{ID: "2", Username: "bob"}
	carol = chat.User{ID: "3", Username: "carol"}
	t0    = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
)

// mapAttributor attributes message ids to recipients.
type mapAttributor map[string]string

func (m mapAttributor) IsAttributedTo(msg chat.Message, peer string) bool {
	return m[msg.ID] == peer
}

func msg(id, sender, body string, minute int) chat.Message {
	return chat.Message{ID: id, Sender: sender, Body: body, CreatedAt: t0.Add(time.Duration(minute) * time.Minute)}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestBuildView_PeerMessagesAlwaysShown(t *testing.T) {
	feed := []chat.Message{
		msg("1", "bob", "hey", 1),
		msg("2", "bob", "you there?", 2),
	}
	// An attributor that denies everything changes nothing for the peer's messages.
	view := BuildView(feed, alice, bob, mapAttributor{})
	assert.Equal(t, []string{"1", "2"}, ids(view))

	view = BuildView(feed, alice, bob, nil)
	assert.Equal(t, []string{"1", "2"}, ids(view))
}

func TestBuildView_UnattributedSelfMessagesHidden(t *testing.T) {
	feed := []chat.Message{
		msg("1", "alice", "to someone", 1),
		msg("2", "alice", "to bob", 2),
	}
	view := BuildView(feed, alice, bob, mapAttributor{"2": "bob"})
	assert.Equal(t, []string{"2"}, ids(view))
}

func TestBuildView_ThirdPartiesDropped(t *testing.T) {
	feed := []chat.Message{
		msg("1", "carol", "to bob maybe", 1),
		msg("2", "dave", "hi all", 2),
		msg("3", "bob", "hi alice", 3),
	}
	view := BuildView(feed, alice, bob, mapAttributor{"1": "bob", "2": "bob"})
	assert.Equal(t, []string{"3"}, ids(view))
}

func TestBuildView_SortsAscendingAndStable(t *testing.T) {
	feed := []chat.Message{
		msg("c", "bob", "third", 5),
		msg("a", "bob", "first", 1),
		msg("b1", "alice", "tie one", 3),
		msg("b2", "bob", "tie two", 3),
	}
	view := BuildView(feed, alice, bob, mapAttributor{"b1": "bob"})
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids(view))
}

func TestBuildView_DeduplicatesByID(t *testing.T) {
	feed := []chat.Message{
		msg("1", "bob", "from poll", 1),
		msg("1", "bob", "from push", 1),
		{Sender: "bob", Body: "no id", CreatedAt: t0},
		{Sender: "bob", Body: "no id", CreatedAt: t0},
	}
	view := BuildView(feed, alice, bob, nil)
	require.Len(t, view, 3)
	assert.Equal(t, "from poll", view[2].Body)
}

func TestBuildView_EmptyFeed(t *testing.T) {
	assert.Empty(t, BuildView(nil, alice, bob, nil))
}

func TestBuildView_Idempotent(t *testing.T) {
	feed := []chat.Message{
		msg("2", "alice", "x", 2),
		msg("1", "bob", "y", 1),
		msg("3", "carol", "z", 3),
	}
	attr := mapAttributor{"2": "bob"}
	first := BuildView(feed, alice, bob, attr)
	second := BuildView(feed, alice, bob, attr)
	assert.Equal(t, first, second)
	assert.Equal(t, "2", feed[0].ID, "input is not reordered")
}

func TestBuildView_ScenarioWithCache(t *testing.T) {
	cache, err := attribution.Open(kv.NewMemory(), "alice")
	require.NoError(t, err)

	sent := chat.Message{ID: "msg_hi", Sender: "alice", Body: "hi", CreatedAt: t0}
	require.NoError(t, cache.Record("bob", sent))

	feed := []chat.Message{sent}
	assert.Equal(t, []string{"msg_hi"}, ids(BuildView(feed, alice, bob, cache)))
	assert.Empty(t, BuildView(feed, alice, carol, cache))
}

func TestFeed_ReplaceKeepsPushedMessages(t *testing.T) {
	f := NewFeed()
	mark := f.Mark()
	f.Upsert(msg("push", "bob", "fresh", 9))
	f.Replace([]chat.Message{msg("1", "bob", "a", 1), msg("2", "alice", "b", 2)}, mark)

	assert.Equal(t, []string{"1", "2", "push"}, ids(f.Messages()))
}

// A message deleted on the server while pushes were missed goes away with
// the next full fetch.
func TestFeed_ReplaceDropsMessagesMissingFromLaterFetch(t *testing.T) {
	f := NewFeed()
	f.Replace([]chat.Message{msg("1", "bob", "a", 1), msg("2", "bob", "b", 2)}, f.Mark())
	for i := 0; i < 3; i++ {
		f.Replace([]chat.Message{msg("1", "bob", "a", 1)}, f.Mark())
	}
	assert.Equal(t, []string{"1"}, ids(f.Messages()))
}

func TestFeed_ReplaceDropsPushesOlderThanMark(t *testing.T) {
	f := NewFeed()
	f.Upsert(msg("old", "bob", "gone", 1))
	mark := f.Mark()
	f.Upsert(msg("new", "bob", "fresh", 2))

	f.Replace([]chat.Message{msg("1", "bob", "a", 1)}, mark)
	assert.Equal(t, []string{"1", "new"}, ids(f.Messages()))

	// Once a later fetch includes it, it is an ordinary fetched message.
	f.Replace([]chat.Message{msg("1", "bob", "a", 1)}, f.Mark())
	assert.Equal(t, []string{"1"}, ids(f.Messages()))
}

func TestFeed_UpsertReplacesByID(t *testing.T) {
	f := NewFeed()
	f.Upsert(msg("1", "bob", "draft", 1))
	f.Upsert(msg("1", "bob", "edited", 1))
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "edited", f.Messages()[0].Body)
}

func TestFeed_Remove(t *testing.T) {
	f := NewFeed()
	f.Upsert(msg("1", "bob", "a", 1))
	f.Upsert(msg("2", "bob", "b", 2))

	assert.True(t, f.Remove("1"))
	assert.False(t, f.Remove("1"))
	assert.Equal(t, []string{"2"}, ids(f.Messages()))
}

func TestFeed_ReplaceDoesNotDuplicateAnonymous(t *testing.T) {
	f := NewFeed()
	anon := chat.Message{Sender: "bob", Body: "legacy"}
	f.Replace([]chat.Message{anon}, f.Mark())
	f.Replace([]chat.Message{anon}, f.Mark())
	assert.Equal(t, 1, f.Len())
}
