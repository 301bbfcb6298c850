package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/gateway/gatewaytest"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/source/sourcetest"
	"github.com/laserman120/discord-bridge/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hookQueue   = "https://discord.com/api/webhooks/7/queue"
	hookModMail = "https://discord.com/api/webhooks/5/modmail"
)

type recordingQueue struct{ tasks []model.Task }

func (q *recordingQueue) Enqueue(ctx context.Context, task model.Task) {
	q.tasks = append(q.tasks, task)
}

type harness struct {
	sw    *Sweeper
	s     *settings.Settings
	src   *sourcetest.Memory
	links store.Store
	gw    *gatewaytest.Recorder
	q     *recordingQueue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := settings.Default()
	s.Webhooks.ModQueue = hookQueue
	s.Webhooks.ModMail = hookModMail
	s.RemovalsScanSpam = true
	h := &harness{
		s:     s,
		src:   sourcetest.NewMemory(),
		links: store.NewRedisStore(client, log.NewNop()),
		gw:    gatewaytest.NewRecorder(),
		q:     &recordingQueue{},
	}
	h.sw = New(settings.Static{S: s}, h.src, h.links, h.gw, h.q, log.NewNop())
	return h
}

func (h *harness) link(t *testing.T, e store.LinkEntry) {
	t.Helper()
	require.NoError(t, h.links.RecordLink(context.Background(), e))
}

func TestSilentRemoval(t *testing.T) {
	cases := []struct {
		name string
		item model.Item
		want bool
	}{
		{"post removed by platform", model.Item{Kind: model.KindPost, RemovedByCategory: "reddit"}, true},
		{"post removed by moderator", model.Item{Kind: model.KindPost, RemovedByCategory: "moderator"}, false},
		{"post deleted by author", model.Item{Kind: model.KindPost, RemovedByCategory: "author"}, false},
		{"post not removed", model.Item{Kind: model.KindPost}, false},
		{"comment not flagged", model.Item{Kind: model.KindComment}, true},
		{"comment marked spam", model.Item{Kind: model.KindComment, Spam: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, silentRemoval(&tc.item))
		})
	}
}

func TestSpamSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now()
	h.src.Spam = []*model.Item{
		{ID: "t3_new", Kind: model.KindPost, RemovedByCategory: "reddit", CreatedAt: now},
		{ID: "t3_conflict", Kind: model.KindPost, RemovedByCategory: "reddit", CreatedAt: now},
		{ID: "t3_done", Kind: model.KindPost, RemovedByCategory: "reddit", CreatedAt: now},
		{ID: "t3_old", Kind: model.KindPost, RemovedByCategory: "reddit", CreatedAt: now.Add(-14 * 24 * time.Hour)},
		{ID: "t3_mod", Kind: model.KindPost, RemovedByCategory: "moderator", CreatedAt: now},
	}
	h.link(t, store.LinkEntry{SourceID: "t3_conflict", MessageID: "m1", Channel: model.ChannelNewPosts, State: model.StateLive, Endpoint: "e"})
	h.link(t, store.LinkEntry{SourceID: "t3_done", MessageID: "m2", Channel: model.ChannelRemovals, State: model.StateRemoved, Endpoint: "e"})

	n, err := h.sw.Spam(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, h.q.tasks, 3)

	assert.Equal(t, model.HandlerSpamRemoval, h.q.tasks[0].Handler)
	assert.Equal(t, "t3_new", h.q.tasks[0].Payload.ContentID())
	assert.Equal(t, model.HandlerStateSync, h.q.tasks[1].Handler)
	assert.Equal(t, model.StateSpam, h.q.tasks[1].Payload.TargetState)
	assert.Equal(t, model.HandlerStateSync, h.q.tasks[2].Handler)
	assert.Equal(t, "t3_conflict", h.q.tasks[2].Payload.TargetID)
}

func TestSpamSweepDisabled(t *testing.T) {
	h := newHarness(t)
	h.s.RemovalsScanSpam = false
	h.src.Spam = []*model.Item{{ID: "t3_a", Kind: model.KindPost, RemovedByCategory: "reddit", CreatedAt: time.Now()}}

	n, err := h.sw.Spam(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.src.Calls["SpamQueue"])
}

func TestModQueueSweepDropsOrphans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.src.Queue = []*model.Item{{ID: "t3_still"}}
	h.link(t, store.LinkEntry{SourceID: "t3_still", MessageID: "q1", Channel: model.ChannelModQueue, State: model.StateLive, Endpoint: hookQueue})
	h.link(t, store.LinkEntry{SourceID: "t3_gone", MessageID: "q2", Channel: model.ChannelModQueue, State: model.StateLive, Endpoint: hookQueue})
	h.link(t, store.LinkEntry{SourceID: "t3_gone", MessageID: "n1", Channel: model.ChannelNewPosts, State: model.StateLive, Endpoint: "e"})

	n, err := h.sw.ModQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, h.gw.Calls, 1)
	assert.Equal(t, "q2", h.gw.Calls[0].MessageID)

	links, err := h.links.FindLinks(ctx, "t3_gone")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.ChannelNewPosts, links[0].Channel)
}

func TestModQueueSweepKeepsLinkOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.Fail = true
	h.link(t, store.LinkEntry{SourceID: "t3_gone", MessageID: "q2", Channel: model.ChannelModQueue, State: model.StateLive, Endpoint: hookQueue})

	n, err := h.sw.ModQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = h.links.GetLink(ctx, "q2")
	assert.NoError(t, err)
}

func TestModQueueSweepNeedsWebhook(t *testing.T) {
	h := newHarness(t)
	h.s.Webhooks.ModQueue = ""
	_, err := h.sw.ModQueue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.src.Calls["ModQueue"])
}

func TestModMailSweepArchives(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sent := h.gw.Send(ctx, hookModMail, gateway.Message{Embeds: []gateway.Embed{{Title: "Ban appeal"}}})
	require.True(t, sent.OK())
	h.link(t, store.LinkEntry{SourceID: "abc", MessageID: sent.ID(), Channel: model.ChannelModMail, State: model.StateAnswered, Endpoint: hookModMail})
	require.NoError(t, h.links.TrackActive(ctx, "abc"))
	require.NoError(t, h.links.TrackActive(ctx, "open"))
	h.src.Conversations["abc"] = &model.Conversation{ID: "abc", State: "Archived"}
	h.src.Conversations["open"] = &model.Conversation{ID: "open", State: "InProgress"}

	n, err := h.sw.ModMail(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l, err := h.links.GetLink(ctx, sent.ID())
	require.NoError(t, err)
	assert.Equal(t, model.StateArchived, l.State)
	assert.Equal(t, 1, h.gw.Count("edit"))

	active, err := h.links.ActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, active)
}

func TestModMailSweepKeepsTrackingOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.link(t, store.LinkEntry{SourceID: "abc", MessageID: "missing", Channel: model.ChannelModMail, State: model.StateNewThread, Endpoint: hookModMail})
	require.NoError(t, h.links.TrackActive(ctx, "abc"))
	h.src.Conversations["abc"] = &model.Conversation{ID: "abc", State: "Archived"}

	n, err := h.sw.ModMail(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	active, err := h.links.ActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, active)
}
