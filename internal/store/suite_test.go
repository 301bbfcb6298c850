package store

import (
	"context"
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockedStore is a Store whose notion of "now" the test controls.
type clockedStore struct {
	Store
	setNow func(time.Time)
}

func runStoreSuite(t *testing.T, open func(t *testing.T) clockedStore) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("record and find", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		s.setNow(base)

		require.NoError(t, s.RecordLink(ctx, LinkEntry{SourceID: "t3_x", MessageID: "m1", Channel: model.ChannelNewPosts, State: model.StateLive, Endpoint: "https://hook/1"}))
		require.NoError(t, s.RecordLink(ctx, LinkEntry{SourceID: "t3_x", MessageID: "m2", Channel: model.ChannelRemovals, State: model.StateRemoved, Endpoint: "https://hook/2"}))
		require.NoError(t, s.RecordLink(ctx, LinkEntry{SourceID: "t3_y", MessageID: "m3", Channel: model.ChannelNewPosts, State: model.StateLive, Endpoint: "https://hook/1"}))

		links, err := s.FindLinks(ctx, "t3_x")
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.True(t, HasChannel(links, model.ChannelNewPosts))
		assert.True(t, HasChannel(links, model.ChannelRemovals))

		got, err := s.GetLink(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "t3_x", got.SourceID)
		assert.Equal(t, model.StateLive, got.State)
		assert.Equal(t, base.Unix(), got.CreatedAtEpoch)
		assert.True(t, base.Equal(got.CreatedAt))

		_, err = s.GetLink(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update state", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		s.setNow(base)

		require.NoError(t, s.RecordLink(ctx, LinkEntry{SourceID: "t3_x", MessageID: "m1", Channel: model.ChannelNewPosts, State: model.StateLive, Endpoint: "e"}))
		require.NoError(t, s.UpdateState(ctx, "m1", model.StateRemoved))

		got, err := s.GetLink(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, model.StateRemoved, got.State)
		assert.Equal(t, model.ChannelNewPosts, got.Channel)

		assert.ErrorIs(t, s.UpdateState(ctx, "nope", model.StateRemoved), ErrNotFound)
		_, err = s.GetLink(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete removes both indexes", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		s.setNow(base)

		a := LinkEntry{SourceID: "t3_x", MessageID: "m1", Channel: model.ChannelNewPosts, State: model.StateLive, Endpoint: "e"}
		b := LinkEntry{SourceID: "t3_x", MessageID: "m2", Channel: model.ChannelReports, State: model.StateUnhandledReport, Endpoint: "e"}
		require.NoError(t, s.RecordLink(ctx, a))
		require.NoError(t, s.RecordLink(ctx, b))

		require.NoError(t, s.DeleteLink(ctx, a))
		links, err := s.FindLinks(ctx, "t3_x")
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "m2", links[0].MessageID)

		require.NoError(t, s.DeleteLink(ctx, b))
		links, err = s.FindLinks(ctx, "t3_x")
		require.NoError(t, err)
		assert.Empty(t, links)

		s.setNow(base.Add(365 * 24 * time.Hour))
		expired, err := s.FindExpired(ctx, time.Second, 1000)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	t.Run("find expired respects age and limit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for i, age := range []time.Duration{20 * 24 * time.Hour, 14 * 24 * time.Hour, 12 * 24 * time.Hour, time.Hour} {
			require.NoError(t, s.RecordLink(ctx, LinkEntry{
				SourceID:  "t3_x",
				MessageID: []string{"old1", "old2", "young1", "young2"}[i],
				Channel:   model.ChannelModLog,
				State:     model.StateLive,
				Endpoint:  "e",
				CreatedAt: base.Add(-age),
			}))
		}
		s.setNow(base)

		expired, err := s.FindExpired(ctx, 13*24*time.Hour, 1000)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old1", "old2"}, expired)

		limited, err := s.FindExpired(ctx, 13*24*time.Hour, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"old1"}, limited)
	})

	t.Run("recent links newest first", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.RecordLink(ctx, LinkEntry{
				SourceID: "t3_" + id, MessageID: id, Channel: model.ChannelModQueue, State: model.StateLive, Endpoint: "e",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		recent, err := s.RecentLinks(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "c", recent[0].MessageID)
		assert.Equal(t, "b", recent[1].MessageID)
	})

	t.Run("active conversations", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		s.setNow(base)
		require.NoError(t, s.TrackActive(ctx, "conv1"))
		s.setNow(base.Add(time.Second))
		require.NoError(t, s.TrackActive(ctx, "conv2"))

		ids, err := s.ActiveIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"conv1", "conv2"}, ids)

		require.NoError(t, s.UntrackActive(ctx, "conv1"))
		ids, err = s.ActiveIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"conv2"}, ids)
	})
}
