package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/cache"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/source/sourcetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, *sourcetest.Memory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	src := sourcetest.NewMemory()
	return New(src, cache.New(client, log.NewNop()), Options{}, log.NewNop()), src, mr
}

func TestResolveEnrichesRemovedPost(t *testing.T) {
	r, src, _ := newTestResolver(t)
	src.Put(&model.Item{
		ID: "t3_a", Kind: model.KindPost, Title: "Hi", Author: "alice", Permalink: "/r/x/comments/a/",
		URL: "https://i.redd.it/pic.PNG", Removed: true, NumReports: 1, UserReportReasons: []string{"spam"},
	})
	src.Log = []model.ModLogEntry{
		{Action: "addremovalreason", TargetID: "t3_a", Description: "Rule 3"},
		{Action: "removelink", TargetID: "t3_other", Moderator: "carol"},
		{Action: "removelink", TargetID: "t3_a", Moderator: "bob", Details: "remove"},
	}
	src.Authors["alice"] = model.AuthorStats{Name: "alice", LinkKarma: 10}

	d, err := r.Resolve(context.Background(), "t3_a", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://reddit.com/r/x/comments/a/", d.Permalink)
	assert.Equal(t, "https://i.redd.it/pic.PNG", d.ImageURL)
	assert.Equal(t, "Rule 3", d.RemovalReason)
	assert.Equal(t, "bob", d.RemovedBy)
	assert.Equal(t, 1, d.ReportCount)
	assert.Equal(t, []string{"spam"}, d.ReportReasons)
	require.NotNil(t, d.AuthorStats)
	assert.Equal(t, 10, d.AuthorStats.LinkKarma)
}

func TestResolveCommentTitle(t *testing.T) {
	r, src, _ := newTestResolver(t)
	src.Put(&model.Item{ID: "t1_c", Kind: model.KindComment, Author: "bob", Body: "hey"})

	d, err := r.Resolve(context.Background(), "t1_c", nil)
	require.NoError(t, err)
	assert.Equal(t, "Comment by bob", d.Title)
	assert.Empty(t, d.RemovedBy)
}

func TestPrefetchedItemSkipsFetch(t *testing.T) {
	r, src, _ := newTestResolver(t)
	pre := &model.Item{ID: "t3_p", Kind: model.KindPost, Title: "pre"}

	d, err := r.Resolve(context.Background(), "t3_p", pre)
	require.NoError(t, err)
	assert.Equal(t, "pre", d.Title)
	assert.Zero(t, src.Calls["FetchItem"])
}

func TestItemCachedWithinTTL(t *testing.T) {
	r, src, mr := newTestResolver(t)
	src.Put(&model.Item{ID: "t3_a", Kind: model.KindPost})
	ctx := context.Background()

	_, err := r.Item(ctx, "t3_a", nil)
	require.NoError(t, err)
	_, err = r.Item(ctx, "t3_a", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls["FetchItem"])

	mr.FastForward(21 * time.Second)
	_, err = r.Item(ctx, "t3_a", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls["FetchItem"])
}

func TestItemNotFound(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, err := r.Item(context.Background(), "t3_gone", nil)
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestAuthorStatsPersistUntilRefresh(t *testing.T) {
	r, src, mr := newTestResolver(t)
	src.Authors["alice"] = model.AuthorStats{Name: "alice", LinkKarma: 1}
	ctx := context.Background()

	s, err := r.AuthorStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, s.LinkKarma)

	src.Authors["alice"] = model.AuthorStats{Name: "alice", LinkKarma: 2}
	mr.FastForward(48 * time.Hour)
	s, err = r.AuthorStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, s.LinkKarma)

	require.NoError(t, r.RefreshAuthorStats(ctx, "alice"))
	s, err = r.AuthorStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, s.LinkKarma)
}

func TestResolveWithParent(t *testing.T) {
	r, src, _ := newTestResolver(t)
	src.Put(
		&model.Item{ID: "t3_x", Kind: model.KindPost, CrosspostParentID: "t3_parent"},
		&model.Item{ID: "t3_parent", Kind: model.KindPost, Title: "Original"},
	)
	d, err := r.ResolveWithParent(context.Background(), "t3_x", nil)
	require.NoError(t, err)
	require.NotNil(t, d.CrosspostParent)
	assert.Equal(t, "Original", d.CrosspostParent.Title)
}

func TestRemovalAttributionPerItem(t *testing.T) {
	r, src, _ := newTestResolver(t)
	ctx := context.Background()
	src.Put(
		&model.Item{ID: "t3_a", Kind: model.KindPost, Removed: true},
		&model.Item{ID: "t3_b", Kind: model.KindPost, Removed: true},
	)
	src.Log = []model.ModLogEntry{{Action: "removelink", TargetID: "t3_a", Moderator: "bob"}}

	d, err := r.Resolve(ctx, "t3_a", nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", d.RemovedBy)

	// logged after the first lookup, well inside the content TTL
	src.Log = append([]model.ModLogEntry{{Action: "removelink", TargetID: "t3_b", Moderator: "AutoModerator"}}, src.Log...)
	d, err = r.Resolve(ctx, "t3_b", nil)
	require.NoError(t, err)
	assert.Equal(t, "AutoModerator", d.RemovedBy)
}

func TestRemovalFoundBeyondNewestPage(t *testing.T) {
	r, src, _ := newTestResolver(t)
	src.Put(&model.Item{ID: "t3_old", Kind: model.KindPost, Removed: true})
	for i := 0; i < 150; i++ {
		src.Log = append(src.Log, model.ModLogEntry{Action: "removelink", TargetID: "t3_busy", Moderator: "carol"})
	}
	src.Log = append(src.Log, model.ModLogEntry{Action: "removelink", TargetID: "t3_old", Moderator: "dave"})

	d, err := r.Resolve(context.Background(), "t3_old", nil)
	require.NoError(t, err)
	assert.Equal(t, "dave", d.RemovedBy)
}
