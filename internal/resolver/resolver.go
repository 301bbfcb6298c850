// Package resolver turns source items into the enriched ContentDetail used
// for rendering. Mod-log and author lookups go through the enrichment cache.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/laserman120/discord-bridge/internal/cache"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/source"
)

// modLogDepth bounds how far back the log is paged for one item.
const modLogDepth = 500

var imageURL = regexp.MustCompile(`(?i)\.(jpeg|jpg|gif|png|webp)$`)

type Options struct {
	// ContentTTL bounds item and mod-log lookups.
	ContentTTL time.Duration
	// AuthorTTL bounds author stats. Zero keeps them until RefreshAuthorStats.
	AuthorTTL time.Duration
}

type Resolver struct {
	src    source.Client
	cache  *cache.Cache
	opts   Options
	logger *log.Logger
}

func New(src source.Client, c *cache.Cache, opts Options, logger *log.Logger) *Resolver {
	if opts.ContentTTL <= 0 {
		opts.ContentTTL = 20 * time.Second
	}
	return &Resolver{src: src, cache: c, opts: opts, logger: logger.Named("resolver")}
}

// Item returns pre when set, otherwise the item through the content cache.
func (r *Resolver) Item(ctx context.Context, id string, pre *model.Item) (*model.Item, error) {
	if pre != nil {
		return pre, nil
	}
	it, err := cache.GetOrLoad(ctx, r.cache, "content:"+id, r.opts.ContentTTL, func(ctx context.Context) (*model.Item, error) {
		return r.src.FetchItem(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	return it, nil
}

// Detail builds the enriched view of an item. Enrichment failures are
// logged and leave the field empty.
func (r *Resolver) Detail(ctx context.Context, it *model.Item) *model.ContentDetail {
	d := &model.ContentDetail{
		ID:        it.ID,
		Kind:      it.Kind,
		Title:     it.Title,
		Body:      it.Body,
		URL:       it.URL,
		Permalink: "https://reddit.com" + it.Permalink,
		Author:    it.Author,
		Subreddit: it.Subreddit,
		CreatedAt: it.CreatedAt,
	}
	if d.Author == "" {
		d.Author = "[Deleted]"
	}
	if it.IsPost() {
		d.Flair = it.Flair
		d.Thumbnail = it.Thumbnail
		d.ImageURL = bestImage(it)
	} else {
		d.Title = "Comment by " + d.Author
		d.URL = ""
	}

	if len(it.UserReportReasons) > 0 {
		d.ReportReasons = it.UserReportReasons
	} else if len(it.ModReportReasons) > 0 {
		d.ReportReasons = it.ModReportReasons
	}
	if it.NumReports > 0 {
		d.ReportCount = it.NumReports
	}

	if it.Removed || it.Spam || (it.IsPost() && it.RemovedByCategory != "") {
		r.enrichRemoval(ctx, it, d)
	}

	if it.Author != "" && it.Author != "[deleted]" {
		stats, err := r.AuthorStats(ctx, it.Author)
		if err != nil {
			r.logger.Warnw("Author stats unavailable", "author", it.Author, "error", err)
		} else {
			d.AuthorStats = &stats
		}
	}
	return d
}

// Resolve is Item followed by Detail.
func (r *Resolver) Resolve(ctx context.Context, id string, pre *model.Item) (*model.ContentDetail, error) {
	it, err := r.Item(ctx, id, pre)
	if err != nil {
		return nil, err
	}
	return r.Detail(ctx, it), nil
}

// ResolveWithParent also resolves the crosspost parent when there is one.
func (r *Resolver) ResolveWithParent(ctx context.Context, id string, pre *model.Item) (*model.ContentDetail, error) {
	it, err := r.Item(ctx, id, pre)
	if err != nil {
		return nil, err
	}
	d := r.Detail(ctx, it)
	if it.CrosspostParentID != "" {
		parent, err := r.Item(ctx, it.CrosspostParentID, nil)
		if err != nil {
			r.logger.Warnw("Crosspost parent unavailable", "id", id, "parent", it.CrosspostParentID, "error", err)
		} else {
			d.CrosspostParent = r.Detail(ctx, parent)
		}
	}
	return d, nil
}

func (r *Resolver) enrichRemoval(ctx context.Context, it *model.Item, d *model.ContentDetail) {
	if e, ok := r.findLogEntry(ctx, "addremovalreason", it.ID); ok {
		d.RemovalReason = firstNonEmpty(e.Description, e.Details)
	}
	action := "removecomment"
	if it.IsPost() {
		action = "removelink"
	}
	if e, ok := r.findLogEntry(ctx, action, it.ID); ok {
		d.RemovedBy = e.Moderator
		if d.RemovalReason == "" {
			d.RemovalReason = e.Details
		}
	}
}

func (r *Resolver) findLogEntry(ctx context.Context, action, target string) (model.ModLogEntry, bool) {
	entries, err := cache.GetOrLoad(ctx, r.cache, "modlog:"+action+":"+target, r.opts.ContentTTL, func(ctx context.Context) ([]model.ModLogEntry, error) {
		return r.src.ModLog(ctx, action, target, modLogDepth)
	})
	if err != nil {
		r.logger.Warnw("Mod log unavailable", "action", action, "target", target, "error", err)
		return model.ModLogEntry{}, false
	}
	for _, e := range entries {
		if e.TargetID == target {
			return e, true
		}
	}
	return model.ModLogEntry{}, false
}

func (r *Resolver) AuthorStats(ctx context.Context, name string) (model.AuthorStats, error) {
	return cache.GetOrLoad(ctx, r.cache, authorKey(name), r.opts.AuthorTTL, func(ctx context.Context) (model.AuthorStats, error) {
		return r.src.AuthorStats(ctx, name)
	})
}

// RefreshAuthorStats drops the cached stats so the next lookup refetches.
func (r *Resolver) RefreshAuthorStats(ctx context.Context, name string) error {
	return r.cache.Delete(ctx, authorKey(name))
}

func authorKey(name string) string { return "author:" + name }

func bestImage(it *model.Item) string {
	if imageURL.MatchString(it.URL) {
		return it.URL
	}
	if it.PreviewURL != "" {
		return it.PreviewURL
	}
	return ""
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
