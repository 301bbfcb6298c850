// Package sweep holds the periodic consistency checks that catch changes the
// event stream never reports: silent spam removals, items leaving the mod
// queue and archived conversations.
package sweep

import (
	"context"
	"time"

	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/payload"
	"github.com/laserman120/discord-bridge/internal/reconcile"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/store"
)

const (
	// MaxSpamAge matches the link lifetime; older items have nothing left
	// to reconcile.
	MaxSpamAge  = 13 * 24 * time.Hour
	recentLinks = 200
)

// Enqueuer accepts follow-up tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task model.Task)
}

type Sweeper struct {
	settings settings.Provider
	src      source.Client
	links    store.Store
	gw       gateway.Gateway
	rec      *reconcile.Reconciler
	queue    Enqueuer
	build    *payload.Builder
	logger   *log.Logger
	now      func() time.Time
}

func New(sp settings.Provider, src source.Client, links store.Store, gw gateway.Gateway, q Enqueuer, logger *log.Logger) *Sweeper {
	logger = logger.Named("sweep")
	return &Sweeper{
		settings: sp,
		src:      src,
		links:    links,
		gw:       gw,
		rec:      reconcile.New(links, gw, logger),
		queue:    q,
		build:    payload.NewBuilder(),
		logger:   logger,
		now:      time.Now,
	}
}

// silentRemoval reports whether the platform removed it without a moderator.
func silentRemoval(it *model.Item) bool {
	if it.IsPost() {
		return it.RemovedByCategory != "" && it.RemovedByCategory != "moderator" && it.RemovedByCategory != "author"
	}
	return !it.Removed && !it.Spam
}

// conflicts reports whether links exist but none of them shows the item as
// removed.
func conflicts(links []store.LinkEntry) bool {
	if len(links) == 0 {
		return false
	}
	for _, l := range links {
		if l.State == model.StateRemoved || l.State == model.StateSpam {
			return false
		}
	}
	return true
}

// Spam scans the spam listing for silent removals and queues the tasks that
// bring the mirrored messages in line. It returns the number of tasks queued.
func (s *Sweeper) Spam(ctx context.Context) (int, error) {
	st, err := s.settings.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !st.RemovalsScanSpam {
		return 0, nil
	}
	items, err := s.src.SpamQueue(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-MaxSpamAge)
	queued := 0
	for _, it := range items {
		if it.CreatedAt.Before(cutoff) || !silentRemoval(it) {
			continue
		}
		links, err := s.links.FindLinks(ctx, it.ID)
		if err != nil {
			s.logger.Warnw("Failed to load links", "id", it.ID, "error", err)
			continue
		}
		p := model.Payload{Kind: model.EventSweep, ID: it.ID, TargetID: it.ID, TargetState: model.StateSpam}
		switch {
		case conflicts(links):
			s.logger.Infow("Stored state conflicts with spam listing", "id", it.ID)
			s.queue.Enqueue(ctx, model.Task{Handler: model.HandlerStateSync, Payload: p})
			queued++
		case store.HasChannel(links, model.ChannelRemovals):
		default:
			s.logger.Infow("New silent removal", "id", it.ID)
			s.queue.Enqueue(ctx, model.Task{Handler: model.HandlerSpamRemoval, Payload: p})
			s.queue.Enqueue(ctx, model.Task{Handler: model.HandlerStateSync, Payload: p})
			queued += 2
		}
	}
	s.logger.Infow("Spam sweep completed", "scanned", len(items), "queued", queued)
	return queued, nil
}

// ModQueue deletes mod queue notifications whose item has left the queue.
func (s *Sweeper) ModQueue(ctx context.Context) (int, error) {
	st, err := s.settings.Load(ctx)
	if err != nil {
		return 0, err
	}
	if st.Webhook(model.ChannelModQueue) == "" {
		return 0, nil
	}
	items, err := s.src.ModQueue(ctx)
	if err != nil {
		return 0, err
	}
	snap := source.NewSnapshot(items)
	recent, err := s.links.RecentLinks(ctx, recentLinks)
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, l := range store.OfChannel(recent, model.ChannelModQueue) {
		if snap.Contains(l.SourceID) {
			continue
		}
		if s.rec.Drop(ctx, l) {
			dropped++
		}
	}
	s.logger.Infow("Mod queue sweep completed", "queue", len(snap), "dropped", dropped)
	return dropped, nil
}

// ModMail marks the messages of archived conversations and stops tracking
// them. A conversation stays tracked while any of its messages failed to
// update.
func (s *Sweeper) ModMail(ctx context.Context) (int, error) {
	ids, err := s.links.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	archived := 0
	for _, id := range ids {
		conv, err := s.src.Conversation(ctx, id)
		if err != nil {
			s.logger.Warnw("Failed to fetch conversation", "conversation", id, "error", err)
			continue
		}
		if !conv.Archived() {
			continue
		}
		links, err := s.links.FindLinks(ctx, id)
		if err != nil {
			s.logger.Warnw("Failed to load links", "conversation", id, "error", err)
			continue
		}
		done := true
		for _, l := range store.OfChannel(links, model.ChannelModMail) {
			if l.State == model.StateArchived {
				continue
			}
			if !s.archive(ctx, l) {
				done = false
			}
		}
		if !done {
			continue
		}
		if err := s.links.UntrackActive(ctx, id); err != nil {
			s.logger.Warnw("Failed to untrack conversation", "conversation", id, "error", err)
			continue
		}
		archived++
	}
	if len(ids) > 0 {
		s.logger.Infow("Modmail sync completed", "active", len(ids), "archived", archived)
	}
	return archived, nil
}

func (s *Sweeper) archive(ctx context.Context, l store.LinkEntry) bool {
	current, ok := s.gw.Fetch(ctx, l.Endpoint, l.MessageID)
	if !ok {
		s.logger.Warnw("Could not fetch modmail message", "message_id", l.MessageID)
		return false
	}
	res := s.gw.Edit(ctx, l.Endpoint, l.MessageID, s.build.SetState(current, model.StateArchived))
	if !res.OK() {
		s.logger.Warnw("Failed to archive modmail message", "message_id", l.MessageID, "reason", res.Reason())
		return false
	}
	if err := s.links.UpdateState(ctx, l.MessageID, model.StateArchived); err != nil {
		s.logger.Errorw("Failed to update link state", "message_id", l.MessageID, "error", err)
		return false
	}
	return true
}
