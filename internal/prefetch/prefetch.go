// Package prefetch loads everything a worker batch will need from the
// source in as few calls as possible, before any task is dispatched.
package prefetch

import (
	"context"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/source"
)

// Batch is the pre-fetched view of one worker batch. A nil Items entry or a
// nil Snapshot means the data was unavailable and handlers fetch it
// themselves.
type Batch struct {
	Items    map[string]*model.Item
	Snapshot source.Snapshot
}

// Item returns the pre-fetched copy of id, or nil.
func (b *Batch) Item(id string) *model.Item {
	if b == nil || id == "" {
		return nil
	}
	return b.Items[id]
}

type Prefetcher struct {
	src    source.Client
	logger *log.Logger
}

func New(src source.Client, logger *log.Logger) *Prefetcher {
	return &Prefetcher{src: src, logger: logger.Named("prefetch")}
}

// ContentIDs returns the distinct content ids referenced by tasks, in first
// seen order.
func ContentIDs(tasks []model.Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	var ids []string
	for _, t := range tasks {
		id := t.Payload.ContentID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Load fetches every referenced item in one call and takes one mod queue
// snapshot. A batch that references no content gets neither. Failures are
// logged and leave the corresponding part empty.
func (p *Prefetcher) Load(ctx context.Context, tasks []model.Task) *Batch {
	b := &Batch{}
	ids := ContentIDs(tasks)
	if len(ids) == 0 {
		return b
	}
	items, err := p.src.FetchItems(ctx, ids)
	if err != nil {
		p.logger.Warnw("Batch fetch failed, handlers will fetch individually", "ids", len(ids), "error", err)
	} else {
		b.Items = items
	}
	queue, err := p.src.ModQueue(ctx)
	if err != nil {
		p.logger.Warnw("Mod queue snapshot failed", "error", err)
	} else {
		b.Snapshot = source.NewSnapshot(queue)
	}
	p.logger.Infow("Batch prefetched", "tasks", len(tasks), "items", len(b.Items), "queue", len(b.Snapshot))
	return b
}
