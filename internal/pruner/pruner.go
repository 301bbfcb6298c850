// Package pruner expires old links: the mirrored message is deleted first
// and the link only once the destination confirms it is gone.
package pruner

import (
	"context"
	"errors"
	"time"

	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/metrics"
	"github.com/laserman120/discord-bridge/internal/store"
)

const (
	DefaultMaxAge = 13 * 24 * time.Hour
	DefaultLimit  = 1000
)

type Pruner struct {
	links   store.Store
	gw      gateway.Gateway
	maxAge  time.Duration
	limit   int
	metrics *metrics.Metrics
	logger  *log.Logger
}

// New creates a pruner. Zero maxAge or limit use the defaults; m may be nil.
func New(links store.Store, gw gateway.Gateway, maxAge time.Duration, limit int, m *metrics.Metrics, logger *log.Logger) *Pruner {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Pruner{links: links, gw: gw, maxAge: maxAge, limit: limit, metrics: m, logger: logger.Named("pruner")}
}

// RunOnce removes up to limit expired links and returns how many went.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	ids, err := p.links.FindExpired(ctx, p.maxAge, p.limit)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		link, err := p.links.GetLink(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// the record is gone but the time index still points at it
			if err := p.links.DeleteLink(ctx, store.LinkEntry{MessageID: id}); err != nil {
				p.logger.Warnw("Failed to drop dangling index entry", "message_id", id, "error", err)
			}
			continue
		}
		if err != nil {
			p.logger.Warnw("Failed to load link", "message_id", id, "error", err)
			continue
		}
		res := p.gw.Delete(ctx, link.Endpoint, link.MessageID)
		if !res.OK() {
			p.logger.Warnw("Failed to delete expired message, keeping link", "message_id", id, "reason", res.Reason())
			continue
		}
		if err := p.links.DeleteLink(ctx, link); err != nil {
			p.logger.Errorw("Failed to delete link", "message_id", id, "error", err)
			continue
		}
		pruned++
	}
	if p.metrics != nil {
		p.metrics.LinksPruned.Add(float64(pruned))
	}
	if len(ids) > 0 {
		p.logger.Infow("Pruned expired links", "pruned", pruned, "expired", len(ids))
	}
	return pruned, nil
}
