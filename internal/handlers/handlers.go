// Package handlers turns queued tasks into destination messages. Each
// handler name maps to exactly one function in the dispatch table.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/laserman120/discord-bridge/internal/cache"
	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/payload"
	"github.com/laserman120/discord-bridge/internal/reconcile"
	"github.com/laserman120/discord-bridge/internal/resolver"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/store"
)

// ErrUnknownHandler is returned for a task naming no handler.
var ErrUnknownHandler = errors.New("unknown handler")

// DefaultAppAccount is the account name the bridge itself posts modmail as.
const DefaultAppAccount = "discord-bridge"

// Input is everything one dispatch sees. Item and Snapshot come from the
// batch pre-fetch and may be nil. Settings are loaded fresh for every task.
type Input struct {
	Payload  model.Payload
	Item     *model.Item
	Snapshot source.Snapshot
	Settings *settings.Settings
}

type Func func(ctx context.Context, in Input) error

type Deps struct {
	Settings   settings.Provider
	Source     source.Client
	Resolver   *resolver.Resolver
	Links      store.Store
	Gateway    gateway.Gateway
	Cache      *cache.Cache
	Builder    *payload.Builder
	AppAccount string
}

type Dispatcher struct {
	settings settings.Provider
	src      source.Client
	res      *resolver.Resolver
	links    store.Store
	gw       gateway.Gateway
	cache    *cache.Cache
	rec      *reconcile.Reconciler
	build    *payload.Builder
	app      string
	now      func() time.Time
	logger   *log.Logger

	table map[model.HandlerName]Func
}

func New(deps Deps, logger *log.Logger) *Dispatcher {
	logger = logger.Named("handlers")
	d := &Dispatcher{
		settings: deps.Settings,
		src:      deps.Source,
		res:      deps.Resolver,
		links:    deps.Links,
		gw:       deps.Gateway,
		cache:    deps.Cache,
		rec:      reconcile.New(deps.Links, deps.Gateway, logger),
		build:    deps.Builder,
		app:      deps.AppAccount,
		now:      time.Now,
		logger:   logger,
	}
	if d.build == nil {
		d.build = payload.NewBuilder()
	}
	if d.app == "" {
		d.app = DefaultAppAccount
	}
	d.table = map[model.HandlerName]Func{
		model.HandlerNewPost:       d.newPost,
		model.HandlerPublicPost:    d.publicPost,
		model.HandlerStateSync:     d.stateSync,
		model.HandlerRemoval:       d.removal,
		model.HandlerSpamRemoval:   d.spamRemoval,
		model.HandlerRemovalReason: d.removalReason,
		model.HandlerModLog:        d.modLog,
		model.HandlerUpdate:        d.update,
		model.HandlerFlairWatch:    d.flairWatch,
		model.HandlerModActivity:   d.modActivity,
		model.HandlerModAbuse:      d.modAbuse,
		model.HandlerModMail:       d.modMail,
		model.HandlerReport:        d.report,
		model.HandlerDeletion:      d.deletion,
		model.HandlerModQueue:      d.modQueue,
	}
	return d
}

// Has reports whether name has an entry in the dispatch table.
func (d *Dispatcher) Has(name model.HandlerName) bool {
	_, ok := d.table[name]
	return ok
}

// Dispatch runs the handler for task. Expected aborts are logged inside the
// handler and return nil; a returned error is an infrastructure fault.
func (d *Dispatcher) Dispatch(ctx context.Context, task model.Task, item *model.Item, snap source.Snapshot) error {
	fn, ok := d.table[task.Handler]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHandler, task.Handler)
	}
	s, err := d.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	return fn(ctx, Input{Payload: task.Payload, Item: item, Snapshot: snap, Settings: s})
}

// renderer re-renders content detail without notification text, so edits
// keep whatever text the message was sent with.
func (d *Dispatcher) renderer(detail *model.ContentDetail) reconcile.Renderer {
	return func(class model.ChannelClass, state model.State) gateway.Message {
		return d.build.Content(detail, state, class, "")
	}
}

// resolve loads and enriches id, logging and reporting false on failure.
func (d *Dispatcher) resolve(ctx context.Context, handler, id string, pre *model.Item) (*model.Item, *model.ContentDetail, bool) {
	it, err := d.res.Item(ctx, id, pre)
	if err != nil {
		d.logger.Warnw("Failed to resolve content", "handler", handler, "id", id, "error", err)
		return nil, nil, false
	}
	return it, d.res.Detail(ctx, it), true
}

func (d *Dispatcher) findLinks(ctx context.Context, id string) ([]store.LinkEntry, error) {
	links, err := d.links.FindLinks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find links for %s: %w", id, err)
	}
	return links, nil
}

// snapshot returns the pre-fetched mod queue or reads it now. A failed read
// yields nil, which callers treat as unknown.
func (d *Dispatcher) snapshot(ctx context.Context, in Input) source.Snapshot {
	if in.Snapshot != nil {
		return in.Snapshot
	}
	items, err := d.src.ModQueue(ctx)
	if err != nil {
		d.logger.Warnw("Mod queue unavailable", "error", err)
		return nil
	}
	return source.NewSnapshot(items)
}

func (d *Dispatcher) moderators(ctx context.Context) []string {
	mods, err := d.src.Moderators(ctx)
	if err != nil {
		d.logger.Warnw("Moderator list unavailable", "error", err)
		return nil
	}
	return mods
}
