// Package reconcile keeps destination messages in line with the state of the
// content they mirror.
//
// Three policies apply, chosen by the link's channel class. Evolving
// messages are edited in place and their stored state follows. Gated
// messages exist only while the content is visible and are deleted or
// created as it changes. Rolling-log messages are never touched.
//
// Every mutation calls the gateway first and writes the store second, and
// only after the gateway reported success.
package reconcile

import (
	"context"
	"errors"

	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/store"
)

// Renderer builds the message for a link of class in state.
type Renderer func(class model.ChannelClass, state model.State) gateway.Message

// Creator re-checks eligibility for a gated class and creates its message.
type Creator func(ctx context.Context) error

type Reconciler struct {
	links  store.Store
	gw     gateway.Gateway
	logger *log.Logger
}

func New(links store.Store, gw gateway.Gateway, logger *log.Logger) *Reconciler {
	return &Reconciler{links: links, gw: gw, logger: logger.Named("reconcile")}
}

// Publish sends msg and records a link for it. A failed send records
// nothing and reports false.
func (r *Reconciler) Publish(ctx context.Context, sourceID string, class model.ChannelClass, state model.State, endpoint string, msg gateway.Message) (store.LinkEntry, bool) {
	res := r.gw.Send(ctx, endpoint, msg)
	if !res.OK() {
		r.logger.Warnw("Send failed, no link recorded", "source_id", sourceID, "channel", class, "reason", res.Reason())
		return store.LinkEntry{}, false
	}
	entry := store.LinkEntry{
		SourceID:  sourceID,
		MessageID: res.ID(),
		Channel:   class,
		State:     state,
		Endpoint:  endpoint,
	}
	if err := r.links.RecordLink(ctx, entry); err != nil {
		r.logger.Errorw("Failed to record link", "source_id", sourceID, "message_id", res.ID(), "error", err)
		return store.LinkEntry{}, false
	}
	r.logger.Infow("Published", "source_id", sourceID, "message_id", res.ID(), "channel", class, "state", state)
	return entry, true
}

// Drop deletes a message and then its link. The link stays when the delete
// call fails so a later pass can try again.
func (r *Reconciler) Drop(ctx context.Context, link store.LinkEntry) bool {
	res := r.gw.Delete(ctx, link.Endpoint, link.MessageID)
	if !res.OK() {
		r.logger.Warnw("Delete failed, keeping link", "message_id", link.MessageID, "reason", res.Reason())
		return false
	}
	if err := r.links.DeleteLink(ctx, link); err != nil {
		r.logger.Errorw("Failed to delete link", "message_id", link.MessageID, "error", err)
		return false
	}
	return true
}

// Reconcile edits every evolving link whose stored state differs from the
// effective state and records the new state. The attribution upgrade is
// applied before any comparison. It returns the number of links edited.
func (r *Reconciler) Reconcile(ctx context.Context, links []store.LinkEntry, state model.State, actor Actor, render Renderer) int {
	state = Effective(state, actor)
	edited := 0
	for _, link := range links {
		if !link.Channel.Evolving() {
			continue
		}
		if link.State == state {
			continue
		}
		if r.edit(ctx, link, state, render(link.Channel, state)) {
			edited++
		}
	}
	return edited
}

func (r *Reconciler) edit(ctx context.Context, link store.LinkEntry, state model.State, msg gateway.Message) bool {
	res := r.gw.Edit(ctx, link.Endpoint, link.MessageID, msg)
	if !res.OK() {
		r.logger.Warnw("Edit failed, state unchanged", "message_id", link.MessageID, "reason", res.Reason())
		return false
	}
	if link.State == state {
		return true
	}
	if err := r.links.UpdateState(ctx, link.MessageID, state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warnw("Link vanished during update", "message_id", link.MessageID)
			return true
		}
		r.logger.Errorw("Failed to update link state", "message_id", link.MessageID, "error", err)
		return false
	}
	return true
}

// Gate applies the visibility policy for gated classes and returns the
// links that are still live afterwards.
//
// Hidden content loses its public listings. The mod-queue listing is
// removed once the item has left the queue snapshot; a nil snapshot leaves
// it alone. Visible content without a listing gets one through the creator
// registered for that class.
func (r *Reconciler) Gate(ctx context.Context, links []store.LinkEntry, state model.State, snap source.Snapshot, creators map[model.ChannelClass]Creator) []store.LinkEntry {
	kept := make([]store.LinkEntry, 0, len(links))
	for _, link := range links {
		if !link.Channel.Gated() {
			kept = append(kept, link)
			continue
		}
		if r.shouldDrop(link, state, snap) {
			if r.Drop(ctx, link) {
				r.logger.Infow("Removed gated message", "source_id", link.SourceID, "channel", link.Channel, "state", state)
				continue
			}
		}
		kept = append(kept, link)
	}

	if state.Visible() {
		for class, create := range creators {
			if create == nil || store.HasChannel(links, class) {
				continue
			}
			if err := create(ctx); err != nil {
				r.logger.Warnw("Gated create failed", "channel", class, "error", err)
			}
		}
	}
	return kept
}

func (r *Reconciler) shouldDrop(link store.LinkEntry, state model.State, snap source.Snapshot) bool {
	if link.Channel == model.ChannelModQueue {
		if !state.Hidden() && state != model.StateApproved {
			return false
		}
		return snap != nil && !snap.Contains(link.SourceID)
	}
	return state.Hidden()
}

// Refresh re-renders every link that is not a rolling-log entry in the
// state chosen by stateFor, even when the state is unchanged. The stored
// state follows when it differs. It returns the number of links edited.
func (r *Reconciler) Refresh(ctx context.Context, links []store.LinkEntry, stateFor func(store.LinkEntry) model.State, render Renderer) int {
	edited := 0
	for _, link := range links {
		if link.Channel.RollingLog() {
			continue
		}
		state := stateFor(link)
		if r.edit(ctx, link, state, render(link.Channel, state)) {
			edited++
		}
	}
	return edited
}

// RefreshReports re-renders the evolving links of the given classes for a
// report event. Live, approved and already reported links show the
// unhandled report; other links keep their state with refreshed detail. A
// zero count does nothing.
func (r *Reconciler) RefreshReports(ctx context.Context, links []store.LinkEntry, count int, classes []model.ChannelClass, render Renderer) int {
	if count <= 0 {
		return 0
	}
	var selected []store.LinkEntry
	for _, link := range links {
		if link.Channel.Evolving() && inClasses(link.Channel, classes) {
			selected = append(selected, link)
		}
	}
	return r.Refresh(ctx, selected, func(link store.LinkEntry) model.State {
		switch link.State {
		case model.StateLive, model.StateApproved, model.StateUnhandledReport:
			return model.StateUnhandledReport
		}
		return link.State
	}, render)
}

func inClasses(c model.ChannelClass, classes []model.ChannelClass) bool {
	if len(classes) == 0 {
		return true
	}
	for _, x := range classes {
		if x == c {
			return true
		}
	}
	return false
}
