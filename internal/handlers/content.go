package handlers

import (
	"context"

	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/reconcile"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/store"
)

const removedByFilter = "Reddit Filter"

func (d *Dispatcher) newPost(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelNewPosts)
	id := in.Payload.ContentID()
	if url == "" || id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if store.HasChannel(links, model.ChannelNewPosts) {
		return nil
	}
	it, detail, ok := d.resolve(ctx, "NewPost", id, in.Item)
	if !ok {
		return nil
	}
	state := model.StateLive
	if it.Approved {
		state = model.StateApproved
	}
	msg := d.build.Content(detail, state, model.ChannelNewPosts, in.Settings.Messages.NewPost)
	d.rec.Publish(ctx, id, model.ChannelNewPosts, state, url, msg)
	return nil
}

func (d *Dispatcher) publicPost(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelPublicNewPosts)
	id := in.Payload.ContentID()
	if url == "" || !model.IsPostID(id) {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if store.HasChannel(links, model.ChannelPublicNewPosts) {
		return nil
	}
	it, err := d.res.Item(ctx, id, in.Item)
	if err != nil {
		d.logger.Warnw("Failed to resolve content", "handler", "PublicPost", "id", id, "error", err)
		return nil
	}
	if it.Removed || it.Spam || it.Deleted() {
		return nil
	}
	detail, err := d.res.ResolveWithParent(ctx, id, it)
	if err != nil {
		return nil
	}
	if detail.RemovalReason != "" || detail.RemovedBy != "" {
		d.logger.Infow("Post has a removal on record, not listing publicly", "id", id)
		return nil
	}
	msg := d.build.Content(detail, model.StatePublicPost, model.ChannelPublicNewPosts, in.Settings.Messages.PublicNewPost)
	d.rec.Publish(ctx, id, model.ChannelPublicNewPosts, model.StatePublicPost, url, msg)
	return nil
}

// syncState maps the payload to a state: the moderator action when it has
// one, otherwise an explicit target state.
func syncState(p model.Payload) (model.State, bool) {
	if p.Action != "" {
		return model.StateFromModAction(p.Action)
	}
	if p.TargetState.Valid() {
		return p.TargetState, true
	}
	return "", false
}

func (d *Dispatcher) stateSync(ctx context.Context, in Input) error {
	state, ok := syncState(in.Payload)
	if !ok {
		return nil
	}
	id := in.Payload.ContentID()
	if id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	it, detail, ok := d.resolve(ctx, "StateSync", id, in.Item)
	if !ok {
		return nil
	}

	snap := in.Snapshot
	if store.HasChannel(links, model.ChannelModQueue) {
		snap = d.snapshot(ctx, in)
	}
	creators := map[model.ChannelClass]reconcile.Creator{
		model.ChannelPublicNewPosts: func(ctx context.Context) error {
			return d.publicPost(ctx, Input{Payload: model.Payload{Kind: model.EventSweep, ID: id}, Item: it, Settings: in.Settings})
		},
	}
	remaining := d.rec.Gate(ctx, links, state, snap, creators)

	actorName := in.Payload.Moderator
	if actorName == "" {
		actorName = detail.RemovedBy
	}
	actor := reconcile.Classify(actorName, in.Settings.AutomatedUsers(), d.moderators(ctx))
	edited := d.rec.Reconcile(ctx, remaining, state, actor, d.renderer(detail))
	d.logger.Infow("State synced", "id", id, "state", state, "actor", actor, "edited", edited)
	return nil
}

func (d *Dispatcher) removal(ctx context.Context, in Input) error {
	state, ok := model.StateFromModAction(in.Payload.Action)
	if !ok || (state != model.StateRemoved && state != model.StateSpam) {
		return nil
	}
	url := in.Settings.Webhook(model.ChannelRemovals)
	id := in.Payload.ContentID()
	if url == "" || id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if store.HasChannel(links, model.ChannelRemovals) {
		return nil
	}
	_, detail, ok := d.resolve(ctx, "Removal", id, in.Item)
	if !ok {
		return nil
	}

	remover := in.Payload.Moderator
	if remover == "" {
		remover = detail.RemovedBy
	}
	if detail.RemovedBy == "" {
		detail.RemovedBy = remover
	}
	actor := reconcile.Classify(remover, in.Settings.AutomatedUsers(), d.moderators(ctx))
	effective := reconcile.Effective(state, actor)

	texts := in.Settings.RemovalTexts()
	text := texts[0]
	switch {
	case effective == model.StateAwaitingReview:
		text = texts[1]
	case effective == model.StateRemoved && actor == reconcile.ActorUnknown:
		text = texts[2]
	}
	msg := d.build.Content(detail, effective, model.ChannelRemovals, text)
	d.rec.Publish(ctx, id, model.ChannelRemovals, effective, url, msg)
	return nil
}

func (d *Dispatcher) spamRemoval(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelRemovals)
	id := in.Payload.ContentID()
	if url == "" || id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if store.HasChannel(links, model.ChannelRemovals) {
		return nil
	}
	_, detail, ok := d.resolve(ctx, "SpamRemoval", id, in.Item)
	if !ok {
		return nil
	}
	if detail.RemovedBy == "" {
		detail.RemovedBy = removedByFilter
		if detail.RemovalReason == "" {
			detail.RemovalReason = settings.DefaultSpamReason()
		}
	}
	if settings.Contains(in.Settings.IgnoredRemovalAuthors(), detail.Author) {
		d.logger.Infow("Author ignored for spam removals", "id", id, "author", detail.Author)
		return nil
	}
	msg := d.build.Content(detail, model.StateSpam, model.ChannelRemovals, in.Settings.RemovalTexts()[3])
	d.rec.Publish(ctx, id, model.ChannelRemovals, model.StateSpam, url, msg)
	return nil
}

func (d *Dispatcher) removalReason(ctx context.Context, in Input) error {
	if in.Payload.Action != "addremovalreason" {
		return nil
	}
	id := in.Payload.ContentID()
	if id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	_, detail, ok := d.resolve(ctx, "RemovalReason", id, in.Item)
	if !ok || detail.RemovalReason == "" {
		return nil
	}
	state := model.StateRemoved
	if reconcile.Classify(detail.RemovedBy, in.Settings.AutomatedUsers(), nil) == reconcile.ActorAutomated {
		state = model.StateAwaitingReview
	}
	d.rec.Refresh(ctx, links, func(store.LinkEntry) model.State { return state }, d.renderer(detail))
	return nil
}

// update refreshes every message about the content in its current state.
func (d *Dispatcher) update(ctx context.Context, in Input) error {
	id := in.Payload.ContentID()
	if id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	_, detail, ok := d.resolve(ctx, "Update", id, in.Item)
	if !ok {
		return nil
	}
	d.rec.Refresh(ctx, links, func(l store.LinkEntry) model.State { return l.State }, d.renderer(detail))
	return nil
}

func (d *Dispatcher) deletion(ctx context.Context, in Input) error {
	id := in.Payload.ContentID()
	if id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	it, detail, ok := d.resolve(ctx, "Deletion", id, in.Item)
	if !ok || !it.Deleted() {
		return nil
	}
	snap := in.Snapshot
	if store.HasChannel(links, model.ChannelModQueue) {
		snap = d.snapshot(ctx, in)
	}
	remaining := d.rec.Gate(ctx, links, model.StateDeleted, snap, nil)
	d.rec.Reconcile(ctx, remaining, model.StateDeleted, reconcile.ActorUnknown, d.renderer(detail))
	return nil
}

func (d *Dispatcher) report(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelReports)
	id := in.Payload.ContentID()
	if url == "" || id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	_, detail, ok := d.resolve(ctx, "Report", id, in.Item)
	if !ok || detail.ReportCount == 0 {
		return nil
	}
	if !store.HasChannel(links, model.ChannelReports) {
		msg := d.build.Content(detail, model.StateUnhandledReport, model.ChannelReports, in.Settings.Messages.Report)
		d.rec.Publish(ctx, id, model.ChannelReports, model.StateUnhandledReport, url, msg)
	}
	d.rec.RefreshReports(ctx, links, detail.ReportCount,
		[]model.ChannelClass{model.ChannelNewPosts, model.ChannelRemovals}, d.renderer(detail))
	return nil
}

func (d *Dispatcher) modQueue(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelModQueue)
	id := in.Payload.ContentID()
	if url == "" || id == "" {
		return nil
	}
	links, err := d.findLinks(ctx, id)
	if err != nil {
		return err
	}
	if store.HasChannel(links, model.ChannelModQueue) {
		return nil
	}
	if !in.Snapshot.Contains(id) {
		return nil
	}
	pre := in.Item
	if pre == nil {
		pre = in.Snapshot[id]
	}
	it, detail, ok := d.resolve(ctx, "ModQueue", id, pre)
	if !ok || it.Approved {
		return nil
	}

	state := model.StateLive
	text := ""
	if detail.ReportCount > 0 {
		state = model.StateUnhandledReport
		text = in.Settings.Messages.ModQueueReport
	}
	if it.Removed || it.Spam || detail.RemovedBy != "" {
		state = model.StateAwaitingReview
		text = in.Settings.Messages.ModQueueRemoval
	}
	msg := d.build.Content(detail, state, model.ChannelModQueue, text)
	d.rec.Publish(ctx, id, model.ChannelModQueue, state, url, msg)
	return nil
}
