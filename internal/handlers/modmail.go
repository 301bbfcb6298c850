package handlers

import (
	"context"
	"sort"
	"strings"

	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/store"
)

const conversationPrefix = "ModmailConversation_"

// nextModMailState advances the conversation machine. It reports whether a
// new message must be created rather than the last one updated.
func nextModMailState(last *store.LinkEntry, fromMod bool) (model.State, bool) {
	if last == nil {
		return model.StateNewThread, true
	}
	if fromMod {
		return model.StateAnswered, false
	}
	switch last.State {
	case model.StateAnswered, model.StateArchived:
		return model.StateNewReply, true
	case model.StateNewReply:
		return model.StateNewReply, false
	}
	return model.StateNewThread, false
}

func (d *Dispatcher) modMail(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelModMail)
	convID := strings.TrimPrefix(in.Payload.ConversationID, conversationPrefix)
	if url == "" || convID == "" {
		return nil
	}
	conv, err := d.src.Conversation(ctx, convID)
	if err != nil {
		d.logger.Warnw("Failed to fetch conversation", "conversation", convID, "error", err)
		return nil
	}
	if len(conv.Messages) == 0 {
		return nil
	}
	latest := conv.Messages[len(conv.Messages)-1]
	fromMod := latest.FromModerator()

	links, err := d.findLinks(ctx, convID)
	if err != nil {
		return err
	}
	links = store.OfChannel(links, model.ChannelModMail)
	sort.SliceStable(links, func(i, j int) bool { return links[i].CreatedAt.After(links[j].CreatedAt) })
	var last *store.LinkEntry
	if len(links) > 0 {
		last = &links[0]
	}

	state, create := nextModMailState(last, fromMod)
	if state == model.StateNewThread && fromMod {
		if !in.Settings.AllowAppNotifications || !strings.EqualFold(latest.Author, d.app) {
			d.logger.Infow("Conversation opened by a moderator, ignoring", "conversation", convID)
			return nil
		}
	}
	if settings.Contains(in.Settings.IgnoredModmailAuthors(), latest.Author) {
		d.logger.Infow("Modmail author ignored", "conversation", convID, "author", latest.Author)
		return nil
	}

	if create {
		show := latest
		if last == nil {
			show = conv.Messages[0]
		}
		msg := d.build.ModMail(conv, show, state, in.Settings.Messages.ModMail)
		if _, ok := d.rec.Publish(ctx, convID, model.ChannelModMail, state, url, msg); !ok {
			return nil
		}
		if err := d.links.TrackActive(ctx, convID); err != nil {
			return err
		}
		return nil
	}

	current, ok := d.gw.Fetch(ctx, last.Endpoint, last.MessageID)
	if !ok {
		d.logger.Warnw("Could not fetch modmail message to update", "conversation", convID, "message_id", last.MessageID)
		return nil
	}
	if fromMod && last.State == model.StateAnswered {
		return nil
	}
	res := d.gw.Edit(ctx, last.Endpoint, last.MessageID, d.build.AppendReply(current, state, latest))
	if !res.OK() {
		d.logger.Warnw("Modmail edit failed", "conversation", convID, "reason", res.Reason())
		return nil
	}
	if last.State != state {
		if err := d.links.UpdateState(ctx, last.MessageID, state); err != nil {
			d.logger.Errorw("Failed to update modmail state", "message_id", last.MessageID, "error", err)
		}
	}
	return nil
}
