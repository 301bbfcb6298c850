package handlers

import (
	"context"
	"strings"

	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/settings"
	"github.com/laserman120/discord-bridge/internal/source"
	"github.com/laserman120/discord-bridge/internal/store"
)

func flairMatches(rule settings.FlairRule, postFlair, authorFlair string) bool {
	return (authorFlair != "" && strings.Contains(authorFlair, rule.Flair)) ||
		(postFlair != "" && strings.Contains(postFlair, rule.Flair))
}

func (d *Dispatcher) flairWatch(ctx context.Context, in Input) error {
	rules, err := in.Settings.FlairRules()
	if err != nil {
		d.logger.Warnw("Flair watch disabled", "error", err)
		return nil
	}
	id := in.Payload.ContentID()
	if len(rules) == 0 || id == "" {
		return nil
	}
	it, err := d.res.Item(ctx, id, in.Item)
	if err != nil {
		d.logger.Warnw("Failed to resolve content", "handler", "FlairWatch", "id", id, "error", err)
		return nil
	}
	postFlair := ""
	if it.IsPost() {
		postFlair = it.Flair
	}

	var (
		links  []store.LinkEntry
		detail *model.ContentDetail
	)
	for _, rule := range rules {
		if !flairMatches(rule, postFlair, it.AuthorFlair) {
			continue
		}
		if (it.IsPost() && !rule.Post) || (!it.IsPost() && !rule.Comment) || rule.Webhook == "" {
			continue
		}
		if detail == nil {
			detail = d.res.Detail(ctx, it)
			if links, err = d.findLinks(ctx, id); err != nil {
				return err
			}
		}
		state, class := model.StateLive, model.ChannelFlairWatch
		if rule.PublicFormat {
			state, class = model.StatePublicPost, model.ChannelPublicFlairWatch
		}
		if sentTo(links, class, rule.Webhook) {
			continue
		}
		d.logger.Infow("Flair matched", "id", id, "flair", rule.Flair)
		if entry, ok := d.rec.Publish(ctx, id, class, state, rule.Webhook, d.build.Content(detail, state, class, "")); ok {
			links = append(links, entry)
		}
	}
	return nil
}

func sentTo(links []store.LinkEntry, class model.ChannelClass, endpoint string) bool {
	for _, l := range links {
		if l.Channel == class && l.Endpoint == endpoint {
			return true
		}
	}
	return false
}

func (d *Dispatcher) modActivity(ctx context.Context, in Input) error {
	url := in.Settings.Webhook(model.ChannelModActivity)
	id := in.Payload.ContentID()
	if url == "" || id == "" {
		return nil
	}
	if model.IsPostID(id) && !in.Settings.CheckModPosts() {
		return nil
	}
	if !model.IsPostID(id) && !in.Settings.CheckModComments() {
		return nil
	}
	it, err := d.res.Item(ctx, id, in.Item)
	if err != nil {
		d.logger.Warnw("Failed to resolve content", "handler", "ModActivity", "id", id, "error", err)
		return nil
	}
	isMod, err := source.IsModerator(ctx, d.src, it.Author)
	if err != nil {
		d.logger.Warnw("Failed to check moderator status", "author", it.Author, "error", err)
		return nil
	}
	if !isMod {
		return nil
	}
	detail := d.res.Detail(ctx, it)
	msg := d.build.Content(detail, model.StateLive, model.ChannelModActivity, in.Settings.Messages.ModActivity)
	d.rec.Publish(ctx, id, model.ChannelModActivity, model.StateLive, url, msg)
	return nil
}
