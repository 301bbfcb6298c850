package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/laserman120/discord-bridge/internal/model"
	"github.com/laserman120/discord-bridge/internal/settings"
)

// abuseExempt accounts never trigger the high-activity alert.
var abuseExempt = []string{"automoderator", "reddit", "anti-evil operations"}

func (d *Dispatcher) modLog(ctx context.Context, in Input) error {
	p := in.Payload
	url := in.Settings.Webhook(model.ChannelModLog)
	if url == "" || p.Action == "" || !in.Settings.LogsAction(p.Action) {
		return nil
	}
	key := p.ID
	if key == "" {
		key = p.Target()
	}
	if key == "" {
		return nil
	}

	target, link := d.modLogTarget(ctx, p)
	text, err := in.Settings.ModLogText(p.Action)
	if err != nil {
		d.logger.Warnw("Custom mod log messages invalid, using default", "error", err)
	}
	entry := model.ModLogEntry{
		ID:          p.ID,
		Action:      p.Action,
		Moderator:   p.Moderator,
		TargetID:    p.Target(),
		Details:     p.Details,
		Description: p.Description,
		CreatedAt:   d.now(),
	}
	msg := d.build.ModLog(entry, target, link, text)
	d.rec.Publish(ctx, key, model.ChannelModLog, model.StateLive, url, msg)
	return nil
}

// modLogTarget names what a moderator action was aimed at: a post or
// comment, a user, or the subreddit itself.
func (d *Dispatcher) modLogTarget(ctx context.Context, p model.Payload) (string, string) {
	if id := p.ContentID(); id != "" {
		if _, detail, ok := d.resolve(ctx, "ModLog", id, nil); ok {
			return detail.Title, detail.Permalink
		}
		if p.TargetPost != nil && p.TargetPost.Title != "" {
			return p.TargetPost.Title, "https://reddit.com" + p.TargetPost.Permalink
		}
		return id, ""
	}
	if u := p.TargetUser; u != nil && u.Name != "" {
		return "u/" + u.Name, "https://www.reddit.com/user/" + u.Name
	}
	if p.Subreddit != "" {
		return "r/" + p.Subreddit, "https://www.reddit.com/r/" + p.Subreddit
	}
	return "subreddit", ""
}

// modAbuse counts every action per moderator and alerts once the monitored
// actions within the timeframe reach the threshold, at most once per
// cooldown.
func (d *Dispatcher) modAbuse(ctx context.Context, in Input) error {
	p := in.Payload
	mod := strings.TrimSpace(p.Moderator)
	if mod == "" || settings.Contains(abuseExempt, mod) {
		return nil
	}
	url := strings.TrimSpace(in.Settings.Webhooks.ModAbuse)
	if url == "" {
		return nil
	}

	target := p.Target()
	if target == "" && p.TargetUser != nil {
		target = p.TargetUser.ID
	}
	if target == "" {
		target = "subreddit"
	}
	now := d.now()
	if err := d.cache.TrackAction(ctx, mod, p.Action, target, now); err != nil {
		return fmt.Errorf("mod abuse: %w", err)
	}

	monitored := in.Settings.ModAbuse.Actions
	if !contains(monitored, p.Action) {
		return nil
	}
	window := in.Settings.AbuseWindow()
	count, err := d.cache.CountActions(ctx, mod, window, monitored, now)
	if err != nil {
		return fmt.Errorf("mod abuse: %w", err)
	}
	threshold := in.Settings.ModAbuse.Threshold
	if count < threshold {
		return nil
	}
	cooling, err := d.cache.OnCooldown(ctx, mod)
	if err != nil {
		return fmt.Errorf("mod abuse: %w", err)
	}
	if cooling {
		d.logger.Infow("Activity threshold hit during cooldown", "moderator", mod, "count", count, "threshold", threshold)
		return nil
	}

	d.logger.Warnw("Activity threshold hit", "moderator", mod, "count", count, "window", window)
	res := d.gw.Send(ctx, url, d.build.ModAbuse(mod, count, window, in.Settings.ModAbuse.Message))
	if !res.OK() {
		return nil
	}
	if err := d.cache.SetCooldown(ctx, mod); err != nil {
		return fmt.Errorf("mod abuse: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
