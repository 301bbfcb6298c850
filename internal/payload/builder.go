// Package payload renders notifications as webhook messages.
package payload

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/laserman120/discord-bridge/internal/gateway"
	"github.com/laserman120/discord-bridge/internal/model"
)

const (
	maxDescription = 4096
	maxFieldValue  = 1024
	maxFields      = 25
	statusField    = "Status"
)

var stateColors = map[model.State]int{
	model.StatePublicPost:      0x71c7d6,
	model.StateLive:            0x71c7d6,
	model.StateApproved:        0x2ecc71,
	model.StateRemoved:         0xe74c3c,
	model.StateSpam:            0xe74c3c,
	model.StateDeleted:         0x808080,
	model.StateAwaitingReview:  0xe67e22,
	model.StateUnhandledReport: 0xf1c40f,
	model.StateNewThread:       0x3498db,
	model.StateAnswered:        0x2ecc71,
	model.StateNewReply:        0x9b59b6,
	model.StateArchived:        0x2ecc71,
}

const defaultColor = 0x95a5a6

var stateLabels = map[model.State]string{
	model.StateLive:            "Live",
	model.StatePublicPost:      "Live",
	model.StateApproved:        "Approved",
	model.StateRemoved:         "Removed",
	model.StateSpam:            "Removed (Spam)",
	model.StateAwaitingReview:  "Awaiting Review",
	model.StateDeleted:         "Deleted",
	model.StateUnhandledReport: "Unhandled Report",
	model.StateNewThread:       "New",
	model.StateAnswered:        "Answered",
	model.StateNewReply:        "New Reply",
	model.StateArchived:        "Archived",
}

func Color(s model.State) int {
	if c, ok := stateColors[s]; ok {
		return c
	}
	return defaultColor
}

func Label(s model.State) string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return "Unknown"
}

type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Content renders a post or comment. Public classes omit moderation detail.
func (b *Builder) Content(d *model.ContentDetail, state model.State, class model.ChannelClass, text string) gateway.Message {
	public := class == model.ChannelPublicNewPosts || class == model.ChannelPublicFlairWatch
	e := gateway.Embed{
		Title:       truncate(d.Title, 256),
		URL:         d.Permalink,
		Description: truncate(d.Body, maxDescription),
		Color:       Color(state),
		Author:      &gateway.EmbedAuthor{Name: "u/" + d.Author, URL: "https://www.reddit.com/user/" + d.Author},
		Footer:      &gateway.EmbedFooter{Text: "r/" + d.Subreddit},
	}
	if !d.CreatedAt.IsZero() {
		e.Timestamp = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	if d.ImageURL != "" {
		e.Image = &gateway.EmbedImage{URL: d.ImageURL}
	} else if d.Thumbnail != "" {
		e.Thumbnail = &gateway.EmbedImage{URL: d.Thumbnail}
	}
	if d.Flair != "" {
		e.Fields = append(e.Fields, field("Flair", d.Flair, true))
	}
	if d.CrosspostParent != nil {
		e.Fields = append(e.Fields, field("Crosspost of", d.CrosspostParent.Title+"\n"+d.CrosspostParent.Permalink, false))
	}
	if !public {
		e.Fields = append(e.Fields, field(statusField, Label(state), true))
		if d.RemovedBy != "" {
			e.Fields = append(e.Fields, field("Removed by", d.RemovedBy, true))
		}
		if d.RemovalReason != "" {
			e.Fields = append(e.Fields, field("Reason", d.RemovalReason, false))
		}
		if d.ReportCount > 0 {
			e.Fields = append(e.Fields, field(fmt.Sprintf("Reports (%d)", d.ReportCount), strings.Join(d.ReportReasons, "\n"), false))
		}
		if s := d.AuthorStats; s != nil {
			age := b.now().Sub(s.CreatedAt)
			e.Fields = append(e.Fields, field("Author",
				fmt.Sprintf("%d link / %d comment karma, %d days old", s.LinkKarma, s.CommentKarma, int(age.Hours()/24)), false))
		}
	}
	return gateway.Message{Content: text, Embeds: []gateway.Embed{e}}
}

// ModLog renders one mod-log entry. target is a display name and url may be
// empty.
func (b *Builder) ModLog(entry model.ModLogEntry, target, url, text string) gateway.Message {
	e := gateway.Embed{
		Title:     entry.Action,
		URL:       url,
		Color:     defaultColor,
		Timestamp: b.at(entry.CreatedAt),
		Fields: []gateway.EmbedField{
			field("Moderator", entry.Moderator, true),
			field("Target", target, true),
		},
	}
	if entry.Details != "" {
		e.Fields = append(e.Fields, field("Details", entry.Details, false))
	}
	if entry.Description != "" {
		e.Fields = append(e.Fields, field("Description", entry.Description, false))
	}
	return gateway.Message{Content: text, Embeds: []gateway.Embed{e}}
}

// ModMail renders a conversation with its opening message.
func (b *Builder) ModMail(conv *model.Conversation, msg model.ConversationMessage, state model.State, text string) gateway.Message {
	e := gateway.Embed{
		Title:       truncate(conv.Subject, 256),
		URL:         "https://mod.reddit.com/mail/all/" + conv.ID,
		Description: truncate(msg.Body, maxDescription),
		Color:       Color(state),
		Author:      &gateway.EmbedAuthor{Name: "u/" + msg.Author},
		Timestamp:   b.at(msg.Date),
		Fields:      []gateway.EmbedField{field(statusField, Label(state), true)},
	}
	return gateway.Message{Content: text, Embeds: []gateway.Embed{e}}
}

// AppendReply updates a previously sent conversation message: the status
// and color follow state and the reply is added as a field.
func (b *Builder) AppendReply(current gateway.Message, state model.State, reply model.ConversationMessage) gateway.Message {
	out := gateway.Message{Content: current.Content}
	if len(current.Embeds) == 0 {
		current.Embeds = []gateway.Embed{{}}
	}
	e := current.Embeds[0]
	e.Color = Color(state)
	e.Fields = setField(append([]gateway.EmbedField(nil), e.Fields...), statusField, Label(state))
	who := "u/" + reply.Author
	if reply.FromModerator() {
		who += " (mod)"
	}
	if len(e.Fields) < maxFields {
		e.Fields = append(e.Fields, field(who, reply.Body, false))
	}
	out.Embeds = append([]gateway.Embed{e}, current.Embeds[1:]...)
	return out
}

// SetState rewrites only the status of a previously sent message.
func (b *Builder) SetState(current gateway.Message, state model.State) gateway.Message {
	if len(current.Embeds) == 0 {
		return current
	}
	embeds := append([]gateway.Embed(nil), current.Embeds...)
	embeds[0].Color = Color(state)
	embeds[0].Fields = setField(append([]gateway.EmbedField(nil), embeds[0].Fields...), statusField, Label(state))
	current.Embeds = embeds
	current.ID = ""
	return current
}

// ModAbuse renders the high-activity warning for a moderator.
func (b *Builder) ModAbuse(moderator string, count int, window time.Duration, text string) gateway.Message {
	e := gateway.Embed{
		Title:       "High moderator activity",
		Description: fmt.Sprintf("u/%s performed %d monitored actions in the last %s.", moderator, count, window),
		Color:       Color(model.StateRemoved),
		Timestamp:   b.at(time.Time{}),
	}
	return gateway.Message{Content: text, Embeds: []gateway.Embed{e}}
}

func (b *Builder) at(t time.Time) string {
	if t.IsZero() {
		t = b.now()
	}
	return t.UTC().Format(time.RFC3339)
}

func field(name, value string, inline bool) gateway.EmbedField {
	if value == "" {
		value = "-"
	}
	return gateway.EmbedField{Name: truncate(name, 256), Value: truncate(value, maxFieldValue), Inline: inline}
}

func setField(fields []gateway.EmbedField, name, value string) []gateway.EmbedField {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = value
			return fields
		}
	}
	return append([]gateway.EmbedField{field(name, value, true)}, fields...)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
