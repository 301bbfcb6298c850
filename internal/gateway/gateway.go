// Package gateway talks to the destination platform through webhooks.
//
// Every call is best-effort. Failures are logged and turned into a Result;
// nothing here returns a transport error to the caller.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Result is the outcome of a gateway call: Ok carries the message id,
// Failed carries the reason.
type Result struct {
	id     string
	reason string
	ok     bool
}

func Ok(id string) Result         { return Result{id: id, ok: true} }
func Failed(reason string) Result { return Result{reason: reason} }

func (r Result) OK() bool       { return r.ok }
func (r Result) ID() string     { return r.id }
func (r Result) Reason() string { return r.reason }

func (r Result) String() string {
	if r.ok {
		return "ok(" + r.id + ")"
	}
	return "failed(" + r.reason + ")"
}

// Gateway is the destination-side API.
type Gateway interface {
	Send(ctx context.Context, endpoint string, msg Message) Result
	Edit(ctx context.Context, endpoint, messageID string, msg Message) Result
	Delete(ctx context.Context, endpoint, messageID string) Result
	Fetch(ctx context.Context, endpoint, messageID string) (Message, bool)
}

// Message is a webhook message body.
type Message struct {
	ID         string            `json:"id,omitempty"`
	Content    string            `json:"content,omitempty"`
	Embeds     []Embed           `json:"embeds,omitempty"`
	Components []json.RawMessage `json:"components,omitempty"`
	Flags      int               `json:"flags,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

var webhookPattern = regexp.MustCompile(`^https://(?:ptb\.|canary\.)?discord(?:app)?\.com/api/webhooks/\d+/[a-zA-Z0-9_-]+$`)

var ErrInvalidWebhook = errors.New("invalid webhook url")

// ValidateWebhookURL checks that u is a Discord webhook URL.
func ValidateWebhookURL(u string) error {
	if !webhookPattern.MatchString(strings.TrimSpace(u)) {
		return ErrInvalidWebhook
	}
	return nil
}

// parseEndpoint splits a webhook URL into its id and token.
func parseEndpoint(endpoint string) (id, token string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "", "", ErrInvalidWebhook
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
