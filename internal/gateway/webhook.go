package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

type Options struct {
	HTTPClient *http.Client
	// Requests counts calls by op and outcome. Optional.
	Requests *prometheus.CounterVec
	// BreakerTimeout is how long the breaker stays open. Defaults to 10s.
	BreakerTimeout time.Duration
}

// Webhook implements Gateway over Discord's webhook HTTP API. All calls go
// through one circuit breaker so an outage on the destination side does
// not stall every task in a batch on timeouts.
type Webhook struct {
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	requests *prometheus.CounterVec
	logger   *log.Logger
}

func NewWebhook(opts Options, logger *log.Logger) *Webhook {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	return &Webhook{
		client:   opts.HTTPClient,
		cb:       cb,
		requests: opts.Requests,
		logger:   logger.Named("webhook"),
	}
}

// response is what the breaker sees. Server-side failures and transport
// errors trip it; client errors do not.
type response struct {
	status int
	body   []byte
}

var errServer = errors.New("server error")

func (w *Webhook) do(ctx context.Context, method, target string, body any) (response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	out, err := w.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return response{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return response{}, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		r := response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("%w: status %d", errServer, resp.StatusCode)
		}
		return r, nil
	})
	if out == nil {
		return response{}, err
	}
	return out.(response), err
}

func (w *Webhook) observe(op string, r Result) {
	if w.requests == nil {
		return
	}
	outcome := "ok"
	if !r.OK() {
		outcome = "failed"
	}
	w.requests.WithLabelValues(op, outcome).Inc()
}

func (w *Webhook) Send(ctx context.Context, endpoint string, msg Message) (res Result) {
	defer func() { w.observe("send", res) }()

	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Host == "" {
		w.logger.Errorw("Invalid webhook endpoint", "error", err)
		return Failed("invalid endpoint")
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()

	resp, err := w.do(ctx, http.MethodPost, u.String(), msg)
	if err != nil {
		w.logger.Errorw("Failed to send message", "status", resp.status, "error", err)
		return Failed(err.Error())
	}
	if resp.status < 200 || resp.status > 299 {
		w.logger.Errorw("Send rejected", "status", resp.status, "body", string(resp.body))
		return Failed(fmt.Sprintf("status %d", resp.status))
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil || created.ID == "" {
		w.logger.Errorw("Send response carried no message id", "body", string(resp.body))
		return Failed("missing message id")
	}
	w.logger.Infow("Sent message", "message_id", created.ID)
	return Ok(created.ID)
}

func (w *Webhook) Edit(ctx context.Context, endpoint, messageID string, msg Message) (res Result) {
	defer func() { w.observe("edit", res) }()

	target, err := messageURL(endpoint, messageID)
	if err != nil {
		w.logger.Errorw("Invalid webhook endpoint", "message_id", messageID, "error", err)
		return Failed("invalid endpoint")
	}
	resp, err := w.do(ctx, http.MethodPatch, target, msg)
	if err != nil {
		w.logger.Errorw("Failed to edit message", "message_id", messageID, "error", err)
		return Failed(err.Error())
	}
	if resp.status < 200 || resp.status > 299 {
		w.logger.Errorw("Edit rejected", "message_id", messageID, "status", resp.status, "body", string(resp.body))
		return Failed(fmt.Sprintf("status %d", resp.status))
	}
	w.logger.Infow("Edited message", "message_id", messageID)
	return Ok(messageID)
}

// Delete removes a message. A message that is already gone counts as deleted.
func (w *Webhook) Delete(ctx context.Context, endpoint, messageID string) (res Result) {
	defer func() { w.observe("delete", res) }()

	target, err := messageURL(endpoint, messageID)
	if err != nil {
		w.logger.Errorw("Invalid webhook endpoint", "message_id", messageID, "error", err)
		return Failed("invalid endpoint")
	}
	resp, err := w.do(ctx, http.MethodDelete, target, nil)
	if err != nil {
		w.logger.Errorw("Failed to delete message", "message_id", messageID, "error", err)
		return Failed(err.Error())
	}
	if (resp.status >= 200 && resp.status <= 299) || resp.status == http.StatusNotFound {
		w.logger.Infow("Deleted message", "message_id", messageID, "status", resp.status)
		return Ok(messageID)
	}
	w.logger.Errorw("Delete rejected", "message_id", messageID, "status", resp.status, "body", string(resp.body))
	return Failed(fmt.Sprintf("status %d", resp.status))
}

func (w *Webhook) Fetch(ctx context.Context, endpoint, messageID string) (Message, bool) {
	target, err := messageURL(endpoint, messageID)
	if err != nil {
		w.logger.Errorw("Invalid webhook endpoint", "message_id", messageID, "error", err)
		w.observe("fetch", Failed("invalid endpoint"))
		return Message{}, false
	}
	resp, err := w.do(ctx, http.MethodGet, target, nil)
	if err != nil || resp.status != http.StatusOK {
		w.logger.Errorw("Failed to fetch message", "message_id", messageID, "status", resp.status, "error", err)
		w.observe("fetch", Failed("fetch"))
		return Message{}, false
	}
	var msg Message
	if err := json.Unmarshal(resp.body, &msg); err != nil {
		w.logger.Errorw("Fetched message undecodable", "message_id", messageID, "error", err)
		w.observe("fetch", Failed("decode"))
		return Message{}, false
	}
	w.observe("fetch", Ok(messageID))
	return msg, true
}

func messageURL(endpoint, messageID string) (string, error) {
	if _, _, err := parseEndpoint(endpoint); err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Path = strings.TrimRight(u.Path, "/") + "/messages/" + url.PathEscape(messageID)
	return u.String(), nil
}
