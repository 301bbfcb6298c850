// Package intake turns platform events into queued tasks. Events arrive over
// HTTP or Kafka; both transports hand them to a Router.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"
)

var ErrEmptyEvent = errors.New("event has no type")

// Event is one platform event as delivered on the wire. Submit, report and
// update events carry the content under post or comment; everything else is
// already in payload shape.
type Event struct {
	model.Payload
	Post    *model.Ref `json:"post,omitempty"`
	Comment *model.Ref `json:"comment,omitempty"`
}

// updateActions are the moderator actions that change how mirrored content
// renders without changing its state.
var updateActions = map[string]struct{}{
	"marknsfw": {}, "lock": {}, "unlock": {}, "sticky": {}, "unsticky": {},
	"spoiler": {}, "unspoiler": {}, "editflair": {},
}

// Enqueuer accepts routed tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task model.Task)
}

type Router struct {
	queue  Enqueuer
	logger *log.Logger
}

func NewRouter(q Enqueuer, logger *log.Logger) *Router {
	return &Router{queue: q, logger: logger.Named("intake")}
}

// DecodeEvents accepts a single JSON event or an array of them.
func DecodeEvents(data []byte) ([]Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var events []Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return events, nil
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return []Event{ev}, nil
}

// Validate checks every event of a batch before any of them is routed.
func Validate(events []Event) error {
	for i, ev := range events {
		if ev.Kind == "" {
			return fmt.Errorf("event %d: %w", i, ErrEmptyEvent)
		}
	}
	return nil
}

// Route enqueues the tasks for ev and returns them.
func (r *Router) Route(ctx context.Context, ev Event) ([]model.Task, error) {
	if ev.Kind == "" {
		return nil, ErrEmptyEvent
	}
	tasks := Tasks(ev)
	for _, t := range tasks {
		r.queue.Enqueue(ctx, t)
	}
	if len(tasks) == 0 {
		r.logger.Infow("Event ignored", "type", ev.Kind)
	}
	return tasks, nil
}

// Tasks computes the fan-out for ev without enqueuing anything.
func Tasks(ev Event) []model.Task {
	var names []model.HandlerName
	p := ev.Payload
	switch ev.Kind {
	case model.EventModAction:
		if p.Target() != "" && model.IsContentID(p.Target()) {
			names = append(names, model.HandlerModQueue, model.HandlerStateSync, model.HandlerRemoval, model.HandlerRemovalReason)
		}
		names = append(names, model.HandlerModLog, model.HandlerModAbuse)
		if _, ok := updateActions[p.Action]; ok {
			names = append(names, model.HandlerUpdate)
		}
	case model.EventPostSubmit:
		if ev.Post == nil {
			return nil
		}
		p = content(ev.Kind, ev.Post)
		names = []model.HandlerName{
			model.HandlerNewPost, model.HandlerPublicPost, model.HandlerFlairWatch,
			model.HandlerModActivity, model.HandlerModQueue, model.HandlerReport,
		}
	case model.EventCommentSubmit:
		if ev.Comment == nil {
			return nil
		}
		p = content(ev.Kind, ev.Comment)
		names = []model.HandlerName{model.HandlerModQueue, model.HandlerReport, model.HandlerFlairWatch, model.HandlerModActivity}
	case model.EventPostDelete, model.EventCommentDelete:
		names = []model.HandlerName{model.HandlerModQueue, model.HandlerDeletion}
	case model.EventModMail:
		names = []model.HandlerName{model.HandlerModMail}
	case model.EventPostReport:
		if ev.Post == nil {
			return nil
		}
		p = content(ev.Kind, ev.Post)
		names = []model.HandlerName{model.HandlerReport, model.HandlerModQueue}
	case model.EventCommentReport:
		if ev.Comment == nil {
			return nil
		}
		p = content(ev.Kind, ev.Comment)
		names = []model.HandlerName{model.HandlerReport, model.HandlerModQueue}
	case model.EventPostUpdate, model.EventPostNsfwUpdate, model.EventPostSpoilerUpdate, model.EventPostFlairUpdate:
		if ev.Post == nil {
			return nil
		}
		p.PostID = ev.Post.ID
		names = []model.HandlerName{model.HandlerUpdate}
	case model.EventCommentUpdate:
		if ev.Comment == nil {
			return nil
		}
		p.CommentID = ev.Comment.ID
		names = []model.HandlerName{model.HandlerUpdate}
	}

	tasks := make([]model.Task, len(names))
	for i, n := range names {
		tasks[i] = model.Task{Handler: n, Payload: p}
	}
	return tasks
}

// content builds the payload for events whose data is the content itself.
func content(kind model.EventKind, ref *model.Ref) model.Payload {
	return model.Payload{Kind: kind, ID: ref.ID}
}
