// Package gatewaytest provides a recording gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"strconv"
	"sync"

	"github.com/laserman120/discord-bridge/internal/gateway"
)

type Call struct {
	Op        string
	Endpoint  string
	MessageID string
	Message   gateway.Message
}

// Recorder stores sent messages in memory and records every call. Set Fail
// to make every mutating call return Failed.
type Recorder struct {
	mu       sync.Mutex
	next     int
	Calls    []Call
	Messages map[string]gateway.Message
	Fail     bool
}

func NewRecorder() *Recorder {
	return &Recorder{Messages: map[string]gateway.Message{}}
}

func (r *Recorder) record(c Call) {
	r.Calls = append(r.Calls, c)
}

func (r *Recorder) Send(ctx context.Context, endpoint string, msg gateway.Message) gateway.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: "send", Endpoint: endpoint, Message: msg})
	if r.Fail {
		return gateway.Failed("forced failure")
	}
	r.next++
	id := "m" + strconv.Itoa(r.next)
	msg.ID = id
	r.Messages[id] = msg
	return gateway.Ok(id)
}

func (r *Recorder) Edit(ctx context.Context, endpoint, messageID string, msg gateway.Message) gateway.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: "edit", Endpoint: endpoint, MessageID: messageID, Message: msg})
	if r.Fail {
		return gateway.Failed("forced failure")
	}
	msg.ID = messageID
	r.Messages[messageID] = msg
	return gateway.Ok(messageID)
}

func (r *Recorder) Delete(ctx context.Context, endpoint, messageID string) gateway.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: "delete", Endpoint: endpoint, MessageID: messageID})
	if r.Fail {
		return gateway.Failed("forced failure")
	}
	delete(r.Messages, messageID)
	return gateway.Ok(messageID)
}

func (r *Recorder) Fetch(ctx context.Context, endpoint, messageID string) (gateway.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: "fetch", Endpoint: endpoint, MessageID: messageID})
	msg, ok := r.Messages[messageID]
	return msg, ok
}

// Count returns how many calls of op were made.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}
