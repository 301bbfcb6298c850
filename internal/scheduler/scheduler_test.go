package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/stretchr/testify/assert"
)

func TestRunTicksUntilCancelled(t *testing.T) {
	var ok, failing, panicking, disabled atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	s := New(log.NewNop(),
		Job{Name: "ok", Interval: 5 * time.Millisecond, Run: func(context.Context) error { ok.Add(1); return nil }},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error { failing.Add(1); return errors.New("boom") }},
		Job{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(context.Context) error { panicking.Add(1); panic("boom") }},
		Job{Name: "disabled", Run: func(context.Context) error { disabled.Add(1); return nil }},
	)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return ok.Load() >= 2 && failing.Load() >= 2 && panicking.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, disabled.Load())
}
