package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Policy{Attempts: 5, Base: 100 * time.Millisecond, Max: 300 * time.Millisecond}

	d1 := p.Delay(1)
	assert.GreaterOrEqual(t, d1, 80*time.Millisecond)
	assert.Less(t, d1, 120*time.Millisecond)

	d2 := p.Delay(2)
	assert.GreaterOrEqual(t, d2, 160*time.Millisecond)
	assert.Less(t, d2, 240*time.Millisecond)

	d5 := p.Delay(5)
	assert.LessOrEqual(t, d5, 360*time.Millisecond)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	p := Policy{Attempts: 5, Base: time.Millisecond}
	notFound := errors.New("not found")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(notFound)
	})
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUp(t *testing.T) {
	p := Policy{Attempts: 2, Base: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestDoHonoursCancel(t *testing.T) {
	p := Policy{Attempts: 3, Base: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func(context.Context) error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}
