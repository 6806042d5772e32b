package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_AllowsUpToMaxWithinWindow(t *testing.T) {
	rq := require.New(t)

	m := NewMemory(time.Minute, 2)
	ctx := context.Background()

	ok, err := m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.True(ok)

	ok, err = m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.True(ok)

	ok, err = m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.False(ok, "a third request inside the window must be refused")
}

func TestMemory_TracksCallersIndependently(t *testing.T) {
	rq := require.New(t)

	m := NewMemory(time.Minute, 1)
	ctx := context.Background()

	ok, err := m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.True(ok)

	ok, err = m.Allow(ctx, "2.2.2.2")
	rq.NoError(err)
	rq.True(ok, "a different caller key must have its own budget")
}

func TestMemory_ResetsAfterWindowElapses(t *testing.T) {
	rq := require.New(t)

	m := NewMemory(time.Minute, 1)
	clock := time.Now()
	m.now = func() time.Time { return clock }

	ctx := context.Background()

	ok, err := m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.True(ok)

	ok, err = m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.False(ok)

	clock = clock.Add(time.Minute + time.Millisecond)

	ok, err = m.Allow(ctx, "1.1.1.1")
	rq.NoError(err)
	rq.True(ok, "a new window must reset the counter")
}
