package gc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/gc"
)

func TestFleet_InspectReturnsErrNoBotsAvailableWhenNoneReady(t *testing.T) {
	rq := require.New(t)

	session := newFakeSession()
	settings := gc.Settings{
		RequestDelay:     time.Millisecond,
		RequestTTL:       time.Second,
		LoginRetryDelay:  5 * time.Millisecond,
		ReloginInterval:  time.Hour,
		MaxLoginAttempts: 5,
	}
	bot := gc.New(gc.Credential{AccountName: "acct"}, settings, session, nil, nopLogger(), nil)

	fleet := gc.NewFleet([]*gc.Bot{bot}, nopLogger())

	rq.Equal(0, fleet.ReadyCount())

	_, err := fleet.Inspect(context.Background(), entity.InspectLink{A: "1"})
	rq.ErrorIs(err, gc.ErrNoBotsAvailable)
}

// TestFleet_DispatchesToReadyBotAndReturnsDecoratedItem exercises the
// Bot Controller's round-robin dispatch path end to end through a
// single ready bot: Fleet.Inspect forwards to the bot's session and the
// matching wire response comes back decorated.
func TestFleet_DispatchesToReadyBotAndReturnsDecoratedItem(t *testing.T) {
	rq := require.New(t)

	session := newFakeSession()
	settings := gc.Settings{
		RequestDelay:     time.Millisecond,
		RequestTTL:       time.Second,
		LoginRetryDelay:  5 * time.Millisecond,
		ReloginInterval:  time.Hour,
		MaxLoginAttempts: 5,
	}
	bot := gc.New(gc.Credential{AccountName: "acct"}, settings, session, nil, nopLogger(), nil)
	fleet := gc.NewFleet([]*gc.Bot{bot}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = fleet.Run(ctx) }()

	bringReady(session)
	rq.Eventually(func() bool { return fleet.ReadyCount() == 1 }, time.Second, time.Millisecond)

	resultCh := make(chan entity.DecoratedItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := fleet.Inspect(ctx, entity.InspectLink{A: "42", S: "1", D: "2"})
		if err != nil {
			errCh <- err

			return
		}

		resultCh <- item
	}()

	rq.Eventually(func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()

		return len(session.inspectCalls) == 1 && session.inspectCalls[0] == "42"
	}, time.Second, time.Millisecond)

	session.push(gc.Event{Kind: gc.EventInspectItemInfo, Item: gc.ItemInfo{ItemID: "42", PaintIndex: 3}})

	select {
	case item := <-resultCh:
		rq.Equal(3, item.PaintIndex)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("inspect never resolved")
	}
}

// TestFleet_ReadyCountReflectsBotDisconnects covers the fleet-wide
// readiness accounting the Scheduler's concurrency tick relies on.
func TestFleet_ReadyCountReflectsBotDisconnects(t *testing.T) {
	rq := require.New(t)

	settings := gc.Settings{
		RequestDelay:     time.Millisecond,
		RequestTTL:       time.Second,
		LoginRetryDelay:  5 * time.Millisecond,
		ReloginInterval:  time.Hour,
		MaxLoginAttempts: 5,
	}

	sessionA := newFakeSession()
	sessionB := newFakeSession()
	botA := gc.New(gc.Credential{AccountName: "a"}, settings, sessionA, nil, nopLogger(), nil)
	botB := gc.New(gc.Credential{AccountName: "b"}, settings, sessionB, nil, nopLogger(), nil)

	fleet := gc.NewFleet([]*gc.Bot{botA, botB}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = fleet.Run(ctx) }()

	bringReady(sessionA)
	bringReady(sessionB)
	rq.Eventually(func() bool { return fleet.ReadyCount() == 2 }, time.Second, time.Millisecond)

	sessionA.push(gc.Event{Kind: gc.EventDisconnected, EResult: 1})
	rq.Eventually(func() bool { return fleet.ReadyCount() == 1 }, time.Second, time.Millisecond)
}
