package gc_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/gc"
)

func nopLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeSession is a hand-driven stand-in for the external game-back-end
// client contract (gc.Session): tests push events on eventsCh exactly
// as a real session would, and record calls made by the Bot.
type fakeSession struct {
	eventsCh chan gc.Event

	mu           sync.Mutex
	loginCalls   int
	logOffCalls  int
	inspectCalls []string // assetIDs passed to InspectItem, in order
}

func newFakeSession() *fakeSession {
	return &fakeSession{eventsCh: make(chan gc.Event, 16)}
}

func (f *fakeSession) Login(gc.Credentials) error {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()

	return nil
}

func (f *fakeSession) LogOff() error {
	f.mu.Lock()
	f.logOffCalls++
	f.mu.Unlock()

	return nil
}

func (f *fakeSession) GamesPlayed([]uint32) error { return nil }

func (f *fakeSession) InspectItem(_, assetID, _ string) error {
	f.mu.Lock()
	f.inspectCalls = append(f.inspectCalls, assetID)
	f.mu.Unlock()

	return nil
}

func (f *fakeSession) Events() <-chan gc.Event { return f.eventsCh }

func (f *fakeSession) push(ev gc.Event) { f.eventsCh <- ev }

func (f *fakeSession) loginCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loginCalls
}

func bringReady(session *fakeSession) {
	session.push(gc.Event{Kind: gc.EventLoggedOn})
	session.push(gc.Event{Kind: gc.EventConnectedToGC})
}

// TestBot_ReconnectsAfterTransientDisconnect is scenario S7's partner
// invariant (spec.md:89's state-table row): a disconnect must leave the
// bot able to log back in on its own, not stuck forever waiting on a
// login timer that only ever fires once.
func TestBot_ReconnectsAfterTransientDisconnect(t *testing.T) {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- bot.Run(ctx) }()

	rq.Eventually(func() bool { return session.loginCallCount() >= 1 }, time.Second, time.Millisecond,
		"bot must attempt its initial login")

	bringReady(session)
	rq.Eventually(bot.Ready, time.Second, time.Millisecond)

	session.push(gc.Event{Kind: gc.EventDisconnected, EResult: 1})
	rq.Eventually(func() bool { return !bot.Ready() }, time.Second, time.Millisecond)

	rq.Eventually(func() bool { return session.loginCallCount() >= 2 }, time.Second, time.Millisecond,
		"a transient disconnect must rearm the login timer instead of leaving the bot stuck")

	bringReady(session)
	rq.Eventually(bot.Ready, time.Second, time.Millisecond, "bot must recover readiness once it logs back in")

	cancel()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// TestBot_DropsStaleItemInfoResponse is scenario S7: a response whose
// itemid doesn't match the currently dispatched request is dropped
// silently; only the matching response resolves Inspect.
func TestBot_DropsStaleItemInfoResponse(t *testing.T) {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = bot.Run(ctx) }()

	bringReady(session)
	rq.Eventually(bot.Ready, time.Second, time.Millisecond)

	resultCh := make(chan entity.DecoratedItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := bot.Inspect(ctx, entity.InspectLink{A: "10", S: "1", D: "2"})
		if err != nil {
			errCh <- err

			return
		}

		resultCh <- item
	}()

	rq.Eventually(func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()

		return len(session.inspectCalls) == 1
	}, time.Second, time.Millisecond)

	// mismatched itemid: dropped silently, request still pending.
	session.push(gc.Event{Kind: gc.EventInspectItemInfo, Item: gc.ItemInfo{ItemID: "99"}})

	select {
	case <-resultCh:
		t.Fatal("a mismatched itemid must not resolve the pending request")
	case <-errCh:
		t.Fatal("a mismatched itemid must not resolve the pending request")
	case <-time.After(50 * time.Millisecond):
	}

	// matching itemid: resolves the pending request.
	session.push(gc.Event{Kind: gc.EventInspectItemInfo, Item: gc.ItemInfo{ItemID: "10", PaintIndex: 7}})

	select {
	case item := <-resultCh:
		rq.Equal(7, item.PaintIndex)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("matching itemid never resolved the request")
	}
}
