package worker_test

import (
	"context"
	"log/slog"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspectfleet/internal/aggregator"
	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/gc"
	"inspectfleet/internal/worker"
	"inspectfleet/pkg/errcodes"
)

func nopLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeDispatcher struct {
	ready int32

	mu          sync.Mutex
	calls       []entity.InspectLink
	failNoBots  int32 // number of future calls that should fail with ErrNoBotsAvailable
	failGeneric int32 // number of future calls that should fail with an attempt-consuming error
}

func (f *fakeDispatcher) ReadyCount() int { return int(atomic.LoadInt32(&f.ready)) }

func (f *fakeDispatcher) Inspect(_ context.Context, link entity.InspectLink) (entity.DecoratedItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, link)
	f.mu.Unlock()

	if atomic.LoadInt32(&f.failNoBots) > 0 {
		atomic.AddInt32(&f.failNoBots, -1)

		return entity.DecoratedItem{}, gc.ErrNoBotsAvailable
	}

	if atomic.LoadInt32(&f.failGeneric) > 0 {
		atomic.AddInt32(&f.failGeneric, -1)

		return entity.DecoratedItem{}, gc.ErrTimeout
	}

	return entity.DecoratedItem{A: link.A}, nil
}

type fakeDecorator struct{}

func (fakeDecorator) Annotate(*entity.DecoratedItem) {}

type fakeResultCache struct {
	mu      sync.Mutex
	inserts int
}

func (c *fakeResultCache) Insert(entity.DecoratedItem, *uint64) {
	c.mu.Lock()
	c.inserts++
	c.mu.Unlock()
}

func TestScheduler_AdmitJobEnforcesLimits(t *testing.T) {
	rq := require.New(t)

	sched := worker.NewScheduler(&fakeDispatcher{ready: 1}, fakeDecorator{}, &fakeResultCache{}, nopLogger())

	rq.NoError(sched.AdmitJob("1.1.1.1", 1, 2, 10))
	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "1"}, IP: "1.1.1.1", Priority: 3, MaxAttempts: 3},
		aggregator.New("j1", "1.1.1.1", false, func(*aggregator.Job) {}))
	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "2"}, IP: "1.1.1.1", Priority: 3, MaxAttempts: 3},
		aggregator.New("j2", "1.1.1.1", false, func(*aggregator.Job) {}))

	err := sched.AdmitJob("1.1.1.1", 1, 2, 10)
	rq.Error(err, "a third simultaneous request from the same ip should be refused")
}

func TestScheduler_AdmitJobEnforcesQueueSize(t *testing.T) {
	rq := require.New(t)

	sched := worker.NewScheduler(&fakeDispatcher{ready: 1}, fakeDecorator{}, &fakeResultCache{}, nopLogger())

	rq.NoError(sched.AdmitJob("1.1.1.1", 1, 100, 1))
	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "1"}, IP: "1.1.1.1", Priority: 3, MaxAttempts: 3},
		aggregator.New("j1", "1.1.1.1", false, func(*aggregator.Job) {}))

	err := sched.AdmitJob("2.2.2.2", 1, 100, 1)
	rq.Error(err, "queue is already at max_queue_size")
}

func TestScheduler_DispatchesAndCachesOnSuccess(t *testing.T) {
	rq := require.New(t)

	dispatcher := &fakeDispatcher{ready: 1}
	cache := &fakeResultCache{}
	sched := worker.NewScheduler(dispatcher, fakeDecorator{}, cache, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rq.NoError(sched.Start(ctx))
	defer sched.Stop()

	done := make(chan struct{})
	job := aggregator.New("j1", "1.1.1.1", false, func(*aggregator.Job) { close(done) })
	job.Add(entity.InspectLink{A: "1"}, nil)

	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "1"}, IP: "1.1.1.1", Priority: 4, MaxAttempts: 3}, job)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never flushed")
	}

	results := job.Results()
	rq.Len(results, 1)
	rq.Equal(entity.LinkOK, results[0].Status)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	rq.Equal(1, cache.inserts)
}

func TestScheduler_NoBotsAvailableRequeuesWithoutConsumingAttempt(t *testing.T) {
	rq := require.New(t)

	dispatcher := &fakeDispatcher{ready: 1, failNoBots: 1}
	sched := worker.NewScheduler(dispatcher, fakeDecorator{}, &fakeResultCache{}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rq.NoError(sched.Start(ctx))
	defer sched.Stop()

	done := make(chan struct{})
	job := aggregator.New("j1", "1.1.1.1", false, func(*aggregator.Job) { close(done) })
	job.Add(entity.InspectLink{A: "1"}, nil)

	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "1"}, IP: "1.1.1.1", Priority: 4, MaxAttempts: 1}, job)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never flushed")
	}

	results := job.Results()
	rq.Equal(entity.LinkOK, results[0].Status, "retry after NoBotsAvailable must not consume the single allowed attempt")
}

// TestScheduler_DispatchesInStrictPriorityOrder is scenario S1: with
// zero ready bots, entries queue up across lanes; once a bot becomes
// ready, dispatch order follows priority 1 (highest) down to 5 (lowest),
// regardless of enqueue order.
func TestScheduler_DispatchesInStrictPriorityOrder(t *testing.T) {
	rq := require.New(t)

	dispatcher := &fakeDispatcher{ready: 0}
	sched := worker.NewScheduler(dispatcher, fakeDecorator{}, &fakeResultCache{}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rq.NoError(sched.Start(ctx))
	defer sched.Stop()

	enqueue := func(assetID string, priority int) {
		job := aggregator.New(assetID, "1.1.1.1", false, func(*aggregator.Job) {})
		job.Add(entity.InspectLink{A: assetID}, nil)
		sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: assetID}, IP: "1.1.1.1", Priority: priority, MaxAttempts: 3}, job)
	}

	enqueue("1", 5)
	enqueue("2", 3)
	enqueue("3", 1)

	atomic.StoreInt32(&dispatcher.ready, 1)

	rq.Eventually(func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()

		return len(dispatcher.calls) == 3
	}, 2*time.Second, 10*time.Millisecond)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	rq.Equal([]string{"3", "2", "1"}, []string{dispatcher.calls[0].A, dispatcher.calls[1].A, dispatcher.calls[2].A})
}

// TestScheduler_ExhaustsAttemptsToTTLExceeded is scenario S5: with
// maxAttempts=3, three consecutive attempt-consuming failures resolve
// the entry as TTLExceeded and decrement users[ip] exactly once.
func TestScheduler_ExhaustsAttemptsToTTLExceeded(t *testing.T) {
	rq := require.New(t)

	dispatcher := &fakeDispatcher{ready: 1, failGeneric: 3}
	sched := worker.NewScheduler(dispatcher, fakeDecorator{}, &fakeResultCache{}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rq.NoError(sched.Start(ctx))
	defer sched.Stop()

	done := make(chan struct{})
	job := aggregator.New("j1", "1.1.1.1", false, func(*aggregator.Job) { close(done) })
	job.Add(entity.InspectLink{A: "1"}, nil)

	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "1"}, IP: "1.1.1.1", Priority: 3, MaxAttempts: 3}, job)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("job never flushed")
	}

	results := job.Results()
	rq.Len(results, 1)
	rq.Equal(entity.LinkErr, results[0].Status)
	rq.Equal(errcodes.TTLExceeded, results[0].Err)
	rq.Zero(sched.UserQueued("1.1.1.1"), "users[ip] must decrement exactly once on terminal failure")
}

// TestScheduler_ShutdownDrainsQueuedEntries covers spec's "queued
// entries are rejected with Shutdown" requirement: an entry that never
// reached a bot must still resolve once Run's context is cancelled,
// rather than hanging forever.
func TestScheduler_ShutdownDrainsQueuedEntries(t *testing.T) {
	rq := require.New(t)

	dispatcher := &fakeDispatcher{ready: 0}
	sched := worker.NewScheduler(dispatcher, fakeDecorator{}, &fakeResultCache{}, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())

	rq.NoError(sched.Start(ctx))

	done := make(chan struct{})
	job := aggregator.New("j1", "1.1.1.1", false, func(*aggregator.Job) { close(done) })
	job.Add(entity.InspectLink{A: "1"}, nil)
	sched.Enqueue(entity.QueueEntry{Link: entity.InspectLink{A: "1"}, IP: "1.1.1.1", Priority: 3, MaxAttempts: 3}, job)

	cancel()
	sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never flushed on shutdown")
	}

	results := job.Results()
	rq.Len(results, 1)
	rq.Equal(entity.LinkErr, results[0].Status)
	rq.Equal(errcodes.Shutdown, results[0].Err)
}
