// Package worker holds the long-running background loops: the Priority
// Queue / Scheduler that dispatches inspect requests to the bot fleet,
// and the periodic cache/catalog maintenance loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.appkode.ru/pub/go/failure"

	"inspectfleet/internal/aggregator"
	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/gc"
	"inspectfleet/pkg/errcodes"
	"inspectfleet/pkg/logx"
)

const priorityLanes = 5

// Dispatcher is the subset of the Bot Controller the Scheduler depends
// on. Satisfied by *gc.Fleet.
type Dispatcher interface {
	Inspect(ctx context.Context, link entity.InspectLink) (entity.DecoratedItem, error)
	ReadyCount() int
}

// Decorator enriches a dispatched result with static catalog metadata
// before it reaches the cache and the Job Aggregator.
type Decorator interface {
	Annotate(item *entity.DecoratedItem)
}

// ResultCache is the subset of internal/infrastructure/cache.ResultCache
// the Scheduler writes to on a successful dispatch.
type ResultCache interface {
	Insert(item entity.DecoratedItem, price *uint64)
}

// item is one pending unit of work: a link plus the Job it belongs to.
type item struct {
	entry entity.QueueEntry
	job   *aggregator.Job
}

// Scheduler is the five-lane priority dispatch queue (spec §4.6). The
// control-field shape (mutex-guarded isRunning/cancelFunc/wg,
// Start/Stop/Run) is adapted from the teacher's worker.MarketScanner;
// the strict-priority FIFO lane discipline and concurrency-follows-
// readyCount tick are new to this domain.
type Scheduler struct {
	dispatcher Dispatcher
	decorator  Decorator
	cache      ResultCache
	log        *slog.Logger

	tickInterval time.Duration

	mu          sync.Mutex
	lanes       [priorityLanes][]*item
	users       map[string]int
	processing  int
	concurrency int
	slotsFree   chan struct{}

	cancelFunc context.CancelFunc
	isRunning  bool
	wg         sync.WaitGroup
}

func NewScheduler(dispatcher Dispatcher, decorator Decorator, cache ResultCache, log *slog.Logger) *Scheduler {
	return &Scheduler{
		dispatcher:   dispatcher,
		decorator:    decorator,
		cache:        cache,
		log:          log,
		tickInterval: 50 * time.Millisecond,
		users:        make(map[string]int),
		slotsFree:    make(chan struct{}, 1),
	}
}

// Start runs the scheduler's concurrency-tick and dispatch loop in a
// background goroutine, mirroring MarketScanner.Start's control fields.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("scheduler is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.isRunning = true

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.cancelFunc = nil
			s.mu.Unlock()
		}()

		if err := s.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("scheduler stopped with error", logx.Error(err))
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()

	if !s.isRunning {
		s.mu.Unlock()

		return
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	s.mu.Unlock()

	s.wg.Wait()
}

// Run drives the concurrency-adjustment tick and, on each tick or wakeup,
// dispatches as many lane heads as available concurrency allows.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainAll()

			return ctx.Err()
		case <-ticker.C:
			s.adjustConcurrency()
			s.checkQueue(ctx)
		case <-s.slotsFree:
			s.checkQueue(ctx)
		}
	}
}

// drainAll fails every entry still sitting in a lane with Shutdown
// (spec §4.6: "queued entries are rejected with Shutdown" on context
// cancellation). Entries already dispatched to a bot are left to
// Bot.doShutdown, which resolves them with ErrShutdown itself.
func (s *Scheduler) drainAll() {
	s.mu.Lock()
	var pending []*item

	for i := range s.lanes {
		pending = append(pending, s.lanes[i]...)
		s.lanes[i] = nil
	}
	s.mu.Unlock()

	for _, it := range pending {
		s.finish(it)
		it.job.SetResponseErr(it.entry.Link.A, errcodes.Shutdown)
	}
}

func (s *Scheduler) adjustConcurrency() {
	s.mu.Lock()
	s.concurrency = s.dispatcher.ReadyCount()
	s.mu.Unlock()
}

// Enqueue admits entry under its Job. Priority is clamped to [1,5].
func (s *Scheduler) Enqueue(entry entity.QueueEntry, job *aggregator.Job) {
	lane := clampPriority(entry.Priority)

	s.mu.Lock()
	s.lanes[lane-1] = append(s.lanes[lane-1], &item{entry: entry, job: job})
	s.users[entry.IP]++
	s.mu.Unlock()

	s.wake()
}

func clampPriority(p int) int {
	if p < 1 || p > priorityLanes {
		return 4
	}

	return p
}

func (s *Scheduler) wake() {
	select {
	case s.slotsFree <- struct{}{}:
	default:
	}
}

// Size is the total number of entries currently queued across all lanes.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sizeLocked()
}

func (s *Scheduler) sizeLocked() int {
	n := 0
	for _, lane := range s.lanes {
		n += len(lane)
	}

	return n
}

// ProcessingCount is the number of entries currently dispatched to a bot.
func (s *Scheduler) ProcessingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.processing
}

// UserQueued reports ip's current accounted load (queued + in flight).
func (s *Scheduler) UserQueued(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.users[ip]
}

// Concurrency is the current dispatch concurrency ceiling.
func (s *Scheduler) Concurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.concurrency
}

// checkQueue is the non-reentrant dispatch loop body: it holds a single
// serialized pass that pulls lane heads up to the available concurrency
// and spawns one goroutine per dispatch, so the accounting state machine
// itself is never concurrent while the handler calls it are.
func (s *Scheduler) checkQueue(ctx context.Context) {
	for {
		it := s.popNextLocked()
		if it == nil {
			return
		}

		s.mu.Lock()
		s.processing++
		s.mu.Unlock()

		go s.dispatchOne(ctx, it)
	}
}

// popNextLocked dequeues the highest-priority non-empty lane head,
// subject to the current concurrency budget.
func (s *Scheduler) popNextLocked() *item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing >= s.concurrency {
		return nil
	}

	for i := range s.lanes {
		if len(s.lanes[i]) == 0 {
			continue
		}

		it := s.lanes[i][0]
		s.lanes[i] = s.lanes[i][1:]

		return it
	}

	return nil
}

func (s *Scheduler) dispatchOne(ctx context.Context, it *item) {
	defer func() {
		s.mu.Lock()
		s.processing--
		s.mu.Unlock()
		s.wake()
	}()

	decorated, err := s.dispatcher.Inspect(ctx, it.entry.Link)
	if err != nil {
		s.handleFailure(ctx, it, err)

		return
	}

	s.decorator.Annotate(&decorated)
	s.cache.Insert(decorated, it.entry.SubmittedPrice)

	s.finish(it)
	it.job.SetResponse(it.entry.Link.A, decorated)

	if decorated.Delay > 0 {
		select {
		case <-time.After(decorated.Delay):
		case <-ctx.Done():
		}
	}
}

func (s *Scheduler) handleFailure(ctx context.Context, it *item, err error) {
	if errors.Is(err, gc.ErrNoBotsAvailable) || errors.Is(err, gc.ErrNotReady) {
		s.requeueHead(it)

		return
	}

	it.entry.Attempts++

	if it.entry.Attempts >= it.entry.MaxAttempts {
		s.log.Warn("inspect entry failed, attempts exhausted",
			slog.String("asset_id", it.entry.Link.A),
			slog.Int("attempts", it.entry.Attempts),
			logx.Error(err),
		)

		s.finish(it)
		it.job.SetResponseErr(it.entry.Link.A, errcodes.TTLExceeded)

		return
	}

	backoff := time.Duration(1000*pow2(it.entry.Attempts-1)) * time.Millisecond

	go func() {
		select {
		case <-time.After(backoff):
			s.requeueHead(it)
		case <-ctx.Done():
			s.finish(it)
			it.job.SetResponseErr(it.entry.Link.A, errcodes.GenericBad)
		}
	}()
}

func (s *Scheduler) requeueHead(it *item) {
	lane := clampPriority(it.entry.Priority)

	s.mu.Lock()
	s.lanes[lane-1] = append([]*item{it}, s.lanes[lane-1]...)
	s.mu.Unlock()

	s.wake()
}

// finish decrements the submitting IP's accounted load. Called exactly
// once per entry, on terminal success or terminal failure.
func (s *Scheduler) finish(it *item) {
	s.mu.Lock()
	if s.users[it.entry.IP] > 0 {
		s.users[it.entry.IP]--
	}

	if s.users[it.entry.IP] == 0 {
		delete(s.users, it.entry.IP)
	}
	s.mu.Unlock()
}

func pow2(n int) int64 {
	if n < 0 {
		return 1
	}

	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 2
	}

	return result
}

// AdmitJob enforces the admission limits of spec §4.6 before any entry is
// enqueued: refuses the whole job if it would push the caller over
// maxSimultaneous, or the total queue over maxQueueSize.
func (s *Scheduler) AdmitJob(ip string, remainingSize, maxSimultaneous, maxQueueSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[ip]+remainingSize > maxSimultaneous {
		return failure.NewInvalidArgumentError(
			fmt.Sprintf("ip %s would exceed max_simultaneous_requests", ip),
			failure.WithCode(errcodes.MaxRequests),
			failure.WithDescription("too many simultaneous requests"),
		)
	}

	if s.sizeLocked()+remainingSize > maxQueueSize {
		return failure.NewInvalidArgumentError(
			"queue would exceed max_queue_size",
			failure.WithCode(errcodes.MaxQueueSize),
			failure.WithDescription("queue is full"),
		)
	}

	return nil
}
