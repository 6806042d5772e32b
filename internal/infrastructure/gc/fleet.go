package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"inspectfleet/internal/domain/entity"
)

// ErrNoBotsAvailable is returned by Fleet.Inspect when no bot currently
// holds a ready GC session. The Scheduler requeues the entry at the head
// of its lane without consuming a retry attempt.
var ErrNoBotsAvailable = errors.New("no bots available")

// FleetEventKind discriminates fleet-health notifications, consumed by
// the ops alert notifier.
type FleetEventKind int

const (
	FleetEventReady FleetEventKind = iota
	FleetEventDisconnected
	FleetEventLoginFailed
	FleetEventError
)

// FleetEvent is a fleet-health notification surfaced by a Bot, forwarded
// by Fleet to any subscriber (see Fleet.Events).
type FleetEvent struct {
	Kind    FleetEventKind
	Bot     string
	EResult int
	Message string
	Err     error
}

// Fleet is the Bot Controller: it owns every Bot's lifecycle, tracks
// which ones currently hold a ready GC session, and round-robins inspect
// dispatch across them. Adapted from the teacher's telegram.ClientPool
// (round-robin next(), Start/WaitReady lifecycle), generalized to track
// per-bot readiness instead of an all-or-nothing pool.
type Fleet struct {
	bots []*Bot
	idx  atomic.Uint64

	log      *slog.Logger
	eventsCh chan FleetEvent
}

func NewFleet(bots []*Bot, log *slog.Logger) *Fleet {
	if len(bots) == 0 {
		log.Warn("fleet constructed with zero bots")
	}

	return &Fleet{
		bots:     bots,
		log:      log,
		eventsCh: make(chan FleetEvent, 64),
	}
}

// SessionFactory constructs the external game-coordinator session for one
// bot credential (spec §6.3, §9's dependency-injection point). Supplied by
// the operator when wiring the application.
type SessionFactory func(cred Credential) (Session, error)

// BuildFleet constructs one Bot per credential via sessionFactory, wiring
// each bot's FleetEvents back into the returned Fleet, and is the
// application wiring's entry point — NewFleet alone cannot do this since
// onBotEvent must stay unexported.
func BuildFleet(credentials []Credential, settings Settings, sessionFactory SessionFactory, totp TOTPFunc, log *slog.Logger) (*Fleet, error) {
	fleet := &Fleet{log: log, eventsCh: make(chan FleetEvent, 64)}

	bots := make([]*Bot, 0, len(credentials))

	for _, cred := range credentials {
		session, err := sessionFactory(cred)
		if err != nil {
			return nil, fmt.Errorf("session factory for %s: %w", cred.AccountName, err)
		}

		bots = append(bots, New(cred, settings, session, totp, log, fleet.onBotEvent))
	}

	fleet.bots = bots

	if len(bots) == 0 {
		log.Warn("fleet constructed with zero bots")
	}

	return fleet, nil
}

// Events returns the fleet-health stream; buffered, best-effort delivery
// (a full buffer drops the event rather than blocking a bot's actor loop).
func (f *Fleet) Events() <-chan FleetEvent { return f.eventsCh }

func (f *Fleet) onBotEvent(ev FleetEvent) {
	select {
	case f.eventsCh <- ev:
	default:
		f.log.Warn("fleet event buffer full, dropping", slog.String("bot", ev.Bot))
	}
}

// Run drives every Bot's actor loop concurrently until ctx is cancelled
// or one of them returns a non-context error.
func (f *Fleet) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, b := range f.bots {
		bot := b

		group.Go(func() error {
			err := bot.Run(groupCtx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return err
		})
	}

	return group.Wait()
}

// ReadyCount is the current number of bots holding a ready GC session;
// the Scheduler uses this as its live concurrency ceiling.
func (f *Fleet) ReadyCount() int {
	count := 0

	for _, b := range f.bots {
		if b.Ready() {
			count++
		}
	}

	return count
}

func (f *Fleet) HasAny() bool { return len(f.bots) > 0 }

func (f *Fleet) Size() int { return len(f.bots) }

// Inspect dispatches link to the next ready bot in round-robin order. It
// returns ErrNoBotsAvailable, without side effects, if none are ready at
// the moment of the call — the Scheduler relies on this to implement the
// "NoBotsAvailable does not consume an attempt" retry rule.
func (f *Fleet) Inspect(ctx context.Context, link entity.InspectLink) (entity.DecoratedItem, error) {
	bot := f.next()
	if bot == nil {
		return entity.DecoratedItem{}, ErrNoBotsAvailable
	}

	return bot.Inspect(ctx, link)
}

func (f *Fleet) next() *Bot {
	n := len(f.bots)
	if n == 0 {
		return nil
	}

	start := f.idx.Add(1)

	for i := 0; i < n; i++ {
		bot := f.bots[(int(start)+i)%n]
		if bot.Ready() {
			return bot
		}
	}

	return nil
}

// TryRelogAll requests a graceful relogin on every bot; used by the
// GET /relog admin endpoint.
func (f *Fleet) TryRelogAll() {
	for _, b := range f.bots {
		b.TryRelogin()
	}
}
