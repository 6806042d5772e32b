package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/pkg/logx"
)

// Bot-level failure taxonomy (spec §4.4). The Scheduler is the only
// consumer; it never serializes these directly to HTTP callers.
var (
	ErrNotReady     = errors.New("bot not ready")
	ErrTimeout      = errors.New("request_ttl elapsed")
	ErrSessionError = errors.New("game session error")
	ErrShutdown     = errors.New("bot shutting down")
)

// fatal login eresults: 84 gets max backoff, the rest are reported but
// retried with normal exponential backoff (spec §4.4 state table).
const eresultLoggedInElsewhere = 84

//nolint:gochecknoglobals
var fatalLoginEResults = map[int]struct{}{
	61: {}, 63: {}, 65: {}, 66: {}, 84: {},
}

// Settings is a Bot's configurable policy (spec §4.4).
type Settings struct {
	RequestDelay          time.Duration
	RequestTTL            time.Duration
	MaxConcurrentRequests int
	ConnectionTimeout     time.Duration
	LoginRetryDelay       time.Duration
	GCReconnectDelay      time.Duration
	ReloginInterval       time.Duration
	ReloginJitter         time.Duration
	MaxLoginAttempts      int
}

func DefaultSettings() Settings {
	return Settings{
		RequestDelay:          time.Second,
		RequestTTL:            30 * time.Second,
		MaxConcurrentRequests: 5,
		ConnectionTimeout:     30 * time.Second,
		LoginRetryDelay:       5 * time.Second,
		GCReconnectDelay:      5 * time.Second,
		ReloginInterval:       30 * time.Minute,
		ReloginJitter:         4 * time.Minute,
		MaxLoginAttempts:      5,
	}
}

type sessionState int

const (
	stateDisconnected sessionState = iota
	stateLoggingIn
	stateLoggedIn
	stateGCPending
	stateGCReady
	stateGCBusy
	stateShuttingDown
)

// inspectRequest is how callers hand work to the Bot's single actor
// loop; the loop is the only goroutine that mutates session state.
type inspectRequest struct {
	link     entity.InspectLink
	resultCh chan inspectResult
}

type inspectResult struct {
	item entity.DecoratedItem
	err  error
}

type currentRequest struct {
	link      entity.InspectLink
	startedAt time.Time
	seq       uint64
	resultCh  chan inspectResult
}

// Credential identifies one Bot's login, independent of the wire Session
// implementation.
type Credential struct {
	AccountName  string
	Password     string
	SharedSecret string
	ProxyURL     string
}

// TOTPFunc generates a two-factor code from a shared secret. Out of
// scope per spec §1; supplied by the caller.
type TOTPFunc func(sharedSecret string) (string, error)

// Bot owns one authenticated game-coordinator session and its local
// single-slot dispatcher. The session+dispatcher idiom (persistent
// connection, readiness gate, graceful shutdown) is adapted from the
// teacher's internal/infrastructure/telegram.Client; the wire protocol
// itself is the Session contract (session.go), not gotd/td.
type Bot struct {
	cred     Credential
	settings Settings
	session  Session
	totp     TOTPFunc
	log      *slog.Logger

	limiter *rate.Limiter

	ready atomic.Bool

	// loginTimer drives attemptLogin; armLoginTimer rearms it whenever
	// state transitions to stateDisconnected, not only from its own
	// firing case, so a later disconnect (session drop, relogin) always
	// gets a fresh login poller instead of relying on the one-shot
	// initial timer.
	loginTimer *time.Timer

	inspectCh chan inspectRequest
	relogCh   chan struct{}
	timeoutCh chan uint64

	onEvent func(FleetEvent)

	// actor-owned, only ever touched from Run's goroutine
	state         sessionState
	loginAttempts int
	current       *currentRequest
	seqCounter    uint64
}

func New(cred Credential, settings Settings, session Session, totp TOTPFunc, log *slog.Logger, onEvent func(FleetEvent)) *Bot {
	return &Bot{
		cred:       cred,
		settings:   settings,
		session:    session,
		totp:       totp,
		log:        log.With(slog.String("bot", cred.AccountName)),
		limiter:    rate.NewLimiter(rate.Every(settings.RequestDelay), 1),
		loginTimer: time.NewTimer(0),
		inspectCh:  make(chan inspectRequest),
		relogCh:    make(chan struct{}, 1),
		timeoutCh:  make(chan uint64, 1),
		onEvent:    onEvent,
		state:      stateDisconnected,
	}
}

func (b *Bot) Name() string { return b.cred.AccountName }

// Ready reports whether the bot currently holds a usable GC session
// (GCReady, including while busy with a request).
func (b *Bot) Ready() bool { return b.ready.Load() }

// Inspect is the Bot's single operation: dispatch link and wait for its
// decorated result, a timeout, or ctx cancellation. Per spec §4.4/§9,
// exactly one inspect may be in flight per bot; a call that reaches the
// actor while it is not GCReady or already busy is rejected with
// ErrNotReady.
func (b *Bot) Inspect(ctx context.Context, link entity.InspectLink) (entity.DecoratedItem, error) {
	if !b.Ready() {
		return entity.DecoratedItem{}, ErrNotReady
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return entity.DecoratedItem{}, fmt.Errorf("rate limiter wait: %w", err)
	}

	req := inspectRequest{link: link, resultCh: make(chan inspectResult, 1)}

	select {
	case b.inspectCh <- req:
	case <-ctx.Done():
		return entity.DecoratedItem{}, ctx.Err()
	}

	select {
	case res := <-req.resultCh:
		return res.item, res.err
	case <-ctx.Done():
		return entity.DecoratedItem{}, ctx.Err()
	}
}

// TryRelogin requests a graceful relog at the next opportunity; a no-op
// if one is already pending.
func (b *Bot) TryRelogin() {
	select {
	case b.relogCh <- struct{}{}:
	default:
	}
}

// Run drives the Bot's single actor loop until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	defer b.loginTimer.Stop()

	reloginTimer := time.NewTimer(b.nextReloginDelay())
	defer reloginTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			b.doShutdown()

			return ctx.Err()

		case ev, ok := <-b.session.Events():
			if !ok {
				continue
			}

			b.handleEvent(ctx, ev)

		case <-b.loginTimer.C:
			b.attemptLogin(ctx)

			if b.state == stateDisconnected {
				b.loginTimer.Reset(b.loginBackoff())
			}

		case seq := <-b.timeoutCh:
			b.handleTimeout(seq)

		case <-reloginTimer.C:
			b.maybeScheduledRelogin(ctx)
			reloginTimer.Reset(b.nextReloginDelay())

		case <-b.relogCh:
			b.forceRelogin(ctx)

		case req := <-b.inspectCh:
			b.dispatch(ctx, req)
		}
	}
}

func (b *Bot) nextReloginDelay() time.Duration {
	if b.settings.ReloginJitter <= 0 {
		return b.settings.ReloginInterval
	}

	return b.settings.ReloginInterval + time.Duration(rand.Int64N(int64(b.settings.ReloginJitter)))
}

func (b *Bot) loginBackoff() time.Duration {
	const maxBackoff = 300 * time.Second

	if b.loginAttempts <= b.settings.MaxLoginAttempts {
		return b.settings.LoginRetryDelay
	}

	over := b.loginAttempts - b.settings.MaxLoginAttempts
	backoff := 5 * time.Second * time.Duration(1<<uint(over)) //nolint:gosec

	if backoff > maxBackoff {
		return maxBackoff
	}

	return backoff
}

func (b *Bot) attemptLogin(ctx context.Context) {
	if b.state != stateDisconnected {
		return
	}

	b.state = stateLoggingIn
	b.loginAttempts++

	creds := Credentials{
		AccountName:      b.cred.AccountName,
		Password:         b.cred.Password,
		RememberPassword: true,
	}

	if b.totp != nil && b.cred.SharedSecret != "" {
		code, err := b.totp(b.cred.SharedSecret)
		if err != nil {
			b.log.Error("totp generation failed", logx.Error(err))
		} else {
			creds.TwoFactorCode = code
		}
	}

	if err := b.session.Login(creds); err != nil {
		b.log.Error("session.Login", logx.Error(err))
		b.state = stateDisconnected
		b.emit(ctx, FleetEvent{Kind: FleetEventLoginFailed, Bot: b.Name(), Err: err})
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev Event) { //nolint:gocyclo
	switch ev.Kind {
	case EventLoggedOn:
		b.loginAttempts = 0
		b.state = stateLoggedIn

		if err := b.session.GamesPlayed([]uint32{730}); err != nil {
			b.log.Error("session.GamesPlayed", logx.Error(err))
		}

		b.state = stateGCPending

	case EventConnectedToGC:
		b.state = stateGCReady
		b.ready.Store(true)
		b.emit(ctx, FleetEvent{Kind: FleetEventReady, Bot: b.Name()})

	case EventDisconnectedFromGC:
		b.ready.Store(false)

		if b.state == stateGCReady || b.state == stateGCBusy {
			b.state = stateGCPending
		}

	case EventDisconnected:
		b.ready.Store(false)
		b.state = stateDisconnected
		b.failCurrent(ErrSessionError)
		b.emit(ctx, FleetEvent{Kind: FleetEventDisconnected, Bot: b.Name(), EResult: ev.EResult, Message: ev.Message})

		if _, fatal := fatalLoginEResults[ev.EResult]; fatal {
			if ev.EResult == eresultLoggedInElsewhere {
				b.loginAttempts = b.settings.MaxLoginAttempts + 10
			}
		}

		b.armLoginTimer(b.loginBackoff())

	case EventError:
		b.log.Error("session error event", logx.Error(ev.Err))
		b.emit(ctx, FleetEvent{Kind: FleetEventError, Bot: b.Name(), Err: ev.Err})

	case EventOwnershipCached:
		// ownership confirmed; no action needed beyond logging, the
		// free-license request (if any) is the session implementation's
		// concern per the external-library contract.
		b.log.Debug("ownership cached")

	case EventInspectItemInfo:
		b.handleItemInfo(ev.Item)
	}
}

func (b *Bot) dispatch(ctx context.Context, req inspectRequest) {
	if b.state != stateGCReady || b.current != nil {
		req.resultCh <- inspectResult{err: ErrNotReady}

		return
	}

	b.seqCounter++
	seq := b.seqCounter

	b.current = &currentRequest{
		link:      req.link,
		startedAt: time.Now(),
		seq:       seq,
		resultCh:  req.resultCh,
	}
	b.state = stateGCBusy

	if err := b.session.InspectItem(req.link.S, req.link.A, req.link.D); err != nil {
		req.resultCh <- inspectResult{err: fmt.Errorf("%w: %w", ErrSessionError, err)}
		b.current = nil
		b.state = stateGCReady

		return
	}

	ttl := b.settings.RequestTTL

	go func() {
		timer := time.NewTimer(ttl)
		defer timer.Stop()

		select {
		case <-timer.C:
			select {
			case b.timeoutCh <- seq:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}

func (b *Bot) handleTimeout(seq uint64) {
	if b.current == nil || b.current.seq != seq {
		return
	}

	cur := b.current
	b.current = nil
	b.state = stateGCReady
	cur.resultCh <- inspectResult{err: ErrTimeout}
}

// handleItemInfo implements the wire correlation and post-response
// processing invariants of spec §4.4.
func (b *Bot) handleItemInfo(info ItemInfo) {
	if b.current == nil || info.ItemID != b.current.link.A {
		// responses for a stale/mismatched request are dropped silently.
		return
	}

	cur := b.current
	b.current = nil
	b.state = stateGCReady

	item := entity.DecoratedItem{
		A:          cur.link.A,
		D:          cur.link.D,
		S:          cur.link.S,
		M:          cur.link.M,
		FloatValue: info.PaintWear,
		PaintIndex: info.PaintIndex,
		DefIndex:   info.DefIndex,
	}

	if info.PaintSeed != nil {
		item.PaintSeed = *info.PaintSeed
	}

	item.Stickers = make([]entity.Sticker, 0, len(info.Stickers))
	for _, s := range info.Stickers {
		item.Stickers = append(item.Stickers, entity.Sticker{
			Slot:      s.Slot,
			StickerID: s.StickerID,
			Wear:      s.Wear,
		})
	}

	item.Keychains = make([]entity.Keychain, 0, len(info.Keychains))
	for _, k := range info.Keychains {
		item.Keychains = append(item.Keychains, entity.Keychain{
			Slot:       k.Slot,
			KeychainID: k.KeychainID,
			Pattern:    k.Pattern,
		})
	}

	elapsed := time.Since(cur.startedAt)
	delay := b.settings.RequestDelay - elapsed

	if delay < 0 {
		delay = 0
	}

	item.Delay = delay

	cur.resultCh <- inspectResult{item: item}
}

func (b *Bot) failCurrent(err error) {
	if b.current == nil {
		return
	}

	cur := b.current
	b.current = nil
	cur.resultCh <- inspectResult{err: err}
}

func (b *Bot) maybeScheduledRelogin(ctx context.Context) {
	if b.state == stateGCReady && b.current == nil {
		b.doRelogin()

		return
	}

	// busy: defer 1s and retry, rather than waiting out the next
	// ~30-minute cadence tick.
	go func() {
		select {
		case <-time.After(time.Second):
			b.TryRelogin()
		case <-ctx.Done():
		}
	}()
}

func (b *Bot) forceRelogin(ctx context.Context) {
	if b.state != stateGCReady || b.current != nil {
		// retry shortly; admin-triggered relog is best-effort.
		go func() {
			select {
			case <-time.After(time.Second):
				b.TryRelogin()
			case <-ctx.Done():
			}
		}()

		return
	}

	b.doRelogin()
}

func (b *Bot) doRelogin() {
	b.ready.Store(false)

	if err := b.session.LogOff(); err != nil {
		b.log.Warn("session.LogOff during relogin", logx.Error(err))
	}

	b.state = stateDisconnected
	b.armLoginTimer(0)
}

// armLoginTimer rearms loginTimer to fire after d, safely draining any
// pending fire first. Called on every transition into stateDisconnected
// so attemptLogin stays reachable regardless of which path (a session
// event or a relogin) caused the disconnect.
func (b *Bot) armLoginTimer(d time.Duration) {
	if !b.loginTimer.Stop() {
		select {
		case <-b.loginTimer.C:
		default:
		}
	}

	b.loginTimer.Reset(d)
}

func (b *Bot) doShutdown() {
	b.ready.Store(false)
	b.state = stateShuttingDown
	b.failCurrent(ErrShutdown)

	if err := b.session.LogOff(); err != nil {
		b.log.Warn("session.LogOff during shutdown", logx.Error(err))
	}
}

func (b *Bot) emit(ctx context.Context, ev FleetEvent) {
	if b.onEvent == nil {
		return
	}

	select {
	case <-ctx.Done():
	default:
		b.onEvent(ev)
	}
}
