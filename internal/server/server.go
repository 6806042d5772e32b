// Package server implements the HTTP front-end glue (spec §6.1, §8): thin
// handlers that translate the wire DTOs in pkg/rest to/from the domain
// layer and delegate all real work to the Scheduler, Fleet and
// ResultCache. Adapted from the teacher's internal/server.Server, which
// aggregated per-entity sub-servers behind one RegisterRoutes call.
package server

import (
	"log/slog"
	"sync"

	"inspectfleet/internal/config"
	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/infrastructure/cache"
	"inspectfleet/internal/infrastructure/gc"
	"inspectfleet/internal/infrastructure/ratelimit"
	"inspectfleet/internal/worker"
)

// Server holds every dependency the inspect/admin handlers need. It does
// not itself implement http.Handler; Routes builds the chi.Mux.
type Server struct {
	Scheduler *worker.Scheduler
	Fleet     *gc.Fleet
	Cache     *cache.ResultCache
	Dedupe    *cache.Dedupe
	Limiter   ratelimit.Limiter
	Config    config.Fleet
	Log       *slog.Logger

	waitersMu sync.Mutex
	waiters   map[string][]chan entity.LinkResult
}

func New(scheduler *worker.Scheduler, fleet *gc.Fleet, resultCache *cache.ResultCache, dedupe *cache.Dedupe, limiter ratelimit.Limiter, cfg config.Fleet, log *slog.Logger) *Server {
	return &Server{
		Scheduler: scheduler,
		Fleet:     fleet,
		Cache:     resultCache,
		Dedupe:    dedupe,
		Limiter:   limiter,
		Config:    cfg,
		Log:       log,
		waiters:   make(map[string][]chan entity.LinkResult),
	}
}

// admitOrJoin marks assetKey as in flight, or — if another request
// already holds that mark — atomically registers this caller as a
// waiter for that request's eventual result (spec's soft "at most one
// entry in flight per assetId" invariant). The mark check and waiter
// registration happen under the same lock releaseInFlight uses to
// deliver+clear, so a waiter registered here can never be missed by a
// releaseInFlight that raced in between the two steps.
func (s *Server) admitOrJoin(assetKey string) (wait <-chan entity.LinkResult, admitted bool) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()

	if s.Dedupe.MarkIfAbsent(assetKey) {
		return nil, true
	}

	ch := make(chan entity.LinkResult, 1)
	s.waiters[assetKey] = append(s.waiters[assetKey], ch)

	return ch, false
}

// releaseInFlight broadcasts result to every request that joined
// assetKey's dispatch while it was in flight, then clears the dedupe
// mark so a future request dispatches fresh.
func (s *Server) releaseInFlight(assetKey string, result entity.LinkResult) {
	s.waitersMu.Lock()
	waiters := s.waiters[assetKey]
	delete(s.waiters, assetKey)
	s.waitersMu.Unlock()

	for _, ch := range waiters {
		ch <- result
	}

	s.Dedupe.Clear(assetKey)
}
