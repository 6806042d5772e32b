package server

import (
	"net/http"
	"strings"

	"git.appkode.ru/pub/go/failure"
	"github.com/rs/xid"

	"inspectfleet/internal/aggregator"
	"inspectfleet/internal/domain/entity"
	"inspectfleet/pkg/errcodes"
	"inspectfleet/pkg/httpx/reply"
	"inspectfleet/pkg/httpx/req"
	"inspectfleet/pkg/rest"
)

// defaultMaxAttempts bounds a queue entry's retries before it is reported
// as TTLExceeded (spec §8, scenario S5: maxAttempts=3 exhausts on the
// third Timeout rejection).
const defaultMaxAttempts = 3

// Inspect handles POST /inspect (spec §6.1): resolve the link, serve a
// cache hit immediately, otherwise enqueue it and block until the
// one-entry Job aggregator flushes.
func (s *Server) Inspect(w http.ResponseWriter, r *http.Request) error {
	var body rest.InspectRequest
	if err := req.Read(r, &body); err != nil {
		return err
	}

	if body.APIKey != s.Config.APIKey {
		return invalidAPIKeyErr()
	}

	link, err := linkFromRequest(body)
	if err != nil {
		return err
	}

	ip := clientIP(r, s.Config.TrustProxy)

	price := acceptedPrice(body, link, s.Config.PriceKey)

	key := link.Key()

	if cached, ok := s.Cache.Get(key); ok {
		reply.JSON(r.Context(), w, http.StatusOK, cached.Item)

		return nil
	}

	wait, admitted := s.admitOrJoin(key)
	if !admitted {
		select {
		case result := <-wait:
			return s.respondResult(w, r, result)
		case <-r.Context().Done():
			return r.Context().Err()
		}
	}

	if s.Fleet.ReadyCount() == 0 {
		s.releaseInFlight(key, entity.LinkResult{Link: link, Status: entity.LinkErr, Err: errcodes.SteamOffline})

		return steamOfflineErr()
	}

	if err := s.Scheduler.AdmitJob(ip, 1, s.Config.MaxSimultaneousRequests, s.Config.MaxQueueSize); err != nil {
		s.releaseInFlight(key, entity.LinkResult{Link: link, Status: entity.LinkErr, Err: errcodes.GenericBad})

		return err
	}

	done := make(chan struct{})

	job := aggregator.New(xid.New().String(), ip, false, func(*aggregator.Job) {
		close(done)
	})
	job.Add(link, price)

	s.Scheduler.Enqueue(entity.QueueEntry{
		Link:           link,
		Priority:       body.Priority,
		IP:             ip,
		MaxAttempts:    defaultMaxAttempts,
		SubmittedPrice: price,
	}, job)

	select {
	case <-done:
	case <-r.Context().Done():
		s.releaseInFlight(key, entity.LinkResult{Link: link, Status: entity.LinkErr, Err: errcodes.GenericBad})

		return r.Context().Err()
	}

	result := job.Results()[0]
	s.releaseInFlight(key, result)

	return s.respondResult(w, r, result)
}

// respondResult writes result as the handler's HTTP response, whether it
// came from this request's own dispatch or from joining another
// in-flight request for the same asset id.
func (s *Server) respondResult(w http.ResponseWriter, r *http.Request, result entity.LinkResult) error {
	if result.Status == entity.LinkErr {
		return failure.NewInvalidArgumentError(
			"inspect request failed",
			failure.WithCode(result.Err),
			failure.WithDescription(string(result.Err)),
		)
	}

	reply.JSON(r.Context(), w, http.StatusOK, result.Item)

	return nil
}

// acceptedPrice implements the PriceSubmission gate (spec §4.2, glossary):
// a submitted price is only honored when the caller presents the
// configured price key and the link refers to a market listing.
func acceptedPrice(body rest.InspectRequest, link entity.InspectLink, priceKey string) *uint64 {
	if body.Price == nil || priceKey == "" || body.PriceKey != priceKey || !link.IsMarketLink() {
		return nil
	}

	return body.Price
}

// clientIP honors X-Forwarded-For only when trustProxy is set, matching
// the trust_proxy config flag (spec §6.4).
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")

			return strings.TrimSpace(first)
		}
	}

	return r.RemoteAddr
}
