package server

import (
	"net/http"

	"inspectfleet/pkg/httpx/reply"
	"inspectfleet/pkg/rest"
)

// apiKeyFromQuery implements the Open Question at spec §9 (line 218): the
// GET endpoints carry no body, so the API key is read from the query
// string rather than req.body.apiKey.
func apiKeyFromQuery(r *http.Request) string {
	return r.URL.Query().Get("apiKey")
}

// Stats handles GET /stats (spec §6.1).
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) error {
	if apiKeyFromQuery(r) != s.Config.APIKey {
		return invalidAPIKeyErr()
	}

	resp := toStatsResponse(s.Fleet.ReadyCount(), s.Fleet.Size(), s.Scheduler)

	reply.JSON(r.Context(), w, http.StatusOK, resp)

	return nil
}

// Relog handles GET /relog (spec §6.1): triggers a graceful relogin on
// every bot in the fleet.
func (s *Server) Relog(w http.ResponseWriter, r *http.Request) error {
	if apiKeyFromQuery(r) != s.Config.APIKey {
		return invalidAPIKeyErr()
	}

	s.Fleet.TryRelogAll()

	reply.JSON(r.Context(), w, http.StatusOK, rest.RelogResponse{IssuedRelog: true})

	return nil
}
