package server

import (
	"git.appkode.ru/pub/go/failure"

	"inspectfleet/internal/domain/entity"
	"inspectfleet/pkg/errcodes"
	"inspectfleet/pkg/rest"
)

// linkFromRequest resolves the url-or-structured-fields input shape of
// POST /inspect (spec §6.1) into a canonical InspectLink.
func linkFromRequest(body rest.InspectRequest) (entity.InspectLink, error) {
	if body.URL != "" {
		return entity.ParseInspectURL(body.URL)
	}

	return entity.NewInspectLinkFromFields(body.A, body.D, body.S, body.M)
}

func toStatsResponse(botsOnline, botsTotal int, sched statsSource) rest.StatsResponse {
	return rest.StatsResponse{
		BotsOnline:              botsOnline,
		BotsTotal:               botsTotal,
		QueueSize:               sched.Size(),
		QueueConcurrency:        sched.Concurrency(),
		CurrentlyProcessingSize: sched.ProcessingCount(),
	}
}

// statsSource is the subset of worker.Scheduler the stats endpoint reads.
type statsSource interface {
	Size() int
	Concurrency() int
	ProcessingCount() int
}

func invalidAPIKeyErr() error {
	return failure.NewInvalidArgumentError(
		"invalid API key",
		failure.WithCode(errcodes.BadSecret),
		failure.WithDescription("Invalid API key"),
	)
}

func steamOfflineErr() error {
	return failure.NewInvalidArgumentError(
		"no bots currently online",
		failure.WithCode(errcodes.SteamOffline),
		failure.WithDescription("no ready bots"),
	)
}
