package errcodes

import "git.appkode.ru/pub/go/failure"

// Ambient codes used by generic request/response plumbing (pkg/httpx,
// pkg/middlewarex) that has no knowledge of the inspect-link domain.
const (
	InternalServerError failure.ErrorCode = "InternalServerError"
	ValidationError      failure.ErrorCode = "ValidationError"
	NotFound             failure.ErrorCode = "NotFound"
	Forbidden            failure.ErrorCode = "Forbidden"
)

// Domain codes. Their integer values form the stable wire table returned
// to HTTP callers in the {error,code} envelope; BadSecret deliberately
// reuses 8.
const (
	InvalidInspect  failure.ErrorCode = "InvalidInspect"
	BadBody         failure.ErrorCode = "BadBody"
	MaxRequests     failure.ErrorCode = "MaxRequests"
	MaxQueueSize    failure.ErrorCode = "MaxQueueSize"
	SteamOffline    failure.ErrorCode = "SteamOffline"
	RateLimit       failure.ErrorCode = "RateLimit"
	GenericBad      failure.ErrorCode = "GenericBad"
	BadSecret       failure.ErrorCode = "BadSecret"
	TTLExceeded     failure.ErrorCode = "TTLExceeded"
	NoBotsAvailable failure.ErrorCode = "NoBotsAvailable"
	Shutdown        failure.ErrorCode = "Shutdown"
)

//nolint:gochecknoglobals
var wireCodes = map[failure.ErrorCode]int{
	InvalidInspect:  1,
	BadBody:         2,
	MaxRequests:     3,
	MaxQueueSize:    4,
	SteamOffline:    5,
	RateLimit:       6,
	GenericBad:      7,
	BadSecret:       8,
	TTLExceeded:     9,
	NoBotsAvailable: 10,
	Shutdown:        11,
}

//nolint:gochecknoglobals
var httpStatuses = map[failure.ErrorCode]int{
	InvalidInspect:  400,
	BadBody:         400,
	MaxRequests:     429,
	MaxQueueSize:    429,
	SteamOffline:    503,
	RateLimit:       429,
	GenericBad:      500,
	BadSecret:       403,
	TTLExceeded:     504,
	NoBotsAvailable: 503,
	Shutdown:        503,
}

// WireCode reports the stable integer reported in the HTTP error
// envelope for a domain error code. Unknown codes report GenericBad's.
func WireCode(code failure.ErrorCode) int {
	if c, ok := wireCodes[code]; ok {
		return c
	}

	return wireCodes[GenericBad]
}

// HTTPStatus reports the response status a domain error code should be
// served with.
func HTTPStatus(code failure.ErrorCode) int {
	if s, ok := httpStatuses[code]; ok {
		return s
	}

	return httpStatuses[GenericBad]
}
