package server

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"git.appkode.ru/pub/go/failure"

	"inspectfleet/internal/config"
	"inspectfleet/pkg/errcodes"
	"inspectfleet/pkg/httpx/reply"
	"inspectfleet/pkg/logx"
	"inspectfleet/pkg/middlewarex"
)

// maxBodyBytes bounds POST /inspect bodies at 5 MiB; exceeding it (or
// sending malformed JSON) maps to BadBody.
const maxBodyBytes = 5 << 20

// requestLogMaxLen caps the dumped request/response bodies middlewarex
// logs, matching the teacher's own request/response logging middleware.
const requestLogMaxLen = 4096

// Routes builds the chi.Mux for the HTTP surface of spec §6.1: trace-id
// propagation, contextual logging, panic recovery, request/response
// logging (all the teacher's own pkg/middlewarex stack), CORS with
// literal-or-regex origin matching (allowed_origins/allowed_regex_origins),
// a body-size cap, optional rate limiting, and the three endpoints.
// Grounded on Sezy0-apis-vhz-v2's router.New: global middleware stack,
// cors.Handler, then a flat route table.
func Routes(s *Server) chi.Router {
	r := chi.NewRouter()

	masker := logx.NewSensitiveDataMasker()

	r.Use(middlewarex.TraceID)
	r.Use(middlewarex.Logger)
	r.Use(middlewarex.Recovery)
	r.Use(middlewarex.RequestLogging(masker, requestLogMaxLen))
	r.Use(middlewarex.ResponseLogging(masker, requestLogMaxLen))
	r.Use(cors.Handler(corsOptions(s.Config, s.Log)))
	r.Use(bodySizeLimit)

	if s.Config.RateLimit.Enable {
		r.Use(rateLimit(s))
	}

	r.Post("/inspect", handle(s.Inspect))
	r.Get("/stats", handle(s.Stats))
	r.Get("/relog", handle(s.Relog))

	return r
}

func handle(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			reply.Error(r.Context(), w, err)
		}
	}
}

func bodySizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func rateLimit(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, s.Config.TrustProxy)

			ok, err := s.Limiter.Allow(r.Context(), ip)
			if err != nil {
				s.Log.Error("rate limiter unavailable", logx.Error(err))
				next.ServeHTTP(w, r)

				return
			}

			if !ok {
				reply.Error(r.Context(), w, failure.NewInvalidArgumentError(
					"rate limit exceeded",
					failure.WithCode(errcodes.RateLimit),
					failure.WithDescription("too many requests"),
				))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// corsOptions implements allowed_origins (literal) and
// allowed_regex_origins (regexp) from spec §6.4. A malformed regex is
// logged and skipped rather than failing server start.
func corsOptions(cfg config.Fleet, log *slog.Logger) cors.Options {
	literals := cfg.AllowedOrigins

	patterns := make([]*regexp.Regexp, 0, len(cfg.AllowedRegexOrigins))

	for _, pattern := range cfg.AllowedRegexOrigins {
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn("skipping malformed allowed_regex_origins entry", "pattern", pattern, "error", err)

			continue
		}

		patterns = append(patterns, re)
	}

	return cors.Options{
		AllowedOrigins: literals,
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			for _, lit := range literals {
				if lit == "*" || lit == origin {
					return true
				}
			}

			for _, re := range patterns {
				if re.MatchString(origin) {
					return true
				}
			}

			return false
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
