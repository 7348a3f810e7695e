package server

import (
	"net/http"
	"time"

	"github.com/answergate/answergate/internal/authn"
	"github.com/answergate/answergate/internal/ratelimit"
	"github.com/answergate/answergate/pkg/health"
	"github.com/answergate/answergate/pkg/logger"
	"github.com/answergate/answergate/pkg/metrics"
	"github.com/answergate/answergate/pkg/middleware"
)

// RouterConfig carries the collaborators the HTTP surface needs.
type RouterConfig struct {
	Handler        *Handler
	Authenticator  authn.Authenticator
	Limiter        *ratelimit.Limiter
	Health         *health.Checker
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// Router assembles the mux and middleware chain. Health probes bypass
// authentication; everything under /api/v1 runs behind it.
func Router(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/query", cfg.Handler.Query)
	api.HandleFunc("GET /api/v1/documents", cfg.Handler.Documents)

	var protected http.Handler = api
	if cfg.Limiter != nil {
		protected = RateLimit(cfg.Limiter)(protected)
	}
	mux.Handle("/api/v1/", Authenticate(cfg.Authenticator)(protected))

	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}

	var handler http.Handler = mux
	if cfg.RequestTimeout > 0 {
		handler = middleware.Timeout(cfg.RequestTimeout)(handler)
	}
	if cfg.Metrics != nil {
		handler = middleware.Metrics(cfg.Metrics)(handler)
	}
	return middleware.RequestID(handler)
}

// Authenticate resolves the caller identity and rejects the request with
// 401 when no authenticator accepts it. The resolved identity rides the
// request context for the handlers and the rate limiter.
func Authenticate(a authn.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Resolve(r)
			if err != nil {
				log := logger.FromContext(r.Context())
				log.Debug("authentication failed", "path", r.URL.Path, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			ctx := authn.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit enforces the per-subject token bucket. It must run after
// Authenticate so the subject is known.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authn.IdentityFromContext(r.Context())
			if ok && !l.Allow(identity.Subject) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
