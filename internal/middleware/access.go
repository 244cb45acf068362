// Package middleware provides the HTTP access gate that enforces the
// derived trial tier on incoming requests.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apperrors "betagate/internal/errors"
	"betagate/internal/trial"
)

// AccessGate rejects requests with 403 while the derived tier is
// ExpiredTrial. Lifecycle endpoints stay reachable so the user can still
// unlock or reset.
type AccessGate struct {
	manager         trial.API
	logger          *slog.Logger
	excludePaths    map[string]struct{}
	excludePrefixes []string
}

// NewAccessGate creates the gate with the default exclusion list.
func NewAccessGate(manager trial.API, logger *slog.Logger) *AccessGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGate{
		manager: manager,
		logger:  logger.With(slog.String("component", "access_gate")),
		excludePaths: map[string]struct{}{
			"/":                    {},
			"/api/health":          {},
			"/api/trial/status":    {},
			"/api/trial/remaining": {},
			"/api/trial/unlock":    {},
			"/api/trial/reset":     {},
			"/metrics":             {},
			"/ws":                  {},
			"/favicon.ico":         {},
		},
		excludePrefixes: []string{
			"/static/",
			"/assets/",
		},
	}
}

// Exclude adds paths to the exclusion list.
func (g *AccessGate) Exclude(paths ...string) {
	for _, p := range paths {
		g.excludePaths[p] = struct{}{}
	}
}

func (g *AccessGate) excluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler function.
func (g *AccessGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if tier := g.manager.CurrentTier(r.Context()); tier == trial.TierExpiredTrial {
			g.logger.WarnContext(r.Context(), "request rejected, trial expired",
				slog.String("path", r.URL.Path),
			)
			render.Render(w, r, apperrors.Forbidden("trial expired; unlock with a password or reset the trial"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
