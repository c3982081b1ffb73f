package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/procureflow/procureflow/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// WithActor resolves the session user into an Actor and stores it in the
// request context. Requests without a session pass through unresolved so
// public routes keep working; Require rejects them later.
func (m Middleware) WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.currentUserID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.Service.ResolveActor(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("resolve actor", slog.Any("error", err), slog.Int64("user_id", userID))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// Require ensures the current actor holds the capability.
func (m Middleware) Require(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor.IsZero() {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !Can(Role(actor.Role), cap) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
