package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/shared"
)

// AdminChecker reports whether an email belongs to the system administrator.
// The check bypasses the permission graph entirely; it is the break-glass
// escalation path that keeps working even when the graph is empty or broken.
type AdminChecker interface {
	IsSystemAdministrator(email string) bool
}

// Middleware wires RBAC authorization into HTTP handlers.
type Middleware struct {
	Manager    *Manager
	Principals PrincipalSource
	Admin      AdminChecker
	Logger     *slog.Logger
}

// Require ensures the current principal holds the named permission at exactly
// the given level. Missing or anonymous sessions get 401, a failed check gets
// 403, and a store failure gets 500: an unreachable store is never presented
// as a deny.
func (m Middleware) Require(permission string, level int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.currentPrincipal(w, r)
			if !ok {
				return
			}
			if m.Admin != nil && m.Admin.IsSystemAdministrator(principal.GetEmail()) {
				next.ServeHTTP(w, r)
				return
			}
			granted, err := m.Manager.HasPermission(r.Context(), principal.GetRole(), permission, level)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require", slog.String("permission", permission), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !granted {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// currentPrincipal resolves the session user to a principal, writing the
// error response itself when resolution fails.
func (m Middleware) currentPrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	id, err := uuid.Parse(sess.User())
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse principal id", slog.String("value", sess.User()))
		}
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	principal, err := m.Principals.PrincipalByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return nil, false
		}
		if m.Logger != nil {
			m.Logger.Error("rbac resolve principal", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return nil, false
	}
	if !principal.IsActive() {
		httpx.RespondError(w, httpx.ErrForbidden)
		return nil, false
	}
	return principal, true
}
