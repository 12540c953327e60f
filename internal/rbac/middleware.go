package rbac

import (
	"log/slog"
	"net/http"

	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal holds at least one of caps.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return m.require(caps, false)
}

// RequireAll ensures the current principal holds every capability in caps.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	return m.require(caps, true)
}

func (m Middleware) require(caps []Capability, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, shared.ErrAuthenticationRequired)
				return
			}
			if allowed(Role(principal.Role), caps, all) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.WarnContext(r.Context(), "rbac denied",
					slog.Int64("user_id", principal.UserID),
					slog.String("role", principal.Role),
					slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, r, shared.Forbidden("insufficient permissions"))
		})
	}
}

func allowed(role Role, caps []Capability, all bool) bool {
	for _, c := range caps {
		ok := Authorize(c, role)
		if all && !ok {
			return false
		}
		if !all && ok {
			return true
		}
	}
	return all
}
