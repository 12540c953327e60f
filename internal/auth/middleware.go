package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// PrincipalResolver refreshes a token principal from the stored account.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, claimed shared.Principal) (shared.Principal, error)
}

// Bearer parses an Authorization bearer token and stores its principal in the request context.
// When users is set the account is re-read on every request, so role changes and deactivation
// apply to tokens that were already issued.
// Requests without the header pass through anonymously; route guards decide whether that is allowed.
func Bearer(tokens *TokenIssuer, users PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				httpx.RespondError(w, r, shared.ErrAuthenticationRequired)
				return
			}
			principal, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				httpx.RespondError(w, r, err)
				return
			}
			if users != nil {
				principal, err = users.ResolvePrincipal(r.Context(), principal)
				if err != nil {
					httpx.RespondError(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
