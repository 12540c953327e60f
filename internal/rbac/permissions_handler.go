package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// PermissionsHandler exposes the capability set of the calling user.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionsResponse struct {
	Role         Role         `json:"role"`
	Capabilities []Capability `json:"capabilities"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrAuthenticationRequired)
		return
	}
	role := Role(principal.Role)
	httpx.JSON(w, http.StatusOK, permissionsResponse{Role: role, Capabilities: Capabilities(role)})
}
