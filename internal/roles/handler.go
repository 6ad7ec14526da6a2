package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
)

// Handler manages role assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers assignment routes under an identities prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{identityID}/role", h.rbac.RequirePermission(rbac.PermManageUsers, h.getRole))
	r.Put("/{identityID}/role", h.rbac.RequirePermission(rbac.PermManageRoles, h.putRole))
	r.Delete("/{identityID}/role", h.rbac.RequirePermission(rbac.PermManageRoles, h.deleteRole))
}

// MountAnalytics registers the assignment overview for staff.
func (h *Handler) MountAnalytics(r chi.Router) {
	r.Get("/overview", h.rbac.RequireMinimumRole(rbac.RoleTeam, h.overview))
}

type identityPath struct {
	IdentityID string `validate:"required,uuid"`
}

type assignRequest struct {
	Role      string     `json:"role" validate:"required,oneof=guest member collaborator team admin"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type roleResponse struct {
	IdentityID string        `json:"identity_id"`
	Role       rbac.RoleView `json:"role"`
	Assignment *Assignment   `json:"assignment,omitempty"`
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request, _ rbac.Principal) {
	identityID, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	current, err := h.service.Current(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.OK(w, roleResponse{IdentityID: identityID, Role: rbac.ViewOf(rbac.RoleGuest)})
			return
		}
		h.fail(w, "get role", err)
		return
	}
	httpx.OK(w, roleResponse{IdentityID: identityID, Role: rbac.ViewOf(current.Role), Assignment: &current})
}

func (h *Handler) putRole(w http.ResponseWriter, r *http.Request, actor rbac.Principal) {
	identityID, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid request payload", nil)
		return
	}
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid role assignment", validationDetails(err))
		return
	}
	role := rbac.MustParseRole(req.Role)
	assignment, err := h.service.Assign(r.Context(), actor, identityID, role, req.ExpiresAt)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.OK(w, roleResponse{IdentityID: identityID, Role: rbac.ViewOf(assignment.Role), Assignment: &assignment})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request, actor rbac.Principal) {
	identityID, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), actor, identityID); err != nil {
		h.fail(w, "revoke role", err)
		return
	}
	httpx.OK(w, roleResponse{IdentityID: identityID, Role: rbac.ViewOf(rbac.RoleGuest)})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request, _ rbac.Principal) {
	counts, err := h.service.Overview(r.Context())
	if err != nil {
		h.fail(w, "role overview", err)
		return
	}
	total := 0
	for _, c := range counts {
		total += c.Identities
	}
	httpx.Success(w, http.StatusOK, counts, map[string]int{"assigned_identities": total})
}

func (h *Handler) identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := identityPath{IdentityID: strings.ToLower(chi.URLParam(r, "identityID"))}
	if err := h.validator.Struct(path); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidationFailed, "identity id must be a uuid", validationDetails(err))
		return "", false
	}
	return path.IdentityID, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrForbidden), errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrValidation):
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func validationDetails(err error) map[string]string {
	details := make(map[string]string)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			details[strings.ToLower(fe.Field())] = fmt.Sprintf("failed %s", fe.Tag())
		}
	}
	return details
}
