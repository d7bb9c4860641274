package rbac

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quillcms/quill/internal/platform/httpx"
)

// Permission names and levels used to guard the role-management API itself.
const (
	PermRolesManage  = "roles.manage"
	LevelRolesManage = int64(2)
	PermRolesView    = "roles.view"
	LevelRolesView   = int64(1)
)

// Handler exposes the role-management JSON API.
type Handler struct {
	logger   *slog.Logger
	manager  *Manager
	guard    Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, guard Middleware) *Handler {
	return &Handler{
		logger:   logger,
		manager:  manager,
		guard:    guard,
		validate: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(PermRolesView, LevelRolesView))
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(PermRolesManage, LevelRolesManage))
		r.Post("/", h.createRole)
		r.Post("/{roleID}/permissions", h.addPermissions)
		r.Delete("/{roleID}/permissions", h.removePermissions)
	})
}

type createRoleRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Permissions []Grant `json:"permissions" validate:"dive"`
}

type roleView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type permissionView struct {
	Name  string `json:"name"`
	Level int64  `json:"level"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	id, err := h.manager.CreateRoleWithPermissions(r.Context(), req.Name, req.Permissions)
	if err != nil {
		if IsUniqueViolation(err) {
			httpx.RespondError(w, httpx.ErrDuplicate)
			return
		}
		h.logger.Error("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.manager.GetRole(r.Context(), id)
	if err != nil {
		h.logger.Error("get role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if role == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, roleView{
		ID:        role.ID,
		Name:      role.Name,
		CreatedAt: role.CreatedAt,
		UpdatedAt: role.UpdatedAt,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	perms, err := h.manager.ListPermissions(r.Context(), id)
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]permissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, permissionView{Name: p.PermissionName, Level: p.PermissionLevel})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}

type addPermissionsRequest struct {
	Permissions []Grant `json:"permissions" validate:"required,min=1,dive"`
}

func (h *Handler) addPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req addPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.manager.AddPermissions(r.Context(), id, req.Permissions); err != nil {
		switch {
		case IsUniqueViolation(err):
			httpx.RespondError(w, httpx.ErrDuplicate)
		case IsForeignKeyViolation(err):
			httpx.RespondError(w, httpx.ErrNotFound)
		default:
			h.logger.Error("add permissions", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.NoContent(w)
}

type removePermissionsRequest struct {
	Names []string `json:"names" validate:"required,min=1,dive,required"`
}

func (h *Handler) removePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req removePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.manager.RemovePermissions(r.Context(), id, req.Names); err != nil {
		h.logger.Error("remove permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return uuid.Nil, false
	}
	return id, true
}
