package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// Permission guarding the account listing endpoints.
const (
	PermUsersView  = "users.view"
	LevelUsersView = int64(1)
)

// Handler exposes read-only account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(PermUsersView, LevelUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
}

// userView omits credential and MFA secret material from responses.
type userView struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Role        uuid.UUID `json:"role"`
	Active      bool      `json:"active"`
	MFAEnabled  bool      `json:"mfa_enabled"`
	MFAVerified bool      `json:"mfa_verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserView(u *User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Active:      u.Active,
		MFAEnabled:  u.MFAEnabled,
		MFAVerified: u.MFAVerified,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserView(user))
}
