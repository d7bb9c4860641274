package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quillcms/quill/internal/identity"
	"github.com/quillcms/quill/internal/platform/httpx"
	"github.com/quillcms/quill/internal/shared"
)

// Handler exposes login/logout endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts *identity.Service
	sessions *shared.SessionManager
	repo     Repository
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, accounts *identity.Service, sessions *shared.SessionManager, repo Repository) *Handler {
	return &Handler{
		logger:   logger,
		accounts: accounts,
		sessions: sessions,
		repo:     repo,
		validate: validator.New(),
	}
}

// MountRoutes registers auth routes. Login gets its own tight per-IP limit on
// top of the global limiter to slow down credential stuffing.
func (h *Handler) MountRoutes(r chi.Router) {
	loginLimit := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	r.With(loginLimit).Post("/login", h.login)
	r.Post("/logout", h.logout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  uuid.UUID `json:"role"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("login handled without session middleware")
		httpx.RespondError(w, errors.New("session unavailable"))
		return
	}
	sess.SetUser(user.ID.String())

	if h.repo != nil {
		expiresAt := time.Now().Add(h.sessions.TTL())
		if err := h.repo.RecordSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("record session", slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, loginResponse{ID: user.ID, Email: user.Email, Role: user.Role})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if h.repo != nil {
		if err := h.repo.DeleteSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("delete session", slog.Any("error", err))
		}
	}
	h.sessions.Destroy(sess)
	httpx.NoContent(w)
}
