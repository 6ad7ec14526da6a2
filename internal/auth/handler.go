package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitcoach/access/internal/platform/httpx"
)

// Handler exchanges identity-provider access tokens for cookie sessions.
type Handler struct {
	logger   *slog.Logger
	tokens   *TokenVerifier
	sessions *SessionStore
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, tokens *TokenVerifier, sessions *SessionStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, tokens: tokens, sessions: sessions}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/session", h.createSession)
	r.Delete("/session", h.deleteSession)
}

type sessionResponse struct {
	Identity  Identity `json:"identity"`
	ExpiresIn int64    `json:"expires_in"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	raw, ok := BearerToken(r)
	if !ok {
		httpx.Unauthorized(w, "bearer token required")
		return
	}
	identity, err := h.tokens.Verify(raw)
	if err != nil {
		h.logger.Debug("session exchange rejected", slog.Any("error", err))
		httpx.Unauthorized(w, "invalid token")
		return
	}
	if _, err := h.sessions.Issue(r.Context(), w, *identity); err != nil {
		h.logger.Error("issue session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, sessionResponse{
		Identity:  *identity,
		ExpiresIn: int64(h.sessions.TTL().Seconds()),
	}, nil)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		h.logger.Warn("destroy session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]bool{"signed_out": true})
}
