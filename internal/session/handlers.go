package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/petlog-console/internal/common"
)

// Handler exposes login handoff and logout.
type Handler struct {
	Manager      *Manager
	Validate     *validator.Validate
	Logger       zerolog.Logger
	CookieSecure bool
	CookieDomain string

	// CookieSameSite defaults to Lax.
	CookieSameSite http.SameSite
}

func (h *Handler) sameSite() http.SameSite {
	if h.CookieSameSite == 0 {
		return http.SameSiteLaxMode
	}
	return h.CookieSameSite
}

type startRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// Start exchanges an API access token for a console session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var payload startRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "access_token is required", nil)
			return
		}
	}
	s, err := h.Manager.Start(r.Context(), payload.AccessToken)
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		common.JSONError(w, http.StatusUnauthorized, "INVALID_TOKEN", err.Error(), nil)
		return
	case err != nil:
		h.Logger.Error().Err(err).Msg("session_start_failed")
		common.JSONError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session store unavailable", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.sameSite(),
	})
	h.Logger.Info().Str("session_id", s.ID).Str("hotel_id", s.HotelID).Msg("session_started")
	common.Data(w, http.StatusCreated, s.Public())
}

// End logs the session out and clears its view state.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	id := IDFromRequest(r)
	if id != "" {
		if err := h.Manager.End(r.Context(), id); err != nil {
			h.Logger.Error().Err(err).Msg("session_end_failed")
			common.JSONError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session store unavailable", nil)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.sameSite(),
	})
	w.WriteHeader(http.StatusNoContent)
}
