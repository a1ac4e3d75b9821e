package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/pkg/authsdk"
	"github.com/aussiebroadwan/passage/pkg/httpx"
)

// SessionsHandler serves login and logout.
type SessionsHandler struct {
	Accounts *service.AccountService
}

// HandleLogin handles POST /v1/sessions.
func (h *SessionsHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	login, err := h.Accounts.Login(r.Context(), form.Get("email"), form.Get("password"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		UserID:    login.UserID,
		Token:     login.Token,
		TokenType: "Bearer",
		ExpiresIn: max(int(time.Until(login.ExpiresAt).Seconds()), 0),
		ExpiresAt: login.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleLogout handles DELETE /v1/sessions/current.
func (h *SessionsHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Logout(r.Context(), bearerFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll handles DELETE /v1/sessions.
func (h *SessionsHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.LogoutAll(r.Context(), bearerFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
