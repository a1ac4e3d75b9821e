package http

import (
	"net/http"

	"github.com/aussiebroadwan/passage/internal/auth/service"
)

// ResetsHandler serves the three steps of the password reset flow.
type ResetsHandler struct {
	Resets *service.PasswordResetService
}

// HandleRequest handles POST /v1/password-resets.
func (h *ResetsHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	if err := h.Resets.Request(r.Context(), form.Get("email")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleAuthenticate handles POST /v1/password-resets/authenticate.
func (h *ResetsHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	if err := h.Resets.Authenticate(r.Context(), form.Get("email"), form.Get("slug")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete handles POST /v1/password-resets/complete.
func (h *ResetsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	if err := h.Resets.ChangePassword(r.Context(), form.Get("email"), form.Get("password")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
