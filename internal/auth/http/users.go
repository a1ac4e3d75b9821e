package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/pkg/authsdk"
	"github.com/aussiebroadwan/passage/pkg/httpx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// UsersHandler serves registration, verification and the signed-in
// user's account.
type UsersHandler struct {
	Accounts     *service.AccountService
	Verification *service.VerificationService
	Tokens       *service.TokenService
}

// HandleRegister handles POST /v1/users.
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	user, err := h.Accounts.Register(r.Context(), form.Get("email"), form.Get("password"), requesterIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
}

// HandleVerify handles POST /v1/users/verify.
func (h *UsersHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	if err := h.Verification.Verify(r.Context(), form.Get("slug"), requesterIP(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResend handles POST /v1/users/verify/resend.
func (h *UsersHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	if err := h.Accounts.ResendVerification(r.Context(), form.Get("email"), requesterIP(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleMe handles GET /v1/users/me.
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Tokens.Validate(r.Context(), bearerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(sess.User))
}

// HandleDelete handles DELETE /v1/users/me. The password is re-checked.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	form, err := formValues(r)
	if err != nil {
		writeBadRequest(w, "invalid form body")
		return
	}

	err = h.Accounts.DeleteAccount(r.Context(), bearerFromContext(r.Context()), form.Get("password"))
	if err != nil {
		slogx.FromContext(r.Context()).Warn("account deletion rejected", "err", err)
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		UserID:    u.ID,
		Email:     u.EmailAddress,
		Verified:  u.Verified,
		Sessions:  len(u.SessionNonces),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
