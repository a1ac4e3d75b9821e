package http

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/pkg/authsdk"
	"github.com/aussiebroadwan/passage/pkg/errutil"
	"github.com/aussiebroadwan/passage/pkg/httpx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// writeServiceError maps an engine error onto the JSON error envelope.
// Credential failures share one message so a caller cannot tell a wrong
// password from an unknown address or a locked account.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	body := httpx.ErrorBody{}
	status := http.StatusInternalServerError

	switch service.KindOf(err) {
	case service.KindValidation:
		status = http.StatusBadRequest
		body.Error = authsdk.ErrorCodeValidationFailed
		body.Message = "the request is malformed or missing required fields"
		if e, ok := asServiceError(err); ok {
			body.Fields = e.Fields
		}

	case service.KindNotFound:
		status = http.StatusNotFound
		body.Error = authsdk.ErrorCodeNotFound
		body.Message = "not found"

	case service.KindUnauthorized:
		status = http.StatusUnauthorized
		body.Error = authsdk.ErrorCodeUnauthorized
		switch service.ReasonOf(err) {
		case service.ReasonNotLoggedIn, service.ReasonLoginExpired:
			body.Message = "invalid or expired token"
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		case service.ReasonNotVerified:
			body.Message = "email address not verified"
		default:
			body.Message = "invalid credentials"
		}

	case service.KindConflict:
		status = http.StatusConflict
		body.Error = authsdk.ErrorCodeConflict
		switch service.ReasonOf(err) {
		case service.ReasonEmailTaken:
			body.Message = "email address already registered"
		case service.ReasonResetPending:
			body.Message = "a password reset is already pending"
		default:
			body.Message = "conflicting request"
		}

	default:
		if o, ok := oops.AsOops(err); ok && o.Code() == service.CodeConflictRetriesExhausted {
			status = http.StatusConflict
			body.Error = authsdk.ErrorCodeConflict
			body.Message = "concurrent update, try again"
			break
		}
		errutil.LogError(slogx.FromContext(r.Context()), "request failed", err)
		body.Error = authsdk.ErrorCodeInternal
		body.Message = "internal server error"
	}

	httpx.WriteJSON(w, status, body)
}

func asServiceError(err error) (*service.Error, bool) {
	var e *service.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeValidationFailed, message)
}
