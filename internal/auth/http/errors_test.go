package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/pkg/httpx"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", service.ValidationError(map[string]string{"email": "required"}), http.StatusBadRequest, "validation_failed", ""},
		{"not found", service.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
		{"incorrect", service.ErrIncorrect, http.StatusUnauthorized, "unauthorized", "invalid credentials"},
		{"locked out", service.ErrLockedOut, http.StatusUnauthorized, "unauthorized", "invalid credentials"},
		{"expired", service.ErrLoginExpired, http.StatusUnauthorized, "unauthorized", "invalid or expired token"},
		{"email taken", service.ErrEmailTaken, http.StatusConflict, "conflict", "email address already registered"},
		{"retries exhausted", oops.Code(service.CodeConflictRetriesExhausted).Wrap(errors.New("conflict")), http.StatusConflict, "conflict", "concurrent update, try again"},
		{"internal", oops.Code(service.CodeStoreFailed).Wrap(errors.New("disk full")), http.StatusInternalServerError, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			require.Equal(t, tt.status, rec.Code)

			var body httpx.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.code, body.Error)
			if tt.message != "" {
				require.Equal(t, tt.message, body.Message)
			}
			require.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}

func TestWriteServiceErrorFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodPost, "/", nil),
		service.ValidationError(map[string]string{"email": "invalid", "password": "required"}))

	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]string{"email": "invalid", "password": "required"}, body.Fields)
}

func TestFormValuesDeleteBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/v1/users/me", strings.NewReader("password=hunter22"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := formValues(req)
	require.NoError(t, err)
	require.Equal(t, "hunter22", form.Get("password"))
}
