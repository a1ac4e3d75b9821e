package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes sent in ErrorResponse.Error.
const (
	ErrorCodeValidationFailed = "validation_failed"
	ErrorCodeNotFound         = "not_found"
	ErrorCodeUnauthorized     = "unauthorized"
	ErrorCodeConflict         = "conflict"
	ErrorCodeRateLimited      = "rate_limited"
	ErrorCodeInternal         = "internal"
)

// APIError is a decoded non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", e.Status, e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return hasCode(err, ErrorCodeValidationFailed) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsUnauthorized reports whether err is a credential or token failure.
func IsUnauthorized(err error) bool { return hasCode(err, ErrorCodeUnauthorized) }

// IsConflict reports whether err is a conflict (e.g. email taken, reset pending).
func IsConflict(err error) bool { return hasCode(err, ErrorCodeConflict) }

// IsRateLimited reports whether the request was throttled.
func IsRateLimited(err error) bool { return hasCode(err, ErrorCodeRateLimited) }

// parseErrorResponse turns an error response into an *APIError. Bodies that
// are not an ErrorResponse keep the status and use the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message
		apiErr.Fields = errResp.Fields
		return apiErr
	}

	apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
