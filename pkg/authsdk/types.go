package authsdk

// ============================================================================
// Wire Types
// ============================================================================

// ErrorResponse is the JSON envelope of every failed request.
type ErrorResponse struct {
	// Error is the machine readable code (e.g. "validation_failed", "unauthorized")
	Error string `json:"error"`

	// Message is a human readable description
	Message string `json:"message,omitempty"`

	// Fields holds per-field messages for validation failures
	Fields map[string]string `json:"fields,omitempty"`
}

// ============================================================================
// User Types
// ============================================================================

// UserResponse describes an account. Secrets and hashes are never sent.
type UserResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`

	// Sessions is the number of devices currently signed in
	Sessions int `json:"sessions"`

	// CreatedAt is RFC3339
	CreatedAt string `json:"created_at"`
}

// ============================================================================
// Session Types
// ============================================================================

// LoginResponse is returned by POST /v1/sessions.
type LoginResponse struct {
	UserID string `json:"user_id"`

	// Token is the bearer token for this device
	Token string `json:"token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds
	ExpiresIn int `json:"expires_in"`

	// ExpiresAt is RFC3339
	ExpiresAt string `json:"expires_at"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	// Status is "ok" or "degraded"
	Status string `json:"status"`

	// Uptime is the service uptime (e.g. "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	Version string `json:"version,omitempty"`

	// Checks is only set by /readyz
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of the service's dependencies.
type HealthChecks struct {
	Store  string `json:"store"`
	Signer string `json:"signer"`
}
