package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the Passage account service. It covers the
// unauthenticated operations and creates Sessions on login.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with a 10 second request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates an unverified account and triggers the verification email.
func (c *Client) Register(ctx context.Context, email, password string) (*UserResponse, error) {
	resp, err := c.postForm(ctx, "/v1/users", url.Values{
		"email":    {email},
		"password": {password},
	})
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusCreated); err != nil {
		return nil, err
	}
	return &user, nil
}

// Verify redeems the slug from a verification email.
func (c *Client) Verify(ctx context.Context, slug string) error {
	resp, err := c.postForm(ctx, "/v1/users/verify", url.Values{"slug": {slug}})
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// ResendVerification issues a fresh verification email, replacing the
// previous link.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	resp, err := c.postForm(ctx, "/v1/users/verify/resend", url.Values{"email": {email}})
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusAccepted)
}

// Login signs in and returns a Session for this device.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.postForm(ctx, "/v1/sessions", url.Values{
		"email":    {email},
		"password": {password},
	})
	if err != nil {
		return nil, err
	}

	var login LoginResponse
	if err := decodeJSON(resp, &login, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, &login), nil
}

// RequestPasswordReset emails a reset link to a verified account.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	resp, err := c.postForm(ctx, "/v1/password-resets", url.Values{"email": {email}})
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusAccepted)
}

// AuthenticatePasswordReset proves possession of the emailed reset slug.
func (c *Client) AuthenticatePasswordReset(ctx context.Context, email, slug string) error {
	resp, err := c.postForm(ctx, "/v1/password-resets/authenticate", url.Values{
		"email": {email},
		"slug":  {slug},
	})
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// CompletePasswordReset sets the new password after authentication.
func (c *Client) CompletePasswordReset(ctx context.Context, email, password string) error {
	resp, err := c.postForm(ctx, "/v1/password-resets/complete", url.Values{
		"email":    {email},
		"password": {password},
	})
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service and its dependencies are ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
