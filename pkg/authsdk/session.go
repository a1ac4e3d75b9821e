package authsdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrSessionClosed is returned by Session methods after Logout or LogoutAll.
var ErrSessionClosed = errors.New("authsdk: session closed")

// Session is one signed-in device. Tokens are not refreshed; once the
// token expires the caller has to log in again.
type Session struct {
	client *Client

	mu        sync.RWMutex
	userID    string
	token     string
	expiresAt time.Time
}

// NewSessionFromToken wraps a token obtained elsewhere.
func (c *Client) NewSessionFromToken(userID, token string, expiresAt time.Time) *Session {
	return &Session{
		client:    c,
		userID:    userID,
		token:     token,
		expiresAt: expiresAt,
	}
}

func newSession(c *Client, login *LoginResponse) *Session {
	expiresAt, err := time.Parse(time.RFC3339, login.ExpiresAt)
	if err != nil {
		expiresAt = time.Now().Add(time.Duration(login.ExpiresIn) * time.Second)
	}
	return c.NewSessionFromToken(login.UserID, login.Token, expiresAt)
}

// UserID returns the signed-in user.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Token returns the bearer token, or "" once the session is closed.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt returns when the token stops being accepted.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Me returns the signed-in user's account.
func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/users/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends this device's session.
func (s *Session) Logout(ctx context.Context) error {
	return s.closeWith(ctx, "/v1/sessions/current", nil)
}

// LogoutAll ends every session of the user, this one included.
func (s *Session) LogoutAll(ctx context.Context) error {
	return s.closeWith(ctx, "/v1/sessions", nil)
}

// DeleteAccount removes the account after re-checking the password.
func (s *Session) DeleteAccount(ctx context.Context, password string) error {
	return s.closeWith(ctx, "/v1/users/me", url.Values{"password": {password}})
}

func (s *Session) closeWith(ctx context.Context, path string, form url.Values) error {
	var (
		body    io.Reader
		headers map[string]string
	)
	if form != nil {
		body = strings.NewReader(form.Encode())
		headers = map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	}

	resp, err := s.doAuthRequest(ctx, http.MethodDelete, path, body, headers)
	if err != nil {
		return err
	}
	if err := checkStatus(resp, http.StatusNoContent); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// doAuthRequest performs a request carrying the session's bearer token.
func (s *Session) doAuthRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrSessionClosed
	}

	h := map[string]string{"Authorization": "Bearer " + token}
	for k, v := range headers {
		h[k] = v
	}
	return s.client.doRequest(ctx, method, path, body, h)
}
