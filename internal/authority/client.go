// Package authority talks to the external case-management system, the
// source of truth for credentials and per-case staff rosters.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/casescope/hub/internal/model"
)

// ErrAuthExpired signals that the authority rejected the bearer token.
// The synchronizer re-authenticates once and retries on this.
var ErrAuthExpired = errors.New("authority token expired")

// Session is the result of authenticating against the authority.
type Session struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Client is the boundary the rest of the system depends on. Tests
// substitute stubs; production uses the HTTP client below.
type Client interface {
	// Authenticate validates credentials. Invalid credentials return
	// model.ErrUnauthorized; an unreachable authority returns
	// model.ErrServiceUnavailable.
	Authenticate(ctx context.Context, username, password string) (*Session, error)
	// StaffForCase returns the roster of a case. Unknown cases return
	// model.ErrNotFound; an expired token returns ErrAuthExpired.
	StaffForCase(ctx context.Context, caseID, token string) ([]model.Identity, error)
}

// HTTPClient implements Client against the authority's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/authenticate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: authority: %v", model.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, model.ErrUnauthorized
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: authority returned %d", model.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("authority returned %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode authenticate response: %w", err)
	}
	return &sess, nil
}

func (c *HTTPClient) StaffForCase(ctx context.Context, caseID, token string) ([]model.Identity, error) {
	url := fmt.Sprintf("%s/api/cases/%s/staff", c.baseURL, caseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: authority: %v", model.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, model.ErrNotFound
	case http.StatusUnauthorized:
		return nil, ErrAuthExpired
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("authority returned %d for case %s", resp.StatusCode, caseID)
	}

	var staff []model.Identity
	if err := json.NewDecoder(resp.Body).Decode(&staff); err != nil {
		return nil, fmt.Errorf("decode staff response: %w", err)
	}
	return staff, nil
}
