// Package gateway is the REST client for the CRM backend.
//
// Every request carries a bearer token injected from the token source; a
// 401 response clears the stored session via the unauthorized hook so
// the shell can force navigation to the login screen.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fieldcrm/callgate/internal/models"
)

// DefaultTimeout bounds each backend request.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// Opts holds configuration options for the backend client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(base string) Option {
	return func(o *Opts) { o.BaseURL = base }
}

// WithHTTPClient injects a custom HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = hc }
}

// Client talks to the CRM backend.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

// NewClient creates a backend client. The token source may be nil for
// unauthenticated use (login only).
func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL not set")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("gateway.NewClient", "base_url", cfg.BaseURL)
	return &Client{baseURL: cfg.BaseURL, http: cfg.HTTPClient, tokens: tokens}, nil
}

// SetUnauthorizedHandler registers the hook invoked on any 401 response.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.onUnauthorized = fn
}

// backendError is the error envelope the backend returns.
type backendError struct {
	Message string `json:"message"`
}

// ErrUnauthorized marks a rejected token.
var ErrUnauthorized = fmt.Errorf("unauthorized")

// doJSON performs one backend request: bearer injection, JSON body
// encoding, response decoding into out (when non-nil), 401 handling.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	slog.Debug("gateway request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("gateway request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		slog.Warn("gateway: session expired or unauthorized", "path", path)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var be backendError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&be); decodeErr == nil && be.Message != "" {
			slog.Error("gateway response error", "status", resp.StatusCode, "path", path, "message", be.Message)
			return fmt.Errorf("backend error (%d): %s", resp.StatusCode, be.Message)
		}
		slog.Error("gateway response error", "status", resp.StatusCode, "path", path)
		return fmt.Errorf("backend error (%d) on %s %s", resp.StatusCode, method, path)
	}

	slog.Debug("gateway response", "status", resp.StatusCode, "path", path)
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// Login authenticates the agent and returns the session envelope.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/users/login", nil, models.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &out, nil
}

// VerifyToken asks the backend to validate a stored token.
func (c *Client) VerifyToken(ctx context.Context, req models.VerifyTokenRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/app-auth/verify", nil, req, &out)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	return &out, nil
}

// Logout invalidates the session server-side. Best effort; local state
// is cleared regardless by the auth service.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/users/Logout", nil, nil, nil)
}

// ListLeads fetches one page of leads. Unset paging defaults to page 1,
// limit 10; extra params (search, status, stage) pass through.
func (c *Client) ListLeads(ctx context.Context, params map[string]string) (*models.LeadPage, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("limit", "10")
	for k, v := range params {
		query.Set(k, v)
	}
	var out models.LeadPage
	if err := c.doJSON(ctx, http.MethodGet, "/leads", query, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}
	return &out, nil
}

// BulkAssign reassigns a batch of leads to one agent.
func (c *Client) BulkAssign(ctx context.Context, req models.BulkAssignRequest) error {
	if err := c.doJSON(ctx, http.MethodPatch, "/leads/lead/assign", nil, req, nil); err != nil {
		return fmt.Errorf("failed to assign leads: %w", err)
	}
	return nil
}

// ListUsers fetches the assignable users.
func (c *Client) ListUsers(ctx context.Context) ([]models.AssignableUser, error) {
	var out []models.AssignableUser
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return out, nil
}

// ListStages fetches the pipeline stages.
func (c *Client) ListStages(ctx context.Context) ([]models.Stage, error) {
	var out []models.Stage
	if err := c.doJSON(ctx, http.MethodGet, "/lead-stages", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch stages: %w", err)
	}
	return out, nil
}

// CreateCallLog records a finalized call outcome on the backend. This is
// the feedback submission gateway consumed by the session controller.
func (c *Client) CreateCallLog(ctx context.Context, req models.CallLogRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/call-logs", nil, req, nil); err != nil {
		return fmt.Errorf("failed to create call log: %w", err)
	}
	return nil
}

// ListCallLogs fetches one page of the agent's call logs.
func (c *Client) ListCallLogs(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("limit", "10")
	for k, v := range params {
		query.Set(k, v)
	}
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/call-logs", query, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch call logs: %w", err)
	}
	return out, nil
}

// LeadCallLogs fetches the backend call history for one lead.
func (c *Client) LeadCallLogs(ctx context.Context, leadID int64) (json.RawMessage, error) {
	var out json.RawMessage
	path := "/call-logs/lead/" + strconv.FormatInt(leadID, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch lead logs: %w", err)
	}
	return out, nil
}

// CreateSchedule creates a follow-up schedule for a lead.
func (c *Client) CreateSchedule(ctx context.Context, req models.ScheduleRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/lead-schedules", nil, req, nil); err != nil {
		return fmt.Errorf("failed to schedule lead: %w", err)
	}
	return nil
}
