// Package apiclient is the HTTP client for the fresherjobs API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fresherjobs/internal/model"
)

// ErrUnauthorized marks failures caused by a missing or expired session.
var ErrUnauthorized = errors.New("session expired")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError carries the status and body of a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 300))
}

// Unwrap maps 401 responses to ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Client calls the API on behalf of one user.
type Client struct {
	baseURL string
	http    HTTPClient
	userID  string
	token   string
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, client HTTPClient, userID, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		userID:  userID,
		token:   token,
	}
}

// UserID returns the identity requests are sent as.
func (c *Client) UserID() string {
	return c.userID
}

// ListParams are the feed filters understood by the list endpoint.
type ListParams struct {
	Type        model.OpportunityType
	City        string
	ClosingSoon bool
	SavedOnly   bool
	Limit       int
	Offset      int
}

func (p ListParams) query() url.Values {
	q := url.Values{}
	if p.Type != "" {
		q.Set("type", string(p.Type))
	}
	if p.City != "" {
		q.Set("city", p.City)
	}
	if p.ClosingSoon {
		q.Set("closingSoon", "true")
	}
	if p.SavedOnly {
		q.Set("saved", "true")
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

// ListResponse is the body of the list endpoint.
type ListResponse struct {
	Opportunities []model.Opportunity `json:"opportunities"`
	Count         int                 `json:"count"`
}

// ProfileResponse is the body of the profile endpoint.
type ProfileResponse struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Profile              *model.Profile `json:"profile"`
	CompletionPercentage int            `json:"completionPercentage"`
}

// ListOpportunities fetches one page of the feed.
func (c *Client) ListOpportunities(ctx context.Context, p ListParams) (*ListResponse, error) {
	path := "/api/opportunities"
	if q := p.query().Encode(); q != "" {
		path += "?" + q
	}
	var out ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	return &out, nil
}

// GetProfile fetches the current user's profile.
func (c *Client) GetProfile(ctx context.Context) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &out, nil
}

// ToggleSave flips the saved state of an opportunity and returns the new state.
func (c *Client) ToggleSave(ctx context.Context, opportunityID string) (bool, error) {
	var out struct {
		Saved bool `json:"saved"`
	}
	path := "/api/opportunities/" + url.PathEscape(opportunityID) + "/save"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return false, fmt.Errorf("toggle save: %w", err)
	}
	return out.Saved, nil
}

// TrackAction sets the tracked action on an opportunity.
func (c *Client) TrackAction(ctx context.Context, opportunityID string, action model.ActionType) error {
	body := map[string]string{"actionType": string(action)}
	path := "/api/opportunities/" + url.PathEscape(opportunityID) + "/action"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("track action: %w", err)
	}
	return nil
}

// RemoveAction clears the tracked action on an opportunity.
func (c *Client) RemoveAction(ctx context.Context, opportunityID string) error {
	path := "/api/opportunities/" + url.PathEscape(opportunityID) + "/action"
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove action: %w", err)
	}
	return nil
}

// RecordGrowthEvent reports a funnel event for an acquisition source.
func (c *Client) RecordGrowthEvent(ctx context.Context, source, event string) error {
	body := map[string]string{"source": source, "event": event}
	if err := c.do(ctx, http.MethodPost, "/api/growth/events", body, nil); err != nil {
		return fmt.Errorf("record growth event: %w", err)
	}
	return nil
}

// Online reports whether the API answers its health check within three seconds.
func (c *Client) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: data}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
