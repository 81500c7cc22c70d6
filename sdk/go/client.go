package organigrammsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

// Client is a minimal organigramm HTTP API client. It satisfies
// orgchart.Persistence, so an Editor can work against a remote server.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

var _ orgchart.Persistence = (*Client)(nil)

// New creates a client with sane defaults. A Client is safe for concurrent
// use as long as its fields are not changed after the first request.
func New(baseURL string) *Client {
	timeout := 10 * time.Second
	return &Client{
		BaseURL:    baseURL,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Practice is the API practice model.
type Practice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	PracticeID string         `json:"practice_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Chart is the server-computed chart of a practice.
type Chart struct {
	PracticeID string `json:"practice_id"`
	orgchart.Snapshot
}

// APIError wraps non-2xx responses. It unwraps to the orgchart error that
// matches the status, so callers can use errors.Is and errors.As.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusConflict:
		if e.Code == "conflict" || e.Code == "" {
			return orgchart.ErrConflict
		}
	case http.StatusNotFound:
		return orgchart.ErrNotFound
	case http.StatusUnprocessableEntity:
		field, _ := e.Details["field"].(string)
		reason, _ := e.Details["reason"].(string)
		if reason == "cycle" {
			return orgchart.ErrCycle
		}
		return orgchart.ValidationError{Field: field, Reason: reason}
	}
	return nil
}

// CreatePractice creates a practice; the caller becomes its admin.
func (c *Client) CreatePractice(ctx context.Context, id, name string) (Practice, error) {
	var resp Practice
	err := c.do(ctx, http.MethodPost, "v0/practices", map[string]any{"id": id, "name": name}, nil, &resp)
	return resp, err
}

// Practices lists the practices the caller belongs to.
func (c *Client) Practices(ctx context.Context) ([]Practice, error) {
	var resp []Practice
	err := c.do(ctx, http.MethodGet, "v0/practices", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListPositions(ctx context.Context, practiceID string) ([]domain.Position, error) {
	var resp []domain.Position
	err := c.do(ctx, http.MethodGet, practicePath(practiceID, "positions"), nil, nil, &resp)
	return resp, err
}

// CreatePosition sends draft. The server derives the level from the parent,
// so draft.Level is not sent.
func (c *Client) CreatePosition(ctx context.Context, practiceID string, draft domain.PositionDraft) (domain.Position, error) {
	body := map[string]any{"title": draft.Title, "is_management": draft.IsManagement}
	for k, v := range map[string]*string{
		"department": draft.Department,
		"user_id":    draft.UserID,
		"team_id":    draft.TeamID,
		"parent_id":  draft.ParentID,
		"color":      draft.Color,
	} {
		if v != nil {
			body[k] = *v
		}
	}
	if draft.DisplayOrder != nil {
		body["display_order"] = *draft.DisplayOrder
	}
	var resp domain.Position
	err := c.do(ctx, http.MethodPost, practicePath(practiceID, "positions"), body, nil, &resp)
	return resp, err
}

// UpdatePosition sends patch. ExpectedVersion travels as If-Match; an empty
// ParentID moves the position to the top.
func (c *Client) UpdatePosition(ctx context.Context, practiceID, id string, patch domain.PositionPatch) (domain.Position, error) {
	var headers map[string]string
	if patch.ExpectedVersion != nil {
		headers = map[string]string{"If-Match": strconv.Quote(strconv.FormatInt(*patch.ExpectedVersion, 10))}
		patch.ExpectedVersion = nil
	}
	patch.Level = nil
	var resp domain.Position
	err := c.do(ctx, http.MethodPatch, practicePath(practiceID, "positions/"+url.PathEscape(id)), patch, headers, &resp)
	return resp, err
}

func (c *Client) DeletePosition(ctx context.Context, practiceID, id string) error {
	return c.do(ctx, http.MethodDelete, practicePath(practiceID, "positions/"+url.PathEscape(id)), nil, nil, nil)
}

// ParentCandidates lists the positions id may report to.
func (c *Client) ParentCandidates(ctx context.Context, practiceID, id string) ([]domain.Position, error) {
	var resp []domain.Position
	err := c.do(ctx, http.MethodGet, practicePath(practiceID, "positions/"+url.PathEscape(id)+"/parent-candidates"), nil, nil, &resp)
	return resp, err
}

// Chart returns the chart computed with the practice's canvas geometry.
func (c *Client) Chart(ctx context.Context, practiceID string) (Chart, error) {
	var resp Chart
	err := c.do(ctx, http.MethodGet, practicePath(practiceID, "chart"), nil, nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context, practiceID string) (orgchart.Stats, error) {
	var resp orgchart.Stats
	err := c.do(ctx, http.MethodGet, practicePath(practiceID, "stats"), nil, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, practiceID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := practicePath(practiceID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func practicePath(practiceID, p string) string {
	return fmt.Sprintf("v0/practices/%s/%s", url.PathEscape(practiceID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
