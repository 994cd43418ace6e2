package cursewardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Curseward HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Request represents the API request model.
type Request struct {
	ID        int64  `json:"id"`
	CurseID   int64  `json:"curse_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Mission represents the API mission model (partial).
type Mission struct {
	ID         int64   `json:"id"`
	Status     string  `json:"status"`
	Urgency    string  `json:"urgency"`
	LocationID *int64  `json:"location_id"`
	StartedAt  string  `json:"started_at"`
	EndedAt    *string `json:"ended_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// RequestGenerated carries the ids spawned when a request moves to assigning.
type RequestGenerated struct {
	MissionID    int64 `json:"missionId"`
	AssignmentID int64 `json:"assignmentId"`
}

// MissionGenerated carries the assignment ids created when a mission starts.
type MissionGenerated struct {
	MissionID            int64   `json:"missionId"`
	MissionAssignmentIDs []int64 `json:"missionAssignmentIds"`
}

// RequestOutcome is the envelope returned by request transitions.
type RequestOutcome struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Generated *RequestGenerated `json:"generated,omitempty"`
}

// MissionOutcome is the envelope returned by mission transitions.
type MissionOutcome struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Generated *MissionGenerated `json:"generated,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequest opens a pending request against a curse.
func (c *Client) CreateRequest(ctx context.Context, curseID int64) (Request, error) {
	body := map[string]any{"curse_id": curseID}
	var resp Request
	err := c.do(ctx, http.MethodPost, "v0/requests", body, &resp)
	return resp, err
}

// GetRequest fetches a request by id.
func (c *Client) GetRequest(ctx context.Context, id int64) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/requests/%d", id), nil, &resp)
	return resp, err
}

// AssignRequest moves a request to assigning, naming the sorcerer in charge
// and the urgency of the spawned mission.
func (c *Client) AssignRequest(ctx context.Context, id, sorcererID int64, urgency string) (RequestOutcome, error) {
	body := map[string]any{
		"status":             "assigning",
		"assignedSorcererId": sorcererID,
		"urgency":            urgency,
	}
	return c.transitionRequest(ctx, id, body)
}

// ReopenRequest moves an assigning request back to pending.
func (c *Client) ReopenRequest(ctx context.Context, id int64) (RequestOutcome, error) {
	return c.transitionRequest(ctx, id, map[string]any{"status": "pending"})
}

// CloseRequest closes an assigning request.
func (c *Client) CloseRequest(ctx context.Context, id int64) (RequestOutcome, error) {
	return c.transitionRequest(ctx, id, map[string]any{"status": "closed"})
}

func (c *Client) transitionRequest(ctx context.Context, id int64, body map[string]any) (RequestOutcome, error) {
	var resp RequestOutcome
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/requests/%d", id), body, &resp)
	return resp, err
}

// DeleteRequest deletes a request, canceling its mission if one is assigning.
func (c *Client) DeleteRequest(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/requests/%d", id), nil, nil)
}

// CreateMission creates a standalone mission.
func (c *Client) CreateMission(ctx context.Context, urgency string) (Mission, error) {
	body := map[string]any{"urgency": urgency}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v0/missions", body, &resp)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id int64) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/missions/%d", id), nil, &resp)
	return resp, err
}

// StartMission moves a mission to in_progress with a site and a crew.
func (c *Client) StartMission(ctx context.Context, id int64, locationID *int64, sorcererIDs []int64) (MissionOutcome, error) {
	body := map[string]any{
		"status":      "in_progress",
		"sorcererIds": sorcererIDs,
	}
	if locationID != nil {
		body["locationId"] = *locationID
	}
	return c.transitionMission(ctx, id, body)
}

// CloseMission moves an in_progress mission to succeeded, failed or canceled.
func (c *Client) CloseMission(ctx context.Context, id int64, status, events, collateralDamage, endedAt string) (MissionOutcome, error) {
	body := map[string]any{"status": status}
	if events != "" {
		body["events"] = events
	}
	if collateralDamage != "" {
		body["collateralDamage"] = collateralDamage
	}
	if endedAt != "" {
		body["endedAt"] = endedAt
	}
	return c.transitionMission(ctx, id, body)
}

func (c *Client) transitionMission(ctx context.Context, id int64, body map[string]any) (MissionOutcome, error) {
	var resp MissionOutcome
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/missions/%d", id), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
