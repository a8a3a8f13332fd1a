package fleetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Fleetline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Party identifies a crew member.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Attachment represents an evidence record (partial).
type Attachment struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
	Name string `json:"name,omitempty"`
	MIME string `json:"mime,omitempty"`
	Size int64  `json:"size"`
}

// TaskItem represents a checklist item (partial).
type TaskItem struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Kind        string       `json:"kind"`
	Required    bool         `json:"required"`
	Completed   bool         `json:"completed"`
	Note        string       `json:"note,omitempty"`
	Signature   *string      `json:"signature,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Mission represents the API mission model (partial).
type Mission struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Vessel      string     `json:"vessel"`
	AssignedBy  Party      `json:"assigned_by"`
	AssignedTo  Party      `json:"assigned_to"`
	DueDate     string     `json:"due_date"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CanComplete bool       `json:"can_complete"`
	Items       []TaskItem `json:"items"`
}

// ItemDraft describes an item to create with a mission.
type ItemDraft struct {
	Text     string `json:"text"`
	Kind     string `json:"kind"`
	Required bool   `json:"required,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	MissionID  string `json:"mission_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedMissions wraps list responses with cursors.
type PaginatedMissions struct {
	Items      []Mission `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// CreateMission creates a mission with its items.
func (c *Client) CreateMission(ctx context.Context, title, vessel, dueDate string, assignedBy, assignedTo Party, items []ItemDraft) (Mission, error) {
	body := map[string]any{
		"title":       title,
		"vessel":      vessel,
		"due_date":    dueDate,
		"assigned_by": assignedBy,
		"assigned_to": assignedTo,
		"items":       items,
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v0/missions", body, &resp)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, c.missionPath(id, ""), nil, &resp)
	return resp, err
}

// ListMissions returns a paginated mission listing.
func (c *Client) ListMissions(ctx context.Context, limit int, cursor string) (PaginatedMissions, error) {
	endpoint := "v0/missions"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedMissions
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ToggleItem flips an acknowledge item's completed flag.
func (c *Client) ToggleItem(ctx context.Context, missionID, itemID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.itemPath(missionID, itemID, "toggle"), nil, &resp)
	return resp, err
}

// AttachEvidence uploads evidence bytes to a photo, video or file item.
func (c *Client) AttachEvidence(ctx context.Context, missionID, itemID, name, mime string, data []byte) (Mission, error) {
	body := map[string]any{
		"name": name,
		"mime": mime,
		"data": data,
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.itemPath(missionID, itemID, "evidence"), body, &resp)
	return resp, err
}

// Sign records a typed signer name on a signature item.
func (c *Client) Sign(ctx context.Context, missionID, itemID, signer string) (Mission, error) {
	body := map[string]any{"signer": signer}
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.itemPath(missionID, itemID, "evidence"), body, &resp)
	return resp, err
}

// SetItemNote sets the free-text note on an item.
func (c *Client) SetItemNote(ctx context.Context, missionID, itemID, note string) (Mission, error) {
	body := map[string]any{"note": note}
	var resp Mission
	err := c.do(ctx, http.MethodPut, c.itemPath(missionID, itemID, "note"), body, &resp)
	return resp, err
}

// RequestCompletion asks the engine to complete a mission.
func (c *Client) RequestCompletion(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(missionID, "complete"), nil, &resp)
	return resp, err
}

// Report downloads the mission report PDF.
func (c *Client) Report(ctx context.Context, missionID string) ([]byte, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+c.missionPath(missionID, "report"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return io.ReadAll(resp.Body)
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
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) missionPath(id, p string) string {
	base := fmt.Sprintf("v0/missions/%s", url.PathEscape(id))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) itemPath(missionID, itemID, p string) string {
	return fmt.Sprintf("v0/missions/%s/items/%s/%s", url.PathEscape(missionID), url.PathEscape(itemID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
