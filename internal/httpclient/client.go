package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ternarybob/covera/internal/models"
)

// ErrNotFound is returned when the server answers 404
var ErrNotFound = errors.New("not found")

// APIError carries a non-2xx answer from the job API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// StartResponse is the answer to a start request
type StartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobStatus is the compact status view of a job
type JobStatus struct {
	JobID     string                 `json:"job_id"`
	Status    models.JobStatus       `json:"status"`
	Progress  map[string]interface{} `json:"progress"`
	UpdatedAt string                 `json:"updated_at"`
	Active    bool                   `json:"active"`
}

// JobView is a full job snapshot plus whether its pipeline is running
type JobView struct {
	models.Job
	Active bool `json:"active"`
}

// Event is one message pushed over the event stream
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Client talks to a running covera server
type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
}

// New creates a client for the server at baseURL. A nil httpClient uses a 30s default.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(30 * time.Second)
	}
	return &Client{
		baseURL: u,
		http:    httpClient,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *Client) StartJob(ctx context.Context, req models.StartJobRequest) (*StartResponse, error) {
	var out StartResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*JobView, error) {
	var out JobView
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStatus(ctx context.Context, id string) (*JobStatus, error) {
	var out JobStatus
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopJob requests a cooperative stop. The server does not wait for it.
func (c *Client) StopJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/stop", nil, nil)
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListJobs(ctx context.Context) ([]models.Job, error) {
	var out struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *Client) ActiveJobs(ctx context.Context) ([]string, error) {
	var out struct {
		ActiveJobs []string `json:"active_jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/active-jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.ActiveJobs, nil
}

func (c *Client) Results(ctx context.Context, id string) ([]models.ResultRecord, error) {
	var out struct {
		Results []models.ResultRecord `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/results", nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) Categories(ctx context.Context) ([]models.CategoryDefinition, error) {
	var out struct {
		Categories []models.CategoryDefinition `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// Watch streams events for one job until it reaches a terminal status,
// the handler returns an error or ctx is cancelled. An empty jobID watches every job
// until ctx ends.
func (c *Client) Watch(ctx context.Context, jobID string, handle func(Event) error) error {
	wsURL := *c.baseURL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/ws"

	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		if jobID != "" && event.Payload["job_id"] != jobID {
			continue
		}
		if err := handle(event); err != nil {
			return err
		}
		if jobID != "" && event.Type == "job_status" {
			if status, _ := event.Payload["status"].(string); models.JobStatus(status).IsTerminal() {
				return nil
			}
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			msg = failure.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
