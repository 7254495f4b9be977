package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/covera/internal/models"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newAPI(t *testing.T) *Client {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req models.StartJobRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.StartURL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "start_url required"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"job_id": "job-1", "status": "started"})
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"jobs":  []models.Job{{ID: "job-1", Status: models.JobStatusRunning}},
				"count": 1,
			})
		}
	})
	mux.HandleFunc("/jobs/job-1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":   "job-1",
			"status":   "running",
			"progress": map[string]interface{}{"phase": "scraping"},
			"active":   true,
		})
	})
	mux.HandleFunc("/jobs/job-1/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"job_id": "job-1", "status": "stopping"})
	})
	mux.HandleFunc("/jobs/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "error": "Job not found"})
	})
	mux.HandleFunc("/active-jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active_jobs": []string{"job-1"}, "count": 1})
	})
	mux.HandleFunc("/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"categories": []models.CategoryDefinition{{Key: "phones", DisplayName: "Phones"}},
			"count":      1,
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		messages := []Event{
			{Type: "connected", Payload: map[string]interface{}{"server_instance_id": "x"}},
			{Type: "job_progress", Payload: map[string]interface{}{"job_id": "other"}},
			{Type: "job_progress", Payload: map[string]interface{}{"job_id": "job-1", "status": "running"}},
			{Type: "job_status", Payload: map[string]interface{}{"job_id": "job-1", "status": "completed"}},
		}
		for _, m := range messages {
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, nil)
	require.NoError(t, err)
	return client
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("localhost:8080", nil)
	assert.Error(t, err)
	_, err = New("ftp://host", nil)
	assert.Error(t, err)
}

func TestClientCalls(t *testing.T) {
	client := newAPI(t)
	ctx := context.Background()

	started, err := client.StartJob(ctx, models.StartJobRequest{StartURL: "https://shop.ae"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", started.JobID)

	_, err = client.StartJob(ctx, models.StartJobRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "start_url required", apiErr.Message)

	status, err := client.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, status.Status)
	assert.True(t, status.Active)
	assert.Equal(t, "scraping", status.Progress["phase"])

	require.NoError(t, client.StopJob(ctx, "job-1"))

	_, err = client.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	jobs, err := client.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)

	active, err := client.ActiveJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, active)

	categories, err := client.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "phones", categories[0].Key)
}

func TestWatchFiltersAndStopsOnTerminal(t *testing.T) {
	client := newAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []string
	err := client.Watch(ctx, "job-1", func(e Event) error {
		seen = append(seen, e.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"job_progress", "job_status"}, seen)
}
