package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/app"
	"github.com/ternarybob/covera/internal/common"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Classifier.Provider = "rules"
	cfg.Metrics.Enabled = true
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	application, err := app.New(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Close(ctx)
	})
	return New(application)
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
		code   int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/version", "", http.StatusOK},
		{http.MethodGet, "/categories", "", http.StatusOK},
		{http.MethodGet, "/config", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/jobs", "", http.StatusOK},
		{http.MethodGet, "/active-jobs", "", http.StatusOK},
		{http.MethodPost, "/jobs", `{"start_url":"shop.ae"}`, http.StatusBadRequest},
		{http.MethodPut, "/jobs", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/jobs/missing", "", http.StatusNotFound},
		{http.MethodGet, "/jobs/missing/status", "", http.StatusNotFound},
		{http.MethodPost, "/jobs/missing/stop", "", http.StatusNotFound},
		{http.MethodGet, "/jobs/missing/results", "", http.StatusNotFound},
		{http.MethodDelete, "/jobs/missing", "", http.StatusNotFound},
		{http.MethodGet, "/jobs/missing/unknown", "", http.StatusNotFound},
		{http.MethodOptions, "/jobs", "", http.StatusOK},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestStartStopThroughRoutes(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Shop</h1></body></html>`))
	}))
	defer target.Close()

	s := newTestServer(t)

	rec := serve(s, http.MethodPost, "/jobs", `{"start_url":"`+target.URL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "started", started["status"])
	jobID := started["job_id"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		rec := serve(s, http.MethodGet, "/jobs/"+jobID+"/status", "")
		var body map[string]interface{}
		if json.Unmarshal(rec.Body.Bytes(), &body) != nil {
			return false
		}
		terminal := body["status"] == "completed" || body["status"] == "failed" || body["status"] == "stopped"
		return terminal && body["active"] == false
	}, 10*time.Second, 20*time.Millisecond)

	rec = serve(s, http.MethodGet, "/jobs/"+jobID+"/results", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodDelete, "/jobs/"+jobID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeOnBoundAddress(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "127.0.0.1:0", s.Addr())

	require.NoError(t, s.Listen())
	require.NoError(t, s.Listen())
	require.NotEqual(t, "127.0.0.1:0", s.Addr())

	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	resp, err := http.Get(s.URL() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-served)
}

func TestSplitResourcePath(t *testing.T) {
	tests := []struct {
		path    string
		id, sub string
		ok      bool
	}{
		{"/jobs/abc", "abc", "", true},
		{"/jobs/abc/", "abc", "", true},
		{"/jobs/abc/status", "abc", "status", true},
		{"/jobs/abc/stop/", "abc", "stop", true},
		{"/jobs/", "", "", false},
		{"/jobs/abc/results/extra", "", "", false},
	}
	for _, tt := range tests {
		id, sub, ok := splitResourcePath(tt.path, "/jobs/")
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.id, id, tt.path)
		assert.Equal(t, tt.sub, sub, tt.path)
	}
}

func TestMethodNotAllowedSetsAllow(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodPatch, "/jobs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))

	rec = serve(s, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
