package server

import (
	"net/http"

	"github.com/ternarybob/covera/internal/metrics"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.app.APIHandler.RootHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/categories", s.app.APIHandler.CategoriesHandler)
	mux.HandleFunc("/config", s.app.APIHandler.ConfigHandler)

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Job API
	mux.HandleFunc("/jobs", s.handleJobsRoute)
	mux.HandleFunc("/jobs/", s.handleJobRoutes)
	mux.HandleFunc("/active-jobs", s.app.JobHandler.ActiveJobsHandler)

	if s.app.Config.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	return mux
}

// handleJobsRoute routes GET (list) and POST (start) on /jobs
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	methodRoutes{
		http.MethodGet:  s.app.JobHandler.ListJobsHandler,
		http.MethodPost: s.app.JobHandler.StartJobHandler,
	}.serve(w, r)
}

// handleJobRoutes routes /jobs/{id} and its status, stop and results subresources
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	_, sub, ok := splitResourcePath(r.URL.Path, "/jobs/")
	if !ok {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	jobs := s.app.JobHandler
	switch sub {
	case "":
		methodRoutes{
			http.MethodGet:    jobs.GetJobHandler,
			http.MethodDelete: jobs.DeleteJobHandler,
		}.serve(w, r)
	case "status":
		jobs.GetJobStatusHandler(w, r)
	case "stop":
		jobs.StopJobHandler(w, r)
	case "results":
		jobs.GetJobResultsHandler(w, r)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
