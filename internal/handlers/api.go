package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

// CategorySource lists the category filter table
type CategorySource interface {
	Definitions() []models.CategoryDefinition
}

type APIHandler struct {
	config     *common.Config
	categories CategorySource
	logger     arbor.ILogger
}

// NewAPIHandler keeps a secret-free copy of config for the config endpoint
func NewAPIHandler(config *common.Config, categories CategorySource, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		config:     common.DeepCloneConfig(config),
		categories: categories,
		logger:     logger,
	}
}

// RootHandler returns the service banner
func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.NotFoundHandler(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"service": common.ServiceName,
		"version": common.GetVersion(),
		"status":  "running",
	})
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// CategoriesHandler returns the category filter table
// GET /categories
func (h *APIHandler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	definitions := h.categories.Definitions()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": definitions,
		"count":      len(definitions),
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"status": "error",
		"error":  "Not Found",
		"path":   r.URL.Path,
	})
}

// ConfigHandler returns the running configuration without credentials
// GET /config
func (h *APIHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.config == nil {
		WriteError(w, http.StatusNotFound, "Configuration not available")
		return
	}
	WriteJSON(w, http.StatusOK, h.config)
}
