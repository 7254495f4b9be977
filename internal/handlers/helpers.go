package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes caps request bodies accepted by the job API
const maxBodyBytes = 1 << 20

// RequireMethod writes a 405 and returns false unless r uses method
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// WriteJSON encodes data as the response body with statusCode
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes {"status":"success","message":...}
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "message": message})
}

// WriteError writes {"status":"error","error":...}
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{"status": "error", "error": message})
}

// readJSON decodes a single JSON object from the body
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("body is empty")
		case errors.As(err, &tooLarge):
			return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
		default:
			return err
		}
	}
	if dec.More() {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

// pathSegment returns the i-th segment of the request path, or "" when absent.
// For /jobs/{id}/stop, segment 1 is the job ID.
func pathSegment(r *http.Request, i int) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}
