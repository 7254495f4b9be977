package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/covera/internal/handlers"
)

// methodRoutes maps HTTP methods to the handler serving them on one path
type methodRoutes map[string]http.HandlerFunc

// serve dispatches on r.Method. Unknown methods answer 405 with an Allow header.
func (m methodRoutes) serve(w http.ResponseWriter, r *http.Request) {
	if handler, ok := m[r.Method]; ok && handler != nil {
		handler(w, r)
		return
	}

	allowed := make([]string, 0, len(m))
	for method, handler := range m {
		if handler != nil {
			allowed = append(allowed, method)
		}
	}
	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// splitResourcePath splits "/jobs/{id}/{sub}" under prefix "/jobs/" into id and sub.
// A trailing slash is ignored; more than two segments is not a match.
func splitResourcePath(path, prefix string) (id, sub string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], parts[1] != ""
	default:
		return "", "", false
	}
}
