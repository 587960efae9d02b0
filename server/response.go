package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/logger"
)

// maxRequestBodySize bounds request bodies. Job sets are a few KB each,
// so 1MB leaves generous headroom.
const maxRequestBodySize = 1 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorw("Failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeWrappedError logs the underlying error and writes it with context
func writeWrappedError(w http.ResponseWriter, log *zap.SugaredLogger, err error, message string, status int) {
	if status >= http.StatusInternalServerError {
		log.Errorw(message, "error", err, "status", status)
	} else {
		log.Warnw(message, "error", err, "status", status)
	}
	writeError(w, status, fmt.Sprintf("%s: %v", message, err))
}

// handleError maps domain errors to HTTP status codes
func handleError(w http.ResponseWriter, log *zap.SugaredLogger, err error, message string) {
	switch {
	case errors.IsNotFoundError(err):
		writeWrappedError(w, log, err, message, http.StatusNotFound)
	case errors.IsInvalidRequestError(err):
		writeWrappedError(w, log, err, message, http.StatusBadRequest)
	case errors.IsConflictError(err):
		writeWrappedError(w, log, err, message, http.StatusConflict)
	case errors.Is(err, errors.ErrServiceUnavailable):
		writeWrappedError(w, log, err, message, http.StatusServiceUnavailable)
	default:
		writeWrappedError(w, log, err, message, http.StatusInternalServerError)
	}
}

// readJSON decodes a request body, marking malformed bodies as invalid
// requests so handleError turns them into a 400.
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid JSON body"), errors.ErrInvalidRequest)
	}
	return nil
}

// requireMethod rejects requests with the wrong HTTP method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed", r.Method))
		return false
	}
	return true
}

// requireMethods rejects requests whose method is not in the allowed set
func requireMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed", r.Method))
	return false
}

// extractPathParts splits the path after a prefix into its segments.
// Returns nil when nothing follows the prefix.
func extractPathParts(path, prefix string) []string {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// parseIntQueryParam reads an integer query parameter, clamping to
// [min, max] and falling back to defaultValue when absent or malformed.
func parseIntQueryParam(r *http.Request, name string, defaultValue, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// shortID truncates an ID for log readability
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
