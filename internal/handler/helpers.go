package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gatehouse-cms/gatehouse/internal/server/middleware"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

// maxBodyBytes bounds JSON request bodies on the auth endpoints.
const maxBodyBytes = 64 << 10

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeMessage writes a {"message": ...} body.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError renders err as the flat error body. Classified service errors
// keep their status, message and extra fields; anything else is logged and
// reported as a bare 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var e *service.Error
	if !errors.As(err, &e) {
		e = &service.Error{Kind: service.KindInternal, Message: "Server error", Err: err}
	}
	if e.Kind == service.KindInternal {
		logger.Error("request failed", "error", err)
	}
	middleware.WriteError(w, e.Kind.Status(), e.Message, e.Fields)
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return &service.Error{Kind: service.KindValidation, Message: "Invalid JSON body", Err: err}
	}
	return nil
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. A bare end
// date covers the whole day.
func queryTime(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, val)
	if err != nil {
		return nil, &service.Error{
			Kind:    service.KindValidation,
			Message: "Invalid " + key,
			Fields:  map[string]interface{}{"field": key},
			Err:     err,
		}
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
