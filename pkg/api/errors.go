package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/workshoplabs/workshop/pkg/blob"
	"github.com/workshoplabs/workshop/pkg/store"
	"github.com/workshoplabs/workshop/pkg/tasks"
)

// apiError is a typed failure carrying the status code the router renders.
// Handlers construct these directly for boundary problems; domain errors
// from the task engine and blob store are translated in errorStatus.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.message
}

func badRequest(msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: msg}
}

// errorStatus maps any handler failure to an HTTP status code
func errorStatus(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrInvalid), errors.Is(err, blob.ErrBadDigest):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, tasks.ErrNotOpen),
		errors.Is(err, tasks.ErrLostRace),
		errors.Is(err, tasks.ErrNotClaimed):
		return http.StatusConflict
	case errors.Is(err, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// writeError renders a failure as {"error": message} with its status
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses a request body, surfacing parse failures as an
// explicit 400 rather than a missing-field error
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body")
	}
	return nil
}
