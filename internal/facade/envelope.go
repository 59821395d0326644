package facade

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/orchestrator/fabric/internal/orchtypes"
)

// MaxPayloadSize bounds request bodies (spec §4.9), grounded on the
// teacher's handlers.go MaxPayloadSize constant and limitRequestSize
// helper.
const MaxPayloadSize = 1 * 1024 * 1024

// envelope is the response shape every endpoint returns (spec §6):
// success plus domain fields, or success:false plus a detail string.
type envelope map[string]interface{}

func ok(fields map[string]interface{}) envelope {
	e := envelope{"success": true}
	for k, v := range fields {
		e[k] = v
	}
	return e
}

func respondJSON(w http.ResponseWriter, status int, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}

// respondError maps err to its HTTP status via orchtypes.ErrorKind and
// writes {success:false, detail}. Non-API errors are treated as Internal.
func respondError(w http.ResponseWriter, log *zap.Logger, err error) {
	apiErr := orchtypes.AsAPIError(err)
	status := apiErr.Kind.HTTPStatus()
	fields := envelope{"success": false, "detail": apiErr.Message}
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	if status >= 500 {
		log.Error("facade request failed", zap.Error(err), zap.Int("status", status))
	}
	respondJSON(w, status, fields)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "invalid request body: %v", err)
	}
	return nil
}
