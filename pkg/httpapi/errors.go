// Package httpapi serves the operator API over HTTP: discovery, topology
// read, JSON-blob cache, and scheduler endpoints, plus a Prometheus
// /metrics endpoint. Authentication of the API itself is out of scope —
// the engine trusts an externally validated X-Noc-Username header from
// whatever proxy fronts it.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nocauto/noc-engine/pkg/util"
)

// errorResponse is the JSON body written for any non-2xx response.
type errorResponse struct {
	Error string         `json:"error"`
	Kind  util.ErrorKind `json:"kind,omitempty"`
}

// writeError maps err to an HTTP status via its CommandError kind (if any)
// or a small set of sentinel checks, and writes a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusForError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Kind: kind})
}

func statusForError(err error) (int, util.ErrorKind) {
	var ce *util.CommandError
	if errors.As(err, &ce) {
		return statusForKind(ce.Kind), ce.Kind
	}
	switch {
	case errors.Is(err, util.ErrNotFound), errors.Is(err, util.ErrDeviceNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, ""
	case errors.Is(err, util.ErrValidationFailed):
		return http.StatusBadRequest, ""
	case errors.Is(err, util.ErrAlreadyExists), errors.Is(err, util.ErrInUse):
		return http.StatusConflict, ""
	case errors.Is(err, util.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable, util.KindBrokerUnavailable
	default:
		return http.StatusInternalServerError, ""
	}
}

// statusForKind maps one typed command-error kind to an HTTP status, per
// the documented policy: 400 for input problems, 404 for missing
// entities, 409 for conflicts, 503 for an unavailable broker, 500
// otherwise. No kind exists for database outages; those errors reach
// statusForError untyped and map to 500.
func statusForKind(kind util.ErrorKind) int {
	switch kind {
	case util.KindDeviceNotFound:
		return http.StatusNotFound
	case util.KindMissingCredentials, util.KindCommandUnsupported:
		return http.StatusBadRequest
	case util.KindCacheConflict:
		return http.StatusConflict
	case util.KindBrokerUnavailable:
		return http.StatusServiceUnavailable
	case util.KindUnreachable, util.KindAuthFailed, util.KindTimeout, util.KindBannerTimeout, util.KindParseFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return util.NewValidationError("request body is required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return util.NewValidationError("decoding request body: " + err.Error())
	}
	return nil
}
