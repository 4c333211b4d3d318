package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const maxBatchBytes = 10 << 20

var errTrailingData = errors.New("unexpected data after JSON value")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// readBatch decodes a single JSON value from a size-capped request body.
// On failure it writes the error response itself and returns false.
func readBatch(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errTrailingData
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
	} else {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
	}
	return false
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
