package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/chainpad/internal/apperr"
	"github.com/starford/chainpad/internal/identity"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty" example:"busy"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// errorStatus maps a session or access-layer error to an HTTP status and a
// stable code.
func errorStatus(err error) (int, string) {
	var (
		subErr   *apperr.SubmissionError
		fetchErr *apperr.FetchError
	)
	switch {
	// Ledger failures first: a reverted delete may wrap ErrNotFound.
	case errors.As(err, &subErr):
		return http.StatusBadGateway, "submission_failed"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "fetch_failed"
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, identity.ErrInvalidAccount):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperr.ErrNotConnected):
		return http.StatusPreconditionRequired, "not_connected"
	case errors.Is(err, apperr.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, apperr.ErrStaleIndex):
		return http.StatusConflict, "stale_index"
	case errors.Is(err, apperr.ErrNoEdit):
		return http.StatusConflict, "no_edit"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrUnsupported):
		return http.StatusNotImplemented, "unsupported"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, op string, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", msg))
		msg = "internal error"
	}
	writeJSON(w, status, errResponse{Error: msg, Code: code})
}
