package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rzbill/relay/internal/errs"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// maxBodyBytes bounds producer request bodies.
const maxBodyBytes = 64 << 10

// Helper functions for common HTTP responses

// writeError writes a failure envelope with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResp{Success: false, Error: message})
}

// writeJSON writes a 200 JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the status and user-facing message for err.
// Unclassified and transient errors are logged; their details never reach
// the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger logpkg.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("request failed", logpkg.Operation(op), logpkg.Err(err))
	}
	writeError(w, status, errs.Message(err))
}

// allowMethod writes 405 and returns false unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", OPTIONS")
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// decodeBody decodes a JSON request body into v. An empty or malformed body
// yields errs.ErrInvalidRequest.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.ErrInvalidRequest
		}
		return errs.With(errs.ErrInvalidRequest, err)
	}
	return nil
}

// parseSince parses the since watermark. Missing or malformed values mean
// "from the beginning".
func parseSince(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
