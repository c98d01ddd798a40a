package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tosti/internal/music"
	"tosti/internal/store"
)

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{store.ErrTime, http.StatusBadRequest, "time_error"},
	{store.ErrImmutable, http.StatusBadRequest, "immutable"},
	{store.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{store.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{store.ErrForbidden, http.StatusForbidden, "forbidden"},
	{store.ErrBlacklisted, http.StatusForbidden, "blacklisted"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrOverlap, http.StatusConflict, "overlap"},
	{store.ErrState, http.StatusConflict, "state_error"},
	{store.ErrFinalized, http.StatusConflict, "finalized"},
	{store.ErrInactive, http.StatusConflict, "inactive"},
	{store.ErrClosed, http.StatusConflict, "closed"},
	{store.ErrUnavailable, http.StatusConflict, "unavailable"},
	{store.ErrWrongVenue, http.StatusConflict, "wrong_venue"},
	{store.ErrQuotaExceeded, http.StatusConflict, "quota_exceeded"},
	{store.ErrInUse, http.StatusConflict, "in_use"},
	{store.ErrConflict, http.StatusConflict, "conflict"},
	{store.ErrUpstream, http.StatusServiceUnavailable, "upstream_error"},
	{music.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

func mapError(err error) (int, string, string) {
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.err) {
			return candidate.status, candidate.code, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed method=%s path=%s request_id=%s err=%v", r.Method, r.URL.Path, requestIDFromRequest(r), err)
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
