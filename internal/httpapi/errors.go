package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

const (
	codeBadRequest        = "bad_request"
	codeInvalidRequest    = "invalid_request"
	codeMethodNotAllowed  = "method_not_allowed"
	codeSearchCancelled   = "search_cancelled"
	codeSearchTimeout     = "search_timeout"
	codeStreamUnsupported = "stream_unsupported"
	codeCacheError        = "cache_error"
	codeInternal          = "internal_error"
	codeForbidden         = "forbidden"
	codeUnauthorized      = "unauthorized"
)

type APIError struct {
	Error struct {
		Code      string   `json:"code"`
		Message   string   `json:"message"`
		Details   []string `json:"details,omitempty"`
		RequestID string   `json:"request_id,omitempty"`
	} `json:"error"`
}

// invalidError carries one message per failed field rule.
type invalidError struct {
	fields []string
}

func (e *invalidError) Error() string { return "request failed validation" }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details ...string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.Details = details
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// writeRequestError answers 400 for a request that could not be decoded or
// did not validate.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *invalidError
	if errors.As(err, &ie) {
		WriteError(w, r, http.StatusBadRequest, codeInvalidRequest, ie.Error(), ie.fields...)
		return
	}
	WriteError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
}

// writeSearchError maps an aborted search to 504 when the caller's deadline
// ran out and 503 otherwise.
func writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, r, http.StatusGatewayTimeout, codeSearchTimeout, err.Error())
		return
	}
	WriteError(w, r, http.StatusServiceUnavailable, codeSearchCancelled, err.Error())
}
