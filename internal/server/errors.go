package server

import (
	"encoding/json"
	"net/http"

	"github.com/benedoc-inc/pdfmerge/types"
)

// Error codes for failures that do not come from the engine
const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeRateLimited    = "RATE_LIMITED"
	codeUnavailable    = "SHUTTING_DOWN"
	codeNotFound       = "NOT_FOUND"
	codeTooLarge       = "REQUEST_TOO_LARGE"
	codeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.metrics.FailuresTotal.WithLabelValues(code).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeEngineError reports a render or merge failure. Caller-caused engine
// errors are 400; environment failures are 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code, ok := types.GetErrorCode(err)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	status := http.StatusBadRequest
	if !types.IsClientError(err) {
		status = http.StatusInternalServerError
	}
	s.writeError(w, r, status, string(code), err.Error())
}
