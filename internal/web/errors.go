package web

// errors.go provides unified error responses for the API.
//
// Every error is:
//   - mapped with core.MapError to a localized message and support code
//   - logged with the technical error and request id for correlation
//   - answered as JSON with an HTTP status chosen from the support code

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
)

// ErrorResponse is the JSON body of an error. Code is machine-readable,
// Message and Action are for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps a support code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case core.CodeNotFound, "EXP004":
		return http.StatusNotFound
	case core.CodeRule, core.CodeInvalid, "EXP001", "EXP003", "EXP005", "FLD002":
		return http.StatusBadRequest
	case "EXP002", "REQ004":
		return http.StatusTooManyRequests
	case "REQ003":
		return http.StatusUnauthorized
	case "REQ002", "DB006":
		return http.StatusGatewayTimeout
	case "DB002":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(r.Context(), s.bundle, err)
	status := statusFor(msg.Code)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// badRequest answers a body that could not be decoded.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Debug("malformed request body", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "malformed request body",
		Message: "malformed request body",
		Action:  "Check the request JSON",
		Code:    "REQ005",
	})
}

// badUpload answers a multipart request without a readable "file" part.
func (s *Server) badUpload(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Debug("malformed upload", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "malformed upload",
		Message: "file too large or missing",
		Action:  "Attach one Excel file in the \"file\" field",
		Code:    "REQ006",
	})
}

// writeJSON encodes v with status. Encoding errors are logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
