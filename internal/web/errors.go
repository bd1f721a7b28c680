package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request id; the client receives
// the Portuguese message from core.MapError:
//   - JSON {error, detail, action, code} for API calls
//   - an alert fragment for HTMX requests
//
// The status comes from the error: unknown entity 404, busy limiter 503,
// oversized body 413, file changed since preview 409, validation and file
// problems 400, timeouts 504.

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error. Detail repeats the
// message for clients that read the detail field.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileChanged):
		return http.StatusConflict
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	code := core.MapError(err).Code
	switch {
	case code == "FILE001":
		return http.StatusRequestEntityTooLarge
	case strings.HasPrefix(code, "VAL"), strings.HasPrefix(code, "FILE"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= 500 {
		log.Error("request error", args...)
	} else {
		log.Warn("request error", args...)
	}

	if isHTMX(r) {
		renderErrorPartial(w, r, msg, status)
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:  msg.Message,
		Detail: msg.Message,
		Action: msg.Action,
		Code:   msg.Code,
	})
}

// renderErrorPartial renders an HTMX alert. HTMX swaps only 2xx responses by
// default, so the fragment is sent with 200 and the real status in a header.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Error-Status", http.StatusText(status))
	w.Header().Set("X-Request-Id", middleware.GetReqID(r.Context()))
	w.WriteHeader(http.StatusOK)
	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error partial", "error", err)
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
