/*
Package resp writes the standard JSON envelope used by every HTTP endpoint:
a business code, a message, the chi request id and an optional payload.
*/
package resp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/logx"
)

// JSONResponse is the envelope returned to HTTP clients.
type JSONResponse struct {
	// Code is 0 on success, otherwise an errs code.
	Code int `json:"code"`

	Message string `json:"message"`

	// RequestID echoes the X-Request-Id assigned by the router, when present.
	RequestID string `json:"requestId,omitempty"`

	Data any `json:"data,omitempty"`
}

// RespondJSON encodes payload with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	body, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus, "path", r.URL.Path)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	if _, err := w.Write(body); err != nil {
		logx.Debug("Client went away before response was written", "path", r.URL.Path, "error", err.Error())
	}
}

// RespondSuccess sends data with HTTP 200.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{
		Code:      0,
		Message:   "success",
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	})
}

// RespondError sends err as an error envelope. A *errs.CustomError anywhere in
// the chain decides the code and status; anything else becomes ErrUnknown.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) || customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown, err)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:      customErr.Code,
		Message:   customErr.Message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
