/*
Package req provides helper functions for HTTP request parsing and data binding.

Bound values are checked against their `validate` struct tags, so handlers only
ever see well-formed input.
*/
package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"realchat/internal/pkg/errs"
	"realchat/internal/pkg/logx"
)

// MaxJSONBodySize bounds the request body accepted by BindJSON.
const MaxJSONBodySize int64 = 64 << 10 // 64 KB

var validate = validator.New()

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	return DecodeJSON(r.Body, dst)
}

// DecodeJSON decodes exactly one JSON value from body into dst and validates it.
// It is shared by the HTTP handlers and the websocket frame reader.
func DecodeJSON(body io.Reader, dst any) *errs.CustomError {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return Validate(dst)
}

// Validate runs struct-tag validation on v.
func Validate(v any) *errs.CustomError {
	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			logx.Error(err, "Validation called with a non-struct value")
			return errs.NewError(errs.ErrUnknown)
		}

		logx.Debug("Request validation failed", "error", err.Error())
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}
