package resp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realchat/internal/pkg/errs"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var body JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondSuccess(rec, httptest.NewRequest(http.MethodGet, "/", nil), map[string]int{"sessions": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, map[string]any{"sessions": float64(2)}, body.Data)
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"custom error", errs.NewError(errs.ErrUserExists, "alice"), http.StatusConflict, errs.ErrUserExists},
		{"wrapped custom error", fmt.Errorf("lookup: %w", errs.NewError(errs.ErrUnauthorized)), http.StatusUnauthorized, errs.ErrUnauthorized},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, errs.ErrUnknown},
		{"nil custom error", (*errs.CustomError)(nil), http.StatusInternalServerError, errs.ErrUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.Nil(t, body.Data)
		})
	}
}
