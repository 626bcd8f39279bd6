package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAdminToken(t *testing.T) {
	token, err := IssueAdminToken(" ops ", testSecret, AdminTokenExpiration)
	require.NoError(t, err)

	payload, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "ops", payload.Subject)
	assert.Equal(t, RoleAdmin, payload.Role)
	assert.Equal(t, TokenIssuer, payload.Issuer)
	assert.InDelta(t, time.Now().Add(AdminTokenExpiration).Unix(), payload.ExpiresAt, 5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/log-all-sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protectedHandler(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ops", rec.Header().Get("X-Subject"))
}

func TestIssueAdminTokenRejectsBadInput(t *testing.T) {
	_, err := IssueAdminToken("  ", testSecret, time.Hour)
	assert.Error(t, err)

	_, err = IssueAdminToken("ops", testSecret, 0)
	assert.Error(t, err)
}

func TestGetPayloadFromContextWithoutToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/debug/sessions/alice", nil)
	assert.Nil(t, GetPayloadFromContext(req))
}
