package logx

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.42:5555":        "203.0.113.0",
		"203.0.113.42":             "203.0.113.0",
		"198.51.100.7":             "198.51.100.0",
		"::ffff:198.51.100.7":      "198.51.100.0",
		"127.0.0.1:80":             "127.0.0.1",
		"[2001:db8:1:2:3:4:5:6]:1": "2001:db8:1:2::",
		"not-an-ip":                "unknown_ip",
	}
	for in, want := range cases {
		assert.Equal(t, want, anonymizeIP(in), in)
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	InitWithWriter(&buf, zerolog.DebugLevel)
	t.Cleanup(func() { InitWithWriter(os.Stderr, zerolog.InfoLevel) })
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestRequestLoggerLevels(t *testing.T) {
	buf := captureLogs(t)

	h := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/api/users/online", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "198.51.100.7:4000"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	logged := lines(t, buf)
	require.Len(t, logged, 3)
	assert.Equal(t, "debug", logged[0]["level"])
	assert.Equal(t, "info", logged[1]["level"])
	assert.Equal(t, "warn", logged[2]["level"])
	assert.Equal(t, "198.51.100.0", logged[1]["remote_ip"])
	assert.Equal(t, "http", logged[1]["component"])
}

func TestHelpersIgnoreOddFields(t *testing.T) {
	buf := captureLogs(t)

	Info("hello", "user", "alice")
	Warn("odd", "dangling")

	logged := lines(t, buf)
	require.Len(t, logged, 3, "odd field list logs a warning, then the message without fields")
	assert.Equal(t, "alice", logged[0]["user"])
	assert.NotContains(t, logged[2], "dangling")
	assert.Equal(t, "odd", logged[2]["message"])
}

func TestComponentLogger(t *testing.T) {
	buf := captureLogs(t)

	logger := Component("Registry")
	logger.Info().Msg("ready")

	logged := lines(t, buf)
	require.Len(t, logged, 1)
	assert.Equal(t, "Registry", logged[0]["component"])
}
