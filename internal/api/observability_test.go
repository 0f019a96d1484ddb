package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugListenAddr(t *testing.T) {
	def := DefaultObservabilityConfig().ListenAddr

	tests := []struct {
		addr string
		want string
	}{
		{"", def},
		{"127.0.0.1:7070", "127.0.0.1:7070"},
		{"localhost:7070", "localhost:7070"},
		{"[::1]:7070", "[::1]:7070"},
		{"0.0.0.0:6060", def},
		{"10.1.2.3:6060", def},
		{"not-an-addr", def},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, debugListenAddr(tt.addr), tt.addr)
	}

	t.Setenv("ALLOW_DEBUG_EXTERNAL", "true")
	assert.Equal(t, "0.0.0.0:6060", debugListenAddr("0.0.0.0:6060"))
	assert.Equal(t, def, debugListenAddr(""))
}

func TestDebugHandler(t *testing.T) {
	open := DebugHandler(DefaultObservabilityConfig())
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	locked := DebugHandler(ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "secret"})

	rec = httptest.NewRecorder()
	locked.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("ops", "secret")
	rec = httptest.NewRecorder()
	locked.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
