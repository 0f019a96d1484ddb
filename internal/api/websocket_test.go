package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blockfall/internal/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(ts *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + id
}

func dial(t *testing.T, url, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

// readEvent reads messages until one with the wanted event name arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			data, _ := msg.Data.(map[string]any)
			return data
		}
	}
}

func TestWebSocketStateAndCommands(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{Width: 10, Height: 20})
	id := env.createSession(t)

	conn, _, err := dial(t, wsURL(env.ts, id), "http://localhost:3000")
	require.NoError(t, err)

	state := readEvent(t, conn, EventGameState)
	assert.Equal(t, id, state["id"])
	require.Eventually(t, func() bool { return env.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"command": "right"}))
	update := readEvent(t, conn, EventGameUpdate)
	assert.Equal(t, id, update["sessionId"])
	assert.Equal(t, "right", update["outcome"].(map[string]any)["command"])

	require.NoError(t, conn.WriteJSON(map[string]string{"key": " "}))
	update = readEvent(t, conn, EventGameUpdate)
	assert.Equal(t, "drop", update["outcome"].(map[string]any)["command"])
}

func TestWebSocketReceivesHTTPCommands(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{Width: 10, Height: 20})
	id := env.createSession(t)

	conn, _, err := dial(t, wsURL(env.ts, id), "http://localhost")
	require.NoError(t, err)
	readEvent(t, conn, EventGameState)

	status, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/commands", map[string]string{"command": "rotate"})
	require.Equal(t, http.StatusOK, status)

	update := readEvent(t, conn, EventGameUpdate)
	assert.Equal(t, "rotate", update["outcome"].(map[string]any)["command"])
	assert.Equal(t, []any{"rotate"}, update["cues"])
}

func TestWebSocketOnlySeesOwnSession(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{Width: 10, Height: 20})
	mine := env.createSession(t)
	other := env.createSession(t)

	conn, _, err := dial(t, wsURL(env.ts, mine), "http://localhost")
	require.NoError(t, err)
	readEvent(t, conn, EventGameState)

	env.do(t, http.MethodPost, "/api/sessions/"+other+"/commands", map[string]string{"command": "left"})
	env.do(t, http.MethodPost, "/api/sessions/"+mine+"/commands", map[string]string{"command": "right"})

	update := readEvent(t, conn, EventGameUpdate)
	assert.Equal(t, mine, update["sessionId"])
}

func TestWebSocketErrors(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{})
	id := env.createSession(t)

	conn, _, err := dial(t, wsURL(env.ts, id), "http://localhost")
	require.NoError(t, err)
	readEvent(t, conn, EventGameState)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "invalid message", readEvent(t, conn, EventError)["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"command": "fly"}))
	assert.Equal(t, "unknown command", readEvent(t, conn, EventError)["error"])
}

func TestWebSocketSessionClosed(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{})
	id := env.createSession(t)

	conn, _, err := dial(t, wsURL(env.ts, id), "http://localhost")
	require.NoError(t, err)
	readEvent(t, conn, EventGameState)

	status, _ := env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, status)

	assert.Equal(t, id, readEvent(t, conn, EventSessionClosed)["sessionId"])
}

func TestWebSocketRejections(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{})
	id := env.createSession(t)

	_, resp, err := dial(t, wsURL(env.ts, "missing"), "http://localhost")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = dial(t, wsURL(env.ts, id), "https://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dial(t, wsURL(env.ts, id), "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "origin header is required")
}

func TestWebSocketPerIPLimit(t *testing.T) {
	sessions := session.NewManager(session.ManagerOptions{})
	t.Cleanup(sessions.Close)
	s, err := sessions.Create()
	require.NoError(t, err)

	hub := NewWebSocketHub(sessions, WSConfig{MaxPerIP: 1, MaxTotal: 10})
	go hub.Run()
	t.Cleanup(hub.Stop)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, s.ID())
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	first, _, err := dial(t, url, "http://localhost")
	require.NoError(t, err)
	readEvent(t, first, EventGameState)

	_, resp, err := dial(t, url, "http://localhost")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	first.Close()
	require.Eventually(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost"}})
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocketRateLimiter(t *testing.T) {
	l := NewWebSocketRateLimiter(2, 3)

	_, ok := l.Acquire("a")
	assert.True(t, ok)
	_, ok = l.Acquire("a")
	assert.True(t, ok)

	reason, ok := l.Acquire("a")
	assert.False(t, ok)
	assert.Equal(t, "ws_ip_limit", reason)

	_, ok = l.Acquire("b")
	assert.True(t, ok)
	reason, ok = l.Acquire("c")
	assert.False(t, ok)
	assert.Equal(t, "ws_total_limit", reason)

	l.Release("a")
	assert.Equal(t, 1, l.ConnectionCount("a"))
	l.Release("zzz")
	_, ok = l.Acquire("c")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), l.Rejected())
}

func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy([]string{"https://play.example.com", "https://*.example.org"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://play.example.com", true},
		{"https://a.example.org", true},
		{"https://.example.org", false},
		{"https://example.org", false},
		{"http://play.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Allow(tt.origin), tt.origin)
	}

	def := NewOriginPolicy(nil)
	assert.True(t, def.Allow("http://localhost"))
	assert.True(t, def.Allow("http://localhost:5173"))
	assert.True(t, def.Allow("http://127.0.0.1:3000"))
	assert.False(t, def.Allow("https://localhost.evil.com"))

	assert.True(t, NewOriginPolicy([]string{"*"}).Allow("https://anything.test"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", GetClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", GetClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", GetClientIP(req))
}

func TestWebSocketSessionReaped(t *testing.T) {
	env := newTestEnv(t, session.ManagerOptions{})
	id := env.createSession(t)

	conn, _, err := dial(t, wsURL(env.ts, id), "http://localhost")
	require.NoError(t, err)
	readEvent(t, conn, EventGameState)

	require.Equal(t, 1, env.sessions.Reap(time.Now().Add(24*time.Hour)))

	assert.Equal(t, id, readEvent(t, conn, EventSessionClosed)["sessionId"])
}
