package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"blockfall/internal/session"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	DefaultMaxWSConnectionsTotal = 500

	// DefaultMaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	DefaultMaxWSConnectionsPerIP = 10

	// DefaultWSMessagesPerSecond caps inbound commands per connection
	DefaultWSMessagesPerSecond = 30

	wsWriteWait    = 5 * time.Second
	wsMaxMessage   = 1024
	wsOutboundSize = 256
)

// Event names pushed to clients.
const (
	EventGameState     = "game:state"
	EventGameUpdate    = "game:update"
	EventSessionClosed = "session:closed"
	EventError         = "error"
)

// WSConfig configures the WebSocket hub.
type WSConfig struct {
	MaxPerIP          int
	MaxTotal          int
	MessagesPerSecond float64
	Origins           OriginPolicy
}

// DefaultWSConfig returns production limits with the default origin policy.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		MaxPerIP:          DefaultMaxWSConnectionsPerIP,
		MaxTotal:          DefaultMaxWSConnectionsTotal,
		MessagesPerSecond: DefaultWSMessagesPerSecond,
		Origins:           NewOriginPolicy(nil),
	}
}

// wsMessage is the envelope for every server push
type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsClient is one connection subscribed to one session
type wsClient struct {
	conn      *websocket.Conn
	ip        string
	sessionID string
	limiter   *rate.Limiter
}

// outbound is a message for one client or, when client is nil, for every
// subscriber of sessionID.
type outbound struct {
	sessionID string
	client    *wsClient
	data      []byte
}

// WebSocketHub owns every WebSocket connection. Only the Run goroutine writes
// to connections.
type WebSocketHub struct {
	sessions SessionManager
	cfg      WSConfig
	upgrader websocket.Upgrader

	clients map[*wsClient]struct{}
	mu      sync.RWMutex

	register   chan *wsClient
	unregister chan *wsClient
	outbound   chan outbound
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	running    atomic.Bool

	wsLimiter *WebSocketRateLimiter
}

// NewWebSocketHub creates a hub. Nothing runs until Run is called.
func NewWebSocketHub(sessions SessionManager, cfg WSConfig) *WebSocketHub {
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = DefaultMaxWSConnectionsPerIP
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = DefaultMaxWSConnectionsTotal
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = DefaultWSMessagesPerSecond
	}
	if len(cfg.Origins.Origins()) == 0 {
		cfg.Origins = NewOriginPolicy(nil)
	}

	h := &WebSocketHub{
		sessions:   sessions,
		cfg:        cfg,
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		outbound:   make(chan outbound, wsOutboundSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(cfg.MaxPerIP, cfg.MaxTotal),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if h.cfg.Origins.Allow(origin) {
		return true
	}

	log.Printf("⚠️ WebSocket connection rejected from origin: %q", origin)
	RecordConnectionRejected("origin")
	return false
}

// Run processes registrations and writes until Stop.
func (h *WebSocketHub) Run() {
	h.running.Store(true)
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s to session %s (%d total)", client.ip, client.sessionID, count)
			UpdateWSConnections(count)

		case client := <-h.unregister:
			if h.remove(client) {
				log.Printf("📱 Client disconnected (%d remaining)", h.ClientCount())
			}

		case msg := <-h.outbound:
			h.deliver(msg)

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				client.conn.Close()
				h.wsLimiter.Release(client.ip)
			}
			h.clients = make(map[*wsClient]struct{})
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

// Stop closes every connection and ends Run.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.running.Load() {
			<-h.done
		}
	})
}

// remove drops a client; returns false if it was already gone.
func (h *WebSocketHub) remove(client *wsClient) bool {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		h.wsLimiter.Release(client.ip)
		client.conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		UpdateWSConnections(count)
	}
	return ok
}

func (h *WebSocketHub) deliver(msg outbound) {
	var targets []*wsClient
	if msg.client != nil {
		targets = []*wsClient{msg.client}
	} else {
		h.mu.RLock()
		for client := range h.clients {
			if client.sessionID == msg.sessionID {
				targets = append(targets, client)
			}
		}
		h.mu.RUnlock()
	}

	for _, client := range targets {
		client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
			h.remove(client)
			continue
		}
		IncrementWSMessages("out")
	}
}

// send queues a message, dropping it when the hub is saturated.
func (h *WebSocketHub) send(msg outbound) {
	select {
	case h.outbound <- msg:
	default:
		// Channel full, skip (backpressure)
	}
}

func encodeMessage(event string, data any) []byte {
	b, err := json.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		return nil
	}
	return b
}

// PublishUpdate pushes a session update to its subscribers.
func (h *WebSocketHub) PublishUpdate(u session.Update) {
	if data := encodeMessage(EventGameUpdate, u); data != nil {
		h.send(outbound{sessionID: u.SessionID, data: data})
	}
}

// PublishClosed tells subscribers their session is gone.
func (h *WebSocketHub) PublishClosed(sessionID string) {
	data := encodeMessage(EventSessionClosed, map[string]string{"sessionId": sessionID})
	h.send(outbound{sessionID: sessionID, data: data})
}

func (h *WebSocketHub) sendError(client *wsClient, msg string) {
	h.send(outbound{client: client, data: encodeMessage(EventError, map[string]string{"error": msg})})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades a request and subscribes it to sessionID.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	ip := GetClientIP(r)
	if reason, ok := h.wsLimiter.Acquire(ip); !ok {
		log.Printf("⚠️ WebSocket connection rejected from %s: %s", ip, reason)
		RecordConnectionRejected(reason)
		if reason == "ws_total_limit" {
			writeError(w, "too many connections", http.StatusServiceUnavailable)
		} else {
			writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}
	conn.SetReadLimit(wsMaxMessage)

	client := &wsClient{
		conn:      conn,
		ip:        ip,
		sessionID: sessionID,
		limiter:   rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), int(h.cfg.MessagesPerSecond)+1),
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		h.wsLimiter.Release(ip)
		return
	}

	h.send(outbound{client: client, data: encodeMessage(EventGameState, sessionView(r.Context(), sess))})

	go h.readLoop(client)
}

// readLoop applies commands sent by the client until the connection closes.
func (h *WebSocketHub) readLoop(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.stop:
		}
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		IncrementWSMessages("in")

		if !client.limiter.Allow() {
			RecordConnectionRejected("ws_msg_limit")
			h.sendError(client, "too many messages")
			continue
		}

		var req commandRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.sendError(client, "invalid message")
			continue
		}
		cmd, err := req.resolve()
		if err != nil {
			h.sendError(client, err.Error())
			continue
		}

		sess, ok := h.sessions.Get(client.sessionID)
		if !ok {
			h.sendError(client, "session not found")
			return
		}
		// The update reaches this client through the manager's OnUpdate hook.
		sess.Apply(cmd)
	}
}
