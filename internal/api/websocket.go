package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mapcore/server/internal/auth"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/performance"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "mapcore-track-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second

	// maxTrackSamples bounds the samples of one track message
	maxTrackSamples = 1000

	maxMessageSize = 1 << 20
)

// TrackConnection is one tracking session
type TrackConnection struct {
	conn      *websocket.Conn
	sessionID string
	username  string
	version   string
	send      chan []byte
	hub       *TrackHub

	mu     sync.Mutex
	closed bool
}

// TrackHub manages all active tracking sessions
type TrackHub struct {
	connections map[*TrackConnection]bool
	broadcast   chan []byte
	register    chan *TrackConnection
	unregister  chan *TrackConnection
	done        chan struct{} // closed when Run returns
	mu          sync.RWMutex
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// TrackRequest is a batch of geodetic samples to place on the map
type TrackRequest struct {
	Samples []GeodeticPosition `json:"samples" validate:"required,min=1,dive"`
	ClampSettings
}

// TrackResult answers a TrackRequest. Positions are in sample order;
// samples that could not be converted are listed in Failed and have a
// zero position.
type TrackResult struct {
	Positions []MapPosition `json:"positions"`
	Failed    []int         `json:"failed,omitempty"`
}

// SessionInfo is sent when a session starts
type SessionInfo struct {
	SessionID string  `json:"session_id"`
	Version   string  `json:"version"`
	Map       MapInfo `json:"map"`
}

// NewTrackHub creates a new tracking hub
func NewTrackHub() *TrackHub {
	return &TrackHub{
		connections: make(map[*TrackConnection]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *TrackConnection),
		unregister:  make(chan *TrackConnection),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled and
// closes every remaining session on the way out. Run must be called once.
func (h *TrackHub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			log.Printf("[WS] Session %s started: operator=%s version=%s", conn.sessionID, conn.username, conn.version)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.close()
			}
			h.mu.Unlock()
			log.Printf("[WS] Session %s ended", conn.sessionID)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if !conn.queue(message) {
					conn.close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// shutdown closes remaining sessions and releases pending register and
// unregister senders
func (h *TrackHub) shutdown() {
	h.mu.Lock()
	for conn := range h.connections {
		conn.close()
		delete(h.connections, conn)
	}
	h.mu.Unlock()
	close(h.done)
	log.Printf("[WS] Hub stopped")
}

// add hands a session to the hub. It reports false once the hub has stopped.
func (h *TrackHub) add(conn *TrackConnection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// remove takes a session out of the hub. It is a no-op once the hub has
// stopped.
func (h *TrackHub) remove(conn *TrackConnection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.close()
	}
}

// Broadcast sends a message to all sessions. It drops the message when the
// hub is saturated.
func (h *TrackHub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Printf("[WS] Warning: broadcast queue full, dropping message")
	}
}

// SessionCount returns the number of active sessions
func (h *TrackHub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// NotifyMapChanged tells every session that the active map changed
func (h *TrackHub) NotifyMapChanged(info MapInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		log.Printf("[WS] Failed to marshal map info: %v", err)
		return
	}
	message, err := json.Marshal(WebSocketMessage{Type: "map_changed", Data: data})
	if err != nil {
		log.Printf("[WS] Failed to marshal map change: %v", err)
		return
	}
	h.Broadcast(message)
}

// TrackHandlers places streamed geodetic samples on the active map
type TrackHandlers struct {
	hub        *TrackHub
	resolver   *mapctl.Resolver
	maps       *MapHandlers
	jwtService *auth.JWTService
	profiler   *performance.Profiler
	upgrader   websocket.Upgrader
}

// NewTrackHandlers creates tracking handlers
func NewTrackHandlers(hub *TrackHub, resolver *mapctl.Resolver, maps *MapHandlers, jwtService *auth.JWTService, profiler *performance.Profiler, allowedOrigins []string) *TrackHandlers {
	if profiler == nil {
		profiler = performance.NewProfiler(false)
	}
	return &TrackHandlers{
		hub:        hub,
		resolver:   resolver,
		maps:       maps,
		jwtService: jwtService,
		profiler:   profiler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin
				return origin == "" || originAllowed(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket handles GET /ws/track upgrades
func (h *TrackHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := h.extractToken(r)
	if err != nil {
		log.Printf("[WS] Authentication failed: %v", err)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		log.Printf("[WS] Token validation failed: %v", err)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := h.negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		log.Printf("[WS] Version negotiation failed: requested=%s", requestedVersions)
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	var responseHeaders http.Header
	if requestedVersions != "" {
		responseHeaders = http.Header{}
		responseHeaders.Set("Sec-WebSocket-Protocol", selectedVersion)
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	wsConn := &TrackConnection{
		conn:      conn,
		sessionID: uuid.NewString(),
		username:  claims.Username,
		version:   selectedVersion,
		send:      make(chan []byte, 256),
		hub:       h.hub,
	}
	if !h.hub.add(wsConn) {
		log.Printf("[WS] Hub stopped, rejecting session %s", wsConn.sessionID)
		if err := conn.Close(); err != nil {
			log.Printf("[WS] Failed to close connection: %v", err)
		}
		return
	}

	go wsConn.writePump()
	go wsConn.readPump(h)

	wsConn.sendMessage("session", "", SessionInfo{
		SessionID: wsConn.sessionID,
		Version:   selectedVersion,
		Map:       h.maps.mapInfo(),
	})
}

// extractToken extracts JWT token from request (query param or header)
func (h *TrackHandlers) extractToken(r *http.Request) (string, error) {
	// Browsers cannot set headers on WebSocket requests
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	if token, ok := auth.BearerToken(r); ok {
		return token, nil
	}
	return "", fmt.Errorf("missing authentication token")
}

// negotiateVersion selects the highest supported protocol version
func (h *TrackHandlers) negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	supportedVersions := []string{ProtocolVersion1}
	for _, supported := range supportedVersions {
		for _, candidate := range strings.Split(requested, ",") {
			if strings.TrimSpace(candidate) == supported {
				return supported
			}
		}
	}
	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (c *TrackConnection) readPump(handlers *TrackHandlers) {
	defer func() {
		c.hub.remove(c)
		if err := c.conn.Close(); err != nil {
			log.Printf("[WS] Failed to close connection: %v", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[WS] Failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Session %s error: %v", c.sessionID, err)
			}
			break
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}
		handlers.handleMessage(c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection
func (c *TrackConnection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[WS] Failed to set write deadline: %v", err)
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[WS] Failed to set write deadline for ping: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a typed message for the client
func (c *TrackConnection) sendMessage(msgType, id string, payload interface{}) {
	msg := WebSocketMessage{Type: msgType, ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("[WS] Failed to marshal %s payload: %v", msgType, err)
			return
		}
		msg.Data = data
	}
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s message: %v", msgType, err)
		return
	}
	c.queue(messageBytes)
}

// sendError sends an error message to the client
func (c *TrackConnection) sendError(id, errorMsg, code string) {
	messageBytes, err := json.Marshal(WebSocketError{
		Type:    "error",
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	})
	if err != nil {
		log.Printf("[WS] Failed to marshal error message: %v", err)
		return
	}
	c.queue(messageBytes)
}

// queue hands a message to the write pump. It reports false when the
// session is closed or its queue is full.
func (c *TrackConnection) queue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		log.Printf("[WS] Warning: session %s send queue full", c.sessionID)
		return false
	}
}

// close stops the write pump once queued messages are written
func (c *TrackConnection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handleMessage routes messages to appropriate handlers
func (h *TrackHandlers) handleMessage(conn *TrackConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case "ping":
		conn.sendMessage("pong", msg.ID, nil)
	case "track":
		h.handleTrack(conn, msg)
	case "map_info":
		conn.sendMessage("map_info", msg.ID, h.maps.mapInfo())
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

// handleTrack converts a batch of samples into clamped map positions
func (h *TrackHandlers) handleTrack(conn *TrackConnection, msg *WebSocketMessage) {
	op := h.profiler.Start("ws_track")
	defer op.End()

	var req TrackRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid track request", "InvalidRequest")
		return
	}
	if err := validate.Struct(req); err != nil {
		conn.sendError(msg.ID, auth.ValidationMessage(err), "ValidationError")
		return
	}
	if len(req.Samples) > maxTrackSamples {
		conn.sendError(msg.ID, fmt.Sprintf("At most %d samples per message", maxTrackSamples), "TooManySamples")
		return
	}
	clamp, opts, err := req.parse()
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidRequest")
		return
	}
	if h.resolver.ActiveMap() == nil {
		conn.sendError(msg.ID, mapctl.ErrNoActiveMap.Error(), "NoActiveMap")
		return
	}

	result := TrackResult{Positions: make([]MapPosition, len(req.Samples))}
	for i, sample := range req.Samples {
		pos, ok := h.resolver.GeodeticToLocal(sample.latPos(), clamp, opts)
		if !ok {
			result.Failed = append(result.Failed, i)
			continue
		}
		result.Positions[i] = mapPosition(pos)
	}
	conn.sendMessage("track_result", msg.ID, result)
}
