package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mapcore/server/internal/auth"
)

// startTrackServer runs the hub and serves the router, returning the
// tracking endpoint URL
func startTrackServer(t *testing.T, s *testServer) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.hub.Run(ctx)

	server := httptest.NewServer(s.handler)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/track"
}

func dialTrack(t *testing.T, s *testServer, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return dial(t, startTrackServer(t, s)+query, header)
}

func dial(t *testing.T, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var msg WebSocketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return msg
}

func TestTrackSession(t *testing.T) {
	s := newTestServer(t, nil)
	s.loadRome(t)
	token, _, err := s.jwt.GenerateToken("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	conn, _, err := dialTrack(t, s, "?token="+token, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "session" {
		t.Fatalf("Expected session message, got %q", msg.Type)
	}
	var session SessionInfo
	if err := json.Unmarshal(msg.Data, &session); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if session.SessionID == "" || session.Version != ProtocolVersion1 || session.Map.Name != "rome" {
		t.Errorf("Unexpected session %+v", session)
	}

	if err := conn.WriteJSON(WebSocketMessage{Type: "ping", ID: "p1"}); err != nil {
		t.Fatalf("Failed to write ping: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "pong" || msg.ID != "p1" {
		t.Errorf("Expected pong p1, got %+v", msg)
	}

	sample := geodeticPosition(romeSample(t))
	data, _ := json.Marshal(TrackRequest{
		Samples:       []GeodeticPosition{sample, {Lat: sample.Lat, Lon: sample.Lon + 2}},
		ClampSettings: ClampSettings{Clamp: "ground"},
	})
	if err := conn.WriteJSON(WebSocketMessage{Type: "track", ID: "t1", Data: data}); err != nil {
		t.Fatalf("Failed to write track: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "track_result" || msg.ID != "t1" {
		t.Fatalf("Expected track_result t1, got %+v", msg)
	}
	var result TrackResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("Failed to decode track result: %v", err)
	}
	if len(result.Positions) != 2 {
		t.Fatalf("Expected 2 positions, got %d", len(result.Positions))
	}
	first := result.Positions[0]
	if !first.Clamped || math.Abs(first.Position[1]-25) > 0.05 {
		t.Errorf("Expected the first sample clamped to 25m, got %+v", first)
	}
	// Off the terrain the sample converts but stays unclamped
	if result.Positions[1].Clamped {
		t.Errorf("Expected the second sample unclamped, got %+v", result.Positions[1])
	}

	if err := conn.WriteJSON(WebSocketMessage{Type: "teleport", ID: "x"}); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	var wsErr WebSocketError
	if err := conn.ReadJSON(&wsErr); err != nil {
		t.Fatalf("Failed to read error: %v", err)
	}
	if wsErr.Type != "error" || wsErr.Code != "UnknownMessageType" {
		t.Errorf("Unexpected error message %+v", wsErr)
	}
}

func TestTrackSessionErrors(t *testing.T) {
	s := newTestServer(t, nil)
	token, _, err := s.jwt.GenerateToken("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	conn, _, err := dialTrack(t, s, "", http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		t.Fatalf("Failed to dial with a bearer header: %v", err)
	}
	readMessage(t, conn)

	tests := []struct {
		name string
		data string
		code string
	}{
		{"invalid json", `{"samples": 5}`, "InvalidRequest"},
		{"no samples", `{"samples": []}`, "ValidationError"},
		{"no active map", `{"samples": [{"lat": 41, "lon": 12}]}`, "NoActiveMap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(WebSocketMessage{Type: "track", ID: tt.name, Data: json.RawMessage(tt.data)}); err != nil {
				t.Fatalf("Failed to write track: %v", err)
			}
			var wsErr WebSocketError
			if err := conn.ReadJSON(&wsErr); err != nil {
				t.Fatalf("Failed to read error: %v", err)
			}
			if wsErr.Code != tt.code || wsErr.ID != tt.name {
				t.Errorf("Expected code %s, got %+v", tt.code, wsErr)
			}
		})
	}
}

func TestTrackSessionRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	url := startTrackServer(t, s)

	_, resp, err := dial(t, url, nil)
	if err == nil {
		t.Fatal("Expected the dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %v", resp)
	}

	_, resp, err = dial(t, url+"?token=garbage", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for an invalid token, got %v", resp)
	}
}

func TestMapChangeBroadcast(t *testing.T) {
	s := newTestServer(t, nil)
	token, _, err := s.jwt.GenerateToken("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	conn, _, err := dialTrack(t, s, "?token="+token, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	readMessage(t, conn)

	rr := s.helper.MakeRequestWithHeaders(http.MethodPut, "/api/map", SetMapRequest{URL: romeURL}, s.adminHeaders(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("Failed to set map: %d", rr.Code)
	}

	msg := readMessage(t, conn)
	if msg.Type != "map_changed" {
		t.Fatalf("Expected map_changed, got %q", msg.Type)
	}
	var info MapInfo
	if err := json.Unmarshal(msg.Data, &info); err != nil {
		t.Fatalf("Failed to decode map info: %v", err)
	}
	if !info.Active || info.Name != "rome" {
		t.Errorf("Unexpected map info %+v", info)
	}
	if s.hub.SessionCount() != 1 {
		t.Errorf("Expected 1 session, got %d", s.hub.SessionCount())
	}
}

func TestNegotiateVersion(t *testing.T) {
	h := &TrackHandlers{}
	tests := []struct {
		requested string
		expected  string
	}{
		{"", ProtocolVersion1},
		{ProtocolVersion1, ProtocolVersion1},
		{"mapcore-track-v9, " + ProtocolVersion1, ProtocolVersion1},
		{"mapcore-track-v9", ""},
	}
	for _, tt := range tests {
		if got := h.negotiateVersion(tt.requested); got != tt.expected {
			t.Errorf("negotiateVersion(%q) = %q, expected %q", tt.requested, got, tt.expected)
		}
	}
}

func TestTrackHubStopReleasesSenders(t *testing.T) {
	hub := NewTrackHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	live := &TrackConnection{sessionID: "live", hub: hub, send: make(chan []byte, 1)}
	if !hub.add(live) {
		t.Fatalf("add failed on a running hub")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop after cancel")
	}

	if hub.SessionCount() != 0 {
		t.Errorf("expected no sessions after stop, got %d", hub.SessionCount())
	}
	if live.queue([]byte("x")) {
		t.Errorf("session left open after hub stopped")
	}

	testCases := []struct {
		name string
		send func(conn *TrackConnection)
	}{
		{"register", func(conn *TrackConnection) {
			if hub.add(conn) {
				t.Errorf("add succeeded on a stopped hub")
			}
		}},
		{"unregister", func(conn *TrackConnection) { hub.remove(conn) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &TrackConnection{sessionID: tc.name, hub: hub, send: make(chan []byte, 1)}
			done := make(chan struct{})
			go func() {
				defer close(done)
				tc.send(conn)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("%s blocked on a stopped hub", tc.name)
			}
		})
	}
}
