package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/tcpchat/internal/journal"
)

const testOrigin = "http://chat.test"

func startHTTPSurface(t *testing.T, store journal.Store, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := startTestServer(t, func(cfg *Config) {
		cfg.HTTP.AllowedOrigins = []string{testOrigin}
	}, opts...)
	ts := httptest.NewServer(SetupRoutes(srv, store))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: messageTimeout}
	return dialer.Dial(url, header)
}

func readWS(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(messageTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	return string(data)
}

// TestWebSocketClientJoinsTCPChat verifies that WebSocket and TCP peers share
// one chat room.
func TestWebSocketClientJoinsTCPChat(t *testing.T) {
	srv, ts := startHTTPSurface(t, nil)
	alice := joinClient(t, srv, "alice")

	ws, _, err := dialWS(t, ts, testOrigin)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteMessage(websocket.TextMessage, []byte("wendy")); err != nil {
		t.Fatal(err)
	}
	if got := readWS(t, ws); got != WelcomeMessage("wendy") {
		t.Fatalf("welcome = %q", got)
	}
	expectMessage(t, alice, JoinNotice("wendy"))

	if err := alice.Send("hi wendy"); err != nil {
		t.Fatal(err)
	}
	if got := readWS(t, ws); got != ChatMessage("alice", "hi wendy") {
		t.Errorf("websocket received %q", got)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("hello over websocket")); err != nil {
		t.Fatal(err)
	}
	expectMessage(t, alice, ChatMessage("wendy", "hello over websocket"))

	var wsID string
	for _, entry := range srv.Registry().Snapshot() {
		if entry.Username == "wendy" {
			wsID = string(entry.ID)
		}
	}
	if !strings.HasPrefix(wsID, wsClientPrefix) {
		t.Errorf("websocket client id = %q, want %q prefix", wsID, wsClientPrefix)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("EXIT")); err != nil {
		t.Fatal(err)
	}
	expectMessage(t, alice, LeaveNotice("wendy"))
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	_, ts := startHTTPSurface(t, nil)

	for _, origin := range []string{"http://evil.test", ""} {
		conn, resp, err := dialWS(t, ts, origin)
		if err == nil {
			conn.Close()
			t.Fatalf("origin %q: dial succeeded", origin)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("origin %q: response = %v, want 403", origin, resp)
		}
	}
}

func TestWebSocketWildcardOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := startTestServer(t, func(cfg *Config) {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	})
	ts := httptest.NewServer(SetupRoutes(srv, nil))
	t.Cleanup(ts.Close)

	conn, _, err := dialWS(t, ts, "http://anything.test")
	if err != nil {
		t.Fatalf("wildcard origin rejected: %v", err)
	}
	conn.Close()
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := startHTTPSurface(t, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != "Chat server is running!" {
		t.Errorf("body = %q", body)
	}
}

func TestClientsEndpoint(t *testing.T) {
	srv, ts := startHTTPSurface(t, nil)
	joinClient(t, srv, "alice")
	joinClient(t, srv, "bob")

	resp, err := http.Get(ts.URL + "/clients")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var payload struct {
		Count   int          `json:"count"`
		Clients []ClientInfo `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 2 || len(payload.Clients) != 2 {
		t.Fatalf("payload = %+v, want two clients", payload)
	}
	if payload.Clients[0].Username != "alice" || payload.Clients[1].Username != "bob" {
		t.Errorf("clients not ordered by join time: %+v", payload.Clients)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	t.Run("journal disabled", func(t *testing.T) {
		_, ts := startHTTPSurface(t, nil)
		resp, err := http.Get(ts.URL + "/sessions")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("journal enabled", func(t *testing.T) {
		rec := &memoryJournal{}
		srv, ts := startHTTPSurface(t, rec, WithJournal(rec))
		joinClient(t, srv, "alice")

		resp, err := http.Get(ts.URL + "/sessions?limit=0")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=0 status = %d, want 400", resp.StatusCode)
		}

		resp, err = http.Get(ts.URL + "/sessions?limit=10")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var payload struct {
			Events []journal.Event `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(payload.Events) != 1 || payload.Events[0].Username != "alice" || payload.Events[0].Kind != journal.KindJoin {
			t.Errorf("events = %+v, want alice join", payload.Events)
		}
	})
}
