package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *auth.Service, string) {
	t.Helper()
	svc := auth.NewService("hub-test-secret")
	hub := NewHub(svc, "http://localhost:3000")
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func bearer(t *testing.T, svc *auth.Service, userID string) http.Header {
	t.Helper()
	tok, err := svc.GenerateToken(userID, "15551234567")
	if err != nil {
		t.Fatal(err)
	}
	return http.Header{"Authorization": []string{"Bearer " + tok}}
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestHandleWS_RejectsUnauthenticated(t *testing.T) {
	_, _, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %v, want 401", resp)
	}
}

func TestHandleWS_RejectsForeignOrigin(t *testing.T) {
	_, svc, url := startHub(t)

	h := bearer(t, svc, "user-1")
	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	if err == nil {
		t.Fatal("dial from foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %v, want 403", resp)
	}
}

func TestPublish_RoutesOwnedEventsToTenant(t *testing.T) {
	hub, svc, url := startHub(t)

	alice := dial(t, url, bearer(t, svc, "user-1"))
	bob := dial(t, url, bearer(t, svc, "user-2"))
	waitClients(t, hub, 2)

	hub.Publish("gateway_status", models.WSGatewayStatus{
		GatewayID: "gw1", UserID: "user-1", Status: models.GatewayPairing,
	})
	hub.Publish("runtime", map[string]bool{"running": true})

	msg := readMessage(t, alice)
	if msg.Type != "gateway_status" {
		t.Fatalf("alice first message = %q, want gateway_status", msg.Type)
	}
	var payload models.WSGatewayStatus
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.GatewayID != "gw1" || payload.Status != models.GatewayPairing {
		t.Errorf("payload = %+v", payload)
	}
	if got := readMessage(t, alice).Type; got != "runtime" {
		t.Errorf("alice second message = %q, want runtime", got)
	}

	if got := readMessage(t, bob).Type; got != "runtime" {
		t.Errorf("bob first message = %q, want runtime (owned event leaked)", got)
	}
}

func TestPublish_AfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(auth.NewService("x"))
	hub.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Publish("agent_status", models.WSAgentStatus{AgentID: "a", UserID: "u"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}
