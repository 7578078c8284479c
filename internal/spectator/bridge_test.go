package spectator

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialBridge(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/spectate"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial spectator bridge: %v", err)
	}
	return conn
}

func TestBridgeBroadcastsToConnectedSpectators(t *testing.T) {
	bridge := NewBridge(nil)
	server := httptest.NewServer(bridge)
	defer server.Close()

	conn := dialBridge(t, server)
	defer conn.Close()

	//1.- Give the server goroutine a moment to register the connection.
	deadline := time.Now().Add(2 * time.Second)
	for bridge.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if bridge.ClientCount() != 1 {
		t.Fatalf("expected 1 registered spectator, got %d", bridge.ClientCount())
	}

	bridge.Broadcast(Event{Type: "battle_update", Message: "Pikachu used Thunderbolt!"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != "battle_update" || event.Message != "Pikachu used Thunderbolt!" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestBridgeDropsSlowClientsWithoutBlocking(t *testing.T) {
	bridge := NewBridge(nil)
	server := httptest.NewServer(bridge)
	defer server.Close()

	conn := dialBridge(t, server)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bridge.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	//1.- Flood past the buffered channel capacity without ever reading; the
	// bridge must drop the saturated client rather than blocking Broadcast.
	for i := 0; i < 128; i++ {
		bridge.Broadcast(Event{Type: "chat", Message: "spam"})
	}
}
