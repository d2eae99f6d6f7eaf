package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.BufferSize = 16
	return cfg
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected after Connect")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected not connected after Close")
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	client := NewClient(testClientConfig("ws://127.0.0.1:1/ws"), nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(testClientConfig("ws://127.0.0.1:1/ws"), nil)
	client.Close()
	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
			// Echo back so the client side sees inbound traffic too.
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	payload := []byte(`{"type":"refresh"}`)
	if err := client.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-client.Messages():
		if string(msg.Data) != string(payload) {
			t.Errorf("echoed message = %s, want %s", msg.Data, payload)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("message missing receive timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echoed message received")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(payload) {
		t.Errorf("server received = %s, want %s", received, payload)
	}
}

func TestClient_SendWhenDisconnected(t *testing.T) {
	client := NewClient(testClientConfig("ws://127.0.0.1:1/ws"), nil)
	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClient_ErrorOnServerClose(t *testing.T) {
	started := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-started
		conn.Close()
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	close(started)

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected non-nil transport error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported after server closed the socket")
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
