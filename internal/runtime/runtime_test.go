package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/monjeychiang/SABIT-sub000/internal/bus"
	"github.com/monjeychiang/SABIT-sub000/internal/config"
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

// holdOpen keeps the server side of a socket alive until the client closes.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testRuntime(t *testing.T, channelIDs ...string) (*Runtime, func()) {
	t.Helper()

	var servers []*httptest.Server
	cfg := &config.RuntimeConfig{}
	for _, id := range channelIDs {
		server := mockWSServer(t, holdOpen)
		servers = append(servers, server)
		cfg.Channels = append(cfg.Channels, config.ChannelConfig{
			ID:       id,
			Endpoint: wsURL(server) + "?token={token}",
		})
	}

	ping := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	servers = append(servers, ping)
	cfg.Probe.PingURL = ping.URL
	cfg.Probe.AutoInterval = 10 * time.Millisecond

	rt := New(cfg, nil)
	cleanup := func() {
		rt.Close(context.Background())
		for _, s := range servers {
			s.Close()
		}
	}
	return rt, cleanup
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRuntime_LoginOpensEverything(t *testing.T) {
	rt, cleanup := testRuntime(t, "chat", "notification")
	defer cleanup()

	var authenticated atomic.Int32
	var chatConnected atomic.Int32
	rt.Bus().Subscribe(bus.EventLoginAuthenticated, func(any) { authenticated.Add(1) })
	rt.Bus().Subscribe(bus.EventChatConnected, func(any) { chatConnected.Add(1) })

	session, err := rt.Login(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.ID == "" {
		t.Error("session has no ID")
	}

	status := rt.Status()
	if !status.AllConnected {
		t.Errorf("AllConnected = false after login: %+v", status)
	}
	if authenticated.Load() != 1 {
		t.Errorf("login-authenticated events = %d, want 1", authenticated.Load())
	}
	if chatConnected.Load() != 1 {
		t.Errorf("chat connected events = %d, want 1", chatConnected.Load())
	}

	// Background measurement is running and feeding the history.
	waitFor(t, 2*time.Second, func() bool {
		_, ok := rt.Probe().Latest()
		return ok
	}, "no latency sample recorded after login")
}

func TestRuntime_LoginIdempotent(t *testing.T) {
	rt, cleanup := testRuntime(t, "chat")
	defer cleanup()

	first, err := rt.Login(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	second, err := rt.Login(context.Background(), "tok")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second login replaced the session: %s != %s", first.ID, second.ID)
	}
}

func TestRuntime_LogoutClosesEverything(t *testing.T) {
	rt, cleanup := testRuntime(t, "chat")
	defer cleanup()

	var loggedOut atomic.Int32
	var disconnected atomic.Int32
	rt.Bus().Subscribe(bus.EventLogout, func(any) { loggedOut.Add(1) })
	rt.Bus().Subscribe(bus.EventChatDisconnected, func(any) { disconnected.Add(1) })

	if _, err := rt.Login(context.Background(), "tok"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := rt.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if !rt.Status().NoneConnected {
		t.Error("channels still connected after logout")
	}
	if loggedOut.Load() != 1 {
		t.Errorf("logout events = %d, want 1", loggedOut.Load())
	}
	if disconnected.Load() != 1 {
		t.Errorf("disconnected events = %d, want 1", disconnected.Load())
	}
	if _, ok := rt.Session(); ok {
		t.Error("session still active after logout")
	}

	// Logout again is a no-op, no second round of events.
	if err := rt.Logout(context.Background()); err != nil {
		t.Fatalf("repeated Logout failed: %v", err)
	}
	if loggedOut.Load() != 1 {
		t.Errorf("logout events after repeat = %d, want 1", loggedOut.Load())
	}
}

func TestRuntime_LoginAfterLogout(t *testing.T) {
	rt, cleanup := testRuntime(t, "chat")
	defer cleanup()

	first, err := rt.Login(context.Background(), "tok-a")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := rt.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	second, err := rt.Login(context.Background(), "tok-b")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("new login reused the previous session ID")
	}
	if !rt.Status().AllConnected {
		t.Error("channels not reopened on second login")
	}
}

func TestRuntime_CloseWithoutLogin(t *testing.T) {
	rt, cleanup := testRuntime(t, "chat")
	defer cleanup()

	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestRuntime_TokenSubstitutedIntoEndpoint(t *testing.T) {
	var gotToken atomic.Value
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		holdOpen(conn)
	}))
	defer server.Close()

	ping := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ping.Close()

	cfg := &config.RuntimeConfig{
		Channels: []config.ChannelConfig{
			{ID: "account", Endpoint: wsURL(server) + "?token={token}"},
		},
	}
	cfg.Probe.PingURL = ping.URL

	rt := New(cfg, nil)
	defer rt.Close(context.Background())

	if _, err := rt.Login(context.Background(), "secret-token"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got, _ := gotToken.Load().(string); got != "secret-token" {
		t.Errorf("server saw token %q, want %q", got, "secret-token")
	}
}
