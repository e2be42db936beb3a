package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection plus the client side. The caller must close the
// server.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestAddClient_MaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(maxConns)
	defer b.Close()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		srv, conn, _ := dialTestWS(t)
		defer srv.Close()

		c, err := b.AddClient(conn, nil)
		if err != nil {
			t.Fatalf("AddClient[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients, got %d", maxConns, got)
	}

	srv, conn, _ := dialTestWS(t)
	defer srv.Close()
	if _, err := b.AddClient(conn, nil); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}

	b.RemoveClient(clients[0])
	b.RemoveClient(clients[0])

	srv2, conn2, _ := dialTestWS(t)
	defer srv2.Close()
	if _, err := b.AddClient(conn2, nil); err != nil {
		t.Fatalf("AddClient after removal: unexpected error: %v", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients after re-add, got %d", maxConns, got)
	}
}

func TestAddClient_ZeroMaxConnections_Unlimited(t *testing.T) {
	b := NewBroadcaster(0)
	defer b.Close()

	for i := 0; i < 10; i++ {
		srv, conn, _ := dialTestWS(t)
		defer srv.Close()
		if _, err := b.AddClient(conn, nil); err != nil {
			t.Fatalf("AddClient[%d]: unexpected error with maxConns=0: %v", i, err)
		}
	}
	if got := b.ClientCount(); got != 10 {
		t.Fatalf("expected 10 clients, got %d", got)
	}
}

func TestGreetingPrecedesBroadcast(t *testing.T) {
	b := NewBroadcaster(0)
	defer b.Close()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	greet := func() []WSMessage {
		return []WSMessage{
			{Type: MsgSample, Payload: "first"},
			{Type: MsgSample, Payload: "second"},
		}
	}
	if _, err := b.AddClient(serverConn, greet); err != nil {
		t.Fatal(err)
	}
	b.Broadcast(WSMessage{Type: MsgDisconnect, Payload: "third"})

	var seqs []uint64
	var types []MessageType
	for i := 0; i < 3; i++ {
		msg := readMessage(t, clientConn)
		seqs = append(seqs, msg.Seq)
		types = append(types, msg.Type)
	}
	if types[2] != MsgDisconnect {
		t.Errorf("types = %v, want greeting first", types)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Errorf("seqs = %v, want consecutive", seqs)
		}
	}
}

func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	srv, serverConn, _ := dialTestWS(t)
	defer srv.Close()

	b := NewBroadcaster(0)
	defer b.Close()

	// Build a client directly so we control when writePump starts.
	c := &client{
		conn: serverConn,
		b:    b,
		send: make(chan []byte, 64),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	b := NewBroadcaster(0)
	defer b.Close()

	srv, serverConn, _ := dialTestWS(t)
	defer srv.Close()

	// A client with no writer and a tiny buffer is "slow".
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 1)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.Broadcast(WSMessage{Type: MsgSnapshot})
	b.Broadcast(WSMessage{Type: MsgSnapshot})

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want slow client dropped", got)
	}
}

func TestAddClientAfterClose(t *testing.T) {
	b := NewBroadcaster(0)
	b.Close()

	srv, conn, _ := dialTestWS(t)
	defer srv.Close()
	defer conn.Close()
	if _, err := b.AddClient(conn, nil); err == nil {
		t.Error("AddClient after Close should fail")
	}
}
