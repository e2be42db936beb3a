package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by AddClient when the broadcaster is at
// its connection limit.
var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// Broadcaster fans messages out to a set of websocket clients. A client
// that cannot keep up is disconnected rather than allowed to stall the
// others.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	seq      uint64
	closed   bool
}

// NewBroadcaster creates a broadcaster. maxConns <= 0 means unlimited.
func NewBroadcaster(maxConns int) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
	}
}

// AddClient registers conn. greet, if non-nil, is called while no broadcast
// can run and its messages are queued ahead of any later broadcast, so a
// new client never misses an update between its greeting and the stream.
func (b *Broadcaster) AddClient(conn *websocket.Conn, greet func() []WSMessage) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("broadcaster closed")
	}
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}

	var greeting []WSMessage
	if greet != nil {
		greeting = greet()
	}
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, max(64, len(greeting)+16)),
	}
	for _, msg := range greeting {
		b.seq++
		msg.Seq = b.seq
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("ws greeting marshal error: %v", err)
			continue
		}
		c.send <- data
	}
	b.clients[c] = true
	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Broadcast stamps msg with the next sequence number and queues it for
// every client.
func (b *Broadcaster) Broadcast(msg WSMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	msg.Seq = b.seq
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			log.Printf("ws client too slow, disconnecting")
			delete(b.clients, c)
			close(c.send)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}
