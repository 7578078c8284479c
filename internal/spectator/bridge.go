// Package spectator exposes a read-only websocket bridge: browsers connect
// to watch a duel's battle log and chat stream live, the way spec.md's
// spectator role observes without ever sending ATTACK_ANNOUNCE or
// CALCULATION_REPORT frames. The connection-handling shape (client
// registry, buffered send channel, ping/pong keepalive, broadcast-under-lock)
// is lifted directly from the teacher's websocket hub.
package spectator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pokeduel/internal/logging"
)

const (
	writeWait          = 10 * time.Second
	pingInterval       = 30 * time.Second
	pongWaitMultiplier = 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Event is one line of the spectator feed: a battle update, a chat line, or
// a game-over announcement, tagged so the browser client can render it.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
	log  *logging.Logger
}

// Bridge fans duel events out to every connected spectator websocket.
type Bridge struct {
	mu      sync.RWMutex
	clients map[*client]bool
	log     *logging.Logger
}

// NewBridge constructs an empty spectator bridge.
func NewBridge(logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.L()
	}
	return &Bridge{clients: make(map[*client]bool), log: logger}
}

// Broadcast encodes and fans an event out to every connected spectator,
// dropping clients whose send buffer is saturated rather than blocking.
func (b *Bridge) Broadcast(event Event) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("failed to marshal spectator event", logging.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- payload:
		default:
			//1.- A full buffer means the client is too slow; drop it rather than
			// stalling the rest of the fan-out.
			close(c.send)
			delete(b.clients, c)
		}
	}
}

// ClientCount reports the number of currently connected spectators.
func (b *Bridge) ClientCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request to a websocket and registers the connection
// as a read-only spectator: it never processes inbound application
// messages, only control frames (ping/pong/close).
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := b.log.With(logging.String("remote_addr", r.RemoteAddr))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("spectator websocket upgrade failed", logging.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64), id: r.RemoteAddr, log: logger}

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	waitDuration := pongWaitMultiplier * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	go b.readPump(c, waitDuration)
	go b.writePump(c)
}

// readPump discards any inbound payload; a spectator's only legitimate
// traffic is control frames, handled by gorilla/websocket internally.
func (b *Bridge) readPump(c *client, waitDuration time.Duration) {
	defer b.deregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("spectator websocket closed", logging.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(waitDuration))
	}
}

func (b *Bridge) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("spectator websocket write failed", logging.Error(err))
				b.deregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				b.deregister(c)
				return
			}
		}
	}
}

func (b *Bridge) deregister(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}
