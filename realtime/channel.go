package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds how long a push send may block on a slow
// connection before the channel is considered broken.
const DefaultWriteTimeout = 5 * time.Second

type wsChannel struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebsocketChannel wraps a websocket connection as a push channel.
// Sends are serialized and carry a write deadline so the dispatcher never
// waits on a hung peer indefinitely. A zero writeTimeout falls back to
// DefaultWriteTimeout.
func NewWebsocketChannel(conn *websocket.Conn, writeTimeout time.Duration) Channel {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &wsChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
