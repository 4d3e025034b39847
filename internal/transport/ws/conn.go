package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

// wsConn — websocket с ограниченной очередью отправки.
// Пишет только writeLoop; при переполнении очереди события отбрасываются.
type wsConn struct {
	id   string
	conn *websocket.Conn

	send      chan protocol.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:     ulid.Make().String(),
		conn:   c,
		send:   make(chan protocol.Event, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Deliver(ev protocol.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) Done() <-chan struct{} { return c.closed }

func (c *wsConn) writeLoop(pingEvery, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.send:
			data, err := protocol.Encode(ev)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop читает текстовые кадры, пока соединение живо, и отдаёт их handle по одному.
func (c *wsConn) readLoop(readLimit int64, pingEvery time.Duration, handle func([]byte)) {
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * pingEvery))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * pingEvery))
		if mt != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
