package websocket

import (
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

const (
	// writeWait bounds one frame write.
	writeWait = 10 * time.Second
	// pongWait is how long the peer has to answer a ping before the read
	// deadline kills the connection.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// recvBuffer decouples the read pump from the dispatcher.
	recvBuffer = 32
)

// conn adapts one gorilla connection to protocol.Conn: a read pump feeding
// recv, periodic pings keeping the connection alive, writes serialized by a
// mutex (gorilla allows a single concurrent writer).
type conn struct {
	ws *gws.Conn

	sendMu sync.Mutex
	recv   chan []byte
	errs   chan error

	stopOnce sync.Once
	done     chan struct{}
}

func newConn(ws *gws.Conn) *conn {
	c := &conn{
		ws:   ws,
		recv: make(chan []byte, recvBuffer),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go c.readPump()
	go c.pingLoop()
	return c
}

func (c *conn) Send(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(gws.TextMessage, payload)
}

func (c *conn) Receive() <-chan []byte { return c.recv }

func (c *conn) Errors() <-chan error { return c.errs }

// readPump owns all reads. On any read error it records the cause, then
// closes recv — the dispatcher's signal that this connection is dead.
func (c *conn) readPump() {
	defer close(c.recv)

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.stopOnce.Do(func() { close(c.done) })
			if !gws.IsCloseError(err, gws.CloseNormalClosure) {
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}
		c.recv <- data
	}
}

// pingLoop keeps the connection alive. A failed ping closes the socket so
// the read pump reports promptly instead of waiting out the read deadline.
func (c *conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sendMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(gws.PingMessage, nil)
			c.sendMu.Unlock()
			if err != nil {
				c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) Close() error {
	c.stopOnce.Do(func() { close(c.done) })

	// Polite close frame; the peer may already be gone.
	c.sendMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
	c.sendMu.Unlock()

	return c.ws.Close()
}
