package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pcall/internal/util"
)

// Keepalive tuning.
const (
	writeWait  = 10 * time.Second  // deadline for a single write
	pongWait   = 60 * time.Second  // read deadline, extended by every pong
	pingPeriod = pongWait * 9 / 10 // must be shorter than pongWait
	maxMessage = 64 * 1024         // SDP blobs are a few KiB; anything larger is abuse
)

// ErrConnClosed is reported to OnDisconnect when Close was called locally.
var ErrConnClosed = errors.New("signaling connection closed")

// Conn is the signaling transport: a WebSocket carrying one text message per
// signaling message. Writes are serialized; reads happen on the goroutine
// running Serve, which delivers each message to the OnMessage callback.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	onMessage    func([]byte)
	onDisconnect func(error)

	closing   chan struct{}
	closeOnce sync.Once
}

// Dial connects to the signaling server at url, e.g.:
//
//	wss://example.devtunnels.ms/ws/room42
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return NewConn(ws), nil
}

// NewConn wraps an established WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:      ws,
		closing: make(chan struct{}),
	}
}

// OnMessage registers the inbound message callback. Must be called before Serve.
func (c *Conn) OnMessage(fn func([]byte)) { c.onMessage = fn }

// OnDisconnect registers the callback fired once when the read loop ends.
// Must be called before Serve.
func (c *Conn) OnDisconnect(fn func(error)) { c.onDisconnect = fn }

// Send writes one text message, guarded by a mutex.
func (c *Conn) Send(text []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, text); err != nil {
		return fmt.Errorf("WS write failed: %w", err)
	}

	util.Stats.AddSent(len(text))
	return nil
}

// Serve runs the read loop until the connection fails or Close is called,
// then fires OnDisconnect with the reason and returns it.
func (c *Conn) Serve() error {
	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.keepalive()

	err := c.readLoop()

	select {
	case <-c.closing:
		err = ErrConnClosed
	default:
		c.closeOnce.Do(func() { close(c.closing) })
		c.ws.Close()
	}

	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
	return err
}

func (c *Conn) readLoop() error {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}
		if typ != websocket.TextMessage {
			util.LogDebug("ignoring non-text WS frame (type=%d, %d bytes)", typ, len(data))
			continue
		}

		util.Stats.AddRecv(len(data))
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

// keepalive pings the peer until the connection is closing. A missing pong
// surfaces as a read deadline error in the read loop.
func (c *Conn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				util.LogDebug("WS ping failed: %v", err)
				return
			}
		case <-c.closing:
			return
		}
	}
}

// Close sends a normal close frame and shuts the connection down. Safe to
// call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}
