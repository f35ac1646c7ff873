package app

import (
	"context"
	"errors"

	"github.com/1ureka/p2pcall/internal/session"
	"github.com/1ureka/p2pcall/internal/signaling"
	"github.com/1ureka/p2pcall/internal/util"
)

// Client is a Phone connected to one room of the signaling relay.
type Client struct {
	*Phone
	conn *signaling.Conn
}

// Connect joins the relay room at roomURL and wires the connection to a new
// Phone. Serve must be called to start receiving.
func Connect(ctx context.Context, roomURL string, newEngine session.EngineFactory, observer session.Observer) (*Client, error) {
	conn, err := signaling.Dial(ctx, roomURL)
	if err != nil {
		return nil, err
	}
	util.LogInfo("joined signaling room %s", roomURL)

	phone := NewPhone(conn, newEngine, observer)
	conn.OnMessage(phone.HandleMessage)
	conn.OnDisconnect(phone.HandleDisconnect)

	return &Client{Phone: phone, conn: conn}, nil
}

// Serve receives signaling messages until the connection drops or ctx is
// cancelled. On cancellation the active call is hung up before the
// connection closes, so the peer gets its bye.
func (c *Client) Serve(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- c.conn.Serve() }()

	select {
	case err := <-served:
		return err

	case <-ctx.Done():
		if err := c.HangUp(); err != nil && !errors.Is(err, ErrNoActiveCall) {
			util.LogWarning("hang-up on shutdown: %v", err)
		}
		c.conn.Close()
		<-served
		return nil
	}
}
