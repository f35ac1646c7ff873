package session

import (
	"fmt"

	"github.com/1ureka/p2pcall/internal/signaling"
)

// ConnectionState is the media engine's view of the peer connection.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(c))
	}
}

// Engine is the media engine a session drives. Descriptions and candidates
// are opaque strings to the session. CreateOffer and CreateAnswer also apply
// the result as the local description.
//
// Implementations must be safe for concurrent use: the session issues
// description commands from short-lived goroutines while candidates are added
// from the session goroutine.
type Engine interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetRemoteDescription(kind signaling.MessageType, sdp string) error
	AddICECandidate(mid string, index int, sdp string) error

	// OnICECandidate registers the callback for locally gathered candidates.
	OnICECandidate(fn func(mid string, index int, sdp string))
	// OnConnectionStateChange registers the callback for connection state changes.
	OnConnectionStateChange(fn func(ConnectionState))

	// Close releases the engine's resources.
	Close() error
}

// EngineFactory creates one engine per session.
type EngineFactory func() (Engine, error)

// Sender is the outbound half of the signaling transport.
type Sender interface {
	Send(text []byte) error
}

// Observer receives session notifications for the host application. Both
// methods are called from the session goroutine and must not block.
type Observer interface {
	OnSessionStateChanged(id ID, state State)
	OnSessionError(id ID, err *Error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	StateChanged func(id ID, state State)
	Error        func(id ID, err *Error)
}

func (o ObserverFuncs) OnSessionStateChanged(id ID, state State) {
	if o.StateChanged != nil {
		o.StateChanged(id, state)
	}
}

func (o ObserverFuncs) OnSessionError(id ID, err *Error) {
	if o.Error != nil {
		o.Error(id, err)
	}
}
