// Package session implements the per-call negotiation state machine: it
// orders offer/answer/candidate/bye exchange between the signaling transport
// and the media engine for one peer-to-peer call.
package session

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies one call negotiation.
type ID string

// NewID returns a fresh random session ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Short returns the first 8 characters of the ID, for log prefixes.
func (id ID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// Role is fixed when a session is created.
type Role int

const (
	Caller Role = iota + 1 // sends the offer
	Callee                 // answers an inbound offer
)

func (r Role) String() string {
	switch r {
	case Caller:
		return "caller"
	case Callee:
		return "callee"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// State is the negotiation state of a session.
type State int

const (
	Idle State = iota
	AwaitingLocalDescription
	AwaitingRemoteDescription
	Negotiating
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingLocalDescription:
		return "awaiting-local-description"
	case AwaitingRemoteDescription:
		return "awaiting-remote-description"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
