package session

import (
	"errors"
	"fmt"

	"github.com/1ureka/p2pcall/internal/signaling"
)

// ErrorKind classifies a session failure reported to the host application.
type ErrorKind int

const (
	// Decode errors: the message is dropped, the session continues.
	KindMalformedPayload ErrorKind = iota + 1
	KindUnknownType

	// Negotiation errors.
	KindRejectedDescription    // remote SDP refused by the media engine; closes the session
	KindIllegalStateTransition // message not valid in the current state; dropped
	KindEngineFailure          // media engine could not produce a local description; closes the session
	KindConnectionFailed       // media engine reported the connection failed; closes the session

	// Transport errors.
	KindDisconnected // signaling transport went away; closes the session
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedPayload:
		return "malformed payload"
	case KindUnknownType:
		return "unknown type"
	case KindRejectedDescription:
		return "rejected description"
	case KindIllegalStateTransition:
		return "illegal state transition"
	case KindEngineFailure:
		return "engine failure"
	case KindConnectionFailed:
		return "connection failed"
	case KindDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Category returns "decode", "negotiation" or "transport".
func (k ErrorKind) Category() string {
	switch k {
	case KindMalformedPayload, KindUnknownType:
		return "decode"
	case KindDisconnected:
		return "transport"
	default:
		return "negotiation"
	}
}

// Error is what the host application receives through Observer.OnSessionError.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind.Category(), e.Kind)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind.Category(), e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// decodeError converts a signaling decode failure into a session error.
func decodeError(err error) *Error {
	var de *signaling.DecodeError
	if errors.As(err, &de) && de.Kind == signaling.UnknownType {
		return &Error{Kind: KindUnknownType, Err: err}
	}
	return &Error{Kind: KindMalformedPayload, Err: err}
}
