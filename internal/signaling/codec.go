package signaling

import (
	"encoding/json"
	"fmt"
)

// DecodeErrorKind classifies why an inbound message could not be decoded.
type DecodeErrorKind int

const (
	MalformedPayload DecodeErrorKind = iota + 1 // invalid JSON or missing required field
	UnknownType                                 // unrecognised "type" tag
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedPayload:
		return "malformed payload"
	case UnknownType:
		return "unknown type"
	default:
		return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
	}
}

// DecodeError is returned by Decode.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode signaling message: %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("decode signaling message: %s: %s", e.Kind, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireMessage is the JSON shape on the wire. Pointers distinguish an absent
// field from a zero value, so that {"index":0} is a valid candidate index.
type wireMessage struct {
	Type  *string `json:"type"`
	SDP   *string `json:"sdp,omitempty"`
	Mid   *string `json:"mid,omitempty"`
	Index *int    `json:"index,omitempty"`
}

// Encode serializes a Message into wire text. It fails only when m.Type is
// not a known message type.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("encode signaling message: unknown type %q", m.Type)
	}

	typ := string(m.Type)
	w := wireMessage{Type: &typ}

	switch {
	case m.IsDescription():
		w.SDP = &m.SDP
	case m.Type == MsgTypeCandidate:
		w.SDP = &m.SDP
		w.Mid = &m.Mid
		w.Index = &m.Index
	}

	return json.Marshal(w)
}

// Decode deserializes wire text into a Message. Failures are always a
// *DecodeError.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &DecodeError{Kind: MalformedPayload, Detail: "invalid JSON", Err: err}
	}
	if w.Type == nil {
		return Message{}, &DecodeError{Kind: MalformedPayload, Detail: `missing "type"`}
	}

	typ := MessageType(*w.Type)
	switch typ {
	case MsgTypeOffer, MsgTypeAnswer:
		if w.SDP == nil {
			return Message{}, missingField(typ, "sdp")
		}
		return Message{Type: typ, SDP: *w.SDP}, nil

	case MsgTypeCandidate:
		switch {
		case w.SDP == nil:
			return Message{}, missingField(typ, "sdp")
		case w.Mid == nil:
			return Message{}, missingField(typ, "mid")
		case w.Index == nil:
			return Message{}, missingField(typ, "index")
		}
		return Candidate(*w.Mid, *w.Index, *w.SDP), nil

	case MsgTypeBye:
		return Bye(), nil
	}

	return Message{}, &DecodeError{Kind: UnknownType, Detail: fmt.Sprintf("type %q", *w.Type)}
}

func missingField(typ MessageType, field string) *DecodeError {
	return &DecodeError{Kind: MalformedPayload, Detail: fmt.Sprintf("%s without %q", typ, field)}
}
