// Package signaling carries call negotiation messages between two peers:
// the message model, its JSON wire codec, the WebSocket transport and the
// room relay server both peers connect to.
package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
	MsgTypeBye       MessageType = "bye"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MsgTypeOffer, MsgTypeAnswer, MsgTypeCandidate, MsgTypeBye:
		return true
	}
	return false
}

// Message is one signaling message. Only the fields meaningful for Type are
// set: SDP for offer and answer; Mid, Index and SDP for candidate; nothing for
// bye. Messages are plain values and compare with ==.
type Message struct {
	Type  MessageType
	SDP   string // session description, or the candidate line for MsgTypeCandidate
	Mid   string // media stream identification tag (candidate only)
	Index int    // m-line index (candidate only)
}

// Offer returns an offer carrying the caller's session description.
func Offer(sdp string) Message {
	return Message{Type: MsgTypeOffer, SDP: sdp}
}

// Answer returns an answer carrying the callee's session description.
func Answer(sdp string) Message {
	return Message{Type: MsgTypeAnswer, SDP: sdp}
}

// Candidate returns a trickled ICE candidate for the given media section.
func Candidate(mid string, index int, sdp string) Message {
	return Message{Type: MsgTypeCandidate, Mid: mid, Index: index, SDP: sdp}
}

// Bye returns the hang-up notification.
func Bye() Message {
	return Message{Type: MsgTypeBye}
}

// IsDescription reports whether m carries a session description.
func (m Message) IsDescription() bool {
	return m.Type == MsgTypeOffer || m.Type == MsgTypeAnswer
}
