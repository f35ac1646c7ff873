package session

import "github.com/1ureka/p2pcall/internal/signaling"

// event is one entry of a session's inbound queue. Transport messages,
// host commands and media engine completions are all events, handled one at
// a time by the session goroutine.
type event interface {
	isEvent()
}

type (
	// Host commands.
	startEvent  struct{}
	hangUpEvent struct{}

	// Signaling transport.
	wireEvent       struct{ text []byte }
	messageEvent    struct{ msg signaling.Message }
	disconnectEvent struct{ reason error }

	// Media engine.
	localDescriptionEvent struct {
		kind signaling.MessageType
		sdp  string
		err  error
	}
	remoteDescriptionEvent struct {
		kind signaling.MessageType
		err  error
	}
	localCandidateEvent  struct{ msg signaling.Message }
	connectionStateEvent struct{ state ConnectionState }
)

func (startEvent) isEvent()             {}
func (hangUpEvent) isEvent()            {}
func (wireEvent) isEvent()              {}
func (messageEvent) isEvent()           {}
func (disconnectEvent) isEvent()        {}
func (localDescriptionEvent) isEvent()  {}
func (remoteDescriptionEvent) isEvent() {}
func (localCandidateEvent) isEvent()    {}
func (connectionStateEvent) isEvent()   {}
