package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/p2pcall/internal/signaling"
	"github.com/1ureka/p2pcall/internal/util"
)

// eventQueueSize is the capacity of a session's inbound event queue.
const eventQueueSize = 64

// Session negotiates one peer-to-peer call.
//
// Every input (host command, signaling message, media engine completion) is
// posted to a single queue and handled by the session goroutine, so state
// transitions never interleave. The fields below the queue are owned by that
// goroutine; other goroutines only see the published state.
//
// Engine commands that produce or apply descriptions run off the session
// goroutine and report back as events. While one is in flight the session
// makes no further progress except buffering candidates. Once the session is
// Closed its goroutine exits and later events, including late engine
// completions, are dropped.
type Session struct {
	id       ID
	role     Role
	engine   Engine
	out      Sender
	observer Observer

	events chan event
	done   chan struct{}

	// Owned by the session goroutine.
	state          State
	inFlight       bool                // a description command is outstanding
	remoteApplied  bool                // the remote description has been applied
	pending        []signaling.Message // candidates received before remoteApplied
	mediaConnected bool                // engine reported connected before Negotiating

	mu        sync.RWMutex
	published State
}

// New creates a session in Idle and starts its goroutine. The session
// references engine, out and observer but owns only engine's lifetime: the
// engine is closed exactly once when the session reaches Closed.
func New(id ID, role Role, engine Engine, out Sender, observer Observer) *Session {
	if observer == nil {
		observer = ObserverFuncs{}
	}

	s := &Session{
		id:       id,
		role:     role,
		engine:   engine,
		out:      out,
		observer: observer,
		events:   make(chan event, eventQueueSize),
		done:     make(chan struct{}),
	}

	engine.OnICECandidate(func(mid string, index int, sdp string) {
		s.post(localCandidateEvent{msg: signaling.Candidate(mid, index, sdp)})
	})
	engine.OnConnectionStateChange(func(state ConnectionState) {
		s.post(connectionStateEvent{state: state})
	})

	util.Stats.OpenSession()
	go s.run()

	return s
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// ID returns the session identifier.
func (s *Session) ID() ID { return s.id }

// Role returns the role fixed at creation.
func (s *Session) Role() Role { return s.role }

// State returns the most recently entered state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// Done returns a channel that is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start begins a call: the engine is asked for an offer. Only valid for a
// Caller in Idle.
func (s *Session) Start() { s.post(startEvent{}) }

// HangUp ends the call locally and notifies the peer with a bye.
func (s *Session) HangUp() { s.post(hangUpEvent{}) }

// Receive hands the session one inbound wire message. Undecodable messages
// are reported and dropped without changing state.
func (s *Session) Receive(text []byte) { s.post(wireEvent{text: text}) }

// Deliver hands the session one already decoded inbound message.
func (s *Session) Deliver(msg signaling.Message) { s.post(messageEvent{msg: msg}) }

// Disconnect tells the session the signaling transport is gone.
func (s *Session) Disconnect(reason error) { s.post(disconnectEvent{reason: reason}) }

// post enqueues an event, or drops it if the session is already closed.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

// run handles events until the session is closed. Events still queued at
// that point are abandoned with the channel.
func (s *Session) run() {
	for s.state != Closed {
		s.handle(<-s.events)
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case startEvent:
		s.handleStart()

	case hangUpEvent:
		util.LogInfo("[%s] local hang-up", s.id.Short())
		s.send(signaling.Bye())
		s.close()

	case wireEvent:
		msg, err := signaling.Decode(e.text)
		if err != nil {
			util.LogWarning("[%s] dropping undecodable message: %v", s.id.Short(), err)
			s.report(decodeError(err))
			return
		}
		s.handleMessage(msg)

	case messageEvent:
		s.handleMessage(e.msg)

	case disconnectEvent:
		util.LogWarning("[%s] signaling transport disconnected: %v", s.id.Short(), e.reason)
		s.report(&Error{Kind: KindDisconnected, Err: e.reason})
		s.close()

	case localDescriptionEvent:
		s.handleLocalDescription(e)

	case remoteDescriptionEvent:
		s.handleRemoteDescription(e)

	case localCandidateEvent:
		s.send(e.msg)

	case connectionStateEvent:
		s.handleConnectionState(e.state)
	}
}

func (s *Session) handleStart() {
	if s.role != Caller || s.state != Idle {
		s.violation("start call")
		return
	}

	s.setState(AwaitingLocalDescription)
	s.inFlight = true
	go func() {
		sdp, err := s.engine.CreateOffer()
		s.post(localDescriptionEvent{kind: signaling.MsgTypeOffer, sdp: sdp, err: err})
	}()
}

func (s *Session) handleMessage(msg signaling.Message) {
	switch msg.Type {
	case signaling.MsgTypeOffer:
		if s.role != Callee || s.state != Idle || s.inFlight {
			s.violation("offer")
			return
		}
		s.setState(AwaitingLocalDescription)
		s.applyRemote(msg)

	case signaling.MsgTypeAnswer:
		if s.role != Caller || s.state != AwaitingRemoteDescription || s.inFlight || s.remoteApplied {
			s.violation("answer")
			return
		}
		s.applyRemote(msg)

	case signaling.MsgTypeCandidate:
		if !s.remoteApplied {
			s.pending = append(s.pending, msg)
			util.LogDebug("[%s] buffered remote candidate (%d pending)", s.id.Short(), len(s.pending))
			return
		}
		s.addCandidate(msg)

	case signaling.MsgTypeBye:
		util.LogInfo("[%s] peer hung up", s.id.Short())
		s.close()

	default:
		s.violation(fmt.Sprintf("message type %q", msg.Type))
	}
}

// applyRemote issues SetRemoteDescription off the session goroutine.
func (s *Session) applyRemote(msg signaling.Message) {
	s.inFlight = true
	go func() {
		err := s.engine.SetRemoteDescription(msg.Type, msg.SDP)
		s.post(remoteDescriptionEvent{kind: msg.Type, err: err})
	}()
}

func (s *Session) handleLocalDescription(e localDescriptionEvent) {
	s.inFlight = false

	if e.err != nil {
		util.LogError("[%s] failed to create %s: %v", s.id.Short(), e.kind, e.err)
		s.fail(&Error{Kind: KindEngineFailure, Err: fmt.Errorf("create %s: %w", e.kind, e.err)})
		return
	}

	s.send(signaling.Message{Type: e.kind, SDP: e.sdp})

	if e.kind == signaling.MsgTypeOffer {
		s.setState(AwaitingRemoteDescription)
		return
	}
	s.enterNegotiating()
}

func (s *Session) handleRemoteDescription(e remoteDescriptionEvent) {
	s.inFlight = false

	if e.err != nil {
		util.LogError("[%s] remote %s rejected: %v", s.id.Short(), e.kind, e.err)
		s.fail(&Error{Kind: KindRejectedDescription, Err: e.err})
		return
	}

	s.remoteApplied = true
	s.flushPending()

	if e.kind == signaling.MsgTypeAnswer {
		s.enterNegotiating()
		return
	}

	// Callee: the offer is applied, now produce the answer.
	s.inFlight = true
	go func() {
		sdp, err := s.engine.CreateAnswer()
		s.post(localDescriptionEvent{kind: signaling.MsgTypeAnswer, sdp: sdp, err: err})
	}()
}

func (s *Session) handleConnectionState(state ConnectionState) {
	util.LogDebug("[%s] media connection state: %s", s.id.Short(), state)

	switch state {
	case ConnectionConnected:
		switch s.state {
		case Negotiating:
			s.setState(Connected)
		case Connected:
		default:
			// Connectivity can complete before the answer's completion event
			// is handled; apply it once Negotiating is entered.
			s.mediaConnected = true
		}

	case ConnectionDisconnected:
		util.LogWarning("[%s] media connection interrupted, waiting for ICE to recover", s.id.Short())

	case ConnectionFailed:
		s.fail(&Error{Kind: KindConnectionFailed, Err: errors.New("media connection failed")})

	case ConnectionClosed:
		s.close()
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Session) enterNegotiating() {
	s.setState(Negotiating)
	if s.mediaConnected {
		s.setState(Connected)
	}
}

// flushPending forwards buffered candidates in arrival order, then clears
// the buffer.
func (s *Session) flushPending() {
	if len(s.pending) > 0 {
		util.LogDebug("[%s] flushing %d buffered candidates", s.id.Short(), len(s.pending))
	}
	for _, c := range s.pending {
		s.addCandidate(c)
	}
	s.pending = nil
}

// addCandidate forwards a remote candidate. A candidate the engine refuses
// is logged and skipped: ICE may still succeed with the others.
func (s *Session) addCandidate(c signaling.Message) {
	if err := s.engine.AddICECandidate(c.Mid, c.Index, c.SDP); err != nil {
		util.LogWarning("[%s] AddICECandidate failed (mid=%s, index=%d): %v", s.id.Short(), c.Mid, c.Index, err)
	}
}

// violation logs and reports a message that is not legal in the current
// state. The message is dropped; state is unchanged and nothing is sent.
func (s *Session) violation(what string) {
	err := fmt.Errorf("%s not allowed for %s in state %s", what, s.role, s.state)
	util.LogWarning("[%s] protocol violation: %v", s.id.Short(), err)
	s.report(&Error{Kind: KindIllegalStateTransition, Err: err})
}

// fail reports err, tells the peer best-effort, and closes the session.
func (s *Session) fail(err *Error) {
	s.report(err)
	s.send(signaling.Bye())
	s.close()
}

// send encodes and writes one outbound message. Failures are logged only:
// a broken transport surfaces separately as a disconnect.
func (s *Session) send(msg signaling.Message) {
	text, err := signaling.Encode(msg)
	if err != nil {
		util.LogError("[%s] %v", s.id.Short(), err)
		return
	}
	if err := s.out.Send(text); err != nil {
		util.LogWarning("[%s] failed to send %s: %v", s.id.Short(), msg.Type, err)
	}
}

func (s *Session) report(err *Error) {
	s.observer.OnSessionError(s.id, err)
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	util.LogDebug("[%s] %s → %s", s.id.Short(), s.state, state)

	s.state = state
	s.mu.Lock()
	s.published = state
	s.mu.Unlock()

	s.observer.OnSessionStateChanged(s.id, state)
}

// close enters Closed: the engine is released, buffered candidates are
// discarded and the session goroutine stops. Every exit path ends here.
func (s *Session) close() {
	if s.state == Closed {
		return
	}

	if err := s.engine.Close(); err != nil {
		util.LogWarning("[%s] engine close: %v", s.id.Short(), err)
	}
	s.pending = nil
	s.inFlight = false

	s.setState(Closed)
	close(s.done)
	util.Stats.CloseSession()
}
