// Package app binds the signaling transport to call sessions: it is the
// host-side glue the p2pcall command drives.
package app

import (
	"errors"
	"sync"
	"time"

	"github.com/1ureka/p2pcall/internal/session"
	"github.com/1ureka/p2pcall/internal/signaling"
	"github.com/1ureka/p2pcall/internal/util"
)

var (
	ErrCallActive   = errors.New("a call is already in progress")
	ErrNoActiveCall = errors.New("no call in progress")
)

// Candidates heard outside a call are kept for the offer they precede.
const (
	maxEarlyCandidates = 32
	earlyCandidateTTL  = 10 * time.Second
)

// Phone routes inbound signaling messages to the active session and turns
// local intent (call, hang up) into session commands. At most one session is
// active at a time; a finished session is forgotten once it reaches Closed.
//
// Only an offer starts a callee session. Candidates arriving with no call in
// progress are held briefly and handed to the session the next offer opens;
// stale ones, such as the tail of a call that just ended, are discarded.
type Phone struct {
	manager *session.Manager
	now     func() time.Time

	mu         sync.Mutex
	active     *session.Session
	early      []signaling.Message
	earlySince time.Time
}

// NewPhone creates a phone whose sessions write to out and get their media
// engine from newEngine.
func NewPhone(out session.Sender, newEngine session.EngineFactory, observer session.Observer) *Phone {
	return &Phone{
		manager: session.NewManager(newEngine, out, observer),
		now:     time.Now,
	}
}

// Call opens a caller session and starts it.
func (p *Phone) Call() (session.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current() != nil {
		return "", ErrCallActive
	}

	s, err := p.manager.Open(session.Caller)
	if err != nil {
		return "", err
	}
	p.active = s
	p.early = nil
	s.Start()

	util.LogInfo("[%s] calling...", s.ID().Short())
	return s.ID(), nil
}

// HangUp ends the active call and returns once its session is closed, after
// the bye has been handed to the transport.
func (p *Phone) HangUp() error {
	p.mu.Lock()
	s := p.current()
	p.mu.Unlock()

	if s == nil {
		return ErrNoActiveCall
	}
	s.HangUp()
	<-s.Done()
	return nil
}

// Active returns the session of the call in progress, if any.
func (p *Phone) Active() (*session.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.current()
	return s, s != nil
}

// Sessions returns the number of sessions not yet closed.
func (p *Phone) Sessions() int { return p.manager.Len() }

// HandleMessage routes one inbound wire message. With no call in progress an
// offer starts a callee session, a candidate is held for it, and a stray
// answer or bye is dropped. Undecodable text goes to the active session,
// which reports it.
func (p *Phone) HandleMessage(text []byte) {
	msg, decodeErr := signaling.Decode(text)

	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.current(); s != nil {
		if decodeErr != nil {
			s.Receive(text)
			return
		}
		s.Deliver(msg)
		return
	}

	if decodeErr != nil {
		util.LogWarning("dropping undecodable message outside a call: %v", decodeErr)
		return
	}

	switch msg.Type {
	case signaling.MsgTypeOffer:
		s, err := p.manager.Open(session.Callee)
		if err != nil {
			util.LogError("failed to answer incoming call: %v", err)
			p.early = nil
			return
		}
		p.active = s
		util.LogInfo("[%s] incoming call", s.ID().Short())

		for _, c := range p.takeEarly() {
			s.Deliver(c)
		}
		s.Deliver(msg)

	case signaling.MsgTypeCandidate:
		p.holdEarly(msg)

	case signaling.MsgTypeBye:
		p.early = nil
		util.LogDebug("dropping stray bye outside a call")

	default:
		util.LogDebug("dropping stray %s outside a call", msg.Type)
	}
}

// holdEarly keeps a candidate received outside a call. Callers hold mu.
func (p *Phone) holdEarly(c signaling.Message) {
	if p.earlyExpired() {
		p.early = nil
	}
	if len(p.early) == 0 {
		p.earlySince = p.now()
	}
	if len(p.early) >= maxEarlyCandidates {
		util.LogWarning("too many candidates outside a call, dropping one")
		return
	}
	p.early = append(p.early, c)
	util.LogDebug("holding candidate outside a call (%d held)", len(p.early))
}

// takeEarly returns the held candidates that are still fresh and clears the
// buffer. Callers hold mu.
func (p *Phone) takeEarly() []signaling.Message {
	held, expired := p.early, p.earlyExpired()
	p.early = nil
	if expired {
		util.LogDebug("discarding %d stale candidates", len(held))
		return nil
	}
	return held
}

func (p *Phone) earlyExpired() bool {
	return len(p.early) > 0 && p.now().Sub(p.earlySince) > earlyCandidateTTL
}

// HandleDisconnect closes every session: the transport they negotiate over
// is gone.
func (p *Phone) HandleDisconnect(reason error) {
	util.LogWarning("signaling transport lost: %v", reason)
	p.manager.CloseAll(reason)
}

// current returns the active session unless it has closed. Callers hold mu.
func (p *Phone) current() *session.Session {
	if p.active == nil {
		return nil
	}
	select {
	case <-p.active.Done():
		p.active = nil
		return nil
	default:
		return p.active
	}
}
