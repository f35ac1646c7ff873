package app

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/p2pcall/internal/session"
	"github.com/1ureka/p2pcall/internal/signaling"
	"github.com/1ureka/p2pcall/internal/util"
)

func TestMain(m *testing.M) {
	util.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// Compile-time interface checks.
var (
	_ session.Engine   = (*loopEngine)(nil)
	_ session.Sender   = (*fakeSender)(nil)
	_ session.Observer = (*noteObserver)(nil)
)

const waitTimeout = 3 * time.Second

// loopEngine implements session.Engine without any network. It gathers one
// candidate while producing each local description and reports the media
// connection as established once both descriptions are in place.
type loopEngine struct {
	mu          sync.Mutex
	calls       []string
	onCandidate func(mid string, index int, sdp string)
	onState     func(session.ConnectionState)
}

func (e *loopEngine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *loopEngine) history() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *loopEngine) candidate(sdp string) {
	e.mu.Lock()
	fn := e.onCandidate
	e.mu.Unlock()
	fn("0", 0, sdp)
}

func (e *loopEngine) connected() {
	e.mu.Lock()
	fn := e.onState
	e.mu.Unlock()
	fn(session.ConnectionConnected)
}

func (e *loopEngine) CreateOffer() (string, error) {
	e.record("create-offer")
	e.candidate("caller-cand")
	return "offer-sdp", nil
}

func (e *loopEngine) CreateAnswer() (string, error) {
	e.record("create-answer")
	e.candidate("callee-cand")
	e.connected()
	return "answer-sdp", nil
}

func (e *loopEngine) SetRemoteDescription(kind signaling.MessageType, sdp string) error {
	e.record("set-remote:" + string(kind))
	if kind == signaling.MsgTypeAnswer {
		e.connected()
	}
	return nil
}

func (e *loopEngine) AddICECandidate(_ string, _ int, sdp string) error {
	e.record("add-candidate:" + sdp)
	return nil
}

func (e *loopEngine) OnICECandidate(fn func(mid string, index int, sdp string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

func (e *loopEngine) OnConnectionStateChange(fn func(session.ConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = fn
}

func (e *loopEngine) Close() error {
	e.record("close")
	return nil
}

// engines is an EngineFactory that remembers what it created.
type engines struct {
	mu  sync.Mutex
	all []*loopEngine
	err error
}

func (f *engines) create() (session.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := &loopEngine{}
	f.all = append(f.all, e)
	return e, nil
}

func (f *engines) last() *loopEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[len(f.all)-1]
}

func (f *engines) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.all)
}

// fakeSender records the type of every outbound message.
type fakeSender struct {
	mu    sync.Mutex
	types []signaling.MessageType
}

func (s *fakeSender) Send(text []byte) error {
	msg, err := signaling.Decode(text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, msg.Type)
	return nil
}

func (s *fakeSender) sent() []signaling.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.MessageType(nil), s.types...)
}

// noteObserver forwards notifications to buffered channels.
type noteObserver struct {
	states chan session.State
	errs   chan *session.Error
}

func newNoteObserver() *noteObserver {
	return &noteObserver{
		states: make(chan session.State, 64),
		errs:   make(chan *session.Error, 64),
	}
}

func (o *noteObserver) OnSessionStateChanged(_ session.ID, state session.State) { o.states <- state }
func (o *noteObserver) OnSessionError(_ session.ID, err *session.Error)         { o.errs <- err }

func (o *noteObserver) waitState(t *testing.T, want session.State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-o.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s not reached within %v", want, waitTimeout)
		}
	}
}

func (o *noteObserver) waitError(t *testing.T) *session.Error {
	t.Helper()
	select {
	case err := <-o.errs:
		return err
	case <-time.After(waitTimeout):
		t.Fatalf("no session error within %v", waitTimeout)
		return nil
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", waitTimeout, msg)
}

func encode(t *testing.T, m signaling.Message) []byte {
	t.Helper()
	text, err := signaling.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return text
}

type phoneHarness struct {
	out   *fakeSender
	eng   *engines
	obs   *noteObserver
	phone *Phone
}

func newPhoneHarness(t *testing.T) *phoneHarness {
	t.Helper()
	h := &phoneHarness{out: &fakeSender{}, eng: &engines{}, obs: newNoteObserver()}
	h.phone = NewPhone(h.out, h.eng.create, h.obs)
	t.Cleanup(func() { h.phone.HandleDisconnect(errors.New("test done")) })
	return h
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIncomingOfferCreatesCallee(t *testing.T) {
	h := newPhoneHarness(t)

	h.phone.HandleMessage(encode(t, signaling.Offer("offer-sdp")))
	h.obs.waitState(t, session.Connected)

	s, ok := h.phone.Active()
	if !ok {
		t.Fatal("no active session after incoming offer")
	}
	if s.Role() != session.Callee {
		t.Errorf("role = %s, want callee", s.Role())
	}

	sent := h.out.sent()
	if len(sent) == 0 || sent[len(sent)-1] != signaling.MsgTypeAnswer {
		t.Errorf("sent %v, want answer last", sent)
	}
}

func TestIncomingCandidateBeforeOffer(t *testing.T) {
	h := newPhoneHarness(t)

	h.phone.HandleMessage(encode(t, signaling.Candidate("0", 0, "early")))
	h.phone.HandleMessage(encode(t, signaling.Offer("offer-sdp")))
	h.obs.waitState(t, session.Connected)

	if n := h.eng.count(); n != 1 {
		t.Fatalf("created %d engines, want 1", n)
	}
	got := h.eng.last().history()
	want := []string{"set-remote:offer", "add-candidate:early", "create-answer"}
	if strings.Join(got[:len(want)], ",") != strings.Join(want, ",") {
		t.Errorf("engine calls = %v, want prefix %v", got, want)
	}
}

func TestStrayMessagesDropped(t *testing.T) {
	h := newPhoneHarness(t)

	h.phone.HandleMessage(encode(t, signaling.Answer("answer-sdp")))
	h.phone.HandleMessage(encode(t, signaling.Bye()))
	h.phone.HandleMessage([]byte(`{"type":"ping"}`))
	h.phone.HandleMessage([]byte(`garbage`))

	if n := h.phone.Sessions(); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
	if n := h.eng.count(); n != 0 {
		t.Errorf("created %d engines, want 0", n)
	}
	if sent := h.out.sent(); len(sent) != 0 {
		t.Errorf("sent %v, want nothing", sent)
	}
}

func TestUndecodableDuringCallReported(t *testing.T) {
	h := newPhoneHarness(t)

	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	h.obs.waitState(t, session.AwaitingRemoteDescription)

	h.phone.HandleMessage([]byte(`{"type":"ping"}`))
	if err := h.obs.waitError(t); err.Kind != session.KindUnknownType {
		t.Errorf("kind = %s, want unknown type", err.Kind)
	}
	s, _ := h.phone.Active()
	if st := s.State(); st != session.AwaitingRemoteDescription {
		t.Errorf("state = %s, want AwaitingRemoteDescription", st)
	}
}

func TestCallRejectsSecondCall(t *testing.T) {
	h := newPhoneHarness(t)

	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, err := h.phone.Call(); !errors.Is(err, ErrCallActive) {
		t.Fatalf("second Call err = %v, want ErrCallActive", err)
	}
}

func TestCallEngineError(t *testing.T) {
	h := newPhoneHarness(t)
	h.eng.err = errors.New("no devices")

	if _, err := h.phone.Call(); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := h.phone.Active(); ok {
		t.Error("active session after failed Call")
	}
}

func TestHangUp(t *testing.T) {
	h := newPhoneHarness(t)

	if err := h.phone.HangUp(); !errors.Is(err, ErrNoActiveCall) {
		t.Fatalf("HangUp without call err = %v, want ErrNoActiveCall", err)
	}

	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	h.obs.waitState(t, session.AwaitingRemoteDescription)

	if err := h.phone.HangUp(); err != nil {
		t.Fatalf("HangUp: %v", err)
	}
	sent := h.out.sent()
	if sent[len(sent)-1] != signaling.MsgTypeBye {
		t.Errorf("sent %v, want bye last", sent)
	}
	if _, ok := h.phone.Active(); ok {
		t.Error("session still active after HangUp")
	}
	eventually(t, func() bool { return h.phone.Sessions() == 0 }, "closed session removed")

	// A new call can be placed once the previous one is over.
	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call after HangUp: %v", err)
	}
}

func TestDisconnectClosesCall(t *testing.T) {
	h := newPhoneHarness(t)

	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	h.phone.HandleDisconnect(signaling.ErrConnClosed)

	if err := h.obs.waitError(t); err.Kind != session.KindDisconnected {
		t.Errorf("kind = %s, want disconnected", err.Kind)
	}
	eventually(t, func() bool { return h.phone.Sessions() == 0 }, "disconnected session removed")
	for _, typ := range h.out.sent() {
		if typ == signaling.MsgTypeBye {
			t.Error("bye sent on transport disconnect")
		}
	}
}

func TestPeerByeEndsCall(t *testing.T) {
	h := newPhoneHarness(t)

	h.phone.HandleMessage(encode(t, signaling.Offer("offer-sdp")))
	h.obs.waitState(t, session.Connected)

	h.phone.HandleMessage(encode(t, signaling.Bye()))
	h.obs.waitState(t, session.Closed)

	eventually(t, func() bool {
		_, ok := h.phone.Active()
		return !ok
	}, "no active session after peer bye")
}

func TestLateCandidateAfterHangUp(t *testing.T) {
	h := newPhoneHarness(t)

	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	h.obs.waitState(t, session.AwaitingRemoteDescription)
	if err := h.phone.HangUp(); err != nil {
		t.Fatalf("HangUp: %v", err)
	}

	// The peer's trickle outlives the call.
	h.phone.HandleMessage(encode(t, signaling.Candidate("0", 0, "late")))

	if s, ok := h.phone.Active(); ok {
		t.Fatalf("late candidate opened a %s session in %s", s.Role(), s.State())
	}
	if n := h.eng.count(); n != 1 {
		t.Errorf("created %d engines, want 1", n)
	}
	if _, err := h.phone.Call(); err != nil {
		t.Fatalf("Call after late candidate: %v", err)
	}
}

func TestStaleCandidatesDiscarded(t *testing.T) {
	h := newPhoneHarness(t)
	clock := time.Unix(1000, 0)
	h.phone.now = func() time.Time { return clock }

	h.phone.HandleMessage(encode(t, signaling.Candidate("0", 0, "stale")))
	clock = clock.Add(earlyCandidateTTL + time.Second)
	h.phone.HandleMessage(encode(t, signaling.Offer("offer-sdp")))
	h.obs.waitState(t, session.Connected)

	for _, call := range h.eng.last().history() {
		if call == "add-candidate:stale" {
			t.Fatalf("stale candidate reached the new call: %v", h.eng.last().history())
		}
	}
}

func TestByeDiscardsHeldCandidates(t *testing.T) {
	h := newPhoneHarness(t)

	h.phone.HandleMessage(encode(t, signaling.Candidate("0", 0, "old")))
	h.phone.HandleMessage(encode(t, signaling.Bye()))
	h.phone.HandleMessage(encode(t, signaling.Offer("offer-sdp")))
	h.obs.waitState(t, session.Connected)

	for _, call := range h.eng.last().history() {
		if call == "add-candidate:old" {
			t.Fatalf("candidate from before the bye reached the new call: %v", h.eng.last().history())
		}
	}
}
