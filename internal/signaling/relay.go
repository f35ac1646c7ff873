package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pcall/internal/util"
)

const (
	maxRoomMembers = 2  // one caller, one callee
	maxBacklog     = 64 // messages held for a member that has not joined yet
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Relay is the signaling server both peers of a call connect to. It does not
// interpret messages: every text message from a member is forwarded verbatim
// to the other members of the same room. Messages sent while a member is
// alone are held and delivered, in order, to the next member that joins.
type Relay struct {
	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	members map[*Conn]struct{}
	backlog [][]byte
}

// NewRelay creates a relay with no rooms.
func NewRelay() *Relay {
	return &Relay{rooms: make(map[string]*room)}
}

// Handler returns the relay's HTTP routes:
//
//	GET /ws/{room}  upgrade to WebSocket and join room
//	GET /healthz    liveness probe
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}", r.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start WS server: %w", err)
	}

	srv := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		r.closeAll()
	}()

	util.LogInfo("signaling relay listening on %s", listener.Addr())

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RoomSize returns the number of members currently in room.
func (r *Relay) RoomSize(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[room]; ok {
		return len(rm.members)
	}
	return 0
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	room := req.PathValue("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	conn := NewConn(ws)
	if !r.join(room, conn) {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room is full"))
		ws.Close()
		util.LogWarning("[%s] refused %s: room is full", room, req.RemoteAddr)
		return
	}
	util.LogInfo("[%s] member joined from %s", room, req.RemoteAddr)

	conn.OnMessage(func(text []byte) {
		r.forward(room, conn, text)
	})
	conn.OnDisconnect(func(reason error) {
		r.leave(room, conn)
		util.LogInfo("[%s] member left: %v", room, reason)
	})

	conn.Serve()
}

// join adds conn to room unless the room is full, then hands it the messages
// held for it. The backlog is written under the lock so that nothing
// forwarded later can overtake it.
func (r *Relay) join(name string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{members: make(map[*Conn]struct{})}
		r.rooms[name] = rm
	}
	if len(rm.members) >= maxRoomMembers {
		return false
	}
	rm.members[conn] = struct{}{}

	if len(rm.backlog) > 0 {
		util.LogDebug("[%s] delivering %d held messages", name, len(rm.backlog))
	}
	for _, text := range rm.backlog {
		if err := conn.Send(text); err != nil {
			util.LogWarning("[%s] relay failed: %v", name, err)
			break
		}
	}
	rm.backlog = nil
	return true
}

// leave removes conn from room and drops the room, with anything it still
// holds, once it is empty.
func (r *Relay) leave(name string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	delete(rm.members, conn)
	if len(rm.members) == 0 {
		delete(r.rooms, name)
	}
}

// forward relays text from one member to every other member of the room,
// or holds it when the sender is alone.
func (r *Relay) forward(name string, from *Conn, text []byte) {
	r.mu.Lock()
	rm, ok := r.rooms[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	peers := make([]*Conn, 0, len(rm.members))
	for c := range rm.members {
		if c != from {
			peers = append(peers, c)
		}
	}
	if len(peers) == 0 {
		if len(rm.backlog) < maxBacklog {
			rm.backlog = append(rm.backlog, text)
			util.LogDebug("[%s] no peer yet, holding %d bytes", name, len(text))
		} else {
			util.LogWarning("[%s] backlog full, dropping %d bytes", name, len(text))
		}
	}
	r.mu.Unlock()

	for _, c := range peers {
		if err := c.Send(text); err != nil {
			util.LogWarning("[%s] relay failed: %v", name, err)
		}
	}
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	var conns []*Conn
	for _, rm := range r.rooms {
		for c := range rm.members {
			conns = append(conns, c)
		}
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
