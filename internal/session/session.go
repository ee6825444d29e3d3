// internal/session/session.go

// Package session owns the websocket edge: one Session per logical
// player, surviving the underlying connection. A connection drop parks
// the session in a short grace window; a client presenting the same
// session token inside that window reattaches to its identity, lobby
// seat and in-flight game.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hastinyre/geogle/internal/protocol"
)

const (
	outBufferSize = 64
	writeTimeout  = 5 * time.Second
)

// Session is one player's server-side identity. The playerID is the
// short id other members see; the session id (and its token) exist only
// to let a reconnecting client reclaim this identity.
type Session struct {
	ID       string // session id, token subject
	playerID string
	token    string
	log      *logrus.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	out      chan protocol.Message
	done     chan struct{}
	lastSeen time.Time

	graceTimer *time.Timer // guarded by the registry mutex
}

func newSession(id, playerID, token string, log *logrus.Logger) *Session {
	return &Session{
		ID:       id,
		playerID: playerID,
		token:    token,
		log:      log,
		lastSeen: time.Now(),
	}
}

// PlayerID implements lobby.Client.
func (s *Session) PlayerID() string {
	return s.playerID
}

// Send implements lobby.Client. It never blocks: a peer that cannot
// drain its buffer loses messages rather than stalling a broadcast.
func (s *Session) Send(msg protocol.Message) {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		s.log.Warnf("session %s: outbound buffer full, dropping %s", s.playerID, msg.Event)
	}
}

// attach binds a fresh connection, closing any previous one, and starts
// the write pump for it.
func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close(websocket.StatusGoingAway, "superseded")
	}
	if s.done != nil {
		close(s.done)
	}
	s.conn = conn
	s.out = make(chan protocol.Message, outBufferSize)
	s.done = make(chan struct{})
	s.lastSeen = time.Now()
	out, done := s.out, s.done
	s.mu.Unlock()

	go s.writePump(conn, out, done)
}

// detach clears the connection if it is still the current one; a
// detach racing a reattach must not tear down the newer connection.
func (s *Session) detach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return false
	}
	s.conn = nil
	s.out = nil
	close(s.done)
	s.done = nil
	return true
}

// writePump serializes outbound messages onto one connection. It exits
// when the connection dies or the session detaches.
func (s *Session) writePump(conn *websocket.Conn, out <-chan protocol.Message, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-out:
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Errorf("session %s: marshal %s: %v", s.playerID, msg.Event, err)
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// touch records inbound activity for the liveness sweep.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// closeConn force-closes the current connection, if any. The read pump
// unwinds through the normal disconnect path.
func (s *Session) closeConn(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close(code, reason)
	}
}

func (s *Session) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}
