// internal/session/registry.go
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hastinyre/geogle/internal/auth"
	"github.com/hastinyre/geogle/internal/config"
	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/lobby"
	"github.com/hastinyre/geogle/internal/middleware"
	"github.com/hastinyre/geogle/internal/protocol"
)

const maxMessageBytes = 32 << 10

// Registry tracks every live session and serves the websocket endpoint.
// It never calls into the lobby registry while holding its own mutex;
// lookups resolve under the lock and dispatch after releasing it.
type Registry struct {
	lobbies *lobby.Registry
	data    *geodata.Store
	log     *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*Session // by session id
	byPlayer map[string]*Session
}

// NewRegistry builds the session registry over the lobby registry and
// shared reference data.
func NewRegistry(lobbies *lobby.Registry, data *geodata.Store, log *logrus.Logger) *Registry {
	return &Registry{
		lobbies:  lobbies,
		data:     data,
		log:      log,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]*Session),
	}
}

// BroadcastAll pushes a message to every connected session. Wired into
// the lobby registry for directory updates.
func (r *Registry) BroadcastAll(msg protocol.Message) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.Unlock()
	for _, s := range targets {
		s.Send(msg)
	}
}

// Handler returns the websocket endpoint. A `session` query parameter
// carrying a valid token reattaches the caller to its prior identity;
// anything else mints a fresh session.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			r.log.Warnf("websocket accept from %s: %v", req.RemoteAddr, err)
			return
		}
		conn.SetReadLimit(maxMessageBytes)
		middleware.LogWebSocketConnect(r.log, req.RemoteAddr, req.URL.Path)

		sess, resumed := r.attach(req.URL.Query().Get("session"), conn)
		if sess == nil {
			conn.Close(websocket.StatusInternalError, "session setup failed")
			return
		}

		if resumed {
			// Reattach to any room and running game before pushing state,
			// so the rehydration snapshot reflects the restored seat.
			r.lobbies.PlayerRejoined(sess)
		}
		r.sendWelcome(sess, resumed)

		readErr := r.readPump(req.Context(), sess, conn)
		middleware.LogWebSocketDisconnect(r.log, req.RemoteAddr, req.URL.Path, readErr)
		r.handleDisconnect(sess, conn)
	}
}

// attach resolves or creates the session for a new connection. resumed
// reports whether an existing identity was reclaimed.
func (r *Registry) attach(token string, conn *websocket.Conn) (*Session, bool) {
	if token != "" {
		if sid, err := auth.VerifySessionToken(token); err == nil {
			r.mu.Lock()
			if s, ok := r.sessions[sid]; ok {
				if s.graceTimer != nil {
					s.graceTimer.Stop()
					s.graceTimer = nil
				}
				r.mu.Unlock()
				s.attach(conn)
				r.log.Infof("session %s (player %s) resumed", sid, s.playerID)
				return s, true
			}
			r.mu.Unlock()
		} else {
			r.log.Debugf("rejecting session token: %v", err)
		}
	}

	sid := uuid.NewString()
	playerID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	signed, err := auth.CreateSessionToken(sid)
	if err != nil {
		r.log.Errorf("signing session token: %v", err)
		return nil, false
	}
	s := newSession(sid, playerID, signed, r.log)

	r.mu.Lock()
	r.sessions[sid] = s
	r.byPlayer[playerID] = s
	r.mu.Unlock()

	s.attach(conn)
	r.log.Infof("session %s (player %s) created", sid, playerID)
	return s, false
}

// sendWelcome pushes the connect-time state: identity, reference
// tables, the lobby directory, and on resume the room and round
// snapshots needed to rebuild the client mid-game.
func (r *Registry) sendWelcome(s *Session, resumed bool) {
	s.Send(protocol.Message{
		Event:   protocol.EventInit,
		Payload: protocol.InitPayload{ID: s.playerID, SessionToken: s.token},
	})
	s.Send(protocol.Message{
		Event: protocol.EventStaticData,
		Payload: protocol.StaticDataPayload{
			Countries:       r.data.Countries,
			Languages:       r.data.Languages,
			Synonyms:        r.data.Synonyms,
			ContinentCounts: r.data.ContinentCounts,
		},
	})
	s.Send(protocol.Message{
		Event:   protocol.EventLobbyList,
		Payload: r.lobbies.Directory(),
	})

	if !resumed {
		return
	}
	lobbySnap, roundSnap := r.lobbies.Rehydrate(s.playerID)
	if lobbySnap != nil {
		s.Send(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: *lobbySnap})
	}
	if roundSnap != nil {
		s.Send(protocol.Message{Event: protocol.EventQuestionStart, Payload: *roundSnap})
	}
}

// readPump decodes inbound envelopes until the connection dies.
// Unknown events and malformed payloads are logged and skipped, never
// fatal.
func (r *Registry) readPump(ctx context.Context, s *Session, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.touch()

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.log.Warnf("session %s: bad envelope: %v", s.playerID, err)
			continue
		}
		r.dispatch(s, env)
	}
}

// dispatch routes one inbound event. Handlers are all silent no-ops on
// invalid state, so a confused or malicious client learns nothing and
// breaks nothing.
func (r *Registry) dispatch(s *Session, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventCreateLobby:
		var p protocol.CreateLobbyPayload
		if decode(r.log, s, env, &p) {
			r.lobbies.CreateLobby(s, p.Username, p.Type)
		}
	case protocol.EventJoinLobby:
		var p protocol.JoinLobbyPayload
		if decode(r.log, s, env, &p) {
			r.lobbies.JoinLobby(s, p.LobbyCode, p.Username)
		}
	case protocol.EventRequestPublicGame:
		var p protocol.RequestPublicGamePayload
		if decode(r.log, s, env, &p) {
			r.lobbies.RequestPublicGame(s, p.Username)
		}
	case protocol.EventLeaveLobby:
		r.lobbies.LeaveLobby(s.playerID)
	case protocol.EventSetReady:
		var p protocol.SetReadyPayload
		if decode(r.log, s, env, &p) {
			r.lobbies.SetReady(s.playerID, p.Ready)
		}
	case protocol.EventUpdateSettings:
		var p protocol.UpdateSettingsPayload
		if decode(r.log, s, env, &p) {
			r.lobbies.UpdateSettings(s.playerID, p.Settings)
		}
	case protocol.EventStartGame:
		r.lobbies.StartGame(s.playerID)
	case protocol.EventKickPlayer:
		var p protocol.KickPlayerPayload
		if decode(r.log, s, env, &p) {
			r.lobbies.KickPlayer(s.playerID, p.TargetID)
		}
	case protocol.EventSubmitAnswer:
		var p protocol.SubmitAnswerPayload
		if decode(r.log, s, env, &p) {
			if correct, ok := r.lobbies.SubmitAnswer(s.playerID, p.Answer); ok {
				s.Send(protocol.Message{
					Event:   protocol.EventAnswerResult,
					Payload: protocol.AnswerResultPayload{Correct: correct},
				})
			}
		}
	case protocol.EventChangeName:
		var p protocol.ChangeNamePayload
		if decode(r.log, s, env, &p) {
			r.lobbies.ChangeName(s.playerID, p.Username)
		}
	case protocol.EventVoiceSignal:
		var p protocol.VoiceSignalPayload
		if decode(r.log, s, env, &p) {
			r.relayVoiceSignal(s, p)
		}
	case protocol.EventPong:
		// touch already ran; nothing else to do
	default:
		r.log.Debugf("session %s: unknown event %q", s.playerID, env.Event)
	}
}

func decode(log *logrus.Logger, s *Session, env protocol.Envelope, into interface{}) bool {
	if err := json.Unmarshal(env.Payload, into); err != nil {
		log.Warnf("session %s: bad %s payload: %v", s.playerID, env.Event, err)
		return false
	}
	return true
}

// relayVoiceSignal forwards an opaque WebRTC blob to another member of
// the sender's room, rewritten to name the sender. Cross-room targets
// are dropped.
func (r *Registry) relayVoiceSignal(s *Session, p protocol.VoiceSignalPayload) {
	senderCode, inLobby := r.lobbies.CodeFor(s.playerID)
	if !inLobby {
		return
	}
	targetCode, ok := r.lobbies.CodeFor(p.TargetID)
	if !ok || targetCode != senderCode {
		return
	}

	r.mu.Lock()
	target := r.byPlayer[p.TargetID]
	r.mu.Unlock()
	if target == nil {
		return
	}
	target.Send(protocol.Message{
		Event:   protocol.EventVoiceSignal,
		Payload: protocol.VoiceSignalRelayPayload{SenderID: s.playerID, Signal: p.Signal},
	})
}

// handleDisconnect parks the session in the reconnect grace window. If
// no client reclaims the token before the window closes, the session
// and its lobby seat are discarded.
func (r *Registry) handleDisconnect(s *Session, conn *websocket.Conn) {
	if !s.detach(conn) {
		// A reattach already superseded this connection.
		return
	}

	r.mu.Lock()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.graceTimer = time.AfterFunc(config.DisconnectGrace, func() {
		r.expire(s)
	})
	r.mu.Unlock()

	r.lobbies.PlayerDisconnected(s.playerID)
}

// expire removes a session whose grace window lapsed without a
// reattach.
func (r *Registry) expire(s *Session) {
	r.mu.Lock()
	if s.attached() {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.ID)
	delete(r.byPlayer, s.playerID)
	r.mu.Unlock()

	r.log.Infof("session %s (player %s) expired", s.ID, s.playerID)
	r.lobbies.LeaveLobby(s.playerID)
}

// RunHeartbeat pings every attached session on an interval and reaps
// connections that have gone silent past the liveness threshold. Blocks
// until ctx is canceled.
func (r *Registry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(config.HeartbeatInterval)
	defer ticker.Stop()
	ping := protocol.Message{Event: protocol.EventPing}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			targets := make([]*Session, 0, len(r.sessions))
			for _, s := range r.sessions {
				targets = append(targets, s)
			}
			r.mu.Unlock()

			now := time.Now()
			for _, s := range targets {
				if !s.attached() {
					continue
				}
				if now.Sub(s.idleSince()) > config.LivenessThreshold {
					r.log.Infof("session %s (player %s) unresponsive, closing", s.ID, s.playerID)
					s.closeConn(websocket.StatusGoingAway, "unresponsive")
					continue
				}
				s.Send(ping)
			}
		}
	}
}
