// internal/lobby/lobby.go

// Package lobby owns the set of active rooms: membership, settings,
// ready state, host identity and matchmaking. It is the single source
// of truth for what rooms exist.
package lobby

import (
	"sort"
	"sync"

	"github.com/hastinyre/geogle/internal/engine"
	"github.com/hastinyre/geogle/internal/protocol"
)

// Client is a member's live connection as the lobby sees it. Send must
// never block; the session layer drops messages on a saturated peer.
type Client interface {
	PlayerID() string
	Send(msg protocol.Message)
}

// Member is a player's identity inside one room. The id is stable for
// the room's lifetime; the username is player-settable.
type Member struct {
	ID       string
	Username string
}

// Lobby is an ephemeral room. Core fields (Members, Ready, Settings,
// HostID, InGame, Engine) are guarded by the Registry's mutex; the
// clients map carries its own lock so the engine can broadcast without
// touching the registry.
type Lobby struct {
	Code    string
	Name    string
	Type    string // private, public or single
	HostID  string
	Members map[string]*Member
	Ready   map[string]bool

	Settings protocol.Settings
	InGame   bool
	Engine   *engine.Engine

	clientsMu sync.RWMutex
	clients   map[string]Client
}

func newLobby(code, name, lobbyType string, settings protocol.Settings) *Lobby {
	return &Lobby{
		Code:     code,
		Name:     name,
		Type:     lobbyType,
		Members:  make(map[string]*Member),
		Ready:    make(map[string]bool),
		Settings: settings,
		clients:  make(map[string]Client),
	}
}

func (l *Lobby) addClient(c Client) {
	l.clientsMu.Lock()
	l.clients[c.PlayerID()] = c
	l.clientsMu.Unlock()
}

func (l *Lobby) removeClient(playerID string) {
	l.clientsMu.Lock()
	delete(l.clients, playerID)
	l.clientsMu.Unlock()
}

// replaceClient swaps in the connection of a rejoined session.
func (l *Lobby) replaceClient(c Client) {
	l.addClient(c)
}

// Broadcast fans a message out to every connected member. Safe to call
// from any goroutine; sends are non-blocking.
func (l *Lobby) Broadcast(msg protocol.Message) {
	l.clientsMu.RLock()
	targets := make([]Client, 0, len(l.clients))
	for _, c := range l.clients {
		targets = append(targets, c)
	}
	l.clientsMu.RUnlock()

	for _, c := range targets {
		c.Send(msg)
	}
}

// SendTo delivers a message to a single member, if connected.
func (l *Lobby) SendTo(playerID string, msg protocol.Message) {
	l.clientsMu.RLock()
	c, ok := l.clients[playerID]
	l.clientsMu.RUnlock()
	if ok {
		c.Send(msg)
	}
}

// snapshotLocked builds the full lobby state payload broadcast on every
// membership or settings change. Assumes the registry lock is held.
func (l *Lobby) snapshotLocked() protocol.LobbySnapshot {
	players := make([]protocol.LobbyPlayer, 0, len(l.Members))
	for _, m := range l.Members {
		players = append(players, protocol.LobbyPlayer{
			ID:       m.ID,
			Username: m.Username,
			Ready:    l.Ready[m.ID],
		})
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].ID < players[j].ID
	})
	return protocol.LobbySnapshot{
		Code:           l.Code,
		Name:           l.Name,
		Type:           l.Type,
		HostID:         l.HostID,
		Players:        players,
		Settings:       l.Settings,
		GameInProgress: l.InGame,
	}
}

// allGuestsReadyLocked reports whether every non-host member is marked
// ready; host readiness is implicit. Assumes the registry lock is held.
func (l *Lobby) allGuestsReadyLocked() bool {
	for id := range l.Members {
		if id == l.HostID {
			continue
		}
		if !l.Ready[id] {
			return false
		}
	}
	return true
}
