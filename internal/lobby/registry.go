// internal/lobby/registry.go
package lobby

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hastinyre/geogle/internal/config"
	"github.com/hastinyre/geogle/internal/engine"
	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/protocol"
)

// Registry manages all live lobbies in memory. Every mutation of a
// lobby's core state goes through the registry mutex, so membership
// changes, settings changes and game-start transitions for a room never
// interleave. Unauthorized or unknown-room requests are silent no-ops:
// no state change, no error payload.
type Registry struct {
	mu       sync.Mutex
	lobbies  map[string]*Lobby
	byPlayer map[string]string // playerId -> lobby code; a player is in at most one room
	store    *geodata.Store
	log      *logrus.Logger
	rng      *rand.Rand

	// BroadcastAll pushes a message to every connected session (not just
	// lobby members); wired to the session registry at startup. Used for
	// public lobby directory updates.
	BroadcastAll func(msg protocol.Message)
}

// NewRegistry builds an empty lobby registry over the shared reference
// data.
func NewRegistry(store *geodata.Store, log *logrus.Logger) *Registry {
	return &Registry{
		lobbies:  make(map[string]*Lobby),
		byPlayer: make(map[string]string),
		store:    store,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func defaultSettings() protocol.Settings {
	return protocol.Settings{
		Continents: []string{},
		Rounds:     config.DefaultRounds,
		TimeLimit:  config.DefaultTimeLimitSec,
		GameType:   "mixed",
	}
}

// CreateLobby allocates a room with a unique short code, a randomized
// display name and the creator as host, then joins the creator into it.
func (r *Registry) CreateLobby(c Client, username, lobbyType string) {
	if !validLobbyType(lobbyType) {
		lobbyType = "private"
	}
	if username == "" {
		username = "Host"
	}

	r.mu.Lock()
	if prev, in := r.byPlayer[c.PlayerID()]; in {
		r.leaveLocked(r.lobbies[prev], c.PlayerID())
	}
	code := r.newCodeLocked()
	name := r.store.LobbyNames[r.rng.Intn(len(r.store.LobbyNames))]
	l := newLobby(code, name, lobbyType, defaultSettings())
	l.HostID = c.PlayerID()
	r.lobbies[code] = l
	r.log.Infof("lobby %s (%q, %s) created by %s", code, name, lobbyType, c.PlayerID())

	r.joinLocked(l, c, username)

	c.Send(protocol.Message{
		Event: protocol.EventLobbyCreated,
		Payload: protocol.LobbyCreatedPayload{
			LobbyCode: code,
			LobbyName: name,
			Type:      lobbyType,
			Stats:     r.store.ContinentCounts,
		},
	})
	r.broadcastDirectoryLocked()
	r.mu.Unlock()
}

// newCodeLocked draws a 4-digit code, retrying on collision with live
// lobbies. Assumes lock is held.
func (r *Registry) newCodeLocked() string {
	for {
		code := fmt.Sprintf("%04d", 1000+r.rng.Intn(9000))
		if _, taken := r.lobbies[code]; !taken {
			return code
		}
	}
}

// JoinLobby adds a player to an existing room. An unknown code is a
// silent no-op; joining a room the player is already in is idempotent.
func (r *Registry) JoinLobby(c Client, code, username string) {
	if username == "" {
		username = "Guest"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	if !ok {
		return
	}
	// A connection belongs to at most one lobby at a time.
	if prev, in := r.byPlayer[c.PlayerID()]; in && prev != code {
		r.leaveLocked(r.lobbies[prev], c.PlayerID())
	}
	r.joinLocked(l, c, username)
	r.broadcastDirectoryLocked()
}

// joinLocked performs the membership mutation and broadcasts the
// updated room. Assumes lock is held.
func (r *Registry) joinLocked(l *Lobby, c Client, username string) {
	id := c.PlayerID()
	if _, present := l.Members[id]; !present {
		l.Members[id] = &Member{ID: id, Username: username}
		l.Ready[id] = false
	}
	l.addClient(c)
	r.byPlayer[id] = l.Code
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
}

// RequestPublicGame is the matchmaking path: join any public room that
// is waiting on an opponent, starting the game as soon as it fills to
// two; otherwise open a fresh public room and wait.
func (r *Registry) RequestPublicGame(c Client, username string) {
	r.mu.Lock()
	if prev, in := r.byPlayer[c.PlayerID()]; in {
		r.leaveLocked(r.lobbies[prev], c.PlayerID())
	}
	var waiting *Lobby
	for _, l := range r.lobbies {
		if l.Type == "public" && !l.InGame && len(l.Members) == 1 {
			waiting = l
			break
		}
	}
	if waiting == nil {
		r.mu.Unlock()
		r.CreateLobby(c, username, "public")
		return
	}

	if username == "" {
		username = "Player 2"
	}
	r.joinLocked(waiting, c, username)

	var eng *engine.Engine
	if len(waiting.Members) >= config.MinPlayersToStart {
		eng = r.startGameLocked(waiting)
	}
	r.broadcastDirectoryLocked()
	r.mu.Unlock()

	if eng != nil {
		eng.Start()
	}
}

// LeaveLobby runs the normal leave path for a player, whether they
// asked to leave, were kicked, or their session expired.
func (r *Registry) LeaveLobby(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, in := r.byPlayer[playerID]
	if !in {
		return
	}
	r.leaveLocked(r.lobbies[code], playerID)
	r.broadcastDirectoryLocked()
}

// leaveLocked removes the player, migrates the host role
// deterministically (lowest remaining player id) and deletes the room
// once its member set empties. Assumes lock is held.
func (r *Registry) leaveLocked(l *Lobby, playerID string) {
	if l == nil {
		return
	}
	delete(l.Members, playerID)
	delete(l.Ready, playerID)
	l.removeClient(playerID)
	delete(r.byPlayer, playerID)

	if l.Engine != nil {
		l.Engine.PlayerLeft(playerID)
	}

	if len(l.Members) == 0 {
		if l.Engine != nil {
			l.Engine.Stop()
			l.Engine = nil
		}
		delete(r.lobbies, l.Code)
		r.log.Infof("lobby %s is empty, deleted", l.Code)
		return
	}

	if l.HostID == playerID {
		ids := make([]string, 0, len(l.Members))
		for id := range l.Members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		l.HostID = ids[0]
		r.log.Infof("lobby %s: host migrated to %s", l.Code, l.HostID)
	}
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
}

// SetReady flips a member's ready flag and broadcasts the room.
func (r *Registry) SetReady(playerID string, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lobbyOfLocked(playerID)
	if l == nil {
		return
	}
	l.Ready[playerID] = ready
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
}

// UpdateSettings applies a host-submitted partial settings update,
// clamping out-of-range values. Non-host requests are silently ignored.
func (r *Registry) UpdateSettings(playerID string, patch protocol.SettingsPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lobbyOfLocked(playerID)
	if l == nil || l.HostID != playerID || l.InGame {
		return
	}

	s := l.Settings
	if patch.Continents != nil {
		s.Continents = *patch.Continents
	}
	if patch.Rounds != nil {
		s.Rounds = clamp(*patch.Rounds, config.MinRounds, config.MaxRounds)
	}
	if patch.TimeLimit != nil {
		s.TimeLimit = clamp(*patch.TimeLimit, config.MinTimeLimitSec, config.MaxTimeLimitSec)
	}
	if patch.GameType != nil && validGameType(*patch.GameType) {
		s.GameType = *patch.GameType
	}
	if patch.Hints != nil {
		s.Hints = *patch.Hints
	}
	l.Settings = s
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func validGameType(t string) bool {
	switch t {
	case "mixed", "flags", "maps", "capitals", "languages":
		return true
	}
	return false
}

func validLobbyType(t string) bool {
	switch t {
	case "private", "public", "single":
		return true
	}
	return false
}

// KickPlayer forces the target's leave path and notifies the target.
// Host-only; anything else is a silent no-op.
func (r *Registry) KickPlayer(playerID, targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lobbyOfLocked(playerID)
	if l == nil || l.HostID != playerID || playerID == targetID {
		return
	}
	if _, member := l.Members[targetID]; !member {
		return
	}
	l.SendTo(targetID, protocol.Message{
		Event:   protocol.EventKicked,
		Payload: protocol.KickedPayload{LobbyCode: l.Code},
	})
	r.leaveLocked(l, targetID)
	r.broadcastDirectoryLocked()
}

// StartGame begins the round sequence. Host-only; multi-member rooms
// additionally require every non-host member to be ready. Unmet
// conditions are rejected as no-ops.
func (r *Registry) StartGame(playerID string) {
	r.mu.Lock()
	l := r.lobbyOfLocked(playerID)
	if l == nil || l.HostID != playerID || l.InGame {
		r.mu.Unlock()
		return
	}
	if len(l.Members) > 1 && !l.allGuestsReadyLocked() {
		r.mu.Unlock()
		return
	}
	eng := r.startGameLocked(l)
	r.broadcastDirectoryLocked()
	r.mu.Unlock()

	eng.Start()
}

// startGameLocked marks the room in progress, broadcasts the settings
// and constructs the engine bound to this room's broadcast channel.
// Assumes lock is held; callers must invoke Start on the returned
// engine after releasing the lock.
func (r *Registry) startGameLocked(l *Lobby) *engine.Engine {
	l.InGame = true
	l.Broadcast(protocol.Message{Event: protocol.EventGameStarting, Payload: l.Settings})

	members := make(map[string]string, len(l.Members))
	for id, m := range l.Members {
		members[id] = m.Username
	}
	code := l.Code
	eng := engine.New(code, l.Settings, r.store, members, r.log, l.Broadcast, func(leaderboard []protocol.ScoreEntry) {
		r.finishGame(code)
	})
	l.Engine = eng
	r.log.Infof("lobby %s: game started with %d players, %d rounds", code, len(members), eng.RoundCount())
	return eng
}

// finishGame clears a room's in-game state after the engine reports
// completion (or abort), resets ready flags and re-broadcasts the room.
func (r *Registry) finishGame(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	if !ok {
		return
	}
	l.InGame = false
	l.Engine = nil
	for id := range l.Ready {
		l.Ready[id] = false
	}
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
	r.broadcastDirectoryLocked()
}

// SubmitAnswer routes a guess into the player's active engine. The
// second return is false when no round is accepting answers for this
// player at all.
func (r *Registry) SubmitAnswer(playerID, answer string) (correct bool, ok bool) {
	r.mu.Lock()
	l := r.lobbyOfLocked(playerID)
	var eng *engine.Engine
	if l != nil {
		eng = l.Engine
	}
	r.mu.Unlock()

	if eng == nil {
		return false, false
	}
	return eng.SubmitAnswer(playerID, answer), true
}

// ChangeName updates a member's display name and broadcasts the room.
func (r *Registry) ChangeName(playerID, username string) {
	if username == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lobbyOfLocked(playerID)
	if l == nil {
		return
	}
	l.Members[playerID].Username = username
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
}

// PlayerDisconnected tells the room's engine to stop counting the
// player toward round completion while their session sits in grace.
func (r *Registry) PlayerDisconnected(playerID string) {
	if eng := r.engineOf(playerID); eng != nil {
		eng.PlayerDisconnected(playerID)
	}
}

// PlayerRejoined reattaches a grace-period session's new connection to
// its room and notifies the other members so per-peer state (e.g.
// voice) can reset.
func (r *Registry) PlayerRejoined(c Client) {
	r.mu.Lock()
	l := r.lobbyOfLocked(c.PlayerID())
	if l == nil {
		r.mu.Unlock()
		return
	}
	l.replaceClient(c)
	eng := l.Engine
	l.Broadcast(protocol.Message{
		Event:   protocol.EventPlayerRejoined,
		Payload: protocol.PlayerRejoinedPayload{PlayerID: c.PlayerID()},
	})
	l.Broadcast(protocol.Message{Event: protocol.EventLobbyUpdate, Payload: l.snapshotLocked()})
	r.mu.Unlock()

	if eng != nil {
		eng.PlayerRejoined(c.PlayerID())
	}
}

// Rehydrate returns what a (re)connecting client needs to reconstruct
// its UI: the room snapshot and, when a round is open, the
// RoundSnapshot with remaining time recomputed from wall clock.
func (r *Registry) Rehydrate(playerID string) (lobbySnap *protocol.LobbySnapshot, roundSnap *protocol.QuestionStartPayload) {
	r.mu.Lock()
	l := r.lobbyOfLocked(playerID)
	if l == nil {
		r.mu.Unlock()
		return nil, nil
	}
	snap := l.snapshotLocked()
	eng := l.Engine
	r.mu.Unlock()

	lobbySnap = &snap
	if eng != nil {
		if rs, open := eng.Snapshot(); open {
			roundSnap = &rs
		}
	}
	return lobbySnap, roundSnap
}

// CodeFor returns the lobby code the player currently belongs to.
func (r *Registry) CodeFor(playerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.byPlayer[playerID]
	return code, ok
}

// Directory builds the public lobby list: private rooms not currently
// in game, the same filter the original directory applied.
func (r *Registry) Directory() []protocol.LobbySummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.directoryLocked()
}

func (r *Registry) directoryLocked() []protocol.LobbySummary {
	list := make([]protocol.LobbySummary, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		if l.InGame || l.Type != "private" {
			continue
		}
		list = append(list, protocol.LobbySummary{
			Code:  l.Code,
			Name:  l.Name,
			Count: len(l.Members),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

// broadcastDirectoryLocked pushes the lobby list to every connected
// session. Assumes lock is held.
func (r *Registry) broadcastDirectoryLocked() {
	if r.BroadcastAll == nil {
		return
	}
	r.BroadcastAll(protocol.Message{
		Event:   protocol.EventLobbyList,
		Payload: r.directoryLocked(),
	})
}

// lobbyOfLocked resolves the room a player belongs to. Assumes lock is
// held.
func (r *Registry) lobbyOfLocked(playerID string) *Lobby {
	code, in := r.byPlayer[playerID]
	if !in {
		return nil
	}
	return r.lobbies[code]
}

func (r *Registry) engineOf(playerID string) *engine.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lobbyOfLocked(playerID)
	if l == nil {
		return nil
	}
	return l.Engine
}
