// internal/engine/engine.go

// Package engine runs one game's round loop: it owns the question
// sequence, the per-round countdown, answer collection and scoring, and
// reports the final leaderboard back through the lobby's broadcast
// channel. Exactly one Engine is active per lobby at any time.
package engine

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hastinyre/geogle/internal/config"
	"github.com/hastinyre/geogle/internal/fuzzy"
	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/protocol"
)

// BroadcastFunc sends a message to every member of the owning lobby.
type BroadcastFunc func(msg protocol.Message)

// FinishFunc is invoked once when the game is over (or torn down), so
// the lobby registry can clear its in-game state. leaderboard is nil
// when the game was aborted rather than completed.
type FinishFunc func(leaderboard []protocol.ScoreEntry)

// roundStatus is the tri-state guarding round termination. Both the
// countdown callback and the all-answered callback funnel through
// tryEndRound, which transitions to roundEnded exactly once.
type roundStatus int

const (
	roundIdle roundStatus = iota
	roundActive
	roundEnding // all answered, short beat pending
	roundEnded
)

type playerStat struct {
	username    string
	points      int
	totalTimeMs int64
}

// Engine is the per-game round scheduler. All mutable state is guarded
// by mu; timers re-enter through tryEndRound which validates the round
// index and status before acting, so a stale callback can never
// double-finish a round.
type Engine struct {
	code       string
	settings   protocol.Settings
	rounds     []Round
	synonyms   map[string]string
	thresholds fuzzy.Thresholds
	log        *logrus.Logger

	broadcast BroadcastFunc
	onFinish  FinishFunc

	mu           sync.Mutex
	index        int
	status       roundStatus
	startedAt    time.Time
	answered     map[string]struct{}
	stats        map[string]*playerStat
	order        []string // player ids in join order, for stable leaderboards
	disconnected map[string]struct{}
	playerCount  int // connected members counted toward "everyone answered"
	roundTimer   *time.Timer
	delayTimer   *time.Timer
	finished     bool
}

// New builds an Engine for one game. members maps playerId to username
// at game start; the round list is drawn immediately and never changes.
func New(code string, settings protocol.Settings, store *geodata.Store, members map[string]string, log *logrus.Logger, broadcast BroadcastFunc, onFinish FinishFunc) *Engine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := &Engine{
		code:       code,
		settings:   settings,
		rounds:     BuildRounds(store, settings, rng),
		synonyms:   store.Synonyms,
		thresholds: fuzzy.DefaultThresholds(),
		log:        log,
		broadcast:  broadcast,
		onFinish:   onFinish,

		answered:     make(map[string]struct{}),
		stats:        make(map[string]*playerStat, len(members)),
		disconnected: make(map[string]struct{}),
		playerCount:  len(members),
	}
	e.thresholds.Similarity = config.FuzzyThresholdDefault
	for id, username := range members {
		e.stats[id] = &playerStat{username: username}
		e.order = append(e.order, id)
	}
	sort.Strings(e.order)
	return e
}

// Start broadcasts the first asset preload hint and arms the timer for
// round one. A game with zero selectable rounds ends immediately with
// an empty leaderboard.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	if len(e.rounds) == 0 {
		e.log.Warnf("game %s: no selectable rounds, ending immediately", e.code)
		e.finishGameLocked()
		e.mu.Unlock()
		return
	}
	e.delayTimer = time.AfterFunc(config.PreloadDelay, e.beginRound)
	e.broadcast(protocol.Message{
		Event:   protocol.EventGamePreload,
		Payload: protocol.PreloadPayload{URL: e.rounds[0].AssetPath},
	})
	e.mu.Unlock()
}

// beginRound opens the answer window for the current round index and
// arms the countdown.
func (e *Engine) beginRound() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.index >= len(e.rounds) {
		return
	}

	e.status = roundActive
	e.startedAt = time.Now()
	e.answered = make(map[string]struct{})

	idx := e.index
	e.roundTimer = time.AfterFunc(time.Duration(e.settings.TimeLimit)*time.Second, func() {
		e.tryEndRound(idx)
	})

	e.log.Debugf("game %s: round %d/%d starting (%s: %s)", e.code, e.index+1, len(e.rounds), e.rounds[e.index].Type, e.rounds[e.index].Target)
	e.broadcast(protocol.Message{
		Event:   protocol.EventQuestionStart,
		Payload: e.snapshotLocked(),
	})
}

// snapshotLocked builds the RoundSnapshot for the current round.
// Assumes lock is held.
func (e *Engine) snapshotLocked() protocol.QuestionStartPayload {
	r := e.rounds[e.index]
	return protocol.QuestionStartPayload{
		Index:       e.index + 1,
		Total:       len(e.rounds),
		AssetPath:   r.AssetPath,
		ImageType:   string(r.Type),
		Prompt:      r.Prompt,
		TimeLimit:   e.settings.TimeLimit,
		PlayerCount: e.playerCount,
		Target:      r.Target,
		Synonyms:    r.Synonyms,
	}
}

// Snapshot returns the in-progress round state for a rehydrating
// client, with remaining time recomputed from wall-clock elapsed. The
// second return is false when no round is currently open.
func (e *Engine) Snapshot() (protocol.QuestionStartPayload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || (e.status != roundActive && e.status != roundEnding) {
		return protocol.QuestionStartPayload{}, false
	}
	p := e.snapshotLocked()
	remaining := float64(e.settings.TimeLimit) - time.Since(e.startedAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	p.RemainingTime = remaining
	return p, true
}

// SubmitAnswer scores one guess. Each player gets at most one scored
// answer per round; repeats and out-of-window submissions are no-ops
// that report not-correct.
func (e *Engine) SubmitAnswer(playerID, answer string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished || e.status != roundActive {
		return false
	}
	st, ok := e.stats[playerID]
	if !ok {
		return false
	}
	if _, dup := e.answered[playerID]; dup {
		return false
	}

	r := e.rounds[e.index]
	elapsed := time.Since(e.startedAt)
	correct := fuzzy.Evaluate(answer, r.Target, e.synonyms, e.thresholds)

	e.answered[playerID] = struct{}{}
	if correct {
		st.points++
		st.totalTimeMs += elapsed.Milliseconds()
	}

	e.broadcast(protocol.Message{
		Event: protocol.EventPlayerUpdate,
		Payload: protocol.PlayerUpdatePayload{
			PlayerID:      playerID,
			Username:      st.username,
			IsCorrect:     correct,
			AnsweredCount: len(e.answered),
			TotalPlayers:  e.playerCount,
		},
	})

	e.maybeAllAnsweredLocked()
	return correct
}

// maybeAllAnsweredLocked starts the short end-of-round beat once every
// counted member has submitted. Assumes lock is held.
func (e *Engine) maybeAllAnsweredLocked() {
	if e.status != roundActive || len(e.answered) < e.playerCount {
		return
	}
	e.status = roundEnding
	idx := e.index
	e.delayTimer = time.AfterFunc(config.AllAnsweredBeat, func() {
		e.tryEndRound(idx)
	})
}

// tryEndRound is the single idempotent finish transition for a round.
// It is entered by both the countdown timer and the all-answered beat;
// whichever arrives first for the matching round index wins, and the
// loser is a no-op.
func (e *Engine) tryEndRound(idx int) {
	e.mu.Lock()

	if e.finished || idx != e.index || e.status == roundEnded || e.status == roundIdle {
		e.mu.Unlock()
		return
	}
	e.status = roundEnded
	if e.roundTimer != nil {
		e.roundTimer.Stop()
		e.roundTimer = nil
	}

	r := e.rounds[e.index]
	var preload *protocol.PreloadPayload
	if e.index+1 < len(e.rounds) {
		preload = &protocol.PreloadPayload{URL: e.rounds[e.index+1].AssetPath}
	}
	e.broadcast(protocol.Message{
		Event: protocol.EventQuestionEnd,
		Payload: protocol.QuestionEndPayload{
			CorrectAnswer: r.Target,
			Preload:       preload,
		},
	})

	e.index++
	if e.index >= len(e.rounds) {
		e.finishGameLocked()
		e.mu.Unlock()
		return
	}

	e.delayTimer = time.AfterFunc(config.Intermission, e.beginRound)
	e.mu.Unlock()
}

// finishGameLocked broadcasts the final leaderboard and schedules the
// lobby-side cleanup callback. Assumes lock is held.
func (e *Engine) finishGameLocked() {
	leaderboard := e.leaderboardLocked()
	e.finished = true
	e.status = roundEnded
	e.stopTimersLocked()

	e.broadcast(protocol.Message{
		Event:   protocol.EventGameOver,
		Payload: protocol.GameOverPayload{Leaderboard: leaderboard},
	})

	if e.onFinish != nil {
		// Run outside the lock; the callback re-enters the lobby registry.
		go e.onFinish(leaderboard)
	}
}

// leaderboardLocked builds the sorted final standings: points
// descending, then cumulative answer time ascending. Assumes lock held.
func (e *Engine) leaderboardLocked() []protocol.ScoreEntry {
	entries := make([]protocol.ScoreEntry, 0, len(e.stats))
	for _, id := range e.order {
		st := e.stats[id]
		avg := int64(-1)
		if st.points > 0 {
			avg = st.totalTimeMs / int64(st.points)
		}
		entries = append(entries, protocol.ScoreEntry{
			PlayerID:      id,
			Username:      st.username,
			Points:        st.points,
			TotalTimeMs:   st.totalTimeMs,
			AverageTimeMs: avg,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].TotalTimeMs < entries[j].TotalTimeMs
	})
	return entries
}

// PlayerDisconnected stops counting a member toward "everyone answered"
// while they sit in the reconnect grace period. Their score keeps.
func (e *Engine) PlayerDisconnected(playerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	if _, known := e.stats[playerID]; !known {
		return
	}
	if _, already := e.disconnected[playerID]; already {
		return
	}
	e.disconnected[playerID] = struct{}{}
	e.playerCount--

	if e.playerCount <= 0 {
		// Zero active connections: tear down and discard state.
		e.log.Infof("game %s: all players disconnected, aborting", e.code)
		e.abortLocked()
		return
	}
	e.maybeAllAnsweredLocked()
}

// PlayerRejoined reverses PlayerDisconnected after a grace-period
// reattach.
func (e *Engine) PlayerRejoined(playerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	if _, was := e.disconnected[playerID]; !was {
		return
	}
	delete(e.disconnected, playerID)
	e.playerCount++
}

// PlayerLeft permanently removes a member from the count after the
// normal leave path runs. Accumulated points stay on the leaderboard.
func (e *Engine) PlayerLeft(playerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	if _, known := e.stats[playerID]; !known {
		return
	}
	if _, was := e.disconnected[playerID]; was {
		delete(e.disconnected, playerID)
	} else {
		e.playerCount--
	}

	if e.playerCount <= 0 {
		e.abortLocked()
		return
	}
	e.maybeAllAnsweredLocked()
}

// Stop tears the scheduler down without broadcasting anything, e.g.
// when the lobby is deleted mid-game. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	e.status = roundEnded
	e.stopTimersLocked()
}

// abortLocked discards game state and notifies the lobby registry with
// a nil leaderboard. Assumes lock is held.
func (e *Engine) abortLocked() {
	e.finished = true
	e.status = roundEnded
	e.stopTimersLocked()
	if e.onFinish != nil {
		go e.onFinish(nil)
	}
}

// stopTimersLocked cancels any pending countdown or delay so a late
// callback cannot touch freed state. Assumes lock is held.
func (e *Engine) stopTimersLocked() {
	if e.roundTimer != nil {
		e.roundTimer.Stop()
		e.roundTimer = nil
	}
	if e.delayTimer != nil {
		e.delayTimer.Stop()
		e.delayTimer = nil
	}
}

// RoundCount reports how many rounds were drawn for this game.
func (e *Engine) RoundCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rounds)
}
