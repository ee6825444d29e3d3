// internal/protocol/protocol.go

// Package protocol defines the closed set of wire events exchanged with
// clients. Every message is a tagged envelope {event, payload}; unknown
// inbound kinds are ignored rather than pattern-matched loosely.
package protocol

import "encoding/json"

// Inbound event kinds (client -> server).
const (
	EventCreateLobby       = "createLobby"
	EventJoinLobby         = "joinLobby"
	EventRequestPublicGame = "requestPublicGame"
	EventLeaveLobby        = "leaveLobby"
	EventSetReady          = "setReady"
	EventUpdateSettings    = "updateLobbySettings"
	EventStartGame         = "startGame"
	EventKickPlayer        = "kickPlayer"
	EventSubmitAnswer      = "submitAnswer"
	EventChangeName        = "changeName"
	EventVoiceSignal       = "voiceSignal"
	EventPong              = "pong"
)

// Outbound event kinds (server -> client).
const (
	EventInit           = "init"
	EventStaticData     = "staticData"
	EventLobbyList      = "lobbyList"
	EventLobbyCreated   = "lobbyCreated"
	EventLobbyUpdate    = "lobbyUpdate"
	EventKicked         = "kicked"
	EventPlayerRejoined = "playerRejoined"
	EventGameStarting   = "gameStarting"
	EventGamePreload    = "gamePreload"
	EventQuestionStart  = "questionStart"
	EventPlayerUpdate   = "playerUpdate"
	EventQuestionEnd    = "questionEnd"
	EventAnswerResult   = "answerResult"
	EventGameOver       = "gameOver"
	EventPing           = "ping"
	// EventVoiceSignal is reused outbound when relaying to the target.
)

// Envelope frames an inbound message; the payload is decoded per kind.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message frames an outbound message with an already-typed payload.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// --- Inbound payloads ---

type CreateLobbyPayload struct {
	Username string `json:"username"`
	Type     string `json:"type"`
}

type JoinLobbyPayload struct {
	LobbyCode string `json:"lobbyCode"`
	Username  string `json:"username"`
}

type RequestPublicGamePayload struct {
	Username string `json:"username"`
}

type LeaveLobbyPayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type SetReadyPayload struct {
	LobbyCode string `json:"lobbyCode"`
	Ready     bool   `json:"ready"`
}

type UpdateSettingsPayload struct {
	LobbyCode string        `json:"lobbyCode"`
	Settings  SettingsPatch `json:"settings"`
}

type StartGamePayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type KickPlayerPayload struct {
	LobbyCode string `json:"lobbyCode"`
	TargetID  string `json:"targetId"`
}

type SubmitAnswerPayload struct {
	Answer string `json:"answer"`
}

type ChangeNamePayload struct {
	Username string `json:"username"`
}

// VoiceSignalPayload is an opaque WebRTC handshake blob relayed to the
// target member verbatim; the server never interprets Signal.
type VoiceSignalPayload struct {
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

// --- Settings ---

// Settings are the host-mutable game parameters for a lobby.
type Settings struct {
	Continents []string `json:"continents"`
	Rounds     int      `json:"rounds"`
	TimeLimit  int      `json:"timeLimit"` // seconds per round
	GameType   string   `json:"gameType"`  // mixed, flags, maps, capitals, languages
	Hints      bool     `json:"hints"`
}

// SettingsPatch is a partial settings update; nil fields are left
// untouched.
type SettingsPatch struct {
	Continents *[]string `json:"continents,omitempty"`
	Rounds     *int      `json:"rounds,omitempty"`
	TimeLimit  *int      `json:"timeLimit,omitempty"`
	GameType   *string   `json:"gameType,omitempty"`
	Hints      *bool     `json:"hints,omitempty"`
}

// --- Outbound payloads ---

type InitPayload struct {
	ID           string `json:"id"`
	SessionToken string `json:"sessionToken"`
}

// StaticDataPayload carries the reference tables a client needs for
// local prediction and autocomplete.
type StaticDataPayload struct {
	Countries       interface{}    `json:"countries"`
	Languages       interface{}    `json:"languages,omitempty"`
	Synonyms        interface{}    `json:"synonyms"`
	ContinentCounts map[string]int `json:"continentCounts"`
}

// LobbySummary is one row of the public lobby directory.
type LobbySummary struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// LobbyPlayer is one member inside a LobbySnapshot.
type LobbyPlayer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// LobbySnapshot is the full lobby state broadcast on every membership
// or settings change.
type LobbySnapshot struct {
	Code           string        `json:"code"`
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	HostID         string        `json:"hostId"`
	Players        []LobbyPlayer `json:"players"`
	Settings       Settings      `json:"settings"`
	GameInProgress bool          `json:"gameInProgress"`
}

type LobbyCreatedPayload struct {
	LobbyCode string         `json:"lobbyCode"`
	LobbyName string         `json:"lobbyName"`
	Type      string         `json:"type"`
	Stats     map[string]int `json:"stats"`
}

type KickedPayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type PlayerRejoinedPayload struct {
	PlayerID string `json:"playerId"`
}

type PreloadPayload struct {
	URL string `json:"url"`
}

// QuestionStartPayload doubles as the RoundSnapshot: it is what a
// rejoining client receives to rehydrate mid-round, with RemainingTime
// recomputed from wall-clock elapsed.
type QuestionStartPayload struct {
	Index         int      `json:"index"` // 1-based
	Total         int      `json:"total"`
	AssetPath     string   `json:"flagPath"`
	ImageType     string   `json:"imageType"`
	Prompt        string   `json:"prompt,omitempty"`
	TimeLimit     int      `json:"timeLimit"`
	RemainingTime float64  `json:"remainingTime,omitempty"` // seconds, rehydration only
	PlayerCount   int      `json:"playerCount"`
	Target        string   `json:"target"`
	Synonyms      []string `json:"synonyms"`
}

type PlayerUpdatePayload struct {
	PlayerID      string `json:"playerId"`
	Username      string `json:"username"`
	IsCorrect     bool   `json:"isCorrect"`
	AnsweredCount int    `json:"answeredCount"`
	TotalPlayers  int    `json:"totalPlayers"`
}

type QuestionEndPayload struct {
	CorrectAnswer string          `json:"correctAnswer"`
	Preload       *PreloadPayload `json:"preload,omitempty"`
}

type AnswerResultPayload struct {
	Correct bool `json:"correct"`
}

// ScoreEntry is one leaderboard row. AverageTimeMs is -1 when the
// player answered nothing correctly.
type ScoreEntry struct {
	PlayerID      string `json:"playerId"`
	Username      string `json:"username"`
	Points        int    `json:"points"`
	TotalTimeMs   int64  `json:"totalTimeMs"`
	AverageTimeMs int64  `json:"averageTimeMs"`
}

type GameOverPayload struct {
	Leaderboard []ScoreEntry `json:"leaderboard"`
}

// VoiceSignalRelayPayload is the outbound form of a relayed voice
// signal, rewritten to carry the sender instead of the target.
type VoiceSignalRelayPayload struct {
	SenderID string          `json:"senderId"`
	Signal   json.RawMessage `json:"signal"`
}
