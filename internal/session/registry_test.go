// internal/session/registry_test.go
package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hastinyre/geogle/internal/auth"
	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/lobby"
	"github.com/hastinyre/geogle/internal/protocol"
)

type wireMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	require.NoError(t, auth.Init())

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := geodata.NewStore([]*geodata.Country{
		{Code: "de", Name: "Germany", Capital: "Berlin", Continent: "Europe"},
		{Code: "fr", Name: "France", Capital: "Paris", Continent: "Europe"},
	}, nil, map[string]string{}, []string{"Testroom"})

	lobbies := lobby.NewRegistry(store, log)
	sessions := NewRegistry(lobbies, store, log)
	lobbies.BroadcastAll = sessions.BroadcastAll

	srv := httptest.NewServer(sessions.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + "/ws" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

// readUntil drains messages until one with the given event arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) wireMessage {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %q", event)
		var msg wireMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Event == event {
			return msg
		}
	}
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{"event": event, "payload": payload})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestConnectReceivesIdentityAndStaticData(t *testing.T) {
	srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "")
	defer conn.Close(websocket.StatusNormalClosure, "")

	initMsg := readUntil(t, ctx, conn, protocol.EventInit)
	var initPayload protocol.InitPayload
	require.NoError(t, json.Unmarshal(initMsg.Payload, &initPayload))
	assert.Len(t, initPayload.ID, 8)
	assert.NotEmpty(t, initPayload.SessionToken)

	staticMsg := readUntil(t, ctx, conn, protocol.EventStaticData)
	var staticPayload struct {
		Countries       []json.RawMessage `json:"countries"`
		ContinentCounts map[string]int    `json:"continentCounts"`
	}
	require.NoError(t, json.Unmarshal(staticMsg.Payload, &staticPayload))
	assert.Len(t, staticPayload.Countries, 2)
	assert.Equal(t, 2, staticPayload.ContinentCounts["all"])

	readUntil(t, ctx, conn, protocol.EventLobbyList)
}

func TestCreateLobbyOverWire(t *testing.T) {
	srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "")
	defer conn.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, conn, protocol.EventLobbyList)

	send(t, ctx, conn, protocol.EventCreateLobby, protocol.CreateLobbyPayload{Username: "Alice", Type: "private"})

	created := readUntil(t, ctx, conn, protocol.EventLobbyCreated)
	var createdPayload protocol.LobbyCreatedPayload
	require.NoError(t, json.Unmarshal(created.Payload, &createdPayload))
	assert.Len(t, createdPayload.LobbyCode, 4)
	assert.Equal(t, "Testroom", createdPayload.LobbyName)

	// The updated directory lists the fresh room to its own creator too.
	list := readUntil(t, ctx, conn, protocol.EventLobbyList)
	var rooms []protocol.LobbySummary
	require.NoError(t, json.Unmarshal(list.Payload, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, createdPayload.LobbyCode, rooms[0].Code)
	assert.Equal(t, 1, rooms[0].Count)
}

func TestTwoClientsShareALobby(t *testing.T) {
	srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := dial(t, ctx, srv, "")
	defer host.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, host, protocol.EventLobbyList)
	send(t, ctx, host, protocol.EventCreateLobby, protocol.CreateLobbyPayload{Username: "Alice", Type: "private"})
	created := readUntil(t, ctx, host, protocol.EventLobbyCreated)
	var createdPayload protocol.LobbyCreatedPayload
	require.NoError(t, json.Unmarshal(created.Payload, &createdPayload))

	guest := dial(t, ctx, srv, "")
	defer guest.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, guest, protocol.EventLobbyList)
	send(t, ctx, guest, protocol.EventJoinLobby, protocol.JoinLobbyPayload{LobbyCode: createdPayload.LobbyCode, Username: "Bob"})

	update := readUntil(t, ctx, guest, protocol.EventLobbyUpdate)
	var snap protocol.LobbySnapshot
	require.NoError(t, json.Unmarshal(update.Payload, &snap))
	assert.Len(t, snap.Players, 2)
	assert.Equal(t, createdPayload.LobbyCode, snap.Code)

	hostUpdate := readUntil(t, ctx, host, protocol.EventLobbyUpdate)
	var hostSnap protocol.LobbySnapshot
	require.NoError(t, json.Unmarshal(hostUpdate.Payload, &hostSnap))
	assert.Len(t, hostSnap.Players, 2)
}

func TestSessionResumeKeepsIdentity(t *testing.T) {
	srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "")
	initMsg := readUntil(t, ctx, conn, protocol.EventInit)
	var first protocol.InitPayload
	require.NoError(t, json.Unmarshal(initMsg.Payload, &first))

	conn.Close(websocket.StatusNormalClosure, "")

	// Reconnect inside the grace window with the continuity token.
	conn2 := dial(t, ctx, srv, "?session="+first.SessionToken)
	defer conn2.Close(websocket.StatusNormalClosure, "")
	initMsg2 := readUntil(t, ctx, conn2, protocol.EventInit)
	var second protocol.InitPayload
	require.NoError(t, json.Unmarshal(initMsg2.Payload, &second))

	assert.Equal(t, first.ID, second.ID, "token reclaims the same player identity")
	assert.Equal(t, first.SessionToken, second.SessionToken)
}

func TestBadTokenMintsFreshSession(t *testing.T) {
	srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "?session=garbage")
	defer conn.Close(websocket.StatusNormalClosure, "")

	initMsg := readUntil(t, ctx, conn, protocol.EventInit)
	var initPayload protocol.InitPayload
	require.NoError(t, json.Unmarshal(initMsg.Payload, &initPayload))
	assert.Len(t, initPayload.ID, 8)
}

func TestSubmitAnswerOutsideGameGetsNoReply(t *testing.T) {
	srv := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "")
	defer conn.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, conn, protocol.EventLobbyList)

	send(t, ctx, conn, protocol.EventSubmitAnswer, protocol.SubmitAnswerPayload{Answer: "Germany"})

	// The only way to observe "nothing happened" is that a follow-up
	// request round-trips first.
	send(t, ctx, conn, protocol.EventCreateLobby, protocol.CreateLobbyPayload{Username: "Alice", Type: "private"})
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg wireMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		require.NotEqual(t, protocol.EventAnswerResult, msg.Event)
		if msg.Event == protocol.EventLobbyCreated {
			break
		}
	}
}
