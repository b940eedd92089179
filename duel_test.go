package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func duelServer(t *testing.T) string {
	t.Helper()

	wordSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["crane"]`))
	}))
	t.Cleanup(wordSrv.Close)

	cfg := &Config{
		wordAPI:     wordSrv.URL,
		wordTimeout: 5 * time.Second,
	}

	mux := httprouter.New()
	registerDuelGame(cfg, "/duel", mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/duel/ws"
}

func dialDuel(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, kind string, data any) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(Envelope{Type: kind, Data: data}))
}

// readEnvelope returns the next envelope of the wanted kind, failing on
// anything unexpected.
func readEnvelope(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var env wireEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, want, env.Type)
	return env.Data
}

func createOverWire(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()

	sendEnvelope(t, conn, msgCreate, map[string]string{"player_name": name})

	var data struct {
		PlayerID string `json:"player_id"`
	}
	require.NoError(t, json.Unmarshal(readEnvelope(t, conn, msgCreation), &data))
	require.NotEmpty(t, data.PlayerID)
	return data.PlayerID
}

func TestDuelOverWebsocket(t *testing.T) {
	url := duelServer(t)

	connA := dialDuel(t, url)
	connB := dialDuel(t, url)

	pidA := createOverWire(t, connA, "alice")
	pidB := createOverWire(t, connB, "bob")

	sendEnvelope(t, connA, msgJoin, map[string]string{"player_id": pidA})
	var queued struct {
		Queued bool `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(readEnvelope(t, connA, msgNotEnoughPlayers), &queued))
	assert.True(t, queued.Queued)

	sendEnvelope(t, connB, msgJoin, map[string]string{"player_id": pidB})

	var snap Snapshot
	require.NoError(t, json.Unmarshal(readEnvelope(t, connA, msgGameState), &snap))
	assert.Equal(t, []string{pidA, pidB}, snap.PlayerIDs)
	assert.False(t, snap.GameOver)
	roomID := snap.RoomID

	require.NoError(t, json.Unmarshal(readEnvelope(t, connB, msgGameState), &snap))
	assert.Equal(t, roomID, snap.RoomID)

	// Alice types her own secret word and submits it.
	for _, letter := range []string{"c", "r", "a", "n", "e"} {
		sendEnvelope(t, connA, msgLetter, map[string]string{
			"player_id": pidA,
			"room_id":   roomID,
			"letter":    letter,
		})
		readEnvelope(t, connA, msgGameState)
		readEnvelope(t, connB, msgGameState)
	}

	sendEnvelope(t, connA, msgGuess, map[string]string{
		"player_id": pidA,
		"room_id":   roomID,
	})

	require.NoError(t, json.Unmarshal(readEnvelope(t, connA, msgGameState), &snap))
	assert.True(t, snap.GameOver)
	assert.Equal(t, pidA, snap.Winner)
	assert.Equal(t, []string{"crane"}, snap.PastGuesses[pidA])

	require.NoError(t, json.Unmarshal(readEnvelope(t, connB, msgGameState), &snap))
	assert.True(t, snap.GameOver)

	// Both connections close once the match ends, not just the winner's.
	for _, conn := range []*websocket.Conn{connA, connB} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	}
}

func TestDuelRejectsGarbageFrames(t *testing.T) {
	url := duelServer(t)

	conn := dialDuel(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("definitely not json")))

	var data struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(readEnvelope(t, conn, msgErrorUnknown), &data))
	assert.NotEmpty(t, data.Error)

	// The connection survives a bad frame.
	pid := createOverWire(t, conn, "alice")
	assert.NotEmpty(t, pid)
}
