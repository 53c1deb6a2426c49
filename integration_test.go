package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type testServer struct {
	srv  *httptest.Server
	hub  *Hub
	game *Game
}

// startTestServer spins up an httptest.Server serving one match. An empty
// secret disables handshake tickets.
func startTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	game := NewGame(GameConfig{MatchID: "match-1", Privacy: "public", Rules: DefaultMatchConfig()})
	go game.Run()

	hub := NewHub(game, NewTickets(secret))
	hubStop := make(chan struct{})
	go hub.Run(hubStop)

	srv := httptest.NewServer(SetupRoutes(hub, "http://example.test"))

	t.Cleanup(func() {
		game.Stop()
		<-game.Done()
		hub.CloseAll()
		srv.Close()
		close(hubStop)
	})
	return &testServer{srv: srv, hub: hub, game: game}
}

func (ts *testServer) wsURL(matchID, playerID, token string) string {
	q := url.Values{}
	if matchID != "" {
		q.Set("match", matchID)
	}
	if playerID != "" {
		q.Set("player", playerID)
	}
	if token != "" {
		q.Set("token", token)
	}
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?" + q.Encode()
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// dialStatus attempts a handshake that is expected to fail and returns the
// HTTP status.
func dialStatus(t *testing.T, wsURL string) int {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake to fail")
	}
	if resp == nil {
		t.Fatalf("no response: %v", err)
	}
	return resp.StatusCode
}

// readEnvelope reads one message from the WebSocket. Binary frames are
// decoded snapshots.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		v, err := DecodeSnapshot(raw)
		if err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		return Envelope{T: MsgState, Data: v}
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// readUntil skips messages until one of the given type satisfies match
func readUntil(t *testing.T, conn *websocket.Conn, msgType string, match func(Envelope) bool) Envelope {
	t.Helper()
	for i := 0; i < 50; i++ {
		env := readEnvelope(t, conn)
		if env.T == msgType && (match == nil || match(env)) {
			return env
		}
	}
	t.Fatalf("no %s message matched", msgType)
	return Envelope{}
}

// readState waits for a snapshot satisfying match
func readState(t *testing.T, conn *websocket.Conn, match func(SessionView) bool) SessionView {
	t.Helper()
	env := readUntil(t, conn, MsgState, func(env Envelope) bool {
		return match(env.Data.(SessionView))
	})
	return env.Data.(SessionView)
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// joinMatch sends join and returns the assigned slot
func joinMatch(t *testing.T, conn *websocket.Conn, name string) int {
	t.Helper()
	sendMsg(t, conn, MsgJoin, map[string]string{"match": "match-1", "name": name})
	joined := readUntil(t, conn, MsgJoined, nil)
	return int(dataMap(t, joined)["slot"].(float64))
}

// ---------- UUID generation tests ----------

func TestGenerateUUIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
	}
}

func TestGenerateUUIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

// ---------- handshake gate ----------

func TestHandshakeRequiresIDs(t *testing.T) {
	ts := startTestServer(t, "")

	if got := dialStatus(t, ts.wsURL("", "alice", "")); got != http.StatusBadRequest {
		t.Errorf("missing match: status = %d, want 400", got)
	}
	if got := dialStatus(t, ts.wsURL("match-1", "", "")); got != http.StatusBadRequest {
		t.Errorf("missing player: status = %d, want 400", got)
	}
	if got := dialStatus(t, ts.wsURL("match-1", strings.Repeat("p", maxIDLen+1), "")); got != http.StatusBadRequest {
		t.Errorf("long id: status = %d, want 400", got)
	}
	if got := dialStatus(t, ts.wsURL("other", "alice", "")); got != http.StatusNotFound {
		t.Errorf("wrong match: status = %d, want 404", got)
	}
	if n := ts.game.Status().Players; n != 0 {
		t.Errorf("refused handshakes created %d players", n)
	}
}

func TestHealthz(t *testing.T) {
	ts := startTestServer(t, "")

	resp, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "match-1", body["match"])
	assert.Equal(t, "waiting", body["phase"])
	assert.EqualValues(t, 0, body["clients"])
	assert.EqualValues(t, 0, body["conns"])
}

// ---------- full match over the wire ----------

func TestMatchOverWebSocket(t *testing.T) {
	ts := startTestServer(t, "")
	alice := dialWS(t, ts.wsURL("match-1", "alice", ""))
	bob := dialWS(t, ts.wsURL("match-1", "bob", ""))

	if slot := joinMatch(t, alice, "Alice"); slot != 0 {
		t.Fatalf("alice slot = %d, want 0", slot)
	}
	if slot := joinMatch(t, bob, "Bob"); slot != 1 {
		t.Fatalf("bob slot = %d, want 1", slot)
	}

	v := readState(t, alice, func(v SessionView) bool { return v.Phase == "active" })
	if v.Round != 0 || v.TimeBanks[1] != 600 {
		t.Errorf("unexpected start state: round %d banks %v", v.Round, v.TimeBanks)
	}
	if len(v.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(v.Players))
	}

	sendMsg(t, alice, MsgMove, map[string]int{"unit": 2, "row": 3, "col": 3})
	moved := readUntil(t, alice, MsgMoved, nil)
	if to := dataMap(t, moved)["to"].(map[string]interface{}); to["r"] != 3.0 || to["c"] != 3.0 {
		t.Errorf("unexpected moved payload %v", dataMap(t, moved))
	}
	v = readState(t, alice, func(v SessionView) bool {
		u, _ := v.Unit(0, 2)
		return u.Row == 3 && u.Col == 3
	})
	if u, _ := v.Unit(0, 2); u.CanMove {
		t.Error("unit 2 should have spent its move")
	}

	sendMsg(t, alice, MsgEndTurn, nil)
	v = readState(t, bob, func(v SessionView) bool { return v.Round == 1 })
	if v.Active != 1 {
		t.Errorf("active = %d, want 1", v.Active)
	}
	for _, u := range v.Players[1].Units {
		if !u.CanMove || !u.CanAct {
			t.Errorf("bob's unit %d should be ready", u.ID)
		}
	}
	if _, ok := v.Unit(0, 2); ok {
		t.Error("bob should not see alice's unit through the fog")
	}

	sendMsg(t, bob, MsgSurrender, nil)
	over := readUntil(t, alice, MsgGameOver, nil)
	m := dataMap(t, over)
	if m["winner"] != "alice" || m["reason"] != EndSurrender {
		t.Errorf("unexpected gameOver %v", m)
	}
}

func TestReconnectOverWebSocket(t *testing.T) {
	ts := startTestServer(t, "")
	alice := dialWS(t, ts.wsURL("match-1", "alice", ""))
	bob := dialWS(t, ts.wsURL("match-1", "bob", ""))
	joinMatch(t, alice, "Alice")
	joinMatch(t, bob, "Bob")

	alice.Close()
	again := dialWS(t, ts.wsURL("match-1", "alice", ""))
	sendMsg(t, again, MsgJoin, map[string]string{})
	joined := readUntil(t, again, MsgJoined, nil)
	m := dataMap(t, joined)
	if m["slot"] != 0.0 || m["reconnect"] != true {
		t.Errorf("unexpected reconnect payload %v", m)
	}

	v := readState(t, again, func(v SessionView) bool { return v.You == 0 })
	if len(v.Players) != 2 || len(v.Players[0].Units) != 8 {
		t.Errorf("reconnect changed the roster: %+v", v.Players)
	}
	if v.Phase != "active" {
		t.Errorf("phase = %s, want active", v.Phase)
	}
}

// ---------- matchmaking and tickets ----------

func postSession(t *testing.T, ts *testServer, key string, players ...string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(CreateSessionRequest{Match: "match-1", Players: players})
	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/session", bytes.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTicketsEnforced(t *testing.T) {
	ts := startTestServer(t, "s3cret")

	resp := postSession(t, ts, "", "alice", "bob")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created CreateSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.Tickets, 2)
	assert.Equal(t, "match-1", created.Match)

	assert.Equal(t, http.StatusUnauthorized, dialStatus(t, ts.wsURL("match-1", "alice", "")))
	assert.Equal(t, http.StatusUnauthorized, dialStatus(t, ts.wsURL("match-1", "carol", created.Tickets["alice"])))

	alice := dialWS(t, ts.wsURL("match-1", "alice", created.Tickets["alice"]))
	assert.Equal(t, 0, joinMatch(t, alice, "Alice"))
}

func TestCreateSessionValidation(t *testing.T) {
	ts := startTestServer(t, "")
	ts.hub.matchmakerKey = "key"

	assert.Equal(t, http.StatusBadRequest, postSession(t, ts, "key", "alice").StatusCode)
	assert.Equal(t, http.StatusBadRequest, postSession(t, ts, "key", "alice", "alice").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postSession(t, ts, "", "alice", "bob").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postSession(t, ts, "wrong", "alice", "bob").StatusCode)
	assert.Equal(t, http.StatusOK, postSession(t, ts, "key", "alice", "bob").StatusCode)
	// the roster is bound now
	assert.Equal(t, http.StatusOK, postSession(t, ts, "key", "alice", "bob").StatusCode)
}

func TestCreateSessionConflict(t *testing.T) {
	ts := startTestServer(t, "")
	carol := dialWS(t, ts.wsURL("match-1", "carol", ""))
	joinMatch(t, carol, "Carol")

	assert.Equal(t, http.StatusConflict, postSession(t, ts, "", "alice", "bob").StatusCode)
}

// ---------- invites ----------

func TestInviteQR(t *testing.T) {
	ts := startTestServer(t, "")

	resp, err := http.Get(ts.srv.URL + "/invite/alice")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	buf := make([]byte, 8)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), buf)
}

func TestInviteRequiresTicket(t *testing.T) {
	ts := startTestServer(t, "s3cret")

	resp, err := http.Get(ts.srv.URL + "/invite/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := ts.hub.tickets.Issue("match-1", "alice")
	require.NoError(t, err)
	resp, err = http.Get(ts.srv.URL + "/invite/alice?token=" + url.QueryEscape(tok))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJoinURL(t *testing.T) {
	got := JoinURL("https://play.example.com/", "m1", "alice", "tok")
	assert.Equal(t, "wss://play.example.com/ws?match=m1&player=alice&token=tok", got)
	got = JoinURL("http://localhost:8080", "m1", "bob", "")
	assert.Equal(t, "ws://localhost:8080/ws?match=m1&player=bob", got)
}
