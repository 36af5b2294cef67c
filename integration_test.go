package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server over a fresh engine and
// returns the server, its WebSocket URL, and the engine.
func startTestServer(t *testing.T, cfg *Config, adminPassword string) (*httptest.Server, string, *Engine) {
	t.Helper()

	log := zap.NewNop().Sugar()
	engine := NewEngine(cfg, clockwork.NewRealClock(), log, nil)
	hub := NewHub(engine, cfg.MaxConnsPerIP, cfg.MaxTotalConns)
	go hub.Run()

	var admin *AdminAuth
	if adminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		admin = NewAdminAuth(string(hash), nil, log)
	} else {
		admin = NewAdminAuth("", nil, log)
	}

	srv := httptest.NewServer(SetupRoutes(hub, cfg, admin, log))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, engine
}

// dialWS opens a WebSocket connection to the test server
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one JSON message from the WebSocket
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// sendMsg sends a typed message over the WebSocket
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(Envelope{T: msgType, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// join performs the join handshake and returns the assigned color and
// the gameState snapshot.
func join(t *testing.T, conn *websocket.Conn, name string) (string, map[string]interface{}) {
	t.Helper()
	sendMsg(t, conn, MsgPlayerJoin, JoinMsg{Name: name})

	colorEnv := readEnvelope(t, conn)
	if colorEnv.T != MsgColorAssigned {
		t.Fatalf("expected %s, got %s", MsgColorAssigned, colorEnv.T)
	}
	color := dataMap(t, colorEnv)["color"].(string)

	stateEnv := readEnvelope(t, conn)
	if stateEnv.T != MsgGameState {
		t.Fatalf("expected %s, got %s", MsgGameState, stateEnv.T)
	}
	return color, dataMap(t, stateEnv)
}

// ---------- tests ----------

func TestLoungeScenarioOverWebSockets(t *testing.T) {
	_, wsURL, engine := startTestServer(t, DefaultConfig(), "")

	// A joins as Nova
	connA := dialWS(t, wsURL)
	colorA, stateA := join(t, connA, "Nova")
	if colorA != "01" {
		t.Fatalf("A expected color 01, got %s", colorA)
	}
	if players := stateA["players"].([]interface{}); len(players) != 0 {
		t.Fatalf("A should see an empty lounge, got %v", players)
	}
	if stateA["doorState"].(map[string]interface{})["isOpen"].(bool) {
		t.Fatal("door should start closed")
	}

	// B joins as Rey and sees A
	connB := dialWS(t, wsURL)
	colorB, stateB := join(t, connB, "Rey")
	if colorB != "02" {
		t.Fatalf("B expected color 02, got %s", colorB)
	}
	playersB := stateB["players"].([]interface{})
	if len(playersB) != 1 {
		t.Fatalf("B should see exactly A, got %d players", len(playersB))
	}
	recordA := playersB[0].(map[string]interface{})
	idA := recordA["id"].(string)
	if recordA["name"] != "Nova" || recordA["color"] != "01" {
		t.Fatalf("unexpected record for A: %v", recordA)
	}

	// A is told about B joining at the spawn point
	joinedEnv := readEnvelope(t, connA)
	if joinedEnv.T != MsgPlayerJoined {
		t.Fatalf("A expected %s, got %s", MsgPlayerJoined, joinedEnv.T)
	}
	recordB := dataMap(t, joinedEnv)
	idB := recordB["id"].(string)
	pos := recordB["position"].(map[string]interface{})
	if pos["x"].(float64) != 400 || pos["y"].(float64) != 680 {
		t.Fatalf("B should spawn at (400, 680), got %v", pos)
	}

	// A moves; B observes, A hears nothing about it
	sendMsg(t, connA, MsgPlayerMove, MoveMsg{X: 410, Y: 680})
	movedEnv := readEnvelope(t, connB)
	if movedEnv.T != MsgPlayerMoved {
		t.Fatalf("B expected %s, got %s", MsgPlayerMoved, movedEnv.T)
	}
	moved := dataMap(t, movedEnv)
	if moved["id"] != idA || moved["position"].(map[string]interface{})["x"].(float64) != 410 {
		t.Fatalf("unexpected move payload: %v", moved)
	}

	// A toggles the door; both sides (sender included) hear it
	sendMsg(t, connA, MsgToggleDoor, nil)
	doorA := readEnvelope(t, connA)
	doorB := readEnvelope(t, connB)
	if doorA.T != MsgDoorStateChanged || doorB.T != MsgDoorStateChanged {
		t.Fatalf("expected doorStateChanged on both, got %s / %s", doorA.T, doorB.T)
	}
	if !dataMap(t, doorA)["isOpen"].(bool) {
		t.Fatal("door should be open after one toggle")
	}

	// B flags a machine transparent; A hears it, B does not hear its own
	sendMsg(t, connB, MsgArcadeTransparency, map[string]interface{}{
		"machineId": "cabinet-7", "isTransparent": true, "forPlayer": idB,
	})
	transEnv := readEnvelope(t, connA)
	if transEnv.T != MsgTransparencyChanged {
		t.Fatalf("A expected %s, got %s", MsgTransparencyChanged, transEnv.T)
	}
	if dataMap(t, transEnv)["machineId"] != "cabinet-7" {
		t.Fatalf("unexpected transparency payload: %v", transEnv.Data)
	}

	// B toggles the door; B's next message is the door change, proving B
	// was excluded from its own transparency broadcast
	sendMsg(t, connB, MsgToggleDoor, nil)
	nextB := readEnvelope(t, connB)
	if nextB.T != MsgDoorStateChanged {
		t.Fatalf("B expected %s next, got %s", MsgDoorStateChanged, nextB.T)
	}
	_ = readEnvelope(t, connA) // A's copy of the door change

	// A disconnects; B is told to drop A, and color 01 frees up
	connA.Close()
	leftEnv := readEnvelope(t, connB)
	if leftEnv.T != MsgPlayerLeft {
		t.Fatalf("B expected %s, got %s", MsgPlayerLeft, leftEnv.T)
	}
	if dataMap(t, leftEnv)["id"] != idA {
		t.Fatalf("unexpected playerLeft payload: %v", leftEnv.Data)
	}

	connC := dialWS(t, wsURL)
	colorC, _ := join(t, connC, "Kai")
	if colorC != "01" {
		t.Fatalf("next joiner should get the released 01, got %s", colorC)
	}

	if n := engine.PlayerCount(); n != 2 {
		t.Fatalf("expected 2 players after A left, got %d", n)
	}
}

func TestPendingConnectionIsInvisible(t *testing.T) {
	_, wsURL, engine := startTestServer(t, DefaultConfig(), "")

	// Connect but never join; send non-join traffic
	connA := dialWS(t, wsURL)
	sendMsg(t, connA, MsgPlayerMove, MoveMsg{X: 1, Y: 1})
	sendMsg(t, connA, MsgToggleDoor, nil)

	connB := dialWS(t, wsURL)
	_, stateB := join(t, connB, "Rey")
	if players := stateB["players"].([]interface{}); len(players) != 0 {
		t.Fatalf("pending connection must not appear in snapshots, got %v", players)
	}
	if stateB["doorState"].(map[string]interface{})["isOpen"].(bool) {
		t.Fatal("pending connection must not toggle the door")
	}

	// Pending disconnect produces no playerLeft
	connA.Close()
	sendMsg(t, connB, MsgToggleDoor, nil)
	if env := readEnvelope(t, connB); env.T != MsgDoorStateChanged {
		t.Fatalf("expected doorStateChanged, got %s (pending disconnect must not broadcast)", env.T)
	}
	if n := engine.PlayerCount(); n != 1 {
		t.Fatalf("expected 1 player, got %d", n)
	}
}

func TestMalformedMessagesTolerated(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultConfig(), "")

	conn := dialWS(t, wsURL)
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"unknownEvent","d":{}}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"playerMove","d":"bogus"}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"playerJoin"}`)) // no payload at all

	// The connection survives and the join (with defaulted fields) lands
	env := readEnvelope(t, conn)
	if env.T != MsgColorAssigned {
		t.Fatalf("expected %s after garbage, got %s", MsgColorAssigned, env.T)
	}
}

func TestStatusAndStateEndpoints(t *testing.T) {
	srv, wsURL, _ := startTestServer(t, DefaultConfig(), "")

	conn := dialWS(t, wsURL)
	join(t, conn, "Nova")
	sendMsg(t, conn, MsgToggleDoor, nil)
	readEnvelope(t, conn) // doorStateChanged
	sendMsg(t, conn, MsgArcadeTransparency, map[string]interface{}{
		"machineId": "m1", "isTransparent": true, "forPlayer": nil,
	})
	sendMsg(t, conn, MsgToggleDoor, nil) // fence: transparency handled once this returns
	readEnvelope(t, conn)

	// Status query
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	var status StatusMsg
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if status.Status != "ok" || status.PlayerCount != 1 {
		t.Errorf("unexpected status: %+v", status)
	}

	// Full state query, JSON
	resp, err = http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	var snap StateSnapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if len(snap.Players) != 1 || snap.Players[0].Name != "Nova" {
		t.Errorf("unexpected players: %+v", snap.Players)
	}
	if snap.DoorState.IsOpen {
		t.Error("door should be closed after two toggles")
	}
	if len(snap.ArcadeMachines) != 1 || snap.ArcadeMachines[0].ID != "m1" {
		t.Errorf("unexpected machines: %+v", snap.ArcadeMachines)
	}

	// Full state query, msgpack
	resp, err = http.Get(srv.URL + "/state?format=msgpack")
	if err != nil {
		t.Fatalf("get state msgpack: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-msgpack" {
		t.Errorf("unexpected content type %s", ct)
	}
	var binSnap StateSnapshot
	if err := msgpack.Unmarshal(raw, &binSnap); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	if len(binSnap.Players) != 1 {
		t.Errorf("msgpack snapshot mismatch: %+v", binSnap)
	}

	// Health check
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status %d", resp.StatusCode)
	}
}

func TestQREndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t, DefaultConfig(), "")

	resp, err := http.Get(srv.URL + "/qr")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("qr status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %s", ct)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Error("response is not a PNG")
	}
}

func TestConnectionLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnsPerIP = 2
	_, wsURL, _ := startTestServer(t, cfg, "")

	dialWS(t, wsURL)
	dialWS(t, wsURL)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("third connection from one IP should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %+v", resp)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv, _, engine := startTestServer(t, DefaultConfig(), "hunter2")

	// Unauthorized access is refused
	resp, err := http.Get(srv.URL + "/admin/config")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// Wrong password is refused
	resp, err = http.Post(srv.URL+"/admin/login", "application/json",
		strings.NewReader(`{"password":"wrong"}`))
	if err != nil {
		t.Fatalf("post login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// Login and read config
	resp, err = http.Post(srv.URL+"/admin/login", "application/json",
		strings.NewReader(`{"password":"hunter2"}`))
	if err != nil {
		t.Fatalf("post login: %v", err)
	}
	var loginBody map[string]string
	json.NewDecoder(resp.Body).Decode(&loginBody)
	resp.Body.Close()
	token := loginBody["token"]
	if token == "" {
		t.Fatal("expected a token")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/config", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	var cfgBody map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&cfgBody)
	resp.Body.Close()
	if int(cfgBody["throttleMs"].(float64)) != 16 {
		t.Errorf("expected throttleMs 16, got %v", cfgBody["throttleMs"])
	}

	// Hot-update the throttle
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/admin/config",
		strings.NewReader(`{"throttleMs":40,"rejectWhenExhausted":true}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post config: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if engine.ThrottleInterval() != 40*time.Millisecond {
		t.Errorf("throttle not applied: %v", engine.ThrottleInterval())
	}
	if !engine.RejectWhenExhausted() {
		t.Error("exhaustion policy not applied")
	}
}

func TestAdminDisabledByDefault(t *testing.T) {
	srv, _, _ := startTestServer(t, DefaultConfig(), "")

	resp, err := http.Post(srv.URL+"/admin/login", "application/json",
		strings.NewReader(`{"password":"anything"}`))
	if err != nil {
		t.Fatalf("post login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 when admin disabled, got %d", resp.StatusCode)
	}
}
