package coordinator_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/store"
)

const readTimeout = 3 * time.Second

// testConn is one websocket participant against a live hub.
type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func startCoordinator(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	hub := coordinator.NewHub(st)
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := &coordinator.Client{
			ID:   r.URL.Query().Get("conn"),
			Hub:  hub,
			Conn: conn,
			Send: make(chan *coordinator.Envelope, 256),
		}
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func dialConn(t *testing.T, srv *httptest.Server, connID string) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?conn=" + connID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) send(msgType string, v any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(coordinator.NewEnvelope(msgType, v)); err != nil {
		c.t.Fatalf("write %s: %v", msgType, err)
	}
}

// waitFor reads envelopes until one of the wanted type arrives; everything
// else is discarded.
func (c *testConn) waitFor(msgType string, v any) {
	c.t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		c.conn.SetReadDeadline(deadline)
		var env coordinator.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type != msgType {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Payload, v); err != nil {
				c.t.Fatalf("parse %s payload: %v", msgType, err)
			}
		}
		return
	}
}

func (c *testConn) join(roomID, userID string) coordinator.JoinAck {
	c.t.Helper()
	c.send(coordinator.TypeJoinRoom, coordinator.JoinRequest{RoomID: roomID, UserID: userID})
	var ack coordinator.JoinAck
	c.waitFor(coordinator.TypeJoinAck, &ack)
	return ack
}

func (c *testConn) mustJoin(roomID, userID string) {
	c.t.Helper()
	if ack := c.join(roomID, userID); !ack.OK {
		c.t.Fatalf("join %s as %s rejected: %s", roomID, userID, ack.Error)
	}
}

func seedRoom(t *testing.T, st *store.MemoryStore, maxGuests int) string {
	t.Helper()
	roomID := coordinator.GenerateRoomID()
	err := st.CreateRoom(t.Context(), store.RoomMeta{
		RoomID: roomID, HostID: "host", MaxGuests: maxGuests, Status: store.RoomActive,
	})
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return roomID
}

func TestJoinHandshakeAndPresence(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	ack := host.join(roomID, "host")
	if !ack.OK {
		t.Fatalf("host join rejected: %s", ack.Error)
	}
	if ack.HeartbeatGraceMs != coordinator.HeartbeatGraceMs {
		t.Errorf("grace = %d, want %d", ack.HeartbeatGraceMs, coordinator.HeartbeatGraceMs)
	}

	guest := dialConn(t, srv, "conn-guest")
	guest.mustJoin(roomID, "g1")

	var notice coordinator.PresenceNotice
	host.waitFor(coordinator.TypeUserJoined, &notice)
	if notice.UserID != "g1" || notice.Reconnect {
		t.Errorf("presence notice = %+v", notice)
	}
	if notice.DisplayName == "" {
		t.Error("joined guest has no generated display name")
	}

	var roster coordinator.RosterUpdate
	host.waitFor(coordinator.TypeRosterUpdate, &roster)
	if len(roster.Participants) != 2 || roster.HostID != "host" {
		t.Errorf("roster = %+v", roster)
	}
	if roster.PresenterID != "host" {
		t.Errorf("presenter = %s, want host", roster.PresenterID)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	srv, _ := startCoordinator(t)

	c := dialConn(t, srv, "conn-1")
	ack := c.join("no-such-room", "u1")
	if ack.OK || ack.Error != coordinator.CodeRoomNotFound {
		t.Errorf("ack = %+v, want ROOM_NOT_FOUND", ack)
	}
}

func TestGuestCapOverWire(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 1)

	g1 := dialConn(t, srv, "conn-g1")
	g1.mustJoin(roomID, "g1")

	g2 := dialConn(t, srv, "conn-g2")
	if ack := g2.join(roomID, "g2"); ack.OK || ack.Error != coordinator.CodeRoomAtCapacity {
		t.Errorf("second guest ack = %+v, want ROOM_AT_CAPACITY", ack)
	}

	// Host bypasses the cap.
	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")
}

func TestSignalRelay(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")
	guest := dialConn(t, srv, "conn-guest")
	guest.mustJoin(roomID, "g1")

	// Broadcast offer from the host reaches the guest, tagged with the
	// sender, and does not bounce back to the host.
	offer := json.RawMessage(`{"sdp":"v=0 fake","type":"offer"}`)
	host.send(coordinator.TypeSignal, coordinator.SignalPayload{Type: coordinator.SignalOffer, Payload: offer})

	var sig coordinator.SignalPayload
	guest.waitFor(coordinator.TypeSignal, &sig)
	if sig.Type != coordinator.SignalOffer || sig.From != "conn-host" || sig.FromUserID != "host" {
		t.Fatalf("relayed signal = %+v", sig)
	}
	if string(sig.Payload) != string(offer) {
		t.Errorf("payload transformed in relay: %s", sig.Payload)
	}

	// Addressed answer goes only to the offerer.
	guest.send(coordinator.TypeSignal, coordinator.SignalPayload{
		Type: coordinator.SignalAnswer, To: sig.From, Payload: json.RawMessage(`{"type":"answer"}`),
	})
	host.waitFor(coordinator.TypeSignal, &sig)
	if sig.Type != coordinator.SignalAnswer || sig.FromUserID != "g1" {
		t.Errorf("answer = %+v", sig)
	}
}

func TestHeartbeatEchoedNotRelayed(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")

	ping, _ := json.Marshal(coordinator.HeartbeatPing{ClientTime: time.Now().Add(-50 * time.Millisecond).UnixMilli()})
	host.send(coordinator.TypeSignal, coordinator.SignalPayload{Type: coordinator.SignalHeartbeat, Payload: ping})

	var sig coordinator.SignalPayload
	host.waitFor(coordinator.TypeSignal, &sig)
	if sig.Type != coordinator.SignalHeartbeat {
		t.Fatalf("expected heartbeat echo, got %s", sig.Type)
	}
	var echo coordinator.HeartbeatEcho
	if err := json.Unmarshal(sig.Payload, &echo); err != nil {
		t.Fatalf("parse echo: %v", err)
	}
	if echo.LatencyMs < 0 || echo.Quality == "" {
		t.Errorf("echo = %+v", echo)
	}
}

func TestChatBroadcastAckAndPersistence(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")
	guest := dialConn(t, srv, "conn-guest")
	guest.mustJoin(roomID, "g1")

	guest.send(coordinator.TypeChatMessage, coordinator.ChatMessage{Content: "hello room"})

	var ack coordinator.ChatAck
	guest.waitFor(coordinator.TypeChatAck, &ack)
	if !ack.OK || ack.ID == "" {
		t.Fatalf("chat ack = %+v", ack)
	}

	var msg coordinator.ChatMessage
	host.waitFor(coordinator.TypeChatMessage, &msg)
	if msg.ID != ack.ID || msg.SenderID != "g1" || msg.Content != "hello room" {
		t.Errorf("broadcast chat = %+v", msg)
	}

	// Persistence is async; poll briefly.
	deadline := time.Now().Add(readTimeout)
	for {
		if recs := st.ChatMessages(); len(recs) == 1 {
			if recs[0].ID != ack.ID || recs[0].RoomID != roomID {
				t.Errorf("stored chat = %+v", recs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("chat message never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReactionBurstIncludesSender(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")

	host.send(coordinator.TypeReactionSend, coordinator.ReactionSend{Emoji: "🎉"})

	var burst coordinator.ReactionBurst
	host.waitFor(coordinator.TypeReactionBurst, &burst)
	if burst.UserID != "host" || burst.Emoji != "🎉" {
		t.Errorf("burst = %+v", burst)
	}
}

func TestBlockKicksTarget(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")
	guest := dialConn(t, srv, "conn-guest")
	guest.mustJoin(roomID, "g1")
	host.waitFor(coordinator.TypeUserJoined, nil)

	host.send(coordinator.TypeModeration, coordinator.ModerationRequest{
		Type: coordinator.ModerationBlock, TargetUserID: "g1", Reason: "afk",
	})

	var notice coordinator.ModerationNotice
	guest.waitFor(coordinator.TypeKick, &notice)
	if notice.TargetUserID != "g1" || notice.By != "host" || notice.Reason != "afk" {
		t.Errorf("kick notice = %+v", notice)
	}

	var ack coordinator.Ack
	host.waitFor(coordinator.TypeModerationAck, &ack)
	if !ack.OK {
		t.Fatalf("moderation ack = %+v", ack)
	}

	var left coordinator.PresenceNotice
	host.waitFor(coordinator.TypeUserLeft, &left)
	if left.UserID != "g1" {
		t.Errorf("user_left = %+v", left)
	}

	// The target's connection is closed shortly after the notice.
	guest.conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		var env coordinator.Envelope
		if err := guest.conn.ReadJSON(&env); err != nil {
			break
		}
	}
}

func TestRoomEndClosesEveryone(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")
	guest := dialConn(t, srv, "conn-guest")
	guest.mustJoin(roomID, "g1")

	// Guests cannot end the room.
	guest.send(coordinator.TypeRoomEnd, coordinator.RoomEndRequest{})
	var ack coordinator.Ack
	guest.waitFor(coordinator.TypeRoomEndAck, &ack)
	if ack.OK || ack.Error != coordinator.CodeNotHost {
		t.Fatalf("guest end ack = %+v", ack)
	}

	host.send(coordinator.TypeRoomEnd, coordinator.RoomEndRequest{Reason: "done"})
	host.waitFor(coordinator.TypeRoomEndAck, &ack)
	if !ack.OK {
		t.Fatalf("host end ack = %+v", ack)
	}

	var ended coordinator.RoomEnded
	guest.waitFor(coordinator.TypeRoomEnded, &ended)
	if ended.RoomID != roomID || ended.EndedBy != "host" || ended.Reason != "done" {
		t.Errorf("room ended = %+v", ended)
	}

	// The store flips the room to ended; subsequent joins are refused.
	deadline := time.Now().Add(readTimeout)
	for {
		meta, err := st.FetchRoomByID(t.Context(), roomID)
		if err == nil && meta.Status == store.RoomEnded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room never marked ended in store")
		}
		time.Sleep(10 * time.Millisecond)
	}

	late := dialConn(t, srv, "conn-late")
	if ack := late.join(roomID, "g2"); ack.OK || ack.Error != coordinator.CodeRoomEnded {
		t.Errorf("late join ack = %+v, want ROOM_ENDED", ack)
	}
}

func TestWhiteboardOverWire(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")
	guest := dialConn(t, srv, "conn-guest")
	guest.mustJoin(roomID, "g1")

	// Sync before any activity returns the empty board.
	guest.send(coordinator.TypeWhiteboardSync, struct{}{})
	var state coordinator.WhiteboardStateAck
	guest.waitFor(coordinator.TypeWhiteboardState, &state)
	if !state.OK || state.State.Active || state.State.Revision != 0 {
		t.Fatalf("initial state = %+v", state)
	}

	// Guest cannot toggle.
	guest.send(coordinator.TypeWhiteboardToggle, coordinator.WhiteboardToggle{Active: true})
	guest.waitFor(coordinator.TypeWhiteboardState, &state)
	if state.OK || state.Error != coordinator.CodeNotHost {
		t.Fatalf("guest toggle = %+v", state)
	}

	// Host activates; guest hears about it.
	host.send(coordinator.TypeWhiteboardToggle, coordinator.WhiteboardToggle{Active: true})
	host.waitFor(coordinator.TypeWhiteboardState, &state)
	if !state.OK || !state.State.Active || state.State.Revision != 1 {
		t.Fatalf("host toggle = %+v", state)
	}
	guest.waitFor(coordinator.TypeWhiteboardToggled, &state)
	if !state.State.Active {
		t.Errorf("guest toggled notice = %+v", state)
	}

	// Guest draws; host receives the stroke at revision 2.
	guest.send(coordinator.TypeWhiteboardStroke, coordinator.StrokeMessage{Stroke: coordinator.Stroke{
		Tool: coordinator.ToolPen, Size: 3,
		Points: []coordinator.Point{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.3}},
	}})
	var wbAck coordinator.WhiteboardAck
	guest.waitFor(coordinator.TypeWhiteboardAck, &wbAck)
	if !wbAck.OK || wbAck.Revision != 2 {
		t.Fatalf("stroke ack = %+v", wbAck)
	}

	var drawn coordinator.StrokeMessage
	host.waitFor(coordinator.TypeWhiteboardDrawn, &drawn)
	if drawn.Revision != 2 || len(drawn.Stroke.Points) != 2 || drawn.Stroke.ID == "" {
		t.Errorf("drawn broadcast = %+v", drawn)
	}

	// Host clears; guest sees the new revision.
	host.send(coordinator.TypeWhiteboardClear, struct{}{})
	host.waitFor(coordinator.TypeWhiteboardAck, &wbAck)
	if !wbAck.OK || wbAck.Revision != 3 {
		t.Fatalf("clear ack = %+v", wbAck)
	}
	var cleared coordinator.RevisionNotice
	guest.waitFor(coordinator.TypeWhiteboardCleared, &cleared)
	if cleared.Revision != 3 {
		t.Errorf("cleared notice revision = %d, want 3", cleared.Revision)
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	srv, st := startCoordinator(t)
	roomID := seedRoom(t, st, 3)

	host := dialConn(t, srv, "conn-host")
	host.mustJoin(roomID, "host")

	first := dialConn(t, srv, "conn-g1-a")
	first.mustJoin(roomID, "g1")
	host.waitFor(coordinator.TypeUserJoined, nil)

	// Same user on a new connection before the old one is torn down.
	second := dialConn(t, srv, "conn-g1-b")
	second.send(coordinator.TypeJoinRoom, coordinator.JoinRequest{RoomID: roomID, UserID: "g1", Reconnect: true})
	var ack coordinator.JoinAck
	second.waitFor(coordinator.TypeJoinAck, &ack)
	if !ack.OK {
		t.Fatalf("reconnect rejected: %s", ack.Error)
	}

	var notice coordinator.PresenceNotice
	host.waitFor(coordinator.TypeUserJoined, &notice)
	if !notice.Reconnect {
		t.Errorf("reconnect not flagged: %+v", notice)
	}

	// Closing the superseded connection must not remove g1 from the roster.
	first.conn.Close()
	time.Sleep(200 * time.Millisecond)

	host.send(coordinator.TypeChatMessage, coordinator.ChatMessage{Content: "still there?"})
	var msg coordinator.ChatMessage
	second.waitFor(coordinator.TypeChatMessage, &msg)
	if msg.Content != "still there?" {
		t.Errorf("chat after stale disconnect = %+v", msg)
	}
}
