package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zakirhyder/huddle/internal/monitor"
	"github.com/zakirhyder/huddle/internal/store"
)

const (
	// metaFetchTimeout bounds the room-metadata lookup, the only
	// suspending operation on the join path.
	metaFetchTimeout = 5 * time.Second

	// closeLinger gives the write pump a moment to flush a kick or
	// room-ended notice before the connection is torn down.
	closeLinger = 100 * time.Millisecond
)

// Hub is the coordinator's event loop. It owns all room state through the
// registry and serializes every mutation: registration, joins, signaling,
// whiteboard, moderation and disconnects all run to completion on the single
// Run goroutine before the next event is processed. Metadata lookups are the
// one exception; they run on their own goroutine and re-enter the loop
// through the joins channel.
type Hub struct {
	// Register is written by the websocket handler for each new connection.
	Register chan *Client

	// Unregister is written by a connection's read pump on teardown.
	Unregister chan *Client

	// Inbound receives every parsed client envelope.
	Inbound chan *Envelope

	registry *Registry
	store    store.Store
	conns    map[string]*Client
	joins    chan *joinResolution
	now      func() time.Time
}

type joinResolution struct {
	client *Client
	req    JoinRequest
	meta   store.RoomMeta
	err    error
}

// NewHub creates a hub backed by the given record store.
func NewHub(st store.Store) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Envelope),
		registry:   NewRegistry(),
		store:      st,
		conns:      make(map[string]*Client),
		joins:      make(chan *joinResolution, 16),
		now:        time.Now,
	}
}

// Run starts the hub's processing loop. This is the single goroutine that
// safely manages all room state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.conns[client.ID] = client
			slog.Debug("client registered", "conn", client.ID)

		case client := <-h.Unregister:
			h.handleDisconnect(client)

		case res := <-h.joins:
			// Drop the resolution if the connection went away or was
			// replaced while the lookup was in flight.
			if h.conns[res.client.ID] == res.client {
				h.finishJoin(res.client, res.req, res.meta, res.err)
			}

		case env := <-h.Inbound:
			h.dispatch(env)
		}
	}
}

// dispatch routes one client envelope. A panicking handler must not take the
// coordinator down; the operation is acked as failed instead.
func (h *Hub) dispatch(env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "type", env.Type, "panic", r)
			if ackType := ackTypeFor(env.Type); ackType != "" {
				h.sendTo(env.sender, NewEnvelope(ackType, Ack{OK: false, Error: "INTERNAL"}))
			}
		}
	}()

	switch env.Type {
	case TypeJoinRoom:
		h.handleJoin(env)
	case TypeSignal:
		h.handleSignal(env)
	case TypeChatMessage:
		h.handleChat(env)
	case TypeRoomEnd:
		h.handleRoomEnd(env)
	case TypeModeration:
		h.handleModeration(env)
	case TypeWhiteboardSync:
		h.handleWhiteboardSync(env)
	case TypeWhiteboardToggle:
		h.handleWhiteboardToggle(env)
	case TypeWhiteboardStroke:
		h.handleWhiteboardStroke(env)
	case TypeWhiteboardClear:
		h.handleWhiteboardClear(env)
	case TypeReactionSend:
		h.handleReaction(env)
	default:
		slog.Warn("unknown message type", "type", env.Type, "conn", env.sender.ID)
	}
}

func ackTypeFor(msgType string) string {
	switch msgType {
	case TypeJoinRoom:
		return TypeJoinAck
	case TypeChatMessage:
		return TypeChatAck
	case TypeRoomEnd:
		return TypeRoomEndAck
	case TypeModeration:
		return TypeModerationAck
	case TypeWhiteboardSync, TypeWhiteboardToggle:
		return TypeWhiteboardState
	case TypeWhiteboardStroke, TypeWhiteboardClear:
		return TypeWhiteboardAck
	case TypeReactionSend:
		return TypeReactionAck
	}
	return ""
}

// --- join handshake ---

func (h *Hub) handleJoin(env *Envelope) {
	c := env.sender

	var req JoinRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.RoomID == "" || req.UserID == "" {
		h.sendTo(c, NewEnvelope(TypeJoinAck, JoinAck{OK: false, Error: CodeBadRequest}))
		return
	}
	if c.RoomID != "" && c.RoomID != req.RoomID {
		h.sendTo(c, NewEnvelope(TypeJoinAck, JoinAck{OK: false, Error: CodeBadRequest}))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = GenerateDisplayName()
	}

	// Metadata is fetched once per room lifetime and cached on the live
	// session; only a cold room pays the lookup.
	if room := h.registry.Room(req.RoomID); room != nil {
		h.finishJoin(c, req, room.meta, nil)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metaFetchTimeout)
		defer cancel()
		meta, err := h.store.FetchRoomByID(ctx, req.RoomID)
		h.joins <- &joinResolution{client: c, req: req, meta: meta, err: err}
	}()
}

func (h *Hub) finishJoin(c *Client, req JoinRequest, meta store.RoomMeta, err error) {
	if err != nil {
		slog.Warn("room lookup failed", "room", req.RoomID, "error", err)
		h.sendTo(c, NewEnvelope(TypeJoinAck, JoinAck{OK: false, Error: CodeRoomNotFound}))
		return
	}

	out := h.registry.Join(meta, req, c.ID, h.now())
	if out.Code != "" {
		slog.Info("join rejected", "room", req.RoomID, "user", req.UserID, "code", out.Code)
		h.sendTo(c, NewEnvelope(TypeJoinAck, JoinAck{OK: false, Error: out.Code}))
		return
	}

	c.RoomID = out.Room.RoomID
	c.UserID = req.UserID

	h.sendTo(c, NewEnvelope(TypeJoinAck, JoinAck{OK: true, HeartbeatGraceMs: HeartbeatGraceMs}))

	h.broadcastRoom(out.Room, NewEnvelope(TypeUserJoined, PresenceNotice{
		UserID:      req.UserID,
		DisplayName: out.Participant.DisplayName,
		Reconnect:   out.Rejoined,
	}), c.ID)
	h.broadcastRoom(out.Room, NewEnvelope(TypeRosterUpdate, out.Room.Roster()), "")

	slog.Info("user joined", "room", req.RoomID, "user", req.UserID, "reconnect", out.Rejoined)
	h.logEvent(out.Room.RoomID, req.UserID, "join", fmt.Sprintf("reconnect=%t", out.Rejoined))
}

func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	delete(h.conns, c.ID)

	if c.RoomID != "" {
		if room := h.registry.Room(c.RoomID); room != nil {
			// Skip cleanup if this connection was already superseded
			// by a reconnect.
			if p := room.Participants[c.UserID]; p != nil && p.ConnectionID == c.ID {
				h.removeFromRoster(room, c.UserID)
			}
		}
	}

	close(c.Send)
	slog.Debug("client unregistered", "conn", c.ID)
}

// removeFromRoster removes a participant on disconnect, broadcasting the
// departure unless the room emptied and was evicted.
func (h *Hub) removeFromRoster(room *RoomSession, userID string) {
	out := h.registry.Leave(room.RoomID, userID)
	if out == nil {
		return
	}

	h.logEvent(room.RoomID, userID, "leave", "")
	if out.Evicted {
		slog.Info("room evicted", "room", room.RoomID)
		return
	}

	h.broadcastRoom(room, NewEnvelope(TypeUserLeft, PresenceNotice{
		UserID:      userID,
		DisplayName: out.Participant.DisplayName,
	}), "")
	h.broadcastRoom(room, NewEnvelope(TypeRosterUpdate, room.Roster()), "")
}

// --- signaling relay ---

func (h *Hub) handleSignal(env *Envelope) {
	c := env.sender
	if c.RoomID == "" {
		slog.Debug("signal before join dropped", "conn", c.ID)
		return
	}
	room := h.registry.Room(c.RoomID)
	if room == nil {
		return
	}

	var sig SignalPayload
	if err := json.Unmarshal(env.Payload, &sig); err != nil {
		slog.Warn("malformed signal dropped", "conn", c.ID, "error", err)
		return
	}

	switch sig.Type {
	case SignalHeartbeat:
		// Intercepted: stamped and echoed, never relayed.
		h.handleHeartbeat(c, sig)
		return
	case SignalShareStarted:
		h.recordShare(c, sig, true)
	case SignalShareStopped:
		h.recordShare(c, sig, false)
	}

	// Tag the sender; the payload itself is never transformed.
	sig.From = c.ID
	sig.FromUserID = c.UserID
	relayed := NewEnvelope(TypeSignal, sig)

	if sig.To != "" {
		target := h.conns[sig.To]
		if target == nil || target.RoomID != c.RoomID {
			slog.Debug("signal target gone", "to", sig.To, "room", c.RoomID)
			return
		}
		h.sendTo(target, relayed)
		return
	}
	h.broadcastRoom(room, relayed, c.ID)
}

func (h *Hub) handleHeartbeat(c *Client, sig SignalPayload) {
	var ping HeartbeatPing
	if err := json.Unmarshal(sig.Payload, &ping); err != nil {
		return
	}

	serverTime := h.now().UnixMilli()
	latency := serverTime - ping.ClientTime
	if latency < 0 {
		latency = 0
	}
	quality := monitor.Classify(time.Duration(latency) * time.Millisecond)

	echo, _ := json.Marshal(HeartbeatEcho{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		LatencyMs:  latency,
		Quality:    string(quality),
	})
	h.sendTo(c, NewEnvelope(TypeSignal, SignalPayload{Type: SignalHeartbeat, Payload: echo}))

	h.logEvent(c.RoomID, c.UserID, "heartbeat", fmt.Sprintf("latency_ms=%d quality=%s", latency, quality))
}

func (h *Hub) recordShare(c *Client, sig SignalPayload, started bool) {
	var share SharePayload
	if err := json.Unmarshal(sig.Payload, &share); err != nil || share.SessionID == "" {
		slog.Warn("malformed share payload", "conn", c.ID)
		return
	}

	roomID, userID := c.RoomID, c.UserID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metaFetchTimeout)
		defer cancel()
		var err error
		if started {
			err = h.store.StartScreenShareRecord(ctx, store.ShareRecord{
				ID:           share.SessionID,
				RoomID:       roomID,
				UserID:       userID,
				RTCSessionID: share.RTCSessionID,
				Source:       share.Source,
				StartedAt:    time.Now(),
			})
		} else {
			err = h.store.StopScreenShareRecord(ctx, share.SessionID)
		}
		if err != nil {
			slog.Error("share bookkeeping failed", "session", share.SessionID, "started", started, "error", err)
		}
	}()
}

// --- chat, reactions, room end ---

func (h *Hub) handleChat(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeChatAck, ChatAck{OK: false, Error: CodeNotInRoom}))
		return
	}

	var msg ChatMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil || msg.Content == "" {
		h.sendTo(c, NewEnvelope(TypeChatAck, ChatAck{OK: false, Error: CodeBadRequest}))
		return
	}

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	msg.RoomID = room.RoomID
	msg.SenderID = c.UserID
	msg.CreatedAt = h.now()

	// Persistence is best effort; the relay is the source of truth for
	// delivery and a failed append only loses history.
	rec := store.ChatRecord{ID: msg.ID, RoomID: msg.RoomID, SenderID: msg.SenderID, Content: msg.Content, CreatedAt: msg.CreatedAt}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metaFetchTimeout)
		defer cancel()
		if err := h.store.AppendChatMessage(ctx, rec); err != nil {
			slog.Error("chat append failed", "id", rec.ID, "error", err)
		}
	}()

	h.broadcastRoom(room, NewEnvelope(TypeChatMessage, msg), c.ID)
	h.sendTo(c, NewEnvelope(TypeChatAck, ChatAck{OK: true, ID: msg.ID}))
}

func (h *Hub) handleReaction(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeReactionAck, Ack{OK: false, Error: CodeNotInRoom}))
		return
	}

	var req ReactionSend
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.Emoji == "" {
		h.sendTo(c, NewEnvelope(TypeReactionAck, Ack{OK: false, Error: CodeBadRequest}))
		return
	}

	h.broadcastRoom(room, NewEnvelope(TypeReactionBurst, ReactionBurst{
		UserID: c.UserID,
		Emoji:  req.Emoji,
		At:     h.now(),
	}), "")
	h.sendTo(c, NewEnvelope(TypeReactionAck, Ack{OK: true}))
}

func (h *Hub) handleRoomEnd(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeRoomEndAck, Ack{OK: false, Error: CodeNotInRoom}))
		return
	}
	if c.UserID != room.HostID {
		h.sendTo(c, NewEnvelope(TypeRoomEndAck, Ack{OK: false, Error: CodeNotHost}))
		return
	}

	var req RoomEndRequest
	if len(env.Payload) > 0 {
		json.Unmarshal(env.Payload, &req)
	}

	roomID, actorID := room.RoomID, c.UserID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metaFetchTimeout)
		defer cancel()
		if err := h.store.EndRoom(ctx, roomID, actorID); err != nil {
			slog.Error("end room failed", "room", roomID, "error", err)
		}
	}()

	h.sendTo(c, NewEnvelope(TypeRoomEndAck, Ack{OK: true}))
	h.broadcastRoom(room, NewEnvelope(TypeRoomEnded, RoomEnded{
		RoomID:  roomID,
		EndedBy: actorID,
		EndedAt: h.now(),
		Reason:  req.Reason,
	}), "")

	for _, p := range room.Participants {
		if client := h.conns[p.ConnectionID]; client != nil {
			h.closeClient(client)
		}
	}
	h.registry.Evict(roomID)
	h.logEvent(roomID, actorID, "room_end", req.Reason)
	slog.Info("room ended", "room", roomID, "by", actorID)
}

// --- moderation ---

func (h *Hub) handleModeration(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeModerationAck, Ack{OK: false, Error: CodeNotInRoom}))
		return
	}

	var req ModerationRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.sendTo(c, NewEnvelope(TypeModerationAck, Ack{OK: false, Error: CodeBadRequest}))
		return
	}

	out := h.registry.Moderate(room, c.UserID, req)
	if out.Code != "" {
		h.sendTo(c, NewEnvelope(TypeModerationAck, Ack{OK: false, Error: out.Code}))
		return
	}

	notice := ModerationNotice{Type: req.Type, TargetUserID: req.TargetUserID, By: c.UserID, Reason: req.Reason}
	target := h.conns[out.Target.ConnectionID]

	switch req.Type {
	case ModerationMute:
		if target != nil {
			h.sendTo(target, NewEnvelope(TypeForceMute, notice))
		}

	case ModerationBlock:
		if target != nil {
			h.sendTo(target, NewEnvelope(TypeKick, notice))
		}
		h.broadcastRoom(room, NewEnvelope(TypeUserLeft, PresenceNotice{
			UserID:      req.TargetUserID,
			DisplayName: out.Target.DisplayName,
		}), "")
		h.broadcastRoom(room, NewEnvelope(TypeRosterUpdate, room.Roster()), "")
		if target != nil {
			h.closeClient(target)
		}

	case ModerationPresenter:
		h.broadcastRoom(room, NewEnvelope(TypeRosterUpdate, room.Roster()), "")
	}

	h.sendTo(c, NewEnvelope(TypeModerationAck, Ack{OK: true}))
	h.logEvent(room.RoomID, c.UserID, "moderation", fmt.Sprintf("type=%s target=%s", req.Type, req.TargetUserID))
}

// --- whiteboard ---

func (h *Hub) handleWhiteboardSync(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeWhiteboardState, WhiteboardStateAck{OK: false, Error: CodeNotInRoom}))
		return
	}
	h.sendTo(c, NewEnvelope(TypeWhiteboardState, WhiteboardStateAck{OK: true, State: room.Whiteboard.Snapshot()}))
}

func (h *Hub) handleWhiteboardToggle(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeWhiteboardState, WhiteboardStateAck{OK: false, Error: CodeNotInRoom}))
		return
	}

	var req WhiteboardToggle
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.sendTo(c, NewEnvelope(TypeWhiteboardState, WhiteboardStateAck{OK: false, Error: CodeBadRequest}))
		return
	}

	snap, code := room.ToggleWhiteboard(c.UserID, req.Active, h.now())
	if code != "" {
		h.sendTo(c, NewEnvelope(TypeWhiteboardState, WhiteboardStateAck{OK: false, Error: code}))
		return
	}

	h.sendTo(c, NewEnvelope(TypeWhiteboardState, WhiteboardStateAck{OK: true, State: snap}))
	h.broadcastRoom(room, NewEnvelope(TypeWhiteboardToggled, WhiteboardStateAck{OK: true, State: snap}), c.ID)
}

func (h *Hub) handleWhiteboardStroke(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: false, Error: CodeNotInRoom}))
		return
	}

	var req StrokeMessage
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: false, Error: CodeBadRequest}))
		return
	}

	stroke, revision, code := room.ApplyStroke(c.UserID, req.Stroke, h.now())
	if code != "" {
		h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: false, Error: code}))
		return
	}

	h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: true, Revision: revision}))
	h.broadcastRoom(room, NewEnvelope(TypeWhiteboardDrawn, StrokeMessage{Stroke: stroke, Revision: revision}), c.ID)
}

func (h *Hub) handleWhiteboardClear(env *Envelope) {
	c := env.sender
	room := h.roomOf(c)
	if room == nil {
		h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: false, Error: CodeNotInRoom}))
		return
	}

	revision, code := room.ClearWhiteboard(c.UserID, h.now())
	if code != "" {
		h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: false, Error: code}))
		return
	}

	h.sendTo(c, NewEnvelope(TypeWhiteboardAck, WhiteboardAck{OK: true, Revision: revision}))
	h.broadcastRoom(room, NewEnvelope(TypeWhiteboardCleared, RevisionNotice{Revision: revision}), c.ID)
}

// --- plumbing ---

func (h *Hub) roomOf(c *Client) *RoomSession {
	if c.RoomID == "" {
		return nil
	}
	return h.registry.Room(c.RoomID)
}

// sendTo queues an envelope without blocking the event loop; a client whose
// queue is full has a dead or hopeless connection and loses the frame.
func (h *Hub) sendTo(c *Client, env *Envelope) {
	if c == nil {
		return
	}
	select {
	case c.Send <- env:
	default:
		slog.Warn("send queue full, dropping", "conn", c.ID, "type", env.Type)
	}
}

func (h *Hub) broadcastRoom(room *RoomSession, env *Envelope, exceptConnID string) {
	for _, p := range room.Participants {
		if p.ConnectionID == exceptConnID {
			continue
		}
		h.sendTo(h.conns[p.ConnectionID], env)
	}
}

// closeClient tears down a connection after a short linger so queued notices
// can flush. Roster cleanup happens via the read pump's unregister.
func (h *Hub) closeClient(c *Client) {
	go func() {
		time.Sleep(closeLinger)
		c.Conn.Close()
	}()
}

func (h *Hub) logEvent(roomID, userID, kind, detail string) {
	ev := store.AnalyticsEvent{RoomID: roomID, UserID: userID, Kind: kind, Detail: detail, At: h.now()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metaFetchTimeout)
		defer cancel()
		if err := h.store.AppendAnalyticsLog(ctx, ev); err != nil {
			slog.Debug("analytics append failed", "kind", kind, "error", err)
		}
	}()
}
