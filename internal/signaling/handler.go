package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/zakirhyder/huddle/internal/coordinator"
)

// Whiteboard broadcast kinds routed through Handler.Whiteboard.
const (
	WhiteboardToggled = "toggled"
	WhiteboardDrawn   = "drawn"
	WhiteboardCleared = "cleared"
)

// WhiteboardEvent is one whiteboard broadcast from the coordinator.
type WhiteboardEvent struct {
	Kind     string
	State    *coordinator.WhiteboardSnapshot
	Stroke   *coordinator.Stroke
	Revision uint64
}

// Handler routes incoming envelopes to typed channels, one per event kind.
// Ack channels hold one slot: the protocol allows at most one in-flight
// request per operation.
type Handler struct {
	client *Client

	JoinAck         chan coordinator.JoinAck
	ChatAck         chan coordinator.ChatAck
	ModerationAck   chan coordinator.Ack
	RoomEndAck      chan coordinator.Ack
	ReactionAck     chan coordinator.Ack
	WhiteboardState chan coordinator.WhiteboardStateAck
	WhiteboardAck   chan coordinator.WhiteboardAck

	UserJoined    chan coordinator.PresenceNotice
	UserLeft      chan coordinator.PresenceNotice
	Roster        chan coordinator.RosterUpdate
	Chat          chan coordinator.ChatMessage
	Signal        chan *coordinator.SignalPayload
	HeartbeatEcho chan coordinator.HeartbeatEcho
	Whiteboard    chan WhiteboardEvent
	Reaction      chan coordinator.ReactionBurst
	ForceMute     chan coordinator.ModerationNotice
	Kicked        chan coordinator.ModerationNotice
	RoomEnded     chan coordinator.RoomEnded
}

// NewHandler creates a message handler for the given client.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client: client,

		JoinAck:         make(chan coordinator.JoinAck, 1),
		ChatAck:         make(chan coordinator.ChatAck, 1),
		ModerationAck:   make(chan coordinator.Ack, 1),
		RoomEndAck:      make(chan coordinator.Ack, 1),
		ReactionAck:     make(chan coordinator.Ack, 1),
		WhiteboardState: make(chan coordinator.WhiteboardStateAck, 1),
		WhiteboardAck:   make(chan coordinator.WhiteboardAck, 1),

		UserJoined:    make(chan coordinator.PresenceNotice, 8),
		UserLeft:      make(chan coordinator.PresenceNotice, 8),
		Roster:        make(chan coordinator.RosterUpdate, 8),
		Chat:          make(chan coordinator.ChatMessage, 32),
		Signal:        make(chan *coordinator.SignalPayload, 32),
		HeartbeatEcho: make(chan coordinator.HeartbeatEcho, 8),
		Whiteboard:    make(chan WhiteboardEvent, 32),
		Reaction:      make(chan coordinator.ReactionBurst, 32),
		ForceMute:     make(chan coordinator.ModerationNotice, 1),
		Kicked:        make(chan coordinator.ModerationNotice, 1),
		RoomEnded:     make(chan coordinator.RoomEnded, 1),
	}
}

// Start listens to incoming envelopes and routes them until the client is
// closed. Run it on its own goroutine.
func (h *Handler) Start() {
	for {
		select {
		case env := <-h.client.Incoming():
			h.route(env)
		case <-h.client.Done():
			return
		}
	}
}

func (h *Handler) route(env *coordinator.Envelope) {
	switch env.Type {
	case coordinator.TypeJoinAck:
		var ack coordinator.JoinAck
		if unmarshal(env, &ack) {
			h.JoinAck <- ack
		}

	case coordinator.TypeChatAck:
		var ack coordinator.ChatAck
		if unmarshal(env, &ack) {
			h.ChatAck <- ack
		}

	case coordinator.TypeModerationAck:
		var ack coordinator.Ack
		if unmarshal(env, &ack) {
			h.ModerationAck <- ack
		}

	case coordinator.TypeRoomEndAck:
		var ack coordinator.Ack
		if unmarshal(env, &ack) {
			h.RoomEndAck <- ack
		}

	case coordinator.TypeReactionAck:
		var ack coordinator.Ack
		if unmarshal(env, &ack) {
			h.ReactionAck <- ack
		}

	case coordinator.TypeWhiteboardState:
		var ack coordinator.WhiteboardStateAck
		if unmarshal(env, &ack) {
			h.WhiteboardState <- ack
		}

	case coordinator.TypeWhiteboardAck:
		var ack coordinator.WhiteboardAck
		if unmarshal(env, &ack) {
			h.WhiteboardAck <- ack
		}

	case coordinator.TypeUserJoined:
		var notice coordinator.PresenceNotice
		if unmarshal(env, &notice) {
			h.UserJoined <- notice
		}

	case coordinator.TypeUserLeft:
		var notice coordinator.PresenceNotice
		if unmarshal(env, &notice) {
			h.UserLeft <- notice
		}

	case coordinator.TypeRosterUpdate:
		var roster coordinator.RosterUpdate
		if unmarshal(env, &roster) {
			h.Roster <- roster
		}

	case coordinator.TypeChatMessage:
		var msg coordinator.ChatMessage
		if unmarshal(env, &msg) {
			h.Chat <- msg
		}

	case coordinator.TypeSignal:
		h.routeSignal(env)

	case coordinator.TypeWhiteboardToggled:
		var ack coordinator.WhiteboardStateAck
		if unmarshal(env, &ack) && ack.State != nil {
			h.Whiteboard <- WhiteboardEvent{Kind: WhiteboardToggled, State: ack.State, Revision: ack.State.Revision}
		}

	case coordinator.TypeWhiteboardDrawn:
		var msg coordinator.StrokeMessage
		if unmarshal(env, &msg) {
			h.Whiteboard <- WhiteboardEvent{Kind: WhiteboardDrawn, Stroke: &msg.Stroke, Revision: msg.Revision}
		}

	case coordinator.TypeWhiteboardCleared:
		var notice coordinator.RevisionNotice
		if unmarshal(env, &notice) {
			h.Whiteboard <- WhiteboardEvent{Kind: WhiteboardCleared, Revision: notice.Revision}
		}

	case coordinator.TypeReactionBurst:
		var burst coordinator.ReactionBurst
		if unmarshal(env, &burst) {
			h.Reaction <- burst
		}

	case coordinator.TypeForceMute:
		var notice coordinator.ModerationNotice
		if unmarshal(env, &notice) {
			h.ForceMute <- notice
		}

	case coordinator.TypeKick:
		var notice coordinator.ModerationNotice
		if unmarshal(env, &notice) {
			h.Kicked <- notice
		}

	case coordinator.TypeRoomEnded:
		var ended coordinator.RoomEnded
		if unmarshal(env, &ended) {
			h.RoomEnded <- ended
		}

	default:
		slog.Debug("unhandled envelope", "type", env.Type)
	}
}

// routeSignal splits heartbeat echoes from relayed negotiation signals.
func (h *Handler) routeSignal(env *coordinator.Envelope) {
	var sig coordinator.SignalPayload
	if !unmarshal(env, &sig) {
		return
	}

	if sig.Type == coordinator.SignalHeartbeat {
		var echo coordinator.HeartbeatEcho
		if err := json.Unmarshal(sig.Payload, &echo); err == nil {
			h.HeartbeatEcho <- echo
		}
		return
	}
	h.Signal <- &sig
}

func unmarshal(env *coordinator.Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		slog.Debug("failed to parse payload", "type", env.Type, "error", err)
		return false
	}
	return true
}
