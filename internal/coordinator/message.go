package coordinator

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Envelope is the single wire frame for both directions. Type selects the
// payload shape; unknown types are logged and dropped.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// sender is attached by the read pump and never serialized.
	sender *Client `json:"-"`
}

// Client→server message types.
const (
	TypeJoinRoom         = "join_room"
	TypeSignal           = "signal"
	TypeChatMessage      = "chat:message"
	TypeRoomEnd          = "room:end"
	TypeModeration       = "moderation:action"
	TypeWhiteboardSync   = "whiteboard:sync"
	TypeWhiteboardToggle = "whiteboard:toggle"
	TypeWhiteboardStroke = "whiteboard:stroke"
	TypeWhiteboardClear  = "whiteboard:clear"
	TypeReactionSend     = "reaction:send"
)

// Server→client ack types.
const (
	TypeJoinAck         = "join_room:ack"
	TypeChatAck         = "chat:ack"
	TypeRoomEndAck      = "room:end:ack"
	TypeModerationAck   = "moderation:ack"
	TypeWhiteboardState = "whiteboard:state"
	TypeWhiteboardAck   = "whiteboard:ack"
	TypeReactionAck     = "reaction:ack"
)

// Server→client broadcast types.
const (
	TypeUserJoined        = "user_joined"
	TypeUserLeft          = "user_left"
	TypeRosterUpdate      = "participants:update"
	TypeRoomEnded         = "room:ended"
	TypeForceMute         = "moderation:force-mute"
	TypeKick              = "moderation:kick"
	TypeReactionBurst     = "reaction:burst"
	TypeWhiteboardToggled = "whiteboard:toggled"
	TypeWhiteboardDrawn   = "whiteboard:drawn"
	TypeWhiteboardCleared = "whiteboard:cleared"
)

// Signal envelope sub-types (SignalPayload.Type).
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalHeartbeat    = "heartbeat"
	SignalShareStarted = "share-started"
	SignalShareStopped = "share-stopped"
)

// JoinRequest is the join handshake payload.
type JoinRequest struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Reconnect   bool   `json:"reconnect,omitempty"`
}

// JoinAck answers a join handshake.
type JoinAck struct {
	OK               bool   `json:"ok"`
	HeartbeatGraceMs int64  `json:"heartbeatGraceMs,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Ack is the generic success/failure acknowledgement.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SignalPayload is the relayed negotiation envelope. The relay never inspects
// Payload for offer/answer/ice-candidate; it only tags the sender.
type SignalPayload struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	To         string          `json:"to,omitempty"`
	From       string          `json:"from,omitempty"`
	FromUserID string          `json:"fromUserId,omitempty"`
}

// HeartbeatPing is the client half of a heartbeat signal.
type HeartbeatPing struct {
	ClientTime int64  `json:"clientTime"` // unix millis
	Quality    string `json:"quality,omitempty"`
}

// HeartbeatEcho is the server-stamped reply.
type HeartbeatEcho struct {
	ClientTime int64  `json:"clientTime"`
	ServerTime int64  `json:"serverTime"`
	LatencyMs  int64  `json:"latencyMs"`
	Quality    string `json:"quality,omitempty"`
}

// SharePayload carries screen-share lifecycle bookkeeping.
type SharePayload struct {
	SessionID    string          `json:"sessionId"`
	RTCSessionID string          `json:"rtcSessionId,omitempty"`
	Source       string          `json:"source,omitempty"`
	Switches     json.RawMessage `json:"switches,omitempty"`
}

// PresenceNotice announces a join or leave to the rest of the room.
type PresenceNotice struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Reconnect   bool   `json:"reconnect,omitempty"`
}

/// ParticipantInfo is one roster entry in a participants:update.
type ParticipantInfo struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RosterUpdate is the authoritative roster broadcast.
type RosterUpdate struct {
	HostID       string            `json:"hostId"`
	PresenterID  string            `json:"presenterId,omitempty"`
	Participants []ParticipantInfo `json:"participants"`
}

// ChatMessage is a chat send and its broadcast mirror.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ChatAck acknowledges a chat send with the stored id.
type ChatAck struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// RoomEndRequest asks the coordinator to end the room (host only).
type RoomEndRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RoomEnded is broadcast when a room is ended.
type RoomEnded struct {
	RoomID  string    `json:"roomId"`
	EndedBy string    `json:"endedBy"`
	EndedAt time.Time `json:"endedAt"`
	Reason  string    `json:"reason,omitempty"`
}

// Moderation action kinds.
const (
	ModerationMute      = "mute"
	ModerationBlock     = "block"
	ModerationPresenter = "presenter"
)

// ModerationRequest is a host action against a room member.
type ModerationRequest struct {
	Type         string `json:"type"`
	TargetUserID string `json:"targetUserId"`
	Reason       string `json:"reason,omitempty"`
}

// ModerationNotice is pushed to the target of a mute or block.
type ModerationNotice struct {
	Type         string `json:"type"`
	TargetUserID string `json:"targetUserId"`
	By           string `json:"by"`
	Reason       string `json:"reason,omitempty"`
}

// WhiteboardToggle activates or deactivates the room whiteboard.
type WhiteboardToggle struct {
	Active bool `json:"active"`
}

// WhiteboardStateAck carries the full whiteboard snapshot.
type WhiteboardStateAck struct {
	OK    bool                `json:"ok"`
	State *WhiteboardSnapshot `json:"state,omitempty"`
	Error string              `json:"error,omitempty"`
}

// WhiteboardAck acknowledges a stroke or clear with the new revision.
type WhiteboardAck struct {
	OK       bool   `json:"ok"`
	Revision uint64 `json:"revision,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StrokeMessage is a stroke send and, with Revision set, its broadcast mirror.
type StrokeMessage struct {
	Stroke   Stroke `json:"stroke"`
	Revision uint64 `json:"revision,omitempty"`
}

// RevisionNotice is the broadcast mirror of a whiteboard clear.
type RevisionNotice struct {
	Revision uint64 `json:"revision"`
}

// ReactionSend asks for an emoji burst.
type ReactionSend struct {
	Emoji string `json:"emoji"`
}

// ReactionBurst is the broadcast mirror of a reaction.
type ReactionBurst struct {
	UserID string    `json:"userId"`
	Emoji  string    `json:"emoji"`
	At     time.Time `json:"at"`
}

// NewEnvelope marshals v as the payload of a typed envelope. Payload types are
// all local structs, so a marshal failure is a programming error; it is logged
// and an empty payload sent rather than crashing the event loop.
func NewEnvelope(msgType string, v any) *Envelope {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal payload", "type", msgType, "error", err)
		return &Envelope{Type: msgType}
	}
	return &Envelope{Type: msgType, Payload: payload}
}
