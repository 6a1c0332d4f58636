// Package store is the coordinator's view of the record-keeping layer: room
// metadata, chat history, analytics events and screen-share records. The
// coordinator only ever reads room metadata once per room lifetime; everything
// else is append-only.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a room id has no record.
var ErrNotFound = errors.New("room not found")

// RoomStatus is the lifecycle state persisted for a room.
type RoomStatus string

const (
	RoomActive    RoomStatus = "active"
	RoomEnded     RoomStatus = "ended"
	RoomSuspended RoomStatus = "suspended"
)

// RoomMeta is the slice of room metadata the coordinator needs to admit
// participants. Fetched once per room and cached for the room's lifetime.
type RoomMeta struct {
	RoomID    string
	HostID    string
	MaxGuests int
	Status    RoomStatus
}

// ChatRecord is one persisted chat message.
type ChatRecord struct {
	ID        string
	RoomID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// AnalyticsEvent is an append-only telemetry entry (joins, leaves, heartbeat
// samples, moderation actions).
type AnalyticsEvent struct {
	RoomID string
	UserID string
	Kind   string
	Detail string
	At     time.Time
}

// ShareRecord tracks one screen-share session from start to stop.
type ShareRecord struct {
	ID           string
	RoomID       string
	UserID       string
	RTCSessionID string
	Source       string
	StartedAt    time.Time
}

// Store is the external record-keeping collaborator.
type Store interface {
	CreateRoom(ctx context.Context, meta RoomMeta) error
	FetchRoomByID(ctx context.Context, roomID string) (RoomMeta, error)
	EndRoom(ctx context.Context, roomID, actorID string) error
	AppendChatMessage(ctx context.Context, msg ChatRecord) error
	AppendAnalyticsLog(ctx context.Context, event AnalyticsEvent) error
	StartScreenShareRecord(ctx context.Context, rec ShareRecord) error
	StopScreenShareRecord(ctx context.Context, sessionID string) error
}
