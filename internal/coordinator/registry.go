package coordinator

import (
	"time"

	"github.com/zakirhyder/huddle/internal/store"
)

// HeartbeatGraceMs is handed out in every join ack; a client that hears no
// heartbeat echo for this long should raise a local warning.
const HeartbeatGraceMs = 15000

// Registry owns the roomId → RoomSession index. It is pure state: no IO, no
// locking. All methods must be called from the hub's event loop, which
// serializes every mutation for a room (and, in this single-process design,
// for all rooms).
type Registry struct {
	rooms map[string]*RoomSession
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*RoomSession)}
}

// Room returns the live session for roomID, or nil.
func (g *Registry) Room(roomID string) *RoomSession {
	return g.rooms[roomID]
}

// Rooms returns the number of live rooms.
func (g *Registry) Rooms() int {
	return len(g.rooms)
}

// JoinOutcome reports the result of a join attempt. Code is empty on success.
type JoinOutcome struct {
	Code        string
	Room        *RoomSession
	Participant *ParticipantSession

	// Rejoined is true when the user was already in the roster and the
	// participant record was updated in place.
	Rejoined bool
}

// Join admits a participant under the room's cached metadata, creating the
// RoomSession lazily. The host is exempt from the guest cap; a member already
// in the roster bypasses it too and keeps its original join timestamp.
func (g *Registry) Join(meta store.RoomMeta, req JoinRequest, connectionID string, now time.Time) JoinOutcome {
	switch meta.Status {
	case store.RoomEnded:
		return JoinOutcome{Code: CodeRoomEnded}
	case store.RoomSuspended:
		return JoinOutcome{Code: CodeRoomSuspended}
	}

	room := g.rooms[meta.RoomID]
	if room == nil {
		room = newRoomSession(meta)
		g.rooms[meta.RoomID] = room
	}

	existing := room.Participants[req.UserID]
	if existing == nil && req.UserID != room.HostID && room.guestCount() >= room.MaxGuests {
		g.evictIfEmpty(room)
		return JoinOutcome{Code: CodeRoomAtCapacity}
	}

	if existing != nil {
		existing.ConnectionID = connectionID
		if req.DisplayName != "" {
			existing.DisplayName = req.DisplayName
		}
		if room.PresenterID == "" {
			room.reassignPresenter()
		}
		return JoinOutcome{Room: room, Participant: existing, Rejoined: true}
	}

	p := &ParticipantSession{
		UserID:       req.UserID,
		ConnectionID: connectionID,
		DisplayName:  req.DisplayName,
		JoinedAt:     now,
	}
	room.Participants[req.UserID] = p

	if room.PresenterID == "" {
		if room.hostPresent() {
			room.PresenterID = room.HostID
		} else {
			room.PresenterID = req.UserID
		}
	}

	return JoinOutcome{Room: room, Participant: p}
}

// LeaveOutcome reports what a removal changed.
type LeaveOutcome struct {
	Room             *RoomSession
	Participant      *ParticipantSession
	PresenterChanged bool
	Evicted          bool
}

// Leave removes a participant, runs presenter reassignment and evicts the
// room when the roster empties. It is a no-op (nil) when the user is not in
// the roster, which makes disconnect cleanup after a moderation removal safe.
func (g *Registry) Leave(roomID, userID string) *LeaveOutcome {
	room := g.rooms[roomID]
	if room == nil {
		return nil
	}
	p := room.Participants[userID]
	if p == nil {
		return nil
	}

	delete(room.Participants, userID)

	wasPresenter := room.PresenterID == userID
	if wasPresenter {
		room.reassignPresenter()
	}

	out := &LeaveOutcome{
		Room:             room,
		Participant:      p,
		PresenterChanged: wasPresenter,
	}
	out.Evicted = g.evictIfEmpty(room)
	return out
}

// Evict drops a room and all associated state regardless of roster size.
func (g *Registry) Evict(roomID string) {
	delete(g.rooms, roomID)
}

func (g *Registry) evictIfEmpty(room *RoomSession) bool {
	if len(room.Participants) > 0 {
		return false
	}
	delete(g.rooms, room.RoomID)
	return true
}
