package coordinator

import (
	"sort"
	"time"

	"github.com/zakirhyder/huddle/internal/store"
)

// ParticipantSession is one connected member of a room. Only ids are stored;
// the hub resolves ConnectionID to a live connection, so a removed participant
// can never be reached through a stale pointer.
type ParticipantSession struct {
	UserID       string
	ConnectionID string
	DisplayName  string
	JoinedAt     time.Time
}

// RoomSession is the authoritative per-room state: roster, host, presenter and
// whiteboard. Created lazily on the first successful join and destroyed the
// instant the roster empties. Metadata from the external store is cached here
// for the room's lifetime.
type RoomSession struct {
	RoomID      string
	HostID      string
	MaxGuests   int
	PresenterID string

	Participants map[string]*ParticipantSession
	Whiteboard   WhiteboardState

	meta store.RoomMeta
}

func newRoomSession(meta store.RoomMeta) *RoomSession {
	return &RoomSession{
		RoomID:       meta.RoomID,
		HostID:       meta.HostID,
		MaxGuests:    meta.MaxGuests,
		Participants: make(map[string]*ParticipantSession),
		meta:         meta,
	}
}

// guestCount returns the number of participants excluding the host.
func (r *RoomSession) guestCount() int {
	n := len(r.Participants)
	if _, ok := r.Participants[r.HostID]; ok {
		n--
	}
	return n
}

// hostPresent reports whether the host is currently in the roster.
func (r *RoomSession) hostPresent() bool {
	_, ok := r.Participants[r.HostID]
	return ok
}

// reassignPresenter restores the presenter invariant after any departure:
// keep the current presenter if still present, else the host, else an
// arbitrary remaining participant, else clear.
func (r *RoomSession) reassignPresenter() {
	if r.PresenterID != "" {
		if _, ok := r.Participants[r.PresenterID]; ok {
			return
		}
	}
	if r.hostPresent() {
		r.PresenterID = r.HostID
		return
	}
	for userID := range r.Participants {
		r.PresenterID = userID
		return
	}
	r.PresenterID = ""
}

// Roster builds the participants:update payload. Entries are ordered by join
// time so every broadcast lists members deterministically.
func (r *RoomSession) Roster() RosterUpdate {
	participants := make([]ParticipantInfo, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, ParticipantInfo{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt,
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].UserID < participants[j].UserID
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})

	return RosterUpdate{
		HostID:       r.HostID,
		PresenterID:  r.PresenterID,
		Participants: participants,
	}
}
