package coordinator

import (
	"fmt"
	"testing"
	"time"

	"github.com/zakirhyder/huddle/internal/store"
)

func testMeta() store.RoomMeta {
	return store.RoomMeta{
		RoomID:    "sunny-falcon-raven",
		HostID:    "host",
		MaxGuests: 3,
		Status:    store.RoomActive,
	}
}

func join(t *testing.T, g *Registry, meta store.RoomMeta, userID, connID string, at time.Time) JoinOutcome {
	t.Helper()
	out := g.Join(meta, JoinRequest{RoomID: meta.RoomID, UserID: userID}, connID, at)
	if out.Code != "" {
		t.Fatalf("join %s rejected with %s", userID, out.Code)
	}
	return out
}

func TestJoinRejectsByRoomStatus(t *testing.T) {
	tests := []struct {
		status store.RoomStatus
		code   string
	}{
		{store.RoomEnded, CodeRoomEnded},
		{store.RoomSuspended, CodeRoomSuspended},
	}

	for _, tt := range tests {
		g := NewRegistry()
		meta := testMeta()
		meta.Status = tt.status

		out := g.Join(meta, JoinRequest{RoomID: meta.RoomID, UserID: "host"}, "c1", time.Now())
		if out.Code != tt.code {
			t.Errorf("status %s: code = %q, want %q", tt.status, out.Code, tt.code)
		}
		if g.Rooms() != 0 {
			t.Errorf("status %s: rejected join created a session", tt.status)
		}
	}
}

func TestGuestCapExemptsHost(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	meta.MaxGuests = 2
	now := time.Now()

	join(t, g, meta, "g1", "c1", now)
	join(t, g, meta, "g2", "c2", now.Add(time.Second))

	// Third guest hits the cap.
	out := g.Join(meta, JoinRequest{RoomID: meta.RoomID, UserID: "g3"}, "c3", now.Add(2*time.Second))
	if out.Code != CodeRoomAtCapacity {
		t.Fatalf("third guest code = %q, want %q", out.Code, CodeRoomAtCapacity)
	}

	// The host still gets in.
	join(t, g, meta, "host", "c4", now.Add(3*time.Second))

	room := g.Room(meta.RoomID)
	if len(room.Participants) != 3 {
		t.Errorf("roster size = %d, want 3", len(room.Participants))
	}
}

func TestRejoinBypassesCapAndKeepsJoinTime(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	meta.MaxGuests = 1
	now := time.Now()

	first := join(t, g, meta, "g1", "c1", now)

	// Same user on a fresh connection while the room is at capacity.
	out := g.Join(meta, JoinRequest{RoomID: meta.RoomID, UserID: "g1"}, "c2", now.Add(time.Minute))
	if out.Code != "" {
		t.Fatalf("rejoin rejected with %s", out.Code)
	}
	if !out.Rejoined {
		t.Error("rejoin not flagged as Rejoined")
	}
	if out.Participant.ConnectionID != "c2" {
		t.Errorf("connection id = %s, want c2", out.Participant.ConnectionID)
	}
	if !out.Participant.JoinedAt.Equal(first.Participant.JoinedAt) {
		t.Error("rejoin reset the original join time")
	}
}

func TestCapacityRejectionDoesNotLeakEmptyRoom(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	meta.MaxGuests = 0

	out := g.Join(meta, JoinRequest{RoomID: meta.RoomID, UserID: "g1"}, "c1", time.Now())
	if out.Code != CodeRoomAtCapacity {
		t.Fatalf("code = %q, want %q", out.Code, CodeRoomAtCapacity)
	}
	if g.Rooms() != 0 {
		t.Error("rejected first join left an empty session behind")
	}
}

func TestPresenterDefaultsToHostWhenPresent(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	now := time.Now()

	// Guest arrives first and becomes presenter.
	join(t, g, meta, "g1", "c1", now)
	room := g.Room(meta.RoomID)
	if room.PresenterID != "g1" {
		t.Fatalf("presenter = %s, want g1", room.PresenterID)
	}

	// Host arriving later does not steal the role.
	join(t, g, meta, "host", "c2", now.Add(time.Second))
	if room.PresenterID != "g1" {
		t.Errorf("presenter after host join = %s, want g1", room.PresenterID)
	}
}

func TestLeaveReassignsPresenter(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	now := time.Now()

	join(t, g, meta, "host", "c1", now)
	join(t, g, meta, "g1", "c2", now.Add(time.Second))
	room := g.Room(meta.RoomID)

	// Hand the role to the guest, then drop the guest.
	room.PresenterID = "g1"
	out := g.Leave(meta.RoomID, "g1")
	if out == nil || !out.PresenterChanged {
		t.Fatal("presenter departure did not trigger reassignment")
	}
	if room.PresenterID != "host" {
		t.Errorf("presenter = %s, want host", room.PresenterID)
	}

	// Non-presenter departure leaves the role alone.
	join(t, g, meta, "g2", "c3", now.Add(2*time.Second))
	out = g.Leave(meta.RoomID, "g2")
	if out.PresenterChanged {
		t.Error("non-presenter departure reported a presenter change")
	}
}

func TestLeaveLastParticipantEvictsRoom(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()

	join(t, g, meta, "host", "c1", time.Now())
	out := g.Leave(meta.RoomID, "host")
	if !out.Evicted {
		t.Error("last departure did not evict the room")
	}
	if g.Room(meta.RoomID) != nil {
		t.Error("room still resolvable after eviction")
	}
}

func TestLeaveUnknownUserIsNil(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	join(t, g, meta, "host", "c1", time.Now())

	if out := g.Leave(meta.RoomID, "ghost"); out != nil {
		t.Errorf("leave of unknown user = %+v, want nil", out)
	}
	if out := g.Leave("no-such-room", "host"); out != nil {
		t.Errorf("leave in unknown room = %+v, want nil", out)
	}
}

func TestRosterOrderedByJoinTime(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	now := time.Now()

	join(t, g, meta, "host", "h", now.Add(2*time.Second))
	join(t, g, meta, "g2", "c2", now.Add(time.Second))
	join(t, g, meta, "g1", "c1", now)

	roster := g.Room(meta.RoomID).Roster()
	want := []string{"g1", "g2", "host"}
	for i, p := range roster.Participants {
		if p.UserID != want[i] {
			t.Fatalf("roster[%d] = %s, want %s (%v)", i, p.UserID, want[i], roster.Participants)
		}
	}
}

func TestRosterTiesBreakOnUserID(t *testing.T) {
	g := NewRegistry()
	meta := testMeta()
	now := time.Now()

	for _, id := range []string{"c", "a", "b"} {
		out := g.Join(meta, JoinRequest{RoomID: meta.RoomID, UserID: id}, fmt.Sprintf("conn-%s", id), now)
		if out.Code != "" {
			t.Fatalf("join %s rejected with %s", id, out.Code)
		}
	}

	roster := g.Room(meta.RoomID).Roster()
	want := []string{"a", "b", "c"}
	for i, p := range roster.Participants {
		if p.UserID != want[i] {
			t.Fatalf("roster[%d] = %s, want %s", i, p.UserID, want[i])
		}
	}
}
