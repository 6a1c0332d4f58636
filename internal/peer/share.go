package peer

import (
	"time"
)

// ShareSwitch records one source change (e.g. window → full screen) within a
// share session.
type ShareSwitch struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// ShareSession tracks one screen share from start to stop. A source switch
// is a stop-then-start of the tracks inside the same session, recorded in
// Switches rather than opening a new session.
type ShareSession struct {
	ID           string        `json:"sessionId"`
	RTCSessionID string        `json:"rtcSessionId"`
	Source       string        `json:"source"`
	StartedAt    time.Time     `json:"startedAt"`
	Switches     []ShareSwitch `json:"switches,omitempty"`
}

func (s *ShareSession) recordSwitch(to string, at time.Time) {
	s.Switches = append(s.Switches, ShareSwitch{From: s.Source, To: to, At: at})
	s.Source = to
}
