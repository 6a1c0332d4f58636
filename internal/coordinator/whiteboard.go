package coordinator

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Whiteboard bounds.
const (
	maxStrokes    = 400
	minStrokeSize = 1
	maxStrokeSize = 36
)

// Stroke tools.
const (
	ToolPen         = "pen"
	ToolEraser      = "eraser"
	ToolHighlighter = "highlighter"
)

// Point is one sampled position of a stroke, in normalized [0,1] coordinates.
type Point struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
	T        int64    `json:"t,omitempty"`
}

// Stroke is one drawn segment of the shared whiteboard.
type Stroke struct {
	ID     string  `json:"id,omitempty"`
	Tool   string  `json:"tool"`
	Color  string  `json:"color,omitempty"`
	Size   float64 `json:"size"`
	Points []Point `json:"points"`
}

// WhiteboardState is the per-room stroke log. Every accepted mutation bumps
// Revision by exactly one; clients use the revision for optimistic-update
// rollback, so it never decreases and is only reset by room destruction.
type WhiteboardState struct {
	Active          bool
	Strokes         []Stroke
	Revision        uint64
	UpdatedAt       time.Time
	PresenterUserID string
}

// WhiteboardSnapshot is the wire form of the whiteboard state.
type WhiteboardSnapshot struct {
	Active          bool      `json:"active"`
	Strokes         []Stroke  `json:"strokes"`
	Revision        uint64    `json:"revision"`
	UpdatedAt       time.Time `json:"updatedAt"`
	PresenterUserID string    `json:"presenterUserId,omitempty"`
}

// Snapshot copies the whiteboard state for broadcast.
func (w *WhiteboardState) Snapshot() *WhiteboardSnapshot {
	strokes := make([]Stroke, len(w.Strokes))
	copy(strokes, w.Strokes)
	return &WhiteboardSnapshot{
		Active:          w.Active,
		Strokes:         strokes,
		Revision:        w.Revision,
		UpdatedAt:       w.UpdatedAt,
		PresenterUserID: w.PresenterUserID,
	}
}

// ToggleWhiteboard activates or deactivates the whiteboard. Host only.
// Activation records the toggling host as the whiteboard presenter;
// deactivation clears it.
func (r *RoomSession) ToggleWhiteboard(callerID string, active bool, now time.Time) (*WhiteboardSnapshot, string) {
	if callerID != r.HostID {
		return nil, CodeNotHost
	}

	w := &r.Whiteboard
	w.Active = active
	if active {
		w.PresenterUserID = callerID
	} else {
		w.PresenterUserID = ""
	}
	w.Revision++
	w.UpdatedAt = now

	return w.Snapshot(), ""
}

// ApplyStroke normalizes and appends a stroke. Drawing requires an active
// whiteboard; any roster member may draw on it once active. The log is
// truncated to the most recent maxStrokes entries.
func (r *RoomSession) ApplyStroke(callerID string, s Stroke, now time.Time) (Stroke, uint64, string) {
	w := &r.Whiteboard
	if !w.Active {
		return Stroke{}, 0, CodeNotAllowed
	}
	if _, ok := r.Participants[callerID]; !ok {
		return Stroke{}, 0, CodeNotAllowed
	}

	norm := normalizeStroke(s)
	if len(norm.Points) == 0 {
		return Stroke{}, 0, CodeEmptyStroke
	}
	if norm.ID == "" {
		norm.ID = ulid.Make().String()
	}

	w.Strokes = append(w.Strokes, norm)
	if len(w.Strokes) > maxStrokes {
		w.Strokes = w.Strokes[len(w.Strokes)-maxStrokes:]
	}
	w.Revision++
	w.UpdatedAt = now

	return norm, w.Revision, ""
}

// ClearWhiteboard empties the stroke log. Host only.
func (r *RoomSession) ClearWhiteboard(callerID string, now time.Time) (uint64, string) {
	if callerID != r.HostID {
		return 0, CodeNotHost
	}

	w := &r.Whiteboard
	w.Strokes = nil
	w.Revision++
	w.UpdatedAt = now

	return w.Revision, ""
}

// normalizeStroke clamps tool, size, coordinates and pressure into their
// valid ranges and collapses consecutive duplicate coordinates.
func normalizeStroke(s Stroke) Stroke {
	switch s.Tool {
	case ToolEraser, ToolHighlighter:
	default:
		s.Tool = ToolPen
	}
	s.Size = clamp(s.Size, minStrokeSize, maxStrokeSize)

	points := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		p.X = clamp(p.X, 0, 1)
		p.Y = clamp(p.Y, 0, 1)
		if p.Pressure != nil {
			pr := clamp(*p.Pressure, 0, 1)
			p.Pressure = &pr
		}
		if n := len(points); n > 0 && points[n-1].X == p.X && points[n-1].Y == p.Y {
			continue
		}
		points = append(points, p)
	}
	s.Points = points
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
