package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SessionSummary aggregates what happened during one room session.
type SessionSummary struct {
	RoomID       string
	Duration     time.Duration
	Participants int
	Messages     int
	Reactions    int
	Strokes      int
	LastQuality  string
	Ended        string // how the session ended: "left", "kicked", "room ended", ...
}

// RenderSessionSummary prints the end-of-session stats table.
func RenderSessionSummary(title string, s SessionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter

	t.AppendRows([]table.Row{
		{"Room", s.RoomID},
		{"Duration", formatDuration(s.Duration)},
		{"Participants", s.Participants},
		{"Chat messages", s.Messages},
		{"Reactions", s.Reactions},
		{"Whiteboard strokes", s.Strokes},
	})
	if s.LastQuality != "" {
		t.AppendRow(table.Row{"Connection quality", s.LastQuality})
	}
	if s.Ended != "" {
		t.AppendRow(table.Row{"Ended", s.Ended})
	}

	fmt.Println()
	t.Render()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
