package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/zakirhyder/huddle/internal/coordinator"
)

// RosterTable renders the room roster using lipgloss/table.
type RosterTable struct {
	roster coordinator.RosterUpdate
	selfID string
}

// NewRosterTable creates a roster table; selfID marks the local participant.
func NewRosterTable(roster coordinator.RosterUpdate, selfID string) *RosterTable {
	return &RosterTable{roster: roster, selfID: selfID}
}

// View renders the table as a string
func (t *RosterTable) View() string {
	if len(t.roster.Participants) == 0 {
		return MutedStyle.Render("Room is empty")
	}

	headers := []string{"#", "Name", "Role", "Joined"}

	var rows [][]string
	for i, p := range t.roster.Participants {
		name := p.DisplayName
		if p.UserID == t.selfID {
			name += " (you)"
		}

		role := "guest"
		switch {
		case p.UserID == t.roster.HostID && p.UserID == t.roster.PresenterID:
			role = "host, presenting"
		case p.UserID == t.roster.HostID:
			role = "host"
		case p.UserID == t.roster.PresenterID:
			role = "presenting"
		}

		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			truncateString(name, 30),
			role,
			p.JoinedAt.Local().Format(time.Kitchen),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// Render outputs the table directly to stdout
func (t *RosterTable) Render() {
	fmt.Println(t.View())
}

// RoomInfo is the box shown after room creation.
type RoomInfo struct {
	RoomID   string
	JoinHint string
}

func NewRoomInfo(roomID, joinHint string) *RoomInfo {
	return &RoomInfo{RoomID: roomID, JoinHint: joinHint}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:  %s\n%s Join:     %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.JoinHint),
	)

	return SuccessBoxStyle.Render(content)
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
