package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/zakirhyder/huddle/internal/monitor"
)

// Color palette
var (
	Primary    = lipgloss.Color("#22d3ee") // Huddle cyan accent
	Secondary  = lipgloss.Color("#7C3AED") // Violet
	Success    = lipgloss.Color("#10B981") // Emerald
	Warning    = lipgloss.Color("#F59E0B") // Amber
	Error      = lipgloss.Color("#EF4444") // Red
	Muted      = lipgloss.Color("#6B7280") // Gray
	Foreground = lipgloss.Color("#F9FAFB") // Light gray
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	HostStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	PresenterStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	ChatNameStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)
)

// Box styles
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	SuccessBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)
)

// Table styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

	TableRowStyle = tableCellStyle.Foreground(lipgloss.Color("255"))

	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

// Spinner style
var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

// Quality badge styles, one per telemetry tier.
var qualityStyles = map[monitor.Quality]lipgloss.Style{
	monitor.QualityExcellent: lipgloss.NewStyle().Foreground(Success).Bold(true),
	monitor.QualityGood:      lipgloss.NewStyle().Foreground(Primary),
	monitor.QualityPoor:      lipgloss.NewStyle().Foreground(Warning),
	monitor.QualityCritical:  lipgloss.NewStyle().Foreground(Error).Bold(true),
}

// QualityBadge renders a connection quality tier with its color.
func QualityBadge(q monitor.Quality) string {
	style, ok := qualityStyles[q]
	if !ok {
		return MutedStyle.Render(string(q))
	}
	return style.Render(string(q))
}

// Emoji helpers for consistent iconography
const (
	IconRoom     = "🚪"
	IconPeer     = "👤"
	IconHost     = "👑"
	IconScreen   = "🖥️"
	IconChat     = "💬"
	IconBoard    = "🎨"
	IconSuccess  = "✅"
	IconError    = "❌"
	IconWarning  = "⚠️"
	IconInfo     = "ℹ️"
	IconConnect  = "🔌"
	IconSignal   = "📶"
	IconWaiting  = "⏳"
	IconTime     = "⏱️"
	IconCopy     = "📋"
	IconWeb      = "🌐"
	IconReaction = "🎉"
)

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}

func FormatError(err error) string {
	return fmt.Sprintf("%s %s", ErrorStyle.Render(IconError), ErrorStyle.Render(err.Error()))
}
