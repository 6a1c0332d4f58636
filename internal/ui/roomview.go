package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/monitor"
)

const chatBacklog = 12

// RoomUpdateType tags external events pushed into the room view.
type RoomUpdateType int

const (
	UpdateRoster RoomUpdateType = iota
	UpdateChat
	UpdateQuality
	UpdateReaction
	UpdateWhiteboard
	UpdateNotice
	UpdateShare
)

// RoomUpdate is a message sent from session goroutines to update the view.
type RoomUpdate struct {
	Type       RoomUpdateType
	Roster     *coordinator.RosterUpdate
	Chat       *coordinator.ChatMessage
	ChatName   string
	Quality    string
	LatencyMs  int64
	Reaction   *coordinator.ReactionBurst
	Whiteboard string
	Notice     string
	Share      string
}

// RoomUI drives the live room view. External goroutines feed it through Push;
// chat input typed by the user comes back through the OnChat callback.
type RoomUI struct {
	program    *tea.Program
	model      *roomModel
	updateChan chan RoomUpdate
	wg         sync.WaitGroup
}

type chatLine struct {
	name string
	text string
	at   time.Time
}

type roomModel struct {
	roomID string
	selfID string

	roster     coordinator.RosterUpdate
	chat       []chatLine
	quality    string
	latencyMs  int64
	reaction   string
	whiteboard string
	share      string
	notice     string

	input      textinput.Model
	spinner    spinner.Model
	updateChan chan RoomUpdate
	onChat     func(string)
	mu         sync.RWMutex
	quitting   bool
}

// NewRoomUI creates the room view. onChat is invoked for every line the user
// submits; it must not block.
func NewRoomUI(roomID, selfID string, onChat func(string)) *RoomUI {
	updateChan := make(chan RoomUpdate, 100)

	ti := textinput.New()
	ti.Placeholder = "Type a message and press enter"
	ti.CharLimit = 500
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := &roomModel{
		roomID:     roomID,
		selfID:     selfID,
		input:      ti,
		spinner:    s,
		updateChan: updateChan,
		onChat:     onChat,
	}

	return &RoomUI{model: model, updateChan: updateChan}
}

// Start starts the UI in a goroutine
func (ui *RoomUI) Start() {
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		// Inline mode without alt screen keeps previous terminal
		// output visible.
		ui.program = tea.NewProgram(ui.model)
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Push feeds an external event into the view. Never blocks.
func (ui *RoomUI) Push(update RoomUpdate) {
	select {
	case ui.updateChan <- update:
	default:
	}
}

// Stop stops the UI
func (ui *RoomUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

func (m *roomModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.listenForUpdates(),
	)
}

func (m *roomModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *roomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text != "" && m.onChat != nil {
				m.onChat(text)
				m.input.Reset()
			}
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case RoomUpdate:
		m.apply(msg)
		cmds = append(cmds, m.listenForUpdates())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *roomModel) apply(update RoomUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch update.Type {
	case UpdateRoster:
		if update.Roster != nil {
			m.roster = *update.Roster
		}
	case UpdateChat:
		if update.Chat != nil {
			name := update.ChatName
			if name == "" {
				name = update.Chat.SenderID
			}
			m.chat = append(m.chat, chatLine{name: name, text: update.Chat.Content, at: update.Chat.CreatedAt})
			if len(m.chat) > chatBacklog {
				m.chat = m.chat[len(m.chat)-chatBacklog:]
			}
		}
	case UpdateQuality:
		m.quality = update.Quality
		m.latencyMs = update.LatencyMs
	case UpdateReaction:
		if update.Reaction != nil {
			m.reaction = fmt.Sprintf("%s %s", update.Reaction.Emoji, update.Reaction.UserID)
		}
	case UpdateWhiteboard:
		m.whiteboard = update.Whiteboard
	case UpdateShare:
		m.share = update.Share
	case UpdateNotice:
		m.notice = update.Notice
	}
}

func (m *roomModel) View() string {
	if m.quitting {
		return ""
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	b.WriteString(fmt.Sprintf("\n%s %s\n\n", IconRoom, TitleStyle.Render("Room "+m.roomID)))

	// Roster
	for _, p := range m.roster.Participants {
		icon := IconPeer
		style := TableRowStyle
		if p.UserID == m.roster.HostID {
			icon = IconHost
			style = HostStyle
		}
		name := p.DisplayName
		if p.UserID == m.selfID {
			name += " (you)"
		}
		b.WriteString(fmt.Sprintf("  %s %s", icon, style.Render(name)))
		if p.UserID == m.roster.PresenterID {
			b.WriteString(" " + PresenterStyle.Render("[presenting]"))
		}
		b.WriteString("\n")
	}
	if len(m.roster.Participants) == 0 {
		b.WriteString(fmt.Sprintf("  %s %s\n", m.spinner.View(), MutedStyle.Render("Waiting for participants...")))
	}

	// Status line
	b.WriteString("\n")
	if m.quality != "" {
		b.WriteString(fmt.Sprintf("  %s %s %s", IconSignal, QualityBadge(monitor.Quality(m.quality)), MutedStyle.Render(fmt.Sprintf("(%dms)", m.latencyMs))))
	}
	if m.share != "" {
		b.WriteString(fmt.Sprintf("  %s %s", IconScreen, m.share))
	}
	if m.whiteboard != "" {
		b.WriteString(fmt.Sprintf("  %s %s", IconBoard, m.whiteboard))
	}
	if m.reaction != "" {
		b.WriteString(fmt.Sprintf("  %s", m.reaction))
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString("\n  " + WarningStyle.Render(m.notice) + "\n")
	}

	// Chat backlog
	if len(m.chat) > 0 {
		b.WriteString("\n")
		for _, line := range m.chat {
			b.WriteString(fmt.Sprintf("  %s %s\n", ChatNameStyle.Render(line.name+":"), line.text))
		}
	}

	b.WriteString("\n  " + m.input.View() + "\n")
	b.WriteString("\n" + MutedStyle.Render("  esc to leave the room"))

	return b.String()
}
