package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zakirhyder/huddle/internal/config"
	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/monitor"
	"github.com/zakirhyder/huddle/internal/peer"
	"github.com/zakirhyder/huddle/internal/signaling"
	"github.com/zakirhyder/huddle/internal/ui"
)

var (
	joinRoom     string
	joinUser     string
	joinName     string
	joinDomain   string
	joinInsecure bool
	joinSTUN     string
	joinTURN     string
	joinTURNUser string
	joinTURNPass string
)

var joinCmd = &cobra.Command{
	Use:     "join",
	Aliases: []string{"j"},
	Short:   "Join a room",
	Long: `Join a screen-share room and stay in it until you leave, the host
removes you, or the room ends.

Inside the room, typed lines are sent as chat. Lines starting with a slash
are commands:

  /react <emoji>       send an emoji burst
  /mute <user>         ask a participant to mute (host)
  /kick <user>         remove a participant (host)
  /presenter <user>    hand over the presenter role (host)
  /end [reason]        end the room for everyone (host)

Examples:
  huddle join --room sunny-falcon-raven --user bob
  huddle join --room sunny-falcon-raven --user bob --name "Bob K"
  huddle join --room sunny-falcon-raven --user bob --domain huddle.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if joinRoom == "" || joinUser == "" {
			return fmt.Errorf("--room and --user are required")
		}
		return runRoom()
	},
}

// roomSession carries everything alive while we are in a room.
type roomSession struct {
	ctx     *ConnectionContext
	ui      *ui.RoomUI
	mon     *monitor.Monitor
	joinReq coordinator.JoinRequest
	cfg     *config.Config

	names map[string]string // user id -> display name
	peers map[string]*peer.Manager

	startedAt    time.Time
	messages     int
	reactions    int
	strokes      int
	participants int
	ended        string
}

func runRoom() error {
	cfg, err := config.Load(config.Options{
		Domain:     joinDomain,
		Insecure:   joinInsecure,
		STUNServer: joinSTUN,
		TURNServer: joinTURN,
		TURNUser:   joinTURNUser,
		TURNPass:   joinTURNPass,
	})
	if err != nil {
		return NewError("load config", err)
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to coordinator...")
	defer stopSpinner()
	connCtx, err := NewConnectionContext(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer connCtx.Close()
	stopSpinner()

	joinReq := coordinator.JoinRequest{
		RoomID:      joinRoom,
		UserID:      joinUser,
		DisplayName: joinName,
	}

	stopSpinner = ui.RunWaitingSpinner("Joining room...")
	defer stopSpinner()
	grace, err := connCtx.JoinRoom(joinReq)
	if err != nil {
		return err
	}
	stopSpinner()
	ui.PrintSuccessf("Joined room %s", joinRoom)

	s := &roomSession{
		ctx:       connCtx,
		joinReq:   joinReq,
		cfg:       cfg,
		names:     map[string]string{},
		peers:     map[string]*peer.Manager{},
		startedAt: time.Now(),
		ended:     "left",
	}
	defer s.closePeers()

	s.ui = ui.NewRoomUI(joinRoom, joinUser, s.handleInput)

	// Heartbeats ride the signal relay; echoes come back on their own
	// channel and feed the monitor.
	s.mon = monitor.New(func(beat monitor.Beat) {
		payload, _ := json.Marshal(coordinator.HeartbeatPing{
			ClientTime: beat.ClientTime.UnixMilli(),
			Quality:    string(beat.Quality),
		})
		connCtx.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeSignal,
			coordinator.SignalPayload{Type: coordinator.SignalHeartbeat, Payload: payload}))
	})
	if grace > 0 {
		s.mon.Grace = grace
	}
	s.mon.OnSample = func(sample monitor.Sample) {
		s.ui.Push(ui.RoomUpdate{
			Type:      ui.UpdateQuality,
			Quality:   string(sample.Quality),
			LatencyMs: sample.Latency.Milliseconds(),
		})
	}
	s.mon.OnLost = func() {
		s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: "No heartbeat echo; connection may be unstable"})
	}
	s.mon.Start()
	defer s.mon.Stop()

	s.ui.Start()
	s.loop()
	s.ui.Stop()

	last := ""
	if sample, ok := s.mon.Last(); ok {
		last = string(sample.Quality)
	}
	ui.RenderSessionSummary("📊 Session Summary", ui.SessionSummary{
		RoomID:       joinRoom,
		Duration:     time.Since(s.startedAt),
		Participants: s.participants,
		Messages:     s.messages,
		Reactions:    s.reactions,
		Strokes:      s.strokes,
		LastQuality:  last,
		Ended:        s.ended,
	})
	return nil
}

// loop consumes coordinator events until the session ends.
func (s *roomSession) loop() {
	h := s.ctx.Handler
	for {
		select {
		case roster := <-h.Roster:
			for _, p := range roster.Participants {
				s.names[p.UserID] = p.DisplayName
			}
			if len(roster.Participants) > s.participants {
				s.participants = len(roster.Participants)
			}
			r := roster
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateRoster, Roster: &r})

		case notice := <-h.UserJoined:
			verb := "joined"
			if notice.Reconnect {
				verb = "reconnected"
			}
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice,
				Notice: fmt.Sprintf("%s %s", s.displayName(notice.UserID, notice.DisplayName), verb)})

		case notice := <-h.UserLeft:
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice,
				Notice: fmt.Sprintf("%s left", s.displayName(notice.UserID, notice.DisplayName))})

		case msg := <-h.Chat:
			s.messages++
			m := msg
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateChat, Chat: &m, ChatName: s.displayName(m.SenderID, "")})

		case echo := <-h.HeartbeatEcho:
			s.mon.Observe(time.Duration(echo.LatencyMs)*time.Millisecond, time.Now())

		case burst := <-h.Reaction:
			s.reactions++
			b := burst
			b.UserID = s.displayName(b.UserID, "")
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateReaction, Reaction: &b})

		case state := <-h.WhiteboardState:
			if state.State != nil {
				s.strokes = len(state.State.Strokes)
				if state.State.Active {
					s.ui.Push(ui.RoomUpdate{Type: ui.UpdateWhiteboard,
						Whiteboard: fmt.Sprintf("whiteboard active (%d strokes)", s.strokes)})
				}
			}

		case ack := <-h.WhiteboardAck:
			if !ack.OK {
				s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: "whiteboard: " + ack.Error})
			}

		case ack := <-h.ReactionAck:
			if !ack.OK {
				s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: "reaction: " + ack.Error})
			}

		case event := <-h.Whiteboard:
			s.handleWhiteboard(event)

		case sig := <-h.Signal:
			switch sig.Type {
			case coordinator.SignalOffer, coordinator.SignalAnswer, coordinator.SignalICECandidate:
				s.handleNegotiation(sig)
			case coordinator.SignalShareStarted:
				s.ui.Push(ui.RoomUpdate{Type: ui.UpdateShare,
					Share: fmt.Sprintf("%s is sharing", s.displayName(sig.FromUserID, ""))})
			case coordinator.SignalShareStopped:
				s.ui.Push(ui.RoomUpdate{Type: ui.UpdateShare, Share: ""})
			}

		case notice := <-h.ForceMute:
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice,
				Notice: fmt.Sprintf("Host asked you to mute: %s", notice.Reason)})

		case <-h.Kicked:
			s.ended = "removed by host"
			return

		case ended := <-h.RoomEnded:
			s.ended = "room ended by " + s.displayName(ended.EndedBy, "")
			return

		case <-s.ctx.Client.Dropped():
			if !s.resume() {
				s.ended = "connection lost"
				return
			}

		case <-s.ctx.Client.Done():
			return
		}
	}
}

func (s *roomSession) handleWhiteboard(event signaling.WhiteboardEvent) {
	switch event.Kind {
	case signaling.WhiteboardToggled:
		if event.State != nil && event.State.Active {
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateWhiteboard, Whiteboard: "whiteboard active"})
		} else {
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateWhiteboard, Whiteboard: ""})
		}
	case signaling.WhiteboardDrawn:
		s.strokes++
		s.ui.Push(ui.RoomUpdate{Type: ui.UpdateWhiteboard,
			Whiteboard: fmt.Sprintf("whiteboard active (%d strokes)", s.strokes)})
	case signaling.WhiteboardCleared:
		s.strokes = 0
		s.ui.Push(ui.RoomUpdate{Type: ui.UpdateWhiteboard, Whiteboard: "whiteboard cleared"})
	}
}

// handleNegotiation feeds a relayed offer, answer or candidate into the peer
// connection for that remote, creating it on the first offer. The terminal
// client publishes no media of its own; it answers so screen-share tracks and
// the metadata channel flow in.
func (s *roomSession) handleNegotiation(sig *coordinator.SignalPayload) {
	m, ok := s.peers[sig.From]
	if !ok {
		if sig.Type != coordinator.SignalOffer {
			return
		}
		var err error
		m, err = peer.NewManager(s.cfg, peer.Options{
			RemoteConnID: sig.From,
			Device: peer.DeviceInfo{
				UserID:      s.joinReq.UserID,
				DisplayName: s.joinReq.DisplayName,
			},
			SendSignal: func(out coordinator.SignalPayload) {
				s.ctx.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeSignal, out))
			},
			OnPeerMeta: func(info peer.DeviceInfo) {
				s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice,
					Notice: fmt.Sprintf("Media link with %s (%s)", info.DisplayName, info.Platform)})
			},
		})
		if err != nil {
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: err.Error()})
			return
		}
		s.peers[sig.From] = m
	}

	if err := m.HandleSignal(sig); err != nil {
		s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: err.Error()})
	}
}

func (s *roomSession) closePeers() {
	for _, m := range s.peers {
		m.Close()
	}
}

func (s *roomSession) resume() bool {
	s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: "Connection lost, reconnecting..."})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.ctx.Resume(ctx, s.joinReq); err != nil {
		s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: err.Error()})
		return false
	}
	s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: "Reconnected"})
	return true
}

// handleInput runs on every line the user submits; slash commands act on the
// room, everything else is chat. Called from the UI goroutine, so network
// waits happen on their own goroutine.
func (s *roomSession) handleInput(line string) {
	if !strings.HasPrefix(line, "/") {
		go func() {
			if _, err := s.ctx.SendChat(line); err != nil {
				s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: err.Error()})
			}
		}()
		return
	}

	fields := strings.Fields(line)
	cmd, arg := fields[0], ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	go func() {
		var err error
		switch cmd {
		case "/react":
			if arg == "" {
				arg = "🎉"
			}
			s.ctx.SendReaction(arg)
		case "/mute":
			err = s.ctx.Moderate(coordinator.ModerationRequest{Type: coordinator.ModerationMute, TargetUserID: arg})
		case "/kick":
			err = s.ctx.Moderate(coordinator.ModerationRequest{Type: coordinator.ModerationBlock, TargetUserID: arg})
		case "/presenter":
			err = s.ctx.Moderate(coordinator.ModerationRequest{Type: coordinator.ModerationPresenter, TargetUserID: arg})
		case "/end":
			err = s.ctx.EndRoom(arg)
		default:
			err = fmt.Errorf("unknown command %s", cmd)
		}
		if err != nil {
			s.ui.Push(ui.RoomUpdate{Type: ui.UpdateNotice, Notice: err.Error()})
		}
	}()
}

func (s *roomSession) displayName(userID, fallback string) string {
	if name, ok := s.names[userID]; ok && name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return userID
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&joinRoom, "room", "r", "", "Room id to join")
	joinCmd.Flags().StringVarP(&joinUser, "user", "u", "", "Your user id")
	joinCmd.Flags().StringVarP(&joinName, "name", "n", "", "Display name (generated if empty)")
	joinCmd.Flags().StringVarP(&joinDomain, "domain", "d", "", "Custom coordinator domain")
	joinCmd.Flags().BoolVar(&joinInsecure, "insecure", false, "Use ws:// and http:// (local development)")
	joinCmd.Flags().StringVarP(&joinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&joinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&joinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&joinTURNPass, "turn-pass", "", "TURN password")
}
