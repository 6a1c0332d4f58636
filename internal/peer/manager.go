// Package peer owns the client-side media negotiation state machine: track
// senders, bounded ICE-restart recovery and screen-share renegotiation. One
// Manager drives one connection to one remote participant; signaling travels
// through whatever send function the caller wires in.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zakirhyder/huddle/internal/config"
	"github.com/zakirhyder/huddle/internal/coordinator"
)

var (
	ErrClosed          = errors.New("peer connection closed")
	ErrNoActiveShare   = errors.New("no active screen share")
	ErrShareInProgress = errors.New("screen share already active")
)

// Options configure a Manager.
type Options struct {
	// SendSignal forwards an envelope to the remote peer through the
	// relay. Required.
	SendSignal func(coordinator.SignalPayload)

	// RemoteConnID addresses outbound signals to one connection; empty
	// means relay-broadcast.
	RemoteConnID string

	// OnStateChange observes lifecycle transitions. Optional.
	OnStateChange func(State)

	// OnPeerMeta fires when the metadata channel delivers the remote
	// device info. Optional.
	OnPeerMeta func(DeviceInfo)

	// OnRemoteTrack fires for every inbound media track. Optional.
	OnRemoteTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)

	// Device is advertised over the metadata channel.
	Device DeviceInfo
}

// Manager is the peer connection lifecycle manager.
type Manager struct {
	opts Options
	id   string // rtc session id

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	meta     *webrtc.DataChannel
	state    State
	senders  map[TrackKind]*webrtc.RTPSender
	releases map[TrackKind]func()
	restarts int
	share    *ShareSession
}

// NewManager creates the underlying peer connection and wires its handlers.
// The connection stays idle until Negotiate.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	if opts.SendSignal == nil {
		return nil, errors.New("SendSignal is required")
	}

	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		opts:     opts,
		id:       ulid.Make().String(),
		pc:       pc,
		state:    StateIdle,
		senders:  make(map[TrackKind]*webrtc.RTPSender),
		releases: make(map[TrackKind]func()),
	}
	m.setupHandlers()

	if err := m.setupMetaChannel(); err != nil {
		pc.Close()
		return nil, err
	}
	return m, nil
}

// newPeerConnection centralizes ICE server configuration.
func newPeerConnection(cfg *config.Config) (*webrtc.PeerConnection, error) {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

func (m *Manager) setupHandlers() {
	m.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		m.sendSignal(coordinator.SignalICECandidate, payload)
	})

	m.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			m.markConnected()
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
			m.transportDown()
		}
	})

	m.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed {
			m.transportDown()
		}
	})

	if m.opts.OnRemoteTrack != nil {
		m.pc.OnTrack(m.opts.OnRemoteTrack)
	}
}

// setupMetaChannel opens the msgpack metadata channel and advertises our
// device info once it connects.
func (m *Manager) setupMetaChannel() error {
	dc, err := m.pc.CreateDataChannel("huddle-meta", nil)
	if err != nil {
		return fmt.Errorf("failed to create metadata channel: %w", err)
	}
	m.meta = dc

	dc.OnOpen(func() {
		device := m.opts.Device
		if device.Platform == "" {
			device.Platform = runtime.GOOS
		}
		data, err := msgpack.Marshal(device)
		if err != nil {
			return
		}
		if err := dc.Send(data); err != nil {
			slog.Debug("failed to send device info", "error", err)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var info DeviceInfo
		if err := msgpack.Unmarshal(msg.Data, &info); err != nil {
			slog.Debug("failed to parse device info", "error", err)
			return
		}
		if m.opts.OnPeerMeta != nil {
			m.opts.OnPeerMeta(info)
		}
	})
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RestartAttempts returns the current ICE-restart counter.
func (m *Manager) RestartAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

// RTCSessionID identifies this negotiation context in share records.
func (m *Manager) RTCSessionID() string {
	return m.id
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s)
	}
}

func (m *Manager) sendSignal(sigType string, payload json.RawMessage) {
	m.opts.SendSignal(coordinator.SignalPayload{
		Type:    sigType,
		Payload: payload,
		To:      m.opts.RemoteConnID,
	})
}

// Negotiate creates an offer with trickle ICE and sends it through the
// relay; candidates follow via OnICECandidate.
func (m *Manager) Negotiate() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()

	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	desc := m.pc.LocalDescription()
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}

	if m.State() == StateIdle {
		m.setState(StateNegotiating)
	}
	m.sendSignal(coordinator.SignalOffer, payload)
	return nil
}

// HandleSignal processes a relayed offer, answer or ICE candidate from the
// remote peer.
func (m *Manager) HandleSignal(sig *coordinator.SignalPayload) error {
	switch sig.Type {
	case coordinator.SignalOffer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(sig.Payload, &desc); err != nil {
			return fmt.Errorf("failed to parse offer: %w", err)
		}
		if err := m.pc.SetRemoteDescription(desc); err != nil {
			return err
		}
		answer, err := m.pc.CreateAnswer(nil)
		if err != nil {
			return err
		}
		if err := m.pc.SetLocalDescription(answer); err != nil {
			return err
		}
		payload, err := json.Marshal(m.pc.LocalDescription())
		if err != nil {
			return err
		}
		m.sendSignal(coordinator.SignalAnswer, payload)
		return nil

	case coordinator.SignalAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(sig.Payload, &desc); err != nil {
			return fmt.Errorf("failed to parse answer: %w", err)
		}
		if err := m.pc.SetRemoteDescription(desc); err != nil {
			return err
		}
		// An accepted answer is a successful re-establishment; the
		// restart budget resets.
		m.mu.Lock()
		m.restarts = 0
		m.mu.Unlock()
		return nil

	case coordinator.SignalICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(sig.Payload, &candidate); err != nil {
			return fmt.Errorf("failed to parse ICE candidate: %w", err)
		}
		return m.pc.AddICECandidate(candidate)

	default:
		return fmt.Errorf("unexpected signal type: %s", sig.Type)
	}
}

func (m *Manager) markConnected() {
	m.mu.Lock()
	m.restarts = 0
	m.mu.Unlock()
	m.setState(StateConnected)
}

// transportDown runs the degraded → reconnecting path with a bounded ICE
// restart budget.
func (m *Manager) transportDown() {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	if m.restarts >= MaxICERestarts {
		m.mu.Unlock()
		m.setState(StateFailed)
		return
	}
	m.restarts++
	attempt := m.restarts
	m.mu.Unlock()

	m.setState(StateDegraded)
	m.setState(StateReconnecting)
	slog.Debug("attempting ICE restart", "attempt", attempt)

	if err := m.restartICE(); err != nil {
		slog.Warn("ICE restart failed", "attempt", attempt, "error", err)
	}
}

func (m *Manager) restartICE() error {
	offer, err := m.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return err
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	payload, err := json.Marshal(m.pc.LocalDescription())
	if err != nil {
		return err
	}
	m.sendSignal(coordinator.SignalOffer, payload)
	return nil
}

// AttachTrack adds or replaces the sender slot for kind and renegotiates on
// the existing connection.
func (m *Manager) AttachTrack(kind TrackKind, track LocalTrack) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	if old, ok := m.senders[kind]; ok {
		m.pc.RemoveTrack(old)
		if release := m.releases[kind]; release != nil {
			release()
		}
		delete(m.senders, kind)
		delete(m.releases, kind)
	}

	sender, err := m.pc.AddTrack(track.Track)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to add %s track: %w", kind, err)
	}
	m.senders[kind] = sender
	m.releases[kind] = track.Release
	m.mu.Unlock()

	return m.Negotiate()
}

// DetachTrack removes the sender slot for kind, releases its capture source
// and renegotiates. Detaching an absent slot is a no-op.
func (m *Manager) DetachTrack(kind TrackKind) error {
	m.mu.Lock()
	sender, ok := m.senders[kind]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.pc.RemoveTrack(sender)
	if release := m.releases[kind]; release != nil {
		release()
	}
	delete(m.senders, kind)
	delete(m.releases, kind)
	m.mu.Unlock()

	return m.Negotiate()
}

// Senders returns the kinds with a live sender slot.
func (m *Manager) Senders() []TrackKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]TrackKind, 0, len(m.senders))
	for kind := range m.senders {
		kinds = append(kinds, kind)
	}
	return kinds
}

// StartScreenShare attaches the screen tracks, opens a share session and
// announces it through the relay.
func (m *Manager) StartScreenShare(source string, video LocalTrack, audio *LocalTrack) (*ShareSession, error) {
	m.mu.Lock()
	if m.share != nil {
		m.mu.Unlock()
		return nil, ErrShareInProgress
	}
	share := &ShareSession{
		ID:           ulid.Make().String(),
		RTCSessionID: m.id,
		Source:       source,
		StartedAt:    time.Now(),
	}
	m.share = share
	m.mu.Unlock()

	if err := m.AttachTrack(TrackScreenVideo, video); err != nil {
		m.mu.Lock()
		m.share = nil
		m.mu.Unlock()
		return nil, err
	}
	if audio != nil {
		if err := m.AttachTrack(TrackScreenAudio, *audio); err != nil {
			slog.Warn("screen audio attach failed, sharing video only", "error", err)
		}
	}

	payload, _ := json.Marshal(coordinator.SharePayload{
		SessionID:    share.ID,
		RTCSessionID: share.RTCSessionID,
		Source:       share.Source,
	})
	m.sendSignal(coordinator.SignalShareStarted, payload)
	return share, nil
}

// SwitchScreenShare swaps the share source inside the running session as a
// stop-then-start of the tracks, recorded in the session's switch history.
func (m *Manager) SwitchScreenShare(source string, video LocalTrack, audio *LocalTrack) error {
	m.mu.Lock()
	share := m.share
	m.mu.Unlock()
	if share == nil {
		return ErrNoActiveShare
	}

	if err := m.DetachTrack(TrackScreenVideo); err != nil {
		return err
	}
	m.DetachTrack(TrackScreenAudio)

	if err := m.AttachTrack(TrackScreenVideo, video); err != nil {
		return err
	}
	if audio != nil {
		m.AttachTrack(TrackScreenAudio, *audio)
	}

	m.mu.Lock()
	share.recordSwitch(source, time.Now())
	m.mu.Unlock()
	return nil
}

// StopScreenShare tears down the screen tracks and closes the share session,
// reporting its switch history.
func (m *Manager) StopScreenShare() error {
	m.mu.Lock()
	share := m.share
	m.share = nil
	m.mu.Unlock()
	if share == nil {
		return ErrNoActiveShare
	}

	m.DetachTrack(TrackScreenVideo)
	m.DetachTrack(TrackScreenAudio)

	switches, _ := json.Marshal(share.Switches)
	payload, _ := json.Marshal(coordinator.SharePayload{
		SessionID:    share.ID,
		RTCSessionID: share.RTCSessionID,
		Source:       share.Source,
		Switches:     switches,
	})
	m.sendSignal(coordinator.SignalShareStopped, payload)
	return nil
}

// ActiveShare returns the running share session, if any.
func (m *Manager) ActiveShare() *ShareSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.share
}

// Close tears down every sender, releases all capture sources, closes the
// connection and resets the reconnection counters. No hardware lock survives
// a leave.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	m.restarts = 0
	m.share = nil

	for kind, sender := range m.senders {
		m.pc.RemoveTrack(sender)
		if release := m.releases[kind]; release != nil {
			release()
		}
	}
	m.senders = make(map[TrackKind]*webrtc.RTPSender)
	m.releases = make(map[TrackKind]func())
	meta := m.meta
	m.mu.Unlock()

	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(StateClosed)
	}
	if meta != nil {
		meta.Close()
	}
	return m.pc.Close()
}
