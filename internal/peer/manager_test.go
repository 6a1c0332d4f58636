package peer

import (
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/zakirhyder/huddle/internal/config"
	"github.com/zakirhyder/huddle/internal/coordinator"
)

type signalRecorder struct {
	mu      sync.Mutex
	signals []coordinator.SignalPayload
}

func (r *signalRecorder) send(sig coordinator.SignalPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *signalRecorder) ofType(sigType string) []coordinator.SignalPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []coordinator.SignalPayload
	for _, sig := range r.signals {
		if sig.Type == sigType {
			out = append(out, sig)
		}
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, *signalRecorder) {
	t.Helper()
	rec := &signalRecorder{}
	m, err := NewManager(&config.Config{STUNServer: config.DefaultSTUN}, Options{
		SendSignal: rec.send,
		Device:     DeviceInfo{UserID: "u-test", DisplayName: "brisk-otter"},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, rec
}

func videoTrack(t *testing.T, id string, release func()) LocalTrack {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "huddle")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample: %v", err)
	}
	return LocalTrack{Track: track, Release: release}
}

func TestNegotiateSendsOffer(t *testing.T) {
	m, rec := newTestManager(t)

	if got := m.State(); got != StateIdle {
		t.Fatalf("initial state = %s, want %s", got, StateIdle)
	}
	if err := m.Negotiate(); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if got := m.State(); got != StateNegotiating {
		t.Errorf("state = %s, want %s", got, StateNegotiating)
	}
	if offers := rec.ofType(coordinator.SignalOffer); len(offers) != 1 {
		t.Errorf("sent %d offers, want 1", len(offers))
	}
}

func TestAttachTrackReplacesSlot(t *testing.T) {
	m, _ := newTestManager(t)

	firstReleased := false
	if err := m.AttachTrack(TrackCamera, videoTrack(t, "cam-1", func() { firstReleased = true })); err != nil {
		t.Fatalf("first AttachTrack: %v", err)
	}
	if err := m.AttachTrack(TrackCamera, videoTrack(t, "cam-2", nil)); err != nil {
		t.Fatalf("second AttachTrack: %v", err)
	}

	if !firstReleased {
		t.Error("replacing a slot did not release the previous track")
	}
	if kinds := m.Senders(); len(kinds) != 1 || kinds[0] != TrackCamera {
		t.Errorf("senders = %v, want [camera]", kinds)
	}
}

func TestDetachAbsentSlotIsNoop(t *testing.T) {
	m, rec := newTestManager(t)

	if err := m.DetachTrack(TrackScreenVideo); err != nil {
		t.Fatalf("DetachTrack on empty slot: %v", err)
	}
	if offers := rec.ofType(coordinator.SignalOffer); len(offers) != 0 {
		t.Errorf("detaching an absent slot renegotiated (%d offers)", len(offers))
	}
}

func TestTransportDownBoundedRestarts(t *testing.T) {
	m, rec := newTestManager(t)
	if err := m.Negotiate(); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	baseline := len(rec.ofType(coordinator.SignalOffer))

	for i := 1; i <= MaxICERestarts; i++ {
		m.transportDown()
		if got := m.State(); got != StateReconnecting {
			t.Fatalf("after restart %d: state = %s, want %s", i, got, StateReconnecting)
		}
		if got := m.RestartAttempts(); got != i {
			t.Fatalf("after restart %d: attempts = %d", i, got)
		}
	}

	if offers := len(rec.ofType(coordinator.SignalOffer)) - baseline; offers != MaxICERestarts {
		t.Errorf("sent %d restart offers, want %d", offers, MaxICERestarts)
	}

	// One more failure exhausts the budget.
	m.transportDown()
	if got := m.State(); got != StateFailed {
		t.Errorf("state after exhausting restarts = %s, want %s", got, StateFailed)
	}

	// Failed is terminal: no further restart offers.
	m.transportDown()
	if offers := len(rec.ofType(coordinator.SignalOffer)) - baseline; offers != MaxICERestarts {
		t.Errorf("failed state still sent restart offers (%d total)", offers)
	}
}

func TestConnectedResetsRestartBudget(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Negotiate(); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}

	m.transportDown()
	m.transportDown()
	if got := m.RestartAttempts(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}

	m.markConnected()
	if got := m.RestartAttempts(); got != 0 {
		t.Errorf("attempts after recovery = %d, want 0", got)
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("state = %s, want %s", got, StateConnected)
	}
}

func TestScreenShareSwitchHistory(t *testing.T) {
	m, rec := newTestManager(t)

	share, err := m.StartScreenShare("window:editor", videoTrack(t, "screen-1", nil), nil)
	if err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}
	if _, err := m.StartScreenShare("screen:0", videoTrack(t, "screen-dup", nil), nil); err != ErrShareInProgress {
		t.Fatalf("second StartScreenShare err = %v, want ErrShareInProgress", err)
	}

	if err := m.SwitchScreenShare("screen:0", videoTrack(t, "screen-2", nil), nil); err != nil {
		t.Fatalf("SwitchScreenShare: %v", err)
	}
	if err := m.SwitchScreenShare("window:browser", videoTrack(t, "screen-3", nil), nil); err != nil {
		t.Fatalf("second SwitchScreenShare: %v", err)
	}

	if started := rec.ofType(coordinator.SignalShareStarted); len(started) != 1 {
		t.Errorf("sent %d share-started signals, want 1 (a switch must not open a new session)", len(started))
	}
	if len(share.Switches) != 2 {
		t.Fatalf("recorded %d switches, want 2", len(share.Switches))
	}
	if share.Switches[0].From != "window:editor" || share.Switches[0].To != "screen:0" {
		t.Errorf("first switch = %+v", share.Switches[0])
	}
	if share.Source != "window:browser" {
		t.Errorf("share source = %q, want window:browser", share.Source)
	}

	if err := m.StopScreenShare(); err != nil {
		t.Fatalf("StopScreenShare: %v", err)
	}
	if stopped := rec.ofType(coordinator.SignalShareStopped); len(stopped) != 1 {
		t.Errorf("sent %d share-stopped signals, want 1", len(stopped))
	}
	if err := m.StopScreenShare(); err != ErrNoActiveShare {
		t.Errorf("StopScreenShare on idle err = %v, want ErrNoActiveShare", err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	m, _ := newTestManager(t)

	released := 0
	if err := m.AttachTrack(TrackCamera, videoTrack(t, "cam", func() { released++ })); err != nil {
		t.Fatalf("AttachTrack camera: %v", err)
	}
	if err := m.AttachTrack(TrackScreenVideo, videoTrack(t, "screen", func() { released++ })); err != nil {
		t.Fatalf("AttachTrack screen: %v", err)
	}
	m.transportDown()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if released != 2 {
		t.Errorf("released %d capture sources, want 2", released)
	}
	if got := m.State(); got != StateClosed {
		t.Errorf("state = %s, want %s", got, StateClosed)
	}
	if got := m.RestartAttempts(); got != 0 {
		t.Errorf("restart attempts after close = %d, want 0", got)
	}

	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := m.AttachTrack(TrackCamera, videoTrack(t, "cam-2", nil)); err != ErrClosed {
		t.Errorf("AttachTrack after close err = %v, want ErrClosed", err)
	}
}
