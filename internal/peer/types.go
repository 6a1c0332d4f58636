package peer

import (
	"github.com/pion/webrtc/v4"
)

// State is the lifecycle phase of a peer connection.
type State string

const (
	StateIdle         State = "idle"
	StateNegotiating  State = "negotiating"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// MaxICERestarts bounds recovery attempts; reaching the cap moves the
// connection to StateFailed and surfaces a reconnect-failed condition.
const MaxICERestarts = 3

// TrackKind identifies one outbound sender slot. Each slot owns exactly one
// RTP sender; toggling a device replaces its own slot so stale senders are
// never double-removed.
type TrackKind string

const (
	TrackCamera      TrackKind = "camera"
	TrackMicrophone  TrackKind = "microphone"
	TrackScreenVideo TrackKind = "screen-video"
	TrackScreenAudio TrackKind = "screen-audio"
)

// LocalTrack pairs a pion track with the release hook that frees its capture
// source. Release may be nil for synthetic tracks.
type LocalTrack struct {
	Track   webrtc.TrackLocal
	Release func()
}

// DeviceInfo is exchanged over the metadata data channel once it opens.
type DeviceInfo struct {
	UserID      string `msgpack:"user_id"`
	DisplayName string `msgpack:"display_name"`
	Platform    string `msgpack:"platform"`
}
