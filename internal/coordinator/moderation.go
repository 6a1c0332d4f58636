package coordinator

// ModerationOutcome is the evaluated result of a host action. The hub applies
// the side effects (notifications, roster broadcast, connection close).
type ModerationOutcome struct {
	Code   string
	Target *ParticipantSession

	// Removed is set for block: the target left the roster and presenter
	// reassignment already ran.
	Removed bool
}

// Moderate validates and applies a moderation action against room state.
// Caller must be the host; the target must be a roster member other than the
// host. Actions are never persisted; they are applied synchronously.
func (g *Registry) Moderate(room *RoomSession, actorID string, req ModerationRequest) ModerationOutcome {
	if actorID != room.HostID {
		return ModerationOutcome{Code: CodeNotHost}
	}
	if req.TargetUserID == "" {
		return ModerationOutcome{Code: CodeTargetRequired}
	}
	if req.TargetUserID == room.HostID {
		return ModerationOutcome{Code: CodeCannotTargetHost}
	}
	target := room.Participants[req.TargetUserID]
	if target == nil {
		return ModerationOutcome{Code: CodeTargetNotFound}
	}

	switch req.Type {
	case ModerationMute:
		// Soft mute: the target's own runtime turns off its microphone.
		// No server-side roster state changes.
		return ModerationOutcome{Target: target}

	case ModerationBlock:
		delete(room.Participants, req.TargetUserID)
		if room.PresenterID == req.TargetUserID {
			room.reassignPresenter()
		}
		return ModerationOutcome{Target: target, Removed: true}

	case ModerationPresenter:
		// Unconditional handoff; no readiness check on the target.
		room.PresenterID = req.TargetUserID
		return ModerationOutcome{Target: target}

	default:
		return ModerationOutcome{Code: CodeBadRequest}
	}
}
