package cli

import (
	"context"
	"time"

	"github.com/zakirhyder/huddle/internal/config"
	"github.com/zakirhyder/huddle/internal/coordinator"
	"github.com/zakirhyder/huddle/internal/signaling"
)

const (
	joinAckTimeout = 10 * time.Second
	chatAckTimeout = 10 * time.Second
)

// ConnectionContext bundles the signaling pieces one session needs.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.WebSocketURL())
	if err := client.Connect(ctx); err != nil {
		return nil, NewError("connect to coordinator", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// JoinRoom runs the join handshake and waits for the ack. On success it
// returns the heartbeat grace the coordinator granted.
func (c *ConnectionContext) JoinRoom(req coordinator.JoinRequest) (time.Duration, error) {
	c.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeJoinRoom, req))

	select {
	case ack := <-c.Handler.JoinAck:
		if !ack.OK {
			return 0, ackError("join room", ack.Error)
		}
		return time.Duration(ack.HeartbeatGraceMs) * time.Millisecond, nil
	case <-c.Client.Done():
		return 0, NewError("join room", ErrSignalingError)
	case <-time.After(joinAckTimeout):
		return 0, NewError("join room", ErrTimeout)
	}
}

// SendChat sends a chat message and waits for the coordinator's ack.
func (c *ConnectionContext) SendChat(content string) (string, error) {
	msg := coordinator.ChatMessage{Content: content}
	c.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeChatMessage, msg))

	select {
	case ack := <-c.Handler.ChatAck:
		if !ack.OK {
			return "", ackError("send chat", ack.Error)
		}
		return ack.ID, nil
	case <-time.After(chatAckTimeout):
		return "", NewError("send chat", ErrTimeout)
	}
}

// SendReaction fires an emoji burst. Reactions are fire-and-forget on the
// sending side; the ack only surfaces rejections.
func (c *ConnectionContext) SendReaction(emoji string) {
	c.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeReactionSend,
		coordinator.ReactionSend{Emoji: emoji}))
}

// EndRoom asks the coordinator to end the room (host only).
func (c *ConnectionContext) EndRoom(reason string) error {
	c.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeRoomEnd,
		coordinator.RoomEndRequest{Reason: reason}))

	select {
	case ack := <-c.Handler.RoomEndAck:
		if !ack.OK {
			return ackError("end room", ack.Error)
		}
		return nil
	case <-time.After(joinAckTimeout):
		return NewError("end room", ErrTimeout)
	}
}

// Moderate sends a host moderation action and waits for the ack.
func (c *ConnectionContext) Moderate(req coordinator.ModerationRequest) error {
	c.Client.SendMessage(coordinator.NewEnvelope(coordinator.TypeModeration, req))

	select {
	case ack := <-c.Handler.ModerationAck:
		if !ack.OK {
			return ackError("moderate", ack.Error)
		}
		return nil
	case <-time.After(joinAckTimeout):
		return NewError("moderate", ErrTimeout)
	}
}

// Resume re-dials the coordinator after a dropped connection and replays the
// join handshake with the reconnect marker set. A failure here is terminal
// for the session.
func (c *ConnectionContext) Resume(ctx context.Context, req coordinator.JoinRequest) error {
	if err := c.Client.Reconnect(ctx); err != nil {
		return NewError("reconnect", err)
	}

	req.Reconnect = true
	if _, err := c.JoinRoom(req); err != nil {
		return err
	}
	return nil
}
