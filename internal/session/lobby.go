package session

import (
	"errors"

	"go.uber.org/zap"
)

// Lobby is the entry point for every connection. It decodes client
// messages and routes them: room membership to the registry, game commands
// to the client's room.
type Lobby struct {
	registry *Registry
	log      *zap.Logger
}

func NewLobby(registry *Registry) *Lobby {
	return &Lobby{
		registry: registry,
		log:      registry.log,
	}
}

func (l *Lobby) Registry() *Registry { return l.registry }

func (l *Lobby) Enter(c *Client) {
	l.registry.Connect(c)
}

func (l *Lobby) Exit(c *Client) {
	l.registry.Disconnect(c)
}

// Waiting reports how many connected clients are not seated in a room.
func (l *Lobby) Waiting() int {
	_, unseated := l.registry.Connected()
	return unseated
}

func (l *Lobby) Route(c *Client, data []byte) {
	cmd, err := ParseCommand(data)
	if err != nil {
		l.log.Debug("LOBBY: Ignored message", zap.String("player", c.PlayerID), zap.Error(err))
		return
	}

	switch cmd.Tag {
	case CmdJoinRoom:
		if cmd.RoomID == "" {
			_, err = l.registry.Create(c, cmd.Name)
		} else {
			err = l.registry.Join(c, cmd.RoomID, cmd.Name)
		}
		if err != nil {
			l.log.Info("LOBBY: Join failed",
				zap.String("player", c.PlayerID),
				zap.String("room", cmd.RoomID),
				zap.Error(err),
			)
			if !c.trySend(MsgFailConnect) {
				go l.Exit(c)
			}
		}

	case CmdLeaveRoom:
		err = l.registry.Leave(c)

	case CmdUpdateInfo:
		err = l.registry.Rename(c, cmd.Name, cmd.Avatar)

	default:
		err = l.registry.Dispatch(c, cmd)
		if errors.Is(err, ErrNotSeated) || errors.Is(err, ErrNotConnected) {
			l.log.Debug("LOBBY: Command outside a room",
				zap.String("player", c.PlayerID),
				zap.String("command", cmd.Tag),
			)
			if !c.trySend(MsgFailConnect) {
				go l.Exit(c)
			}
			return
		}
	}

	if err != nil && !errors.Is(err, ErrNotSeated) && cmd.Tag != CmdJoinRoom {
		l.log.Debug("LOBBY: Command not delivered",
			zap.String("player", c.PlayerID),
			zap.String("command", cmd.Tag),
			zap.Error(err),
		)
	}
}
