package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Client -> server command tags.
const (
	CmdJoinRoom   = "JoinRoom"
	CmdUpdateInfo = "UpdateInfo"
	CmdLeaveRoom  = "LeaveRoom"
	CmdSelectCard = "SelectCard"
	CmdTellStory  = "TellStory"
	CmdEndTurn    = "EndTurn"
)

// Server -> client message tags.
const (
	MsgRoomConnect = "RoomConnect"
	MsgRoomUpdate  = "RoomUpdate"
	MsgFailConnect = "FailConnect"
)

var ErrMalformed = errors.New("malformed message")

// Command is a decoded client message. Only the fields its tag uses are set.
type Command struct {
	Tag    string `json:"tag"`
	RoomID string `json:"room,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avi,omitempty"`
	CardID string `json:"card,omitempty"`
	Text   string `json:"text,omitempty"`
}

type playerInfoArg struct {
	Name string
	Avi  string
}

// ParseCommand decodes a ["Tag", args...] array. A bare "Tag" string is
// accepted for commands without arguments.
func ParseCommand(data []byte) (Command, error) {
	data = bytes.TrimSpace(data)

	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		return parseArgs(tag, nil)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("%w: empty array", ErrMalformed)
	}
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return Command{}, fmt.Errorf("%w: tag is not a string", ErrMalformed)
	}

	return parseArgs(tag, parts[1:])
}

func parseArgs(tag string, args []json.RawMessage) (Command, error) {
	cmd := Command{Tag: tag}

	var err error
	switch tag {
	case CmdLeaveRoom, CmdEndTurn:
	case CmdJoinRoom:
		if len(args) > 0 {
			cmd.RoomID, err = stringArg(args[0])
		}
		if err == nil && len(args) > 1 {
			cmd.Name, err = stringArg(args[1])
		}
	case CmdUpdateInfo:
		if len(args) < 1 {
			return cmd, fmt.Errorf("%w: %s needs player info", ErrMalformed, tag)
		}
		var info playerInfoArg
		if err = json.Unmarshal(args[0], &info); err == nil {
			cmd.Name, cmd.Avatar = info.Name, info.Avi
		}
	case CmdSelectCard:
		if len(args) < 1 {
			return cmd, fmt.Errorf("%w: %s needs a card id", ErrMalformed, tag)
		}
		cmd.CardID, err = stringArg(args[0])
	case CmdTellStory:
		if len(args) < 1 {
			return cmd, fmt.Errorf("%w: %s needs an association", ErrMalformed, tag)
		}
		cmd.Text, err = stringArg(args[0])
	default:
		return cmd, fmt.Errorf("%w: unknown command %q", ErrMalformed, tag)
	}
	if err != nil {
		return cmd, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}

	return cmd, nil
}

// stringArg accepts strings, numbers and null, since card ids are file names
// and some clients send them unquoted.
func stringArg(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	if string(bytes.TrimSpace(raw)) == "null" {
		return "", nil
	}

	return "", fmt.Errorf("expected string, got %s", strconv.Quote(string(raw)))
}

func roomConnect(roomID string, view json.RawMessage) []any {
	return []any{MsgRoomConnect, roomID, view}
}

func roomUpdate(view json.RawMessage) []any {
	return []any{MsgRoomUpdate, view}
}
