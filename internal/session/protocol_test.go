package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{
			name:  "join existing room",
			input: `["JoinRoom", "AbCd1234", "Alice"]`,
			want:  Command{Tag: CmdJoinRoom, RoomID: "AbCd1234", Name: "Alice"},
		},
		{
			name:  "create room",
			input: `["JoinRoom", "", "Bob"]`,
			want:  Command{Tag: CmdJoinRoom, Name: "Bob"},
		},
		{
			name:  "join without name",
			input: `["JoinRoom", "AbCd1234"]`,
			want:  Command{Tag: CmdJoinRoom, RoomID: "AbCd1234"},
		},
		{
			name:  "update info",
			input: `["UpdateInfo", {"Name": "Carol", "Avi": "cat"}]`,
			want:  Command{Tag: CmdUpdateInfo, Name: "Carol", Avatar: "cat"},
		},
		{
			name:  "leave as array",
			input: `["LeaveRoom"]`,
			want:  Command{Tag: CmdLeaveRoom},
		},
		{
			name:  "leave as bare string",
			input: `"LeaveRoom"`,
			want:  Command{Tag: CmdLeaveRoom},
		},
		{
			name:  "select card",
			input: `["SelectCard", "017"]`,
			want:  Command{Tag: CmdSelectCard, CardID: "017"},
		},
		{
			name:  "select numeric card",
			input: `["SelectCard", 42]`,
			want:  Command{Tag: CmdSelectCard, CardID: "42"},
		},
		{
			name:  "tell story",
			input: ` ["TellStory", "a quiet harbour"] `,
			want:  Command{Tag: CmdTellStory, Text: "a quiet harbour"},
		},
		{
			name:  "end turn",
			input: `["EndTurn"]`,
			want:  Command{Tag: CmdEndTurn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `JoinRoom`},
		{name: "empty array", input: `[]`},
		{name: "object", input: `{"tag": "JoinRoom"}`},
		{name: "numeric tag", input: `[1, 2]`},
		{name: "unknown tag", input: `["Dance"]`},
		{name: "select without card", input: `["SelectCard"]`},
		{name: "story without text", input: `["TellStory"]`},
		{name: "story with object", input: `["TellStory", {"text": "x"}]`},
		{name: "update info without payload", input: `["UpdateInfo"]`},
		{name: "update info with string", input: `["UpdateInfo", "Carol"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestServerMessages(t *testing.T) {
	view := json.RawMessage(`{"Phase":"Waiting"}`)

	data, err := json.Marshal(roomConnect("AbCd1234", view))
	require.NoError(t, err)
	assert.JSONEq(t, `["RoomConnect", "AbCd1234", {"Phase":"Waiting"}]`, string(data))

	data, err = json.Marshal(roomUpdate(view))
	require.NoError(t, err)
	assert.JSONEq(t, `["RoomUpdate", {"Phase":"Waiting"}]`, string(data))

	data, err = json.Marshal(MsgFailConnect)
	require.NoError(t, err)
	assert.Equal(t, `"FailConnect"`, string(data))
}
