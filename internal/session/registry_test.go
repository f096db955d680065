package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/storyteller/internal/catalog"
	"github.com/Seednode/storyteller/internal/game"
)

const waitTimeout = 2 * time.Second

type view struct {
	Client struct {
		Name          string
		Avi           string
		Role          string
		Score         int
		MoveAvailable bool
	}
	Opponents []struct {
		Name string
		Role string
	}
	Hand struct {
		Cards []string
	}
	Table struct {
		Story string
	}
	Phase string
}

type message struct {
	tag  string
	room string
	view view
}

func testSettings() game.Settings {
	s := game.DefaultSettings()
	s.MoveTime = 0
	return s
}

func newTestLobby(t *testing.T, opts Options) *Lobby {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if opts.Catalog == nil {
		opts.Catalog = catalog.New(catalog.Builtin(100))
	}
	if opts.Settings == (game.Settings{}) {
		opts.Settings = testSettings()
	}
	if opts.Node == "" {
		opts.Node = "node-a"
	}

	return NewLobby(NewRegistry(ctx, opts))
}

func connect(l *Lobby, playerID string) *Client {
	c := NewClient(nil, playerID)
	l.Enter(c)
	return c
}

func next(t *testing.T, c *Client) message {
	t.Helper()

	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "client %s was closed", c.PlayerID)

		if s, ok := raw.(string); ok {
			return message{tag: s}
		}

		parts, ok := raw.([]any)
		require.True(t, ok, "unexpected message %#v", raw)

		m := message{tag: parts[0].(string)}
		if m.tag == MsgRoomConnect {
			m.room = parts[1].(string)
		}
		require.NoError(t, json.Unmarshal(parts[len(parts)-1].(json.RawMessage), &m.view))
		return m
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for a message to %s", c.PlayerID)
		return message{}
	}
}

// waitFor reads messages until one satisfies match.
func waitFor(t *testing.T, c *Client, match func(message) bool) message {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if m := next(t, c); match(m) {
			return m
		}
	}
	t.Fatalf("no matching message for %s", c.PlayerID)
	return message{}
}

func connected(t *testing.T, c *Client) message {
	t.Helper()

	m := next(t, c)
	require.Equal(t, MsgRoomConnect, m.tag)
	return m
}

func failed(t *testing.T, c *Client) {
	t.Helper()

	assert.Equal(t, MsgFailConnect, next(t, c).tag)
}

func phase(p string) func(message) bool {
	return func(m message) bool { return m.view.Phase == p }
}

func createRoom(t *testing.T, l *Lobby, c *Client, name string) string {
	t.Helper()

	l.Route(c, []byte(`["JoinRoom", "", "`+name+`"]`))
	m := connected(t, c)
	require.Len(t, m.room, 8)
	return m.room
}

func joinRoom(t *testing.T, l *Lobby, c *Client, room, name string) message {
	t.Helper()

	l.Route(c, []byte(`["JoinRoom", "`+room+`", "`+name+`"]`))
	return connected(t, c)
}

func TestCreateAndJoin(t *testing.T) {
	l := newTestLobby(t, Options{})
	reg := l.Registry()

	alice := connect(l, "alice")
	bob := connect(l, "bob")
	carol := connect(l, "carol")
	assert.Equal(t, 3, l.Waiting())

	room := createRoom(t, l, alice, "Alice")
	assert.Equal(t, 1, reg.Rooms())
	got, ok := reg.RoomOf("alice")
	require.True(t, ok)
	assert.Equal(t, room, got)

	m := joinRoom(t, l, bob, room, "Bob")
	assert.Equal(t, room, m.room)
	assert.Equal(t, "Waiting", m.view.Phase)
	assert.Equal(t, "Bob", m.view.Client.Name)
	require.Len(t, m.view.Opponents, 1)
	assert.Equal(t, "Alice", m.view.Opponents[0].Name)

	m = next(t, alice)
	assert.Equal(t, MsgRoomUpdate, m.tag)
	assert.Len(t, m.view.Opponents, 1)

	m = joinRoom(t, l, carol, room, "Carol")
	assert.Equal(t, "Storytelling", m.view.Phase)
	assert.Len(t, m.view.Hand.Cards, game.HandSize)

	for _, c := range []*Client{alice, bob} {
		m := waitFor(t, c, phase("Storytelling"))
		assert.Equal(t, MsgRoomUpdate, m.tag)
		assert.Len(t, m.view.Opponents, 2)
	}
	assert.Equal(t, 0, l.Waiting())
}

func TestJoinUnknownRoom(t *testing.T) {
	l := newTestLobby(t, Options{})

	c := connect(l, "alice")
	l.Route(c, []byte(`["JoinRoom", "NoSuchRm", "Alice"]`))
	failed(t, c)

	_, ok := l.Registry().RoomOf("alice")
	assert.False(t, ok)
	assert.Equal(t, 1, l.Waiting())
}

func TestJoinWhileSeated(t *testing.T) {
	l := newTestLobby(t, Options{})

	c := connect(l, "alice")
	room := createRoom(t, l, c, "Alice")

	l.Route(c, []byte(`["JoinRoom", "", "Alice"]`))
	failed(t, c)

	got, ok := l.Registry().RoomOf("alice")
	require.True(t, ok)
	assert.Equal(t, room, got)
	assert.Equal(t, 1, l.Registry().Rooms())
}

func TestRoomFull(t *testing.T) {
	s := testSettings()
	s.PlayersToStart = 2
	s.MaxPlayers = 2
	l := newTestLobby(t, Options{Settings: s})

	alice := connect(l, "alice")
	bob := connect(l, "bob")
	carol := connect(l, "carol")

	room := createRoom(t, l, alice, "Alice")
	joinRoom(t, l, bob, room, "Bob")

	l.Route(carol, []byte(`["JoinRoom", "`+room+`", "Carol"]`))
	failed(t, carol)

	_, ok := l.Registry().RoomOf("carol")
	assert.False(t, ok)
}

func TestLeaveClosesEmptyRoom(t *testing.T) {
	l := newTestLobby(t, Options{})
	reg := l.Registry()

	alice := connect(l, "alice")
	createRoom(t, l, alice, "Alice")

	l.Route(alice, []byte(`["LeaveRoom"]`))

	assert.Eventually(t, func() bool { return reg.Rooms() == 0 }, waitTimeout, 5*time.Millisecond)
	_, ok := reg.RoomOf("alice")
	assert.False(t, ok)
	assert.Equal(t, 1, l.Waiting())
}

func TestDisconnectLeaves(t *testing.T) {
	l := newTestLobby(t, Options{})

	alice := connect(l, "alice")
	bob := connect(l, "bob")
	room := createRoom(t, l, alice, "Alice")
	joinRoom(t, l, bob, room, "Bob")
	next(t, alice)

	l.Exit(bob)
	l.Exit(bob)

	_, open := <-bob.send
	assert.False(t, open)

	m := waitFor(t, alice, func(m message) bool { return len(m.view.Opponents) == 0 })
	assert.Equal(t, MsgRoomUpdate, m.tag)

	total, _ := l.Registry().Connected()
	assert.Equal(t, 1, total)
}

func TestReconnectSupersedes(t *testing.T) {
	l := newTestLobby(t, Options{})

	alice := connect(l, "alice")
	bob := connect(l, "bob")
	room := createRoom(t, l, alice, "Alice")
	joinRoom(t, l, bob, room, "Bob")

	again := connect(l, "bob")
	for range bob.send {
	}

	waitFor(t, alice, func(m message) bool { return len(m.view.Opponents) == 0 })
	_, ok := l.Registry().RoomOf("bob")
	assert.False(t, ok)

	m := joinRoom(t, l, again, room, "Bob")
	assert.Equal(t, "Bob", m.view.Client.Name)
	assert.Len(t, m.view.Opponents, 1)
}

func TestRenameReachesRoom(t *testing.T) {
	l := newTestLobby(t, Options{})

	alice := connect(l, "alice")
	bob := connect(l, "bob")
	room := createRoom(t, l, alice, "Alice")
	joinRoom(t, l, bob, room, "Bob")
	next(t, alice)

	l.Route(bob, []byte(`["UpdateInfo", {"Name": "Robert", "Avi": "owl"}]`))

	m := next(t, alice)
	require.Len(t, m.view.Opponents, 1)
	assert.Equal(t, "Robert", m.view.Opponents[0].Name)

	m = next(t, bob)
	assert.Equal(t, "owl", m.view.Client.Avi)
}

func TestCommandsOutsideRoomFail(t *testing.T) {
	l := newTestLobby(t, Options{})

	c := connect(l, "alice")
	for _, cmd := range []string{`["SelectCard", "001"]`, `["TellStory", "clue"]`, `["EndTurn"]`} {
		l.Route(c, []byte(cmd))
		failed(t, c)
	}

	l.Route(c, []byte(`["LeaveRoom"]`))
	l.Route(c, []byte(`garbage`))

	select {
	case m := <-c.send:
		t.Fatalf("unexpected message %#v", m)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, l.Waiting())
}

func TestCommandsAfterRoomClosedFail(t *testing.T) {
	l := newTestLobby(t, Options{IdleTimeout: 40 * time.Millisecond})

	alice := connect(l, "alice")
	createRoom(t, l, alice, "Alice")
	failed(t, alice)

	l.Route(alice, []byte(`["SelectCard", "001"]`))
	failed(t, alice)
}

// eventlessBus refuses subscriptions to events topics.
type eventlessBus struct {
	Bus
}

func (b eventlessBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if strings.HasSuffix(topic, ":events") {
		return nil, errors.New("subscribe refused")
	}
	return b.Bus.Subscribe(ctx, topic)
}

func TestCreateFailureClosesRoom(t *testing.T) {
	dir := NewLocalDirectory()
	l := newTestLobby(t, Options{Bus: eventlessBus{NewLocalBus()}, Directory: dir})
	reg := l.Registry()

	alice := connect(l, "alice")
	_, err := reg.Create(alice, "Alice")
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return reg.Rooms() == 0 && len(dir.owners) == 0
	}, waitTimeout, 5*time.Millisecond)
	_, ok := reg.RoomOf("alice")
	assert.False(t, ok)
}

func TestJoinDeadOwnerTimesOut(t *testing.T) {
	bus := NewLocalBus()
	dir := NewLocalDirectory()
	_, err := dir.Claim(context.Background(), "Orphaned", "node-gone")
	require.NoError(t, err)

	l := newTestLobby(t, Options{Bus: bus, Directory: dir, JoinTimeout: 40 * time.Millisecond})

	bob := connect(l, "bob")
	l.Route(bob, []byte(`["JoinRoom", "Orphaned", "Bob"]`))
	failed(t, bob)

	_, ok := l.Registry().RoomOf("bob")
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return bus.Subscribers(eventsTopic("Orphaned")) == 0 }, waitTimeout, 5*time.Millisecond)
}

func TestCrossProcessRoom(t *testing.T) {
	bus := NewLocalBus()
	dir := NewLocalDirectory()

	owner := newTestLobby(t, Options{Node: "node-a", Bus: bus, Directory: dir})
	relay := newTestLobby(t, Options{Node: "node-b", Bus: bus, Directory: dir})

	alice := connect(owner, "alice")
	bob := connect(relay, "bob")
	carol := connect(relay, "carol")

	room := createRoom(t, owner, alice, "Alice")

	m := joinRoom(t, relay, bob, room, "Bob")
	assert.Equal(t, "Alice", m.view.Opponents[0].Name)
	assert.Equal(t, 0, relay.Registry().Rooms())
	assert.Equal(t, 1, owner.Registry().Rooms())

	joinRoom(t, relay, carol, room, "Carol")

	clients := map[*Client]*Lobby{alice: owner, bob: relay, carol: relay}
	var teller *Client
	var hand []string
	for c := range clients {
		m := waitFor(t, c, phase("Storytelling"))
		if m.view.Client.Role == game.RoleStoryteller {
			teller, hand = c, m.view.Hand.Cards
		}
	}
	require.NotNil(t, teller)
	require.NotEmpty(t, hand)

	clients[teller].Route(teller, []byte(`["SelectCard", "`+hand[0]+`"]`))
	clients[teller].Route(teller, []byte(`["TellStory", "over the hills"]`))

	for c := range clients {
		m := waitFor(t, c, phase("Matching"))
		assert.Equal(t, "over the hills", m.view.Table.Story)
	}

	relay.Exit(carol)
	m = waitFor(t, alice, func(m message) bool { return len(m.view.Opponents) == 1 })
	assert.Equal(t, "Bob", m.view.Opponents[0].Name)
}

func TestIdleRoomReaped(t *testing.T) {
	l := newTestLobby(t, Options{IdleTimeout: 40 * time.Millisecond})

	alice := connect(l, "alice")
	createRoom(t, l, alice, "Alice")

	failed(t, alice)
	assert.Eventually(t, func() bool { return l.Registry().Rooms() == 0 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 1, l.Waiting())
}

func TestMoveTimeRotatesStoryteller(t *testing.T) {
	s := testSettings()
	s.RuleSet = game.Dixit
	s.PlayersToStart = 2
	s.MoveTime = 30 * time.Millisecond
	l := newTestLobby(t, Options{Settings: s})

	alice := connect(l, "alice")
	bob := connect(l, "bob")
	room := createRoom(t, l, alice, "Alice")
	joinRoom(t, l, bob, room, "Bob")

	m := waitFor(t, alice, phase("Storytelling"))
	first := m.view.Client.Role

	m = waitFor(t, alice, func(m message) bool { return m.view.Client.Role != first })
	assert.Equal(t, "Storytelling", m.view.Phase)
}
