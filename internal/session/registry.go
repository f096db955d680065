/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session connects websocket clients to storyteller rooms.
//
// A Registry tracks which player each connection belongs to and which room
// each player sits in. Rooms are owned by exactly one process; the owner
// publishes every player's view on the room's events topic, and every
// process with seated players relays those views to its own connections.
package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Seednode/storyteller/internal/catalog"
	"github.com/Seednode/storyteller/internal/game"
)

var (
	ErrNoSuchRoom    = errors.New("no such room")
	ErrAlreadySeated = errors.New("player is already in a room")
	ErrNotSeated     = errors.New("player is not in a room")
	ErrNotConnected  = errors.New("client is not connected")
)

type Options struct {
	// Node names this process in the room directory.
	Node      string
	Bus       Bus
	Directory Directory
	Catalog   *catalog.Catalog
	Settings  game.Settings
	Logger    *zap.Logger

	// IdleTimeout closes rooms that have seen no action for this long.
	// Zero disables the reaper.
	IdleTimeout time.Duration

	// JoinTimeout is how long a join to a room owned by another process
	// may go unanswered before the player gets FailConnect.
	JoinTimeout time.Duration
}

const defaultJoinTimeout = 5 * time.Second

type Registry struct {
	ctx         context.Context
	node        string
	bus         Bus
	dir         Directory
	catalog     *catalog.Catalog
	settings    game.Settings
	log         *zap.Logger
	idleTimeout time.Duration
	joinTimeout time.Duration

	mu      sync.Mutex
	players map[string]*Player
	clients map[string]*Client
	rooms   map[string]*Room
	feeds   map[string]*feed
	pending map[string]*pendingJoin
}

// pendingJoin waits for a remote owner to answer a join.
type pendingJoin struct {
	room  string
	timer *time.Timer
}

// feed relays one room's events to the local clients seated in it.
type feed struct {
	room string
	sub  Subscription
	done chan struct{}
}

// NewRegistry returns a registry whose rooms live until ctx is cancelled.
func NewRegistry(ctx context.Context, opts Options) *Registry {
	if opts.Bus == nil {
		opts.Bus = NewLocalBus()
	}
	if opts.Directory == nil {
		opts.Directory = NewLocalDirectory()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}

	r := &Registry{
		ctx:         ctx,
		node:        opts.Node,
		bus:         opts.Bus,
		dir:         opts.Directory,
		catalog:     opts.Catalog,
		settings:    opts.Settings,
		log:         opts.Logger,
		idleTimeout: opts.IdleTimeout,
		joinTimeout: opts.JoinTimeout,
		players:     make(map[string]*Player),
		clients:     make(map[string]*Client),
		rooms:       make(map[string]*Room),
		feeds:       make(map[string]*feed),
		pending:     make(map[string]*pendingJoin),
	}

	if r.idleTimeout > 0 {
		go r.reaperLoop(ctx)
	}

	return r
}

// Connect binds a client to its player. An older connection for the same
// player is disconnected first.
func (r *Registry) Connect(c *Client) {
	r.mu.Lock()
	old := r.clients[c.PlayerID]
	r.mu.Unlock()

	if old != nil && old != c {
		r.log.Info("ROOMS: Connection superseded", zap.String("player", c.PlayerID))
		r.Disconnect(old)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.players[c.PlayerID] == nil {
		r.players[c.PlayerID] = &Player{ID: c.PlayerID, Name: defaultName(c.PlayerID)}
	}
	r.clients[c.PlayerID] = c
}

// Disconnect forgets a client and leaves its room. It is safe to call more
// than once.
func (r *Registry) Disconnect(c *Client) {
	r.mu.Lock()
	if r.clients[c.PlayerID] != c {
		r.mu.Unlock()
		c.close()
		return
	}

	p := r.players[c.PlayerID]
	delete(r.clients, c.PlayerID)
	delete(r.players, c.PlayerID)
	r.settleJoinLocked(c.PlayerID)

	room := p.room
	p.room = ""
	info := p.info()
	r.mu.Unlock()

	c.close()

	if room != "" {
		if err := r.toOwner(room, Envelope{Kind: kindLeave, Room: room, Player: &info}); err != nil {
			r.log.Debug("ROOMS: Leave on disconnect not delivered", zap.String("room", room), zap.Error(err))
		}
		r.releaseFeed(room)
	}
}

// playerLocked returns the player bound to c. The caller holds r.mu.
func (r *Registry) playerLocked(c *Client) (*Player, error) {
	if r.clients[c.PlayerID] != c {
		return nil, ErrNotConnected
	}

	return r.players[c.PlayerID], nil
}

// Create opens a new room owned by this process and seats the client in it.
func (r *Registry) Create(c *Client, name string) (string, error) {
	r.mu.Lock()
	p, err := r.playerLocked(c)
	if err == nil && p.room != "" {
		err = ErrAlreadySeated
	}
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	id, err := r.claimRoomID()
	if err != nil {
		return "", fmt.Errorf("claiming room id: %w", err)
	}

	room := newRoom(id, game.New(r.settings, r.catalog, nil), r.bus, r.log, r.roomClosed)
	if err := room.start(r.ctx); err != nil {
		_ = r.dir.Release(context.Background(), id)
		return "", fmt.Errorf("starting room %s: %w", id, err)
	}

	r.mu.Lock()
	r.rooms[id] = room
	r.mu.Unlock()

	r.log.Info("ROOMS: Created room", zap.String("room", id), zap.String("player", c.PlayerID))

	if err := r.Join(c, id, name); err != nil {
		room.Close()
		return "", err
	}

	return id, nil
}

// Join seats the client in an existing room, local or remote. The room
// answers asynchronously with RoomConnect or FailConnect.
func (r *Registry) Join(c *Client, roomID, name string) error {
	r.mu.Lock()
	p, err := r.playerLocked(c)
	if err == nil && p.room != "" {
		err = ErrAlreadySeated
	}
	_, local := r.rooms[roomID]
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if !local {
		_, ok, err := r.dir.Owner(r.ctx, roomID)
		if err != nil {
			return fmt.Errorf("looking up room %s: %w", roomID, err)
		}
		if !ok {
			return ErrNoSuchRoom
		}
	}

	r.mu.Lock()
	if p.room != "" {
		r.mu.Unlock()
		return ErrAlreadySeated
	}
	if n := cleanName(name); n != "" {
		p.Name = n
	}
	p.room = roomID
	info := p.info()
	r.mu.Unlock()

	if err := r.ensureFeed(roomID); err != nil {
		r.unseat(p, roomID)
		return fmt.Errorf("following room %s: %w", roomID, err)
	}

	if !local {
		r.awaitJoin(p.ID, roomID)
	}

	if err := r.toOwner(roomID, Envelope{Kind: kindJoin, Room: roomID, Player: &info}); err != nil {
		r.mu.Lock()
		r.settleJoinLocked(p.ID)
		r.mu.Unlock()
		r.unseat(p, roomID)
		return err
	}

	return nil
}

// awaitJoin starts the clock on a join sent to another process. A room
// whose owner died can still be listed in the directory until its entry
// expires; joiners of such a room are unseated when the clock runs out.
func (r *Registry) awaitJoin(playerID, roomID string) {
	pj := &pendingJoin{room: roomID}

	r.mu.Lock()
	r.settleJoinLocked(playerID)
	r.pending[playerID] = pj
	pj.timer = time.AfterFunc(r.joinTimeout, func() { r.joinExpired(playerID, pj) })
	r.mu.Unlock()
}

// settleJoinLocked forgets a pending join. The caller holds r.mu.
func (r *Registry) settleJoinLocked(playerID string) {
	if pj := r.pending[playerID]; pj != nil {
		pj.timer.Stop()
		delete(r.pending, playerID)
	}
}

func (r *Registry) joinExpired(playerID string, pj *pendingJoin) {
	r.mu.Lock()
	if r.pending[playerID] != pj {
		r.mu.Unlock()
		return
	}
	delete(r.pending, playerID)

	p, c := r.players[playerID], r.clients[playerID]
	if p == nil || p.room != pj.room {
		r.mu.Unlock()
		return
	}
	p.room = ""
	r.mu.Unlock()

	r.log.Warn("ROOMS: Join went unanswered", zap.String("room", pj.room), zap.String("player", playerID))

	if c != nil && !c.trySend(MsgFailConnect) {
		go r.Disconnect(c)
	}
	r.releaseFeed(pj.room)
}

// Leave unseats the client. Its score stays suspended in the room.
func (r *Registry) Leave(c *Client) error {
	r.mu.Lock()
	p, err := r.playerLocked(c)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	room := p.room
	if room == "" {
		r.mu.Unlock()
		return ErrNotSeated
	}
	p.room = ""
	info := p.info()
	r.mu.Unlock()

	defer r.releaseFeed(room)

	return r.toOwner(room, Envelope{Kind: kindLeave, Room: room, Player: &info})
}

// Rename updates the player's name and avatar, and their seat if they have
// one.
func (r *Registry) Rename(c *Client, name, avatar string) error {
	r.mu.Lock()
	p, err := r.playerLocked(c)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if n := cleanName(name); n != "" {
		p.Name = n
	}
	if avatar != "" {
		p.Avatar = avatar
	}
	room := p.room
	info := p.info()
	r.mu.Unlock()

	if room == "" {
		return nil
	}

	return r.toOwner(room, Envelope{Kind: kindRename, Room: room, Player: &info})
}

// Dispatch forwards a game command to the client's room.
func (r *Registry) Dispatch(c *Client, cmd Command) error {
	r.mu.Lock()
	p, err := r.playerLocked(c)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	room := p.room
	info := p.info()
	r.mu.Unlock()

	if room == "" {
		return ErrNotSeated
	}

	return r.toOwner(room, Envelope{Kind: kindCommand, Room: room, Player: &info, Command: &cmd})
}

// toOwner delivers an action to the process that owns the room.
func (r *Registry) toOwner(roomID string, env Envelope) error {
	r.mu.Lock()
	room := r.rooms[roomID]
	r.mu.Unlock()

	if room == nil {
		return publishEnvelope(r.ctx, r.bus, actionsTopic(roomID), env)
	}

	a, ok := envelopeAction(env)
	if !ok {
		return fmt.Errorf("unroutable %s action", env.Kind)
	}
	if !room.submit(a) {
		return ErrNoSuchRoom
	}

	return nil
}

func (r *Registry) unseat(p *Player, roomID string) {
	r.mu.Lock()
	if p.room == roomID {
		p.room = ""
	}
	r.mu.Unlock()

	r.releaseFeed(roomID)
}

func (r *Registry) ensureFeed(roomID string) error {
	r.mu.Lock()
	_, ok := r.feeds[roomID]
	r.mu.Unlock()
	if ok {
		return nil
	}

	sub, err := r.bus.Subscribe(r.ctx, eventsTopic(roomID))
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.feeds[roomID]; ok {
		r.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	f := &feed{room: roomID, sub: sub, done: make(chan struct{})}
	r.feeds[roomID] = f
	r.mu.Unlock()

	go r.follow(f)

	return nil
}

// releaseFeed stops relaying a room once no local player is seated in it.
func (r *Registry) releaseFeed(roomID string) {
	r.mu.Lock()
	for _, p := range r.players {
		if p.room == roomID {
			r.mu.Unlock()
			return
		}
	}
	f := r.feeds[roomID]
	delete(r.feeds, roomID)
	r.mu.Unlock()

	if f != nil {
		close(f.done)
	}
}

func (r *Registry) follow(f *feed) {
	defer f.sub.Close()

	for {
		select {
		case data := <-f.sub.Messages():
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				r.log.Warn("ROOMS: Dropped malformed event", zap.String("room", f.room), zap.Error(err))
				continue
			}
			r.deliver(env)
		case <-f.done:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

type delivery struct {
	client *Client
	msg    any
}

func (r *Registry) deliver(env Envelope) {
	var out []delivery
	release := false

	r.mu.Lock()
	switch env.Kind {
	case kindUpdate:
		for pid, view := range env.Views {
			c, p := r.clients[pid], r.players[pid]
			if c == nil || p == nil || p.room != env.Room {
				continue
			}
			if pj := r.pending[pid]; pj != nil && pj.room == env.Room {
				r.settleJoinLocked(pid)
			}
			if pid == env.Joined {
				out = append(out, delivery{c, roomConnect(env.Room, view)})
			} else {
				out = append(out, delivery{c, roomUpdate(view)})
			}
		}

	case kindReject:
		if env.Player == nil {
			break
		}
		c, p := r.clients[env.Player.ID], r.players[env.Player.ID]
		if c != nil && p != nil && p.room == env.Room {
			r.settleJoinLocked(env.Player.ID)
			p.room = ""
			out = append(out, delivery{c, MsgFailConnect})
			release = true
		}

	case kindClosed:
		for pid, p := range r.players {
			if p.room != env.Room {
				continue
			}
			p.room = ""
			r.settleJoinLocked(pid)
			if c := r.clients[pid]; c != nil {
				out = append(out, delivery{c, MsgFailConnect})
			}
		}
		release = true
	}
	r.mu.Unlock()

	for _, d := range out {
		if !d.client.trySend(d.msg) {
			r.log.Warn("ROOMS: Client too slow, disconnecting",
				zap.String("room", env.Room),
				zap.String("player", d.client.PlayerID),
			)
			go r.Disconnect(d.client)
		}
	}

	if release {
		r.releaseFeed(env.Room)
	}
}

func (r *Registry) roomClosed(id string) {
	r.mu.Lock()
	delete(r.rooms, id)
	r.mu.Unlock()

	if err := r.dir.Release(context.Background(), id); err != nil {
		r.log.Warn("ROOMS: Failed to release room", zap.String("room", id), zap.Error(err))
	}
}

// newRoomID generates a crypto-random room id.
func newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}

	return string(buf)
}

func (r *Registry) claimRoomID() (string, error) {
	for {
		id := newRoomID()

		ok, err := r.dir.Claim(r.ctx, id, r.node)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
}

// reaperLoop closes rooms that have been idle longer than idleTimeout and
// keeps the directory entries of the others alive.
func (r *Registry) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-r.idleTimeout)

		var idle, live []*Room
		r.mu.Lock()
		for _, room := range r.rooms {
			if room.LastActive().Before(cutoff) {
				idle = append(idle, room)
			} else {
				live = append(live, room)
			}
		}
		r.mu.Unlock()

		for _, room := range idle {
			r.log.Info("ROOMS: Reaping idle room", zap.String("room", room.ID()))
			room.Close()
		}
		for _, room := range live {
			if err := r.dir.Refresh(ctx, room.ID()); err != nil {
				r.log.Warn("ROOMS: Failed to refresh room", zap.String("room", room.ID()), zap.Error(err))
			}
		}
	}
}

// Rooms reports how many rooms this process owns.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// Connected reports how many clients are connected, and how many of them
// are not seated in any room.
func (r *Registry) Connected() (total, unseated int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid := range r.clients {
		if p := r.players[pid]; p != nil && p.room == "" {
			unseated++
		}
	}

	return len(r.clients), unseated
}

// RoomOf returns the id of the room the player is seated in.
func (r *Registry) RoomOf(playerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.players[playerID]
	if p == nil || p.room == "" {
		return "", false
	}

	return p.room, true
}
