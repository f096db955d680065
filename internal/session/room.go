package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Seednode/storyteller/internal/game"
)

type actionKind int

const (
	actJoin actionKind = iota
	actLeave
	actCommand
	actRename
	actTimeout
	actClose
)

type action struct {
	kind   actionKind
	player PlayerInfo
	cmd    Command
	epoch  int
}

// Room is the authoritative handler of one game. Its run loop is the only
// goroutine that touches the game; everything else submits actions.
type Room struct {
	id   string
	game *game.Game
	bus  Bus
	log  *zap.Logger

	inbox    chan action
	done     chan struct{}
	doneOnce sync.Once
	onClose  func(id string)

	createdAt  time.Time
	lastActive atomic.Int64

	timer      *time.Timer
	timerEpoch int
}

func newRoom(id string, g *game.Game, bus Bus, log *zap.Logger, onClose func(string)) *Room {
	r := &Room{
		id:         id,
		game:       g,
		bus:        bus,
		log:        log.With(zap.String("room", id)),
		inbox:      make(chan action, 16),
		done:       make(chan struct{}),
		onClose:    onClose,
		createdAt:  time.Now(),
		timerEpoch: -1,
	}
	r.touch()

	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) touch() { r.lastActive.Store(time.Now().UnixNano()) }

// LastActive is the time of the last action the room handled.
func (r *Room) LastActive() time.Time { return time.Unix(0, r.lastActive.Load()) }

// start subscribes to the room's actions topic and launches the run loop.
// Actions published by other processes before start returns may be lost,
// so the room must not be advertised until then.
func (r *Room) start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, actionsTopic(r.id))
	if err != nil {
		return err
	}

	go r.pump(sub)
	go r.run(ctx)

	return nil
}

// submit queues an action. It reports false once the room has closed.
func (r *Room) submit(a action) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.inbox <- a:
		return true
	case <-r.done:
		return false
	}
}

// Close shuts the room down from outside the run loop.
func (r *Room) Close() {
	r.submit(action{kind: actClose})
}

func (r *Room) pump(sub Subscription) {
	defer sub.Close()

	for {
		select {
		case data := <-sub.Messages():
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				r.log.Warn("ROOMS: Dropped malformed action", zap.Error(err))
				continue
			}
			a, ok := envelopeAction(env)
			if !ok {
				r.log.Warn("ROOMS: Dropped unknown action", zap.String("kind", env.Kind))
				continue
			}
			if !r.submit(a) {
				return
			}
		case <-r.done:
			return
		}
	}
}

func envelopeAction(env Envelope) (action, bool) {
	if env.Player == nil {
		return action{}, false
	}

	a := action{player: *env.Player}
	switch env.Kind {
	case kindJoin:
		a.kind = actJoin
	case kindLeave:
		a.kind = actLeave
	case kindRename:
		a.kind = actRename
	case kindCommand:
		if env.Command == nil {
			return action{}, false
		}
		a.kind = actCommand
		a.cmd = *env.Command
	default:
		return action{}, false
	}

	return a, true
}

func (r *Room) run(ctx context.Context) {
	for {
		select {
		case a := <-r.inbox:
			if a.kind != actTimeout {
				r.touch()
			}
			if !r.handle(ctx, a) {
				r.shutdown(ctx)
				return
			}
			r.rearm()
			if err := r.game.Audit(); err != nil {
				r.log.Error("ROOMS: Invariant violated", zap.Error(err))
			}
		case <-ctx.Done():
			r.shutdown(context.Background())
			return
		}
	}
}

// handle applies one action. It reports false when the room should close.
func (r *Room) handle(ctx context.Context, a action) bool {
	g := r.game

	switch a.kind {
	case actJoin:
		if g.Seated(a.player.ID) {
			g.Rename(a.player.ID, a.player.Name, a.player.Avatar)
			r.publishViews(ctx, a.player.ID)
			return true
		}
		seat := game.Seat{ID: a.player.ID, Name: a.player.Name, Avatar: a.player.Avatar}
		if !g.AddPlayer(seat) {
			r.log.Debug("ROOMS: Rejected join", zap.String("player", a.player.ID))
			r.publish(ctx, Envelope{Kind: kindReject, Room: r.id, Player: &a.player})
			return true
		}
		r.log.Info("ROOMS: Player joined",
			zap.String("player", a.player.ID),
			zap.Int("seats", g.Len()),
		)
		if g.ReadyToStart() && g.StartGame() {
			r.log.Info("ROOMS: Game started", zap.Int("seats", g.Len()))
		}
		r.publishViews(ctx, a.player.ID)

	case actLeave:
		if !g.RemovePlayer(a.player.ID) {
			return true
		}
		r.log.Info("ROOMS: Player left",
			zap.String("player", a.player.ID),
			zap.Int("seats", g.Len()),
		)
		if g.Len() == 0 {
			return false
		}
		r.publishViews(ctx, "")

	case actRename:
		if g.Rename(a.player.ID, a.player.Name, a.player.Avatar) {
			r.publishViews(ctx, "")
		}

	case actCommand:
		if r.command(a.player.ID, a.cmd) {
			r.publishViews(ctx, "")
		} else {
			r.log.Debug("ROOMS: Ignored command",
				zap.String("player", a.player.ID),
				zap.String("command", a.cmd.Tag),
				zap.Stringer("phase", g.Phase()),
			)
		}

	case actTimeout:
		if g.Timeout(a.epoch) {
			r.log.Debug("ROOMS: Phase timed out", zap.Stringer("phase", g.Phase()))
			r.publishViews(ctx, "")
		}

	case actClose:
		return false
	}

	return true
}

func (r *Room) command(player string, cmd Command) bool {
	switch cmd.Tag {
	case CmdSelectCard:
		return r.game.SelectCard(player, cmd.CardID)
	case CmdTellStory:
		return r.game.TellStory(player, cmd.Text)
	case CmdEndTurn:
		return r.game.CompleteTurn(player)
	default:
		return false
	}
}

// rearm keeps one timer per phase. A phase change replaces the timer; the
// stale one may still fire, but its epoch no longer matches.
func (r *Room) rearm() {
	epoch := r.game.Epoch()
	if epoch == r.timerEpoch {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerEpoch = epoch

	d, ok := r.game.Deadline()
	if !ok {
		return
	}
	r.timer = time.AfterFunc(d, func() {
		r.submit(action{kind: actTimeout, epoch: epoch})
	})
}

// publishViews sends every seated player their own snapshot. joined names
// the player who should receive it as a RoomConnect.
func (r *Room) publishViews(ctx context.Context, joined string) {
	seats := r.game.Seats()
	views := make(map[string]json.RawMessage, len(seats))
	for _, s := range seats {
		snap, ok := r.game.Snapshot(s.ID)
		if !ok {
			continue
		}
		data, err := json.Marshal(snap)
		if err != nil {
			r.log.Error("ROOMS: Failed to encode view", zap.String("player", s.ID), zap.Error(err))
			continue
		}
		views[s.ID] = data
	}

	r.publish(ctx, Envelope{Kind: kindUpdate, Room: r.id, Joined: joined, Views: views})
}

func (r *Room) publish(ctx context.Context, env Envelope) {
	if err := publishEnvelope(ctx, r.bus, eventsTopic(r.id), env); err != nil {
		r.log.Warn("ROOMS: Failed to publish", zap.String("kind", env.Kind), zap.Error(err))
	}
}

func (r *Room) shutdown(ctx context.Context) {
	r.doneOnce.Do(func() {
		close(r.done)
		if r.timer != nil {
			r.timer.Stop()
		}

		r.publish(ctx, Envelope{Kind: kindClosed, Room: r.id})
		r.log.Info("ROOMS: Room closed", zap.Duration("age", time.Since(r.createdAt).Round(time.Second)))

		if r.onClose != nil {
			r.onClose(r.id)
		}
	})
}
