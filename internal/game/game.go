// Package game implements the storyteller card game as a pure state machine.
//
// A Game is owned by exactly one goroutine (the room handler); none of its
// methods lock. Every action that breaks a rule is ignored and reported as
// false, because clients routinely race the authoritative phase.
//
// Phases:
//   - Waiting: players gather until PlayersToStart are seated
//   - Storytelling: the storyteller picks a lead card and tells an association
//   - Matching: everyone else commits a decoy card from their hand
//   - Guessing: everyone else guesses which table card was the lead
//   - Interlude: scores are shown, then the storyteller rotates
//   - Victory: someone reached WinScore; a new game follows
package game

import (
	"math/rand/v2"
	"slices"

	"github.com/Seednode/storyteller/internal/catalog"
)

// Seat is the engine's copy of a seated player's identity.
type Seat struct {
	ID     string
	Name   string
	Avatar string
}

// Score is a player's points. Suspended scores belong to players who left
// a running game and are restored if they come back.
type Score struct {
	Points    int
	Suspended bool
}

type tableCard struct {
	card  catalog.Card
	owner string
}

type Game struct {
	settings Settings
	packs    *catalog.Catalog
	rng      *rand.Rand

	seats      []*Seat
	hands      map[string][]catalog.Card
	deck       []catalog.Card
	pool       []catalog.Card
	table      []tableCard
	bets       map[string]string // player -> card id
	guesses    map[string]string // player -> card id
	turnEnded  map[string]bool
	spectators map[string]bool
	result     map[string]Score

	phase       Phase
	turn        int
	lead        string
	association string
	winner      string
	epoch       int
}

// New creates an empty game in the Waiting phase. A nil rng seeds a fresh one.
func New(settings Settings, packs *catalog.Catalog, rng *rand.Rand) *Game {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Game{
		settings:   settings,
		packs:      packs,
		rng:        rng,
		hands:      make(map[string][]catalog.Card),
		bets:       make(map[string]string),
		guesses:    make(map[string]string),
		turnEnded:  make(map[string]bool),
		spectators: make(map[string]bool),
		result:     make(map[string]Score),
	}
}

func (g *Game) Settings() Settings { return g.settings }

func (g *Game) Phase() Phase { return g.phase }

// Epoch increases on every phase change. Timers compare it to detect staleness.
func (g *Game) Epoch() int { return g.epoch }

func (g *Game) Len() int { return len(g.seats) }

func (g *Game) Association() string { return g.association }

func (g *Game) Lead() string { return g.lead }

func (g *Game) Winner() string { return g.winner }

func (g *Game) Deck() []catalog.Card { return slices.Clone(g.deck) }

func (g *Game) Seats() []Seat {
	out := make([]Seat, 0, len(g.seats))
	for _, s := range g.seats {
		out = append(out, *s)
	}
	return out
}

func (g *Game) Seated(id string) bool {
	return g.seatIndex(id) >= 0
}

func (g *Game) Hand(id string) []catalog.Card {
	return slices.Clone(g.hands[id])
}

func (g *Game) Score(id string) (Score, bool) {
	s, ok := g.result[id]
	return s, ok
}

// Storyteller returns the current storyteller's id, or "" outside active phases.
func (g *Game) Storyteller() string {
	if !g.phase.Active() || len(g.seats) == 0 {
		return ""
	}
	return g.seats[g.turn].ID
}

// ReadyToStart reports whether the Waiting room has enough seats to begin.
func (g *Game) ReadyToStart() bool {
	return g.phase == PhaseWaiting && len(g.seats) >= max(g.settings.PlayersToStart, g.settings.RuleSet.MinSeats())
}

func (g *Game) Full() bool {
	return g.settings.MaxPlayers > 0 && len(g.seats) >= g.settings.MaxPlayers
}

// AddPlayer seats a player. Joining a running game deals a full hand and the
// player sits out the rest of the current round.
func (g *Game) AddPlayer(seat Seat) bool {
	if seat.ID == "" || g.Seated(seat.ID) || g.Full() {
		return false
	}

	s := seat
	g.seats = append(g.seats, &s)
	g.hands[s.ID] = nil
	g.turnEnded[s.ID] = true

	if prev, ok := g.result[s.ID]; ok {
		g.result[s.ID] = Score{Points: prev.Points}
	} else {
		g.result[s.ID] = Score{}
	}

	if g.phase != PhaseWaiting {
		g.dealHand(s.ID)
		if g.phase.Active() {
			g.spectators[s.ID] = true
		}
	}

	return true
}

// Rename updates a seated player's display name and avatar.
func (g *Game) Rename(id, name, avatar string) bool {
	i := g.seatIndex(id)
	if i < 0 {
		return false
	}
	if name != "" {
		g.seats[i].Name = name
	}
	if avatar != "" {
		g.seats[i].Avatar = avatar
	}
	return true
}

// RemovePlayer unseats a player. Before the game starts the player is
// forgotten entirely; afterwards their hand returns to the deck and their
// score is suspended.
func (g *Game) RemovePlayer(id string) bool {
	i := g.seatIndex(id)
	if i < 0 {
		return false
	}

	if g.phase == PhaseWaiting {
		g.seats = slices.Delete(g.seats, i, i+1)
		delete(g.hands, id)
		delete(g.turnEnded, id)
		delete(g.result, id)
		return true
	}

	wasStoryteller := g.phase.Active() && i == g.turn

	delete(g.bets, id)
	delete(g.guesses, id)
	delete(g.turnEnded, id)
	delete(g.spectators, id)

	g.deck = append(g.deck, g.hands[id]...)
	delete(g.hands, id)

	if g.phase == PhaseGuessing && !wasStoryteller {
		g.withdrawDecoy(id)
	}

	g.result[id] = Score{Points: g.result[id].Points, Suspended: true}

	g.seats = slices.Delete(g.seats, i, i+1)
	if i < g.turn {
		g.turn--
	}
	if g.turn >= len(g.seats) {
		g.turn = 0
	}

	if len(g.seats) < g.settings.RuleSet.MinSeats() {
		g.backToWaiting()
		return true
	}

	if wasStoryteller {
		// the seat that slid into the storyteller's index tells next
		g.newRound()
		return true
	}

	g.resolve()

	return true
}

// StartGame deals a fresh game from a random pack and resets every score.
func (g *Game) StartGame() bool {
	if len(g.seats) < g.settings.RuleSet.MinSeats() || g.packs == nil {
		return false
	}

	pack := g.packs.Random(g.rng)
	if pack == nil {
		return false
	}

	g.pool = pack.Cards()
	g.deck = slices.Clone(g.pool)
	g.rng.Shuffle(len(g.deck), func(i, j int) { g.deck[i], g.deck[j] = g.deck[j], g.deck[i] })
	g.rng.Shuffle(len(g.seats), func(i, j int) { g.seats[i], g.seats[j] = g.seats[j], g.seats[i] })

	clear(g.result)
	clear(g.hands)
	clear(g.bets)
	clear(g.guesses)
	clear(g.spectators)
	g.table = nil

	for _, s := range g.seats {
		g.result[s.ID] = Score{}
		g.turnEnded[s.ID] = false
		g.dealHand(s.ID)
	}

	g.turn = 0
	g.lead = ""
	g.association = ""
	g.winner = ""
	g.setPhase(PhaseStorytelling)

	return true
}

// EndTurn rotates the storyteller, returns the table to the bottom of the
// deck, refills every hand and checks for a winner.
func (g *Game) EndTurn() bool {
	if g.phase != PhaseInterlude {
		return false
	}

	g.turn = (g.turn + 1) % len(g.seats)
	g.newRound()

	return true
}

// Finished returns the seated player with the strictly highest score once
// that score reaches WinScore. Ties go to the earliest seat.
func (g *Game) Finished() (string, bool) {
	best := -1
	winner := ""
	for _, s := range g.seats {
		if pts := g.result[s.ID].Points; pts > best {
			best = pts
			winner = s.ID
		}
	}
	if winner == "" || best < g.settings.WinScore {
		return "", false
	}
	return winner, true
}

func (g *Game) EndGame(winner string) {
	g.winner = winner
	g.setPhase(PhaseVictory)
}

func (g *Game) newRound() {
	for _, tc := range g.table {
		g.deck = append(g.deck, tc.card)
	}
	g.table = nil

	clear(g.bets)
	clear(g.guesses)
	clear(g.spectators)
	g.lead = ""
	g.association = ""

	for _, s := range g.seats {
		g.turnEnded[s.ID] = false
		g.dealHand(s.ID)
	}

	g.setPhase(PhaseStorytelling)

	if winner, ok := g.Finished(); ok {
		g.EndGame(winner)
	}
}

// withdrawDecoy returns a departing listener's table card to the deck.
// Committed guesses that pointed at it are reopened.
func (g *Game) withdrawDecoy(id string) {
	i := slices.IndexFunc(g.table, func(tc tableCard) bool { return tc.owner == id })
	if i < 0 {
		return
	}
	card := g.table[i].card
	g.table = slices.Delete(g.table, i, i+1)
	g.deck = append(g.deck, card)

	for player, cardID := range g.guesses {
		if cardID == card.ID {
			delete(g.guesses, player)
			g.turnEnded[player] = false
		}
	}
}

func (g *Game) backToWaiting() {
	for _, tc := range g.table {
		g.deck = append(g.deck, tc.card)
	}
	g.table = nil

	for _, s := range g.seats {
		g.deck = append(g.deck, g.hands[s.ID]...)
		g.hands[s.ID] = nil
		g.turnEnded[s.ID] = true
	}

	clear(g.bets)
	clear(g.guesses)
	clear(g.spectators)
	g.turn = 0
	g.lead = ""
	g.association = ""
	g.winner = ""
	g.setPhase(PhaseWaiting)
}

func (g *Game) dealHand(id string) {
	needed := min(HandSize-len(g.hands[id]), len(g.deck))
	if needed <= 0 {
		return
	}
	g.hands[id] = append(g.hands[id], g.deck[:needed]...)
	g.deck = slices.Delete(g.deck, 0, needed)
}

func (g *Game) setPhase(p Phase) {
	g.phase = p
	g.epoch++
}

func (g *Game) seatIndex(id string) int {
	return slices.IndexFunc(g.seats, func(s *Seat) bool { return s.ID == id })
}

func (g *Game) seat(id string) *Seat {
	if i := g.seatIndex(id); i >= 0 {
		return g.seats[i]
	}
	return nil
}

func (g *Game) handIndex(id, cardID string) int {
	return slices.IndexFunc(g.hands[id], func(c catalog.Card) bool { return c.ID == cardID })
}

func (g *Game) takeFromHand(id, cardID string) (catalog.Card, bool) {
	i := g.handIndex(id, cardID)
	if i < 0 {
		return catalog.Card{}, false
	}
	card := g.hands[id][i]
	g.hands[id] = slices.Delete(g.hands[id], i, i+1)
	return card, true
}

func (g *Game) tableOwner(cardID string) (string, bool) {
	for _, tc := range g.table {
		if tc.card.ID == cardID {
			return tc.owner, true
		}
	}
	return "", false
}
