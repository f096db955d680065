package game

import (
	"strings"

	"github.com/Seednode/storyteller/internal/catalog"
)

// MaxAssociationLength caps the storyteller's clue, in runes.
const MaxAssociationLength = 280

// AddLeadCard records the storyteller's chosen card. It can be changed
// until StartTurn.
func (g *Game) AddLeadCard(player, cardID string) bool {
	if g.phase != PhaseStorytelling || player != g.Storyteller() {
		return false
	}
	if g.handIndex(player, cardID) < 0 {
		return false
	}
	g.lead = cardID
	return true
}

// StartTurn moves the lead card to the table and opens Matching.
func (g *Game) StartTurn(association string) bool {
	association = strings.TrimSpace(association)
	if g.phase != PhaseStorytelling || g.lead == "" || association == "" {
		return false
	}
	if r := []rune(association); len(r) > MaxAssociationLength {
		association = string(r[:MaxAssociationLength])
	}

	teller := g.Storyteller()
	card, ok := g.takeFromHand(teller, g.lead)
	if !ok {
		return false
	}

	g.association = association
	g.table = []tableCard{{card: card, owner: teller}}
	clear(g.bets)
	g.resetTurns()
	g.setPhase(PhaseMatching)

	return true
}

// MakeBet selects the decoy a listener intends to place.
func (g *Game) MakeBet(player, cardID string) bool {
	if g.phase != PhaseMatching || !g.canAct(player) {
		return false
	}
	if g.handIndex(player, cardID) < 0 {
		return false
	}
	g.bets[player] = cardID
	return true
}

// MakeGuess selects the table card a listener believes is the lead.
func (g *Game) MakeGuess(player, cardID string) bool {
	if g.phase != PhaseGuessing || !g.canAct(player) {
		return false
	}
	owner, ok := g.tableOwner(cardID)
	if !ok || owner == player {
		return false
	}
	g.guesses[player] = cardID
	return true
}

// FinishTurn commits a listener's bet or guess. A player must have
// selected a card first; repeated calls are no-ops.
func (g *Game) FinishTurn(player string) bool {
	if !g.canAct(player) {
		return false
	}
	switch g.phase {
	case PhaseMatching:
		if _, ok := g.bets[player]; !ok {
			return false
		}
	case PhaseGuessing:
		if _, ok := g.guesses[player]; !ok {
			return false
		}
	default:
		return false
	}
	g.turnEnded[player] = true
	return true
}

// AllTurnsEnded holds when every seated player has finished for this phase.
func (g *Game) AllTurnsEnded() bool {
	for _, s := range g.seats {
		if !g.turnEnded[s.ID] {
			return false
		}
	}
	return true
}

// PlaceCards moves every committed bet from its owner's hand to the table,
// shuffles the table, and opens Guessing. Uncommitted selections are dropped.
func (g *Game) PlaceCards() bool {
	if g.phase != PhaseMatching {
		return false
	}

	for _, s := range g.seats {
		cardID, ok := g.bets[s.ID]
		if !ok || !g.turnEnded[s.ID] || g.spectators[s.ID] {
			continue
		}
		card, ok := g.takeFromHand(s.ID, cardID)
		if !ok {
			continue
		}
		g.table = append(g.table, tableCard{card: card, owner: s.ID})
	}

	// the lead card is placed first; hide that from the display order
	g.rng.Shuffle(len(g.table), func(i, j int) { g.table[i], g.table[j] = g.table[j], g.table[i] })

	clear(g.guesses)
	g.resetTurns()
	g.setPhase(PhaseGuessing)

	return true
}

// resolve advances Matching or Guessing once nobody is left to act.
func (g *Game) resolve() bool {
	if !g.AllTurnsEnded() {
		return false
	}
	switch g.phase {
	case PhaseMatching:
		return g.PlaceCards()
	case PhaseGuessing:
		return g.ValuateGuesses()
	}
	return false
}

// resetTurns leaves only the storyteller and spectators done.
func (g *Game) resetTurns() {
	teller := g.Storyteller()
	for _, s := range g.seats {
		g.turnEnded[s.ID] = s.ID == teller || g.spectators[s.ID]
	}
}

func (g *Game) canAct(player string) bool {
	return g.Seated(player) &&
		player != g.Storyteller() &&
		!g.spectators[player] &&
		!g.turnEnded[player]
}

// Table returns the cards face up, in display order.
func (g *Game) Table() []catalog.Card {
	out := make([]catalog.Card, 0, len(g.table))
	for _, tc := range g.table {
		out = append(out, tc.card)
	}
	return out
}
