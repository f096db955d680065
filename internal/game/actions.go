package game

import "time"

// SelectCard interprets a card pick according to the phase: the lead card
// while storytelling, a bet while matching, a guess while guessing.
func (g *Game) SelectCard(player, cardID string) bool {
	switch g.phase {
	case PhaseStorytelling:
		return g.AddLeadCard(player, cardID)
	case PhaseMatching:
		return g.MakeBet(player, cardID)
	case PhaseGuessing:
		return g.MakeGuess(player, cardID)
	default:
		return false
	}
}

// TellStory starts the round for the storyteller.
func (g *Game) TellStory(player, association string) bool {
	if player != g.Storyteller() {
		return false
	}
	return g.StartTurn(association)
}

// CompleteTurn commits a listener's selection and advances the phase if
// they were the last one acting.
func (g *Game) CompleteTurn(player string) bool {
	if !g.FinishTurn(player) {
		return false
	}
	g.resolve()
	return true
}

// Deadline reports how long the current phase may last before Timeout
// should be called with the current epoch.
func (g *Game) Deadline() (time.Duration, bool) {
	switch g.phase {
	case PhaseStorytelling, PhaseMatching, PhaseGuessing:
		return g.settings.MoveTime, g.settings.MoveTime > 0
	case PhaseInterlude:
		return g.settings.InterludePause, true
	case PhaseVictory:
		return g.settings.VictoryPause, true
	default:
		return 0, false
	}
}

// Timeout force-resolves the phase that was current at epoch. Players who
// have not finished pass; a silent storyteller forfeits the round. Once a
// pause expires the game moves on. Stale epochs are ignored.
func (g *Game) Timeout(epoch int) bool {
	if epoch != g.epoch {
		return false
	}

	switch g.phase {
	case PhaseStorytelling:
		g.turn = (g.turn + 1) % len(g.seats)
		g.newRound()
		return true
	case PhaseMatching:
		return g.PlaceCards()
	case PhaseGuessing:
		return g.ValuateGuesses()
	case PhaseInterlude:
		return g.EndTurn()
	case PhaseVictory:
		return g.StartGame()
	default:
		return false
	}
}
