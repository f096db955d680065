package game

// ValuateGuesses scores the round and opens Interlude. Only committed guesses
// from seated listeners count.
func (g *Game) ValuateGuesses() bool {
	if g.phase != PhaseGuessing {
		return false
	}

	teller := g.Storyteller()
	guesses := make(map[string]string, len(g.guesses))
	for player, cardID := range g.guesses {
		if player == teller || !g.turnEnded[player] || !g.Seated(player) {
			continue
		}
		guesses[player] = cardID
	}

	g.setPhase(PhaseInterlude)

	switch g.settings.RuleSet {
	case Dixit:
		g.scoreDixit(teller, guesses)
	default:
		g.scoreImaginarium(teller, guesses)
	}

	return true
}

func (g *Game) scoreImaginarium(teller string, guesses map[string]string) {
	correct := 0
	for _, cardID := range guesses {
		if cardID == g.lead {
			correct++
		}
	}

	switch {
	case correct == len(guesses):
		// everyone found it: the clue was too obvious
		g.addPoints(teller, -3)
		return
	case correct == 0:
		g.addPoints(teller, -2)
	default:
		g.addPoints(teller, 3+correct)
		for player, cardID := range guesses {
			if cardID == g.lead {
				g.addPoints(player, 3)
			}
		}
	}

	g.scoreDecoys(guesses)
}

func (g *Game) scoreDixit(teller string, guesses map[string]string) {
	correct := 0
	for _, cardID := range guesses {
		if cardID == g.lead {
			correct++
		}
	}

	if correct == 0 || correct == len(guesses) {
		for player := range guesses {
			g.addPoints(player, 2)
		}
	} else {
		g.addPoints(teller, 3)
		for player, cardID := range guesses {
			if cardID == g.lead {
				g.addPoints(player, 3)
			}
		}
	}

	g.scoreDecoys(guesses)
}

// scoreDecoys gives a card's owner one point per misdirected guess.
func (g *Game) scoreDecoys(guesses map[string]string) {
	for _, cardID := range guesses {
		if cardID == g.lead {
			continue
		}
		if owner, ok := g.tableOwner(cardID); ok && g.Seated(owner) {
			g.addPoints(owner, 1)
		}
	}
}

// addPoints changes a seated player's score, flooring it at zero.
func (g *Game) addPoints(player string, delta int) {
	if !g.Seated(player) {
		return
	}
	s := g.result[player]
	s.Points = max(0, s.Points+delta)
	g.result[player] = s
}
