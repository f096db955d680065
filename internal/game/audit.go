package game

import (
	"errors"
	"fmt"
)

// Audit checks the invariants every reachable state must satisfy: each card
// of the pool is in exactly one of deck, hands or table; no score is
// negative; and active phases have exactly one seated storyteller.
func (g *Game) Audit() error {
	var errs []error

	if len(g.pool) > 0 {
		counts := make(map[string]int, len(g.pool))
		for _, c := range g.pool {
			counts[c.ID]++
		}

		seen := make(map[string]int, len(g.pool))
		for _, c := range g.deck {
			seen[c.ID]++
		}
		for id, hand := range g.hands {
			if !g.Seated(id) && len(hand) > 0 {
				errs = append(errs, fmt.Errorf("unseated player %s holds %d cards", id, len(hand)))
			}
			for _, c := range hand {
				seen[c.ID]++
			}
		}
		for _, tc := range g.table {
			seen[tc.card.ID]++
		}

		for id, want := range counts {
			if got := seen[id]; got != want {
				errs = append(errs, fmt.Errorf("card %s appears %d times, want %d", id, got, want))
			}
		}
		for id := range seen {
			if _, ok := counts[id]; !ok {
				errs = append(errs, fmt.Errorf("card %s is not in the pool", id))
			}
		}
	}

	for id, s := range g.result {
		if s.Points < 0 {
			errs = append(errs, fmt.Errorf("player %s has negative score %d", id, s.Points))
		}
	}

	if g.phase.Active() {
		if len(g.seats) == 0 || g.turn < 0 || g.turn >= len(g.seats) {
			errs = append(errs, fmt.Errorf("phase %s has no storyteller (turn %d of %d)", g.phase, g.turn, len(g.seats)))
		} else if (g.phase == PhaseMatching || g.phase == PhaseGuessing) && !g.turnEnded[g.Storyteller()] {
			errs = append(errs, fmt.Errorf("storyteller %s may act during %s", g.Storyteller(), g.phase))
		}
	}

	return errors.Join(errs...)
}
