package game

import (
	"fmt"
	"strings"
	"time"
)

// HandSize is the number of cards every seated player holds between rounds.
const HandSize = 6

type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseStorytelling
	PhaseMatching
	PhaseGuessing
	PhaseInterlude
	PhaseVictory
)

var phaseNames = [...]string{
	PhaseWaiting:      "Waiting",
	PhaseStorytelling: "Storytelling",
	PhaseMatching:     "Matching",
	PhaseGuessing:     "Guessing",
	PhaseInterlude:    "Interlude",
	PhaseVictory:      "Victory",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Active reports whether a storyteller is expected to be seated.
func (p Phase) Active() bool {
	return p >= PhaseStorytelling && p <= PhaseInterlude
}

type RuleSet int

const (
	Imaginarium RuleSet = iota
	Dixit
)

func (r RuleSet) String() string {
	switch r {
	case Imaginarium:
		return "imaginarium"
	case Dixit:
		return "dixit"
	default:
		return fmt.Sprintf("RuleSet(%d)", int(r))
	}
}

// MinSeats is the fewest players a game under these rules can be played
// with. Imaginarium needs two listeners: a lone listener can only ever find
// the lead, which scores nobody.
func (r RuleSet) MinSeats() int {
	if r == Dixit {
		return 2
	}
	return 3
}

func ParseRuleSet(s string) (RuleSet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "imaginarium":
		return Imaginarium, nil
	case "dixit":
		return Dixit, nil
	default:
		return 0, fmt.Errorf("unknown rule set %q (must be imaginarium or dixit)", s)
	}
}

type Settings struct {
	WinScore       int
	MoveTime       time.Duration // zero disables the turn timeout
	InterludePause time.Duration
	VictoryPause   time.Duration
	RuleSet        RuleSet
	PlayersToStart int
	MaxPlayers     int
}

func DefaultSettings() Settings {
	return Settings{
		WinScore:       40,
		MoveTime:       60 * time.Second,
		InterludePause: 5 * time.Second,
		VictoryPause:   10 * time.Second,
		RuleSet:        Imaginarium,
		PlayersToStart: 3,
		MaxPlayers:     7,
	}
}
