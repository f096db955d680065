package game

import "encoding/json"

const (
	RoleStoryteller = "Storyteller"
	RoleListener    = "Listener"
	RoleSpectator   = "Spectator"
)

type PlayerView struct {
	Name          string
	Avi           string
	Role          string
	Score         int
	MoveAvailable bool
}

type HandView struct {
	Cards        []string
	SelectedCard *string
}

// Reveal tells who placed a table card and who voted for it.
type Reveal struct {
	Owner  PlayerView
	Voters []PlayerView
}

// TableEntry encodes as [cardId, reveal|null]. A face-down card has an empty id.
type TableEntry struct {
	CardID string
	Reveal *Reveal
}

func (e TableEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.CardID, e.Reveal})
}

type TableView struct {
	Cards []TableEntry
	Story string
}

// Snapshot is everything one player is allowed to see.
type Snapshot struct {
	Client    PlayerView
	Opponents []PlayerView
	Hand      HandView
	Table     TableView
	Phase     string
	Winner    *PlayerView `json:",omitempty"`
}

// Snapshot builds the view for a seated player.
func (g *Game) Snapshot(viewer string) (Snapshot, bool) {
	self := g.seat(viewer)
	if self == nil {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Client:    g.playerView(self),
		Opponents: make([]PlayerView, 0, len(g.seats)-1),
		Hand:      g.handView(viewer),
		Table:     g.tableView(viewer),
		Phase:     g.phase.String(),
	}

	for _, s := range g.seats {
		if s.ID == viewer {
			continue
		}
		snap.Opponents = append(snap.Opponents, g.playerView(s))
	}

	if g.phase == PhaseVictory {
		if w := g.seat(g.winner); w != nil {
			v := g.playerView(w)
			snap.Winner = &v
		}
	}

	return snap, true
}

func (g *Game) playerView(s *Seat) PlayerView {
	role := RoleListener
	switch {
	case s.ID == g.Storyteller():
		role = RoleStoryteller
	case g.spectators[s.ID]:
		role = RoleSpectator
	}

	move := false
	switch g.phase {
	case PhaseStorytelling:
		move = role == RoleStoryteller
	case PhaseMatching, PhaseGuessing:
		move = !g.turnEnded[s.ID]
	}

	return PlayerView{
		Name:          s.Name,
		Avi:           s.Avatar,
		Role:          role,
		Score:         g.result[s.ID].Points,
		MoveAvailable: move,
	}
}

func (g *Game) handView(viewer string) HandView {
	hand := g.hands[viewer]
	hv := HandView{Cards: make([]string, 0, len(hand))}
	for _, c := range hand {
		hv.Cards = append(hv.Cards, c.ID)
	}

	var selected string
	switch g.phase {
	case PhaseStorytelling:
		if viewer == g.Storyteller() {
			selected = g.lead
		}
	case PhaseMatching:
		selected = g.bets[viewer]
	case PhaseGuessing:
		selected = g.guesses[viewer]
	}
	if selected != "" {
		hv.SelectedCard = &selected
	}

	return hv
}

func (g *Game) tableView(viewer string) TableView {
	tv := TableView{
		Cards: make([]TableEntry, 0, len(g.table)),
		Story: g.association,
	}

	faceDown := g.phase == PhaseStorytelling || g.phase == PhaseMatching
	for _, tc := range g.table {
		entry := TableEntry{CardID: tc.card.ID}
		if faceDown && tc.owner != viewer {
			entry.CardID = ""
		}
		if tc.owner == viewer || g.phase == PhaseInterlude {
			entry.Reveal = g.reveal(tc)
		}
		tv.Cards = append(tv.Cards, entry)
	}

	return tv
}

func (g *Game) reveal(tc tableCard) *Reveal {
	r := &Reveal{Voters: make([]PlayerView, 0)}
	if owner := g.seat(tc.owner); owner != nil {
		r.Owner = g.playerView(owner)
	} else {
		r.Owner = PlayerView{Role: RoleSpectator}
	}
	for _, s := range g.seats {
		if g.guesses[s.ID] == tc.card.ID && g.turnEnded[s.ID] {
			r.Voters = append(r.Voters, g.playerView(s))
		}
	}
	return r
}
