package session

import "strings"

const maxNameLength = 32

// Player is a connected person as the registry knows them. The room field
// is a room id rather than a pointer, since the room may live in another
// process.
type Player struct {
	ID     string
	Name   string
	Avatar string

	room string
}

func (p *Player) info() PlayerInfo {
	return PlayerInfo{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	return name
}

func defaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "Player " + id
}
