package roster

import (
	"slices"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

// MaxPlayers caps how many seats the host may add.
const MaxPlayers = 20

// Outbox is what the roster needs from the live session.
type Outbox interface {
	wire.Link
	// PushRoster broadcasts a lightweight snapshot after the seat count changed.
	PushRoster()
}

// Roster is the ordered seat list plus the fabled in play. The host owns it;
// guests hold a replica that is only written through Remote mutations.
type Roster struct {
	out     Outbox
	players []game.Player
	fabled  []game.Role
}

func New(out Outbox) *Roster {
	return &Roster{out: out}
}

// Players exposes the seat list. Callers must treat it as read-only.
func (r *Roster) Players() []game.Player { return r.players }

func (r *Roster) Len() int { return len(r.players) }

func (r *Roster) Player(seat int) (game.Player, bool) {
	if seat < 0 || seat >= len(r.players) {
		return game.Player{}, false
	}
	return r.players[seat], true
}

// IndexOf returns the seat claimed by id, or -1.
func (r *Roster) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.players, func(p game.Player) bool { return p.ID == id })
}

// Neighbors returns the seats left and right of id, looking towards the
// centre of the table (left is clockwise). ok is false when id holds no seat.
func (r *Roster) Neighbors(id string) (left, right game.Player, ok bool) {
	idx := r.IndexOf(id)
	if idx < 0 {
		return game.Player{}, game.Player{}, false
	}
	n := len(r.players)
	return r.players[(idx+1)%n], r.players[(idx-1+n)%n], true
}

func (r *Roster) Fabled() []game.Role { return r.fabled }

// Alive counts seats whose player is not dead.
func (r *Roster) Alive() int {
	n := 0
	for _, p := range r.players {
		if !p.IsDead {
			n++
		}
	}
	return n
}

// Update applies c to a seat and, for Local edits, propagates it. Out of range
// seats are ignored.
func (r *Roster) Update(seat int, c Change, origin game.Origin) {
	if seat < 0 || seat >= len(r.players) {
		return
	}
	oldRole := r.players[seat].Role
	c.apply(&r.players[seat])

	if origin == game.Remote {
		return
	}
	switch c := c.(type) {
	case ID:
		r.out.Send(wire.TagPlayer, wire.PlayerUpdate{Index: seat, Property: wire.PropID, Value: Raw(c.Value())})
	case Name:
		r.out.Send(wire.TagName, wire.SeatValue{Seat: seat, Value: string(c)})
	case Pronouns:
		r.out.Send(wire.TagPronouns, wire.SeatValue{Seat: seat, Value: string(c)})
	case Role:
		if !r.out.IsHost() {
			return
		}
		// Only traveler identities are public; everything else goes out when
		// the host distributes roles.
		switch {
		case oldRole.IsTraveler() && !c.IsTraveler():
			r.out.Send(wire.TagPlayer, wire.PlayerUpdate{Index: seat, Property: wire.PropRole, Value: Raw(game.Role{})})
		case c.IsTraveler():
			r.out.Send(wire.TagPlayer, wire.PlayerUpdate{Index: seat, Property: wire.PropRole, Value: Raw(c.Role)})
		}
	case Alignment, VoteToken, Dead, Marked:
		if !r.out.IsHost() {
			return
		}
		r.out.Send(wire.TagPlayer, wire.PlayerUpdate{Index: seat, Property: c.Property(), Value: Raw(c.Value())})
	}
}

// Add appends an empty seat.
func (r *Roster) Add(name string, origin game.Origin) {
	r.players = append(r.players, game.Player{Name: name, Reminders: []game.Reminder{}})
	if origin == game.Local && r.out.IsHost() {
		r.out.PushRoster()
	}
}

func (r *Roster) Remove(seat int, origin game.Origin) {
	if seat < 0 || seat >= len(r.players) {
		return
	}
	r.players = slices.Delete(r.players, seat, seat+1)
	if origin == game.Local && r.out.IsHost() {
		r.out.Send(wire.TagRemove, seat)
	}
}

func (r *Roster) Swap(from, to int, origin game.Origin) {
	n := len(r.players)
	if from >= 0 && from < n && to >= 0 && to < n {
		r.players[from], r.players[to] = r.players[to], r.players[from]
	}
	if origin == game.Local && r.out.IsHost() {
		r.out.Send(wire.TagSwap, wire.Pair{From: from, To: to})
	}
}

func (r *Roster) Move(from, to int, origin game.Origin) {
	n := len(r.players)
	if from >= 0 && from < n {
		moved := r.players[from]
		r.players = slices.Delete(r.players, from, from+1)
		at := min(max(to, 0), len(r.players))
		r.players = slices.Insert(r.players, at, moved)
	}
	if origin == game.Local && r.out.IsHost() {
		r.out.Send(wire.TagMove, wire.Pair{From: from, To: to})
	}
}

// Set replaces the whole seat list, e.g. after a shuffle.
func (r *Roster) Set(players []game.Player, origin game.Origin) {
	r.players = players
	if origin == game.Local && r.out.IsHost() {
		r.out.PushRoster()
	}
}

// ClearRoles wipes roles, alignments and reminders while keeping who sits
// where.
func (r *Roster) ClearRoles(origin game.Origin) {
	cleared := make([]game.Player, len(r.players))
	for i, p := range r.players {
		cleared[i] = game.Player{Name: p.Name, ID: p.ID, Pronouns: p.Pronouns, Reminders: []game.Reminder{}}
	}
	r.Set(cleared, origin)
	if origin == game.Local && r.out.IsHost() {
		r.out.Send(wire.TagClearRoles, true)
	}
}

// Unclaim frees every seat whose id fails keep. Used by the host after peers
// drop out of presence tracking.
func (r *Roster) Unclaim(keep func(id string) bool, origin game.Origin) {
	for i, p := range r.players {
		if p.ID != "" && !keep(p.ID) {
			r.Update(i, ID(""), origin)
		}
	}
}

func (r *Roster) SetFabled(fabled []game.Role, origin game.Origin) {
	r.fabled = fabled
	if origin == game.Local && r.out.IsHost() {
		r.out.Send(wire.TagFabled, StripFabled(fabled))
	}
}

// StripFabled sends official fabled by id only; custom ones travel whole.
func StripFabled(fabled []game.Role) []game.Role {
	out := make([]game.Role, len(fabled))
	for i, f := range fabled {
		if f.IsCustom {
			out[i] = f
		} else {
			out[i] = game.Role{ID: f.ID}
		}
	}
	return out
}

// Reset drops all seats and fabled without notifying anyone.
func (r *Roster) Reset() {
	r.players = nil
	r.fabled = nil
}
