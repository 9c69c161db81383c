package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/grimoire"
	"github.com/DoyleJ11/townsquare-live/internal/roster"
	"github.com/DoyleJ11/townsquare-live/internal/voting"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

type fakeLink struct {
	host bool
	sent []wire.Tag
}

func (f *fakeLink) IsHost() bool                   { return f.host }
func (f *fakeLink) Send(tag wire.Tag, payload any) { f.sent = append(f.sent, tag) }
func (f *fakeLink) PushRoster()                    { f.sent = append(f.sent, "pushRoster") }
func (f *fakeLink) PushEdition()                   { f.sent = append(f.sent, "pushEdition") }

type hooks struct{ v *voting.Store }

func (h *hooks) ResetMarked(o game.Origin) { h.v.SetMarked(-1, o) }
func (h *hooks) SyncHistory()              { h.v.SyncHistory() }
func (h *hooks) Play(string)               {}

type fakeCatalog map[string]game.Role

func (c fakeCatalog) Role(id string) (game.Role, bool) {
	r, ok := c[id]
	return r, ok && r.Team != game.TeamFabled
}

func (c fakeCatalog) Fabled(id string) (game.Role, bool) {
	r, ok := c[id]
	return r, ok && r.Team == game.TeamFabled
}

func (c fakeCatalog) EditionRoles(string) []game.Role { return nil }

var (
	beggar  = game.Role{ID: "beggar", Name: "Beggar", Team: game.TeamTraveler, Ability: "You must use a vote token to vote."}
	scapegt = game.Role{ID: "scapegoat", Name: "Scapegoat", Team: game.TeamTraveler, Ability: "If a player of your alignment is executed, you might be executed instead."}
	imp     = game.Role{ID: "imp", Name: "Imp", Team: game.TeamDemon}
	doomsay = game.Role{ID: "doomsayer", Name: "Doomsayer", Team: game.TeamFabled, Ability: "If 4 or more players live, each living player may publicly choose to die."}
)

var catalog = fakeCatalog{
	beggar.ID:  beggar,
	scapegt.ID: scapegt,
	imp.ID:     imp,
	doomsay.ID: doomsay,
}

func newState(host bool) (State, *fakeLink) {
	link := &fakeLink{host: host}
	h := &hooks{}
	r := roster.New(link)
	g := grimoire.New(link, h, catalog, "en")
	v := voting.New(link, r, g, voting.Options{Clock: clockwork.NewFakeClock()})
	h.v = v
	return State{Roster: r, Voting: v, Grimoire: g}, link
}

// hostTable seats four players mid-game with an open nomination.
func hostTable(t *testing.T) State {
	t.Helper()
	s, _ := newState(true)
	for _, n := range []string{"Ada", "Bo", "Cy", "Di"} {
		s.Roster.Add(n, game.Remote)
	}
	s.Roster.Update(0, roster.Role{Role: imp}, game.Remote)
	s.Roster.Update(1, roster.Role{Role: beggar}, game.Remote)
	s.Roster.Update(2, roster.ID("p2"), game.Remote)
	s.Roster.Update(3, roster.Dead(true), game.Remote)
	s.Roster.Update(2, roster.Pronouns("she/her"), game.Remote)
	s.Roster.SetFabled([]game.Role{doomsay}, game.Remote)

	g := s.Grimoire
	g.SetGamePhase(game.PhaseFirstNight, game.Remote)
	g.SetGamePhase(game.PhaseDay, game.Remote)
	g.SetGamePhase(game.PhaseOtherNight, game.Remote)
	g.SetGamePhase(game.PhaseDay, game.Remote)
	g.SetTimer(game.Timer{Name: "debate", Duration: 90}, game.Remote)
	g.SetSecretVote(true, game.Remote)
	g.ForceLocale("fr")

	s.Voting.SetHistory([]game.VoteHistoryEntry{
		{Day: 1, Timestamp: time.Date(2024, 4, 1, 20, 0, 0, 0, time.UTC), Nominator: "Ada", Nominee: "Bo", Type: "Execution", Majority: 2, Votes: []string{"Ada", "Cy"}},
		{Day: 1, Timestamp: time.Date(2024, 4, 1, 20, 5, 0, 0, time.UTC), Nominator: "Cy", Nominee: "Ada", Type: "Execution", Majority: 2, Votes: []string{"Bo"}, Anonymous: true},
	})
	s.Voting.SetNomination(&game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(2)}, game.Remote)
	s.Voting.HandleVote(1, true)
	s.Voting.SetMarked(2, game.Remote)
	return s
}

// transmit pushes gs through its JSON form the way the relay delivers it.
func transmit(t *testing.T, gs wire.Gamestate) wire.Gamestate {
	t.Helper()
	data, err := json.Marshal(gs)
	require.NoError(t, err)
	var out wire.Gamestate
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuild_ProjectionRevealsOnlyTravelers(t *testing.T) {
	host := hostTable(t)
	gs := host.Build(true)

	require.Len(t, gs.Gamestate, 4)
	assert.Empty(t, gs.Gamestate[0].RoleID, "demon stays hidden")
	assert.Equal(t, "beggar", gs.Gamestate[1].RoleID)
	assert.Equal(t, wire.SeatState{Name: "Cy", ID: "p2", Pronouns: "she/her"}, gs.Gamestate[2])
	assert.True(t, gs.Gamestate[3].IsDead)

	assert.True(t, gs.IsLightweight)
	assert.Nil(t, gs.Shared)

	data, err := json.Marshal(gs)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Len(t, fields, 2, "lightweight snapshot carries only the roster")
}

func TestBuild_FullSnapshot(t *testing.T) {
	host := hostTable(t)
	gs := host.Build(false)

	require.NotNil(t, gs.Shared)
	assert.False(t, gs.IsLightweight)
	assert.Equal(t, game.PhaseDay, gs.GamePhase)
	assert.Equal(t, 2, gs.DayCount)
	assert.Equal(t, 2, gs.MarkedPlayer)
	assert.Equal(t, "fr", gs.Locale)
	assert.Equal(t, game.Votes{false, true}, gs.Votes)
	assert.Equal(t, []game.Role{{ID: "doomsayer"}}, gs.Fabled, "official fabled travel by id")

	require.Len(t, gs.VoteHistory, 2)
	assert.Equal(t, []string{"Ada", "Cy"}, gs.VoteHistory[0].Votes)
	assert.Empty(t, gs.VoteHistory[1].Votes, "anonymous voters are stripped")
	assert.Equal(t, []string{"Bo"}, host.Voting.History()[1].Votes, "host keeps its own record")

	host.Grimoire.SetVoteHistoryAllowed(false, game.Remote)
	assert.Empty(t, host.Build(false).VoteHistory)
}

func TestBuild_VotesOnlyWithNomination(t *testing.T) {
	host := hostTable(t)
	host.Voting.SetNomination(nil, game.Remote)

	data, err := json.Marshal(host.Build(false))
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "votes")
	assert.Equal(t, "null", string(fields["nomination"]))
}

func TestApply_FullSnapshotMirrorsHost(t *testing.T) {
	host := hostTable(t)
	guest, link := newState(false)

	guest.Apply(transmit(t, host.Build(false)))

	assert.Empty(t, link.sent, "remote writes never echo")
	players := guest.Roster.Players()
	require.Len(t, players, 4)
	assert.True(t, players[0].Role.IsZero(), "hidden roles are not leaked")
	assert.Equal(t, beggar, players[1].Role)
	assert.Equal(t, "p2", players[2].ID)
	assert.True(t, players[3].IsDead)

	g, v := guest.Grimoire, guest.Voting
	assert.Equal(t, game.PhaseDay, g.GamePhase())
	assert.Equal(t, 2, g.DayCount())
	assert.True(t, g.SecretVote())
	assert.Equal(t, game.Timer{Name: "debate", Duration: 90}, g.Timer())
	assert.Equal(t, "fr", g.Locale())
	assert.Equal(t, host.Voting.Nomination(), v.Nomination())
	assert.Equal(t, game.Votes{false, true}, v.Votes())
	assert.Equal(t, 2, v.Marked())
	assert.Len(t, v.History(), 2)
	assert.Equal(t, []game.Role{doomsay}, guest.Roster.Fabled(), "fabled resolved from the catalog")
}

func TestApply_Idempotent(t *testing.T) {
	host := hostTable(t)
	guest, link := newState(false)
	gs := transmit(t, host.Build(false))

	guest.Apply(gs)
	first := guest.Build(false)
	players := append([]game.Player(nil), guest.Roster.Players()...)

	guest.Apply(gs)
	assert.Equal(t, first, guest.Build(false))
	assert.Equal(t, players, guest.Roster.Players())
	assert.Len(t, guest.Voting.History(), 2, "no duplicate history")
	assert.Empty(t, link.sent)
}

func TestApply_LightweightKeepsSharedState(t *testing.T) {
	host := hostTable(t)
	guest, _ := newState(false)
	guest.Apply(transmit(t, host.Build(false)))

	host.Roster.Add("Eve", game.Remote)
	host.Grimoire.SetGamePhase(game.PhaseOtherNight, game.Remote)
	host.Voting.SetNomination(nil, game.Remote)
	host.Voting.SetHistory(nil)

	guest.Apply(transmit(t, host.Build(true)))
	require.Equal(t, 5, guest.Roster.Len())
	assert.Equal(t, "Eve", guest.Roster.Players()[4].Name)
	assert.Equal(t, game.PhaseDay, guest.Grimoire.GamePhase())
	assert.NotNil(t, guest.Voting.Nomination())
	assert.Len(t, guest.Voting.History(), 2)

	guest.Apply(transmit(t, host.Build(false)))
	assert.Equal(t, game.PhaseOtherNight, guest.Grimoire.GamePhase())
	assert.Nil(t, guest.Voting.Nomination())
	assert.Empty(t, guest.Voting.History())
}

func TestApply_ShrinksRoster(t *testing.T) {
	host := hostTable(t)
	guest, _ := newState(false)
	guest.Apply(transmit(t, host.Build(false)))

	host.Roster.Remove(0, game.Remote)
	host.Roster.Remove(0, game.Remote)
	guest.Apply(transmit(t, host.Build(true)))

	require.Equal(t, 2, guest.Roster.Len())
	assert.Equal(t, "Cy", guest.Roster.Players()[0].Name)
	assert.Equal(t, "Di", guest.Roster.Players()[1].Name)
}

func TestApply_TravelerRoles(t *testing.T) {
	host := hostTable(t)
	guest, _ := newState(false)
	guest.Apply(transmit(t, host.Build(true)))
	require.Equal(t, beggar, guest.Roster.Players()[1].Role)

	host.Roster.Update(1, roster.Role{Role: scapegt}, game.Remote)
	guest.Apply(transmit(t, host.Build(true)))
	assert.Equal(t, scapegt, guest.Roster.Players()[1].Role)

	host.Roster.Update(1, roster.Role{}, game.Remote)
	guest.Apply(transmit(t, host.Build(true)))
	assert.True(t, guest.Roster.Players()[1].Role.IsZero(), "revoked traveler is cleared")

	// unknown ids leave the seat alone
	guest.Apply(wire.Gamestate{Gamestate: []wire.SeatState{{Name: "Ada"}, {Name: "Bo", RoleID: "nobody"}, {Name: "Cy", ID: "p2", Pronouns: "she/her"}, {Name: "Di", IsDead: true}}, IsLightweight: true})
	assert.True(t, guest.Roster.Players()[1].Role.IsZero())
}

func TestApply_SnapshotBeatsPhaseSideEffects(t *testing.T) {
	host := hostTable(t)
	host.Grimoire.SetGamePhase(game.PhaseOtherNight, game.Remote) // day 3, unmarked
	host.Voting.SetMarked(1, game.Remote)
	host.Grimoire.SetDayCount(7, game.Remote)

	guest, _ := newState(false)
	guest.Grimoire.SetGamePhase(game.PhaseDay, game.Remote)
	guest.Apply(transmit(t, host.Build(false)))

	assert.Equal(t, game.PhaseOtherNight, guest.Grimoire.GamePhase())
	assert.Equal(t, 7, guest.Grimoire.DayCount())
	assert.Equal(t, 1, guest.Voting.Marked())
}

func TestApplyEdition_ReportsMissingCustomRoles(t *testing.T) {
	guest, _ := newState(false)
	missing := guest.ApplyEdition(wire.EditionPayload{
		Edition: game.Edition{ID: "custom", Name: "Homebrew"},
		Roles: []game.Role{
			{ID: "imp"},
			{ID: "Mystery_Guest"},
			{ID: "baker", Name: "Baker", Team: game.TeamTownsfolk, Ability: "Bake."},
		},
	})
	assert.Equal(t, []string{"mysteryguest"}, missing)
	assert.Equal(t, "Homebrew", guest.Grimoire.Edition().Name)

	assert.Nil(t, guest.ApplyEdition(wire.EditionPayload{Edition: game.Edition{ID: "tb", IsOfficial: true}}))
}
