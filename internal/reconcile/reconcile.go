// Package reconcile converts between the host's stores and the gs snapshot
// that brings a guest replica up to date.
package reconcile

import (
	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/grimoire"
	"github.com/DoyleJ11/townsquare-live/internal/roster"
	"github.com/DoyleJ11/townsquare-live/internal/voting"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

// State groups the stores a snapshot is built from and applied to.
type State struct {
	Roster   *roster.Roster
	Voting   *voting.Store
	Grimoire *grimoire.Store
}

// Project is the per-seat part of a snapshot. Only traveler seats reveal
// their role.
func Project(players []game.Player) []wire.SeatState {
	out := make([]wire.SeatState, len(players))
	for i, p := range players {
		out[i] = wire.SeatState{
			Name:      p.Name,
			ID:        p.ID,
			IsDead:    p.IsDead,
			VoteToken: p.VoteToken,
			Pronouns:  p.Pronouns,
		}
		if p.Role.IsTraveler() {
			out[i].RoleID = p.Role.ID
		}
	}
	return out
}

// Build produces the host's snapshot. A lightweight one only carries the
// roster projection.
func (s State) Build(lightweight bool) wire.Gamestate {
	gs := wire.Gamestate{Gamestate: Project(s.Roster.Players())}
	if lightweight {
		gs.IsLightweight = true
		return gs
	}
	g, v := s.Grimoire, s.Voting
	shared := &wire.Shared{
		GamePhase:            g.GamePhase(),
		DayCount:             g.DayCount(),
		Timer:                g.Timer(),
		AllowSelfNaming:      g.AllowSelfNaming(),
		IsVoteHistoryAllowed: g.VoteHistoryAllowed(),
		IsSecretVoteMode:     g.SecretVote(),
		IsTextChatAllowed:    g.TextChatAllowed(),
		Nomination:           v.Nomination(),
		VotingSpeed:          v.VotingSpeed(),
		LockedVote:           v.LockedVote(),
		IsVoteInProgress:     v.InProgress(),
		MarkedPlayer:         v.Marked(),
		Fabled:               roster.StripFabled(s.Roster.Fabled()),
		VoteHistory:          voting.Sanitize(v.History(), g.VoteHistoryAllowed()),
		Locale:               g.Locale(),
	}
	if v.Nomination() != nil {
		shared.Votes = append(game.Votes{}, v.Votes()...)
	}
	gs.Shared = shared
	return gs
}

// Edition is the edition message sent ahead of every full snapshot.
func (s State) Edition() wire.EditionPayload {
	return s.Grimoire.EditionPayload()
}

// Apply brings the guest replica in line with gs. Every write is Remote, and
// applying the same snapshot twice changes nothing the second time.
func (s State) Apply(gs wire.Gamestate) {
	full := gs.Shared != nil && !gs.IsLightweight
	if full {
		s.Grimoire.ForceLocale(gs.Locale)
	}

	s.resize(gs.Gamestate)
	for i, st := range gs.Gamestate {
		s.applySeat(i, st)
	}
	if !full {
		return
	}

	sh := gs.Shared
	g := s.Grimoire
	g.SetTimer(sh.Timer, game.Remote)
	g.SetAllowSelfNaming(sh.AllowSelfNaming, game.Remote)
	g.SetVoteHistoryAllowed(sh.IsVoteHistoryAllowed, game.Remote)
	g.SetSecretVote(sh.IsSecretVoteMode, game.Remote)
	g.SetTextChatAllowed(sh.IsTextChatAllowed, game.Remote)

	s.Voting.UpdateNomination(voting.Update{
		Nomination:  sh.Nomination,
		Votes:       sh.Votes,
		VotingSpeed: sh.VotingSpeed,
		LockedVote:  sh.LockedVote,
		InProgress:  sh.IsVoteInProgress,
	})
	s.Voting.SetHistory(sh.VoteHistory)

	// The phase goes first: entering a night unmarks and bumps the day, and
	// the snapshot's own values must win over those side effects.
	phase := sh.GamePhase
	if phase == "" {
		phase = game.PhasePregame
	}
	g.SetGamePhase(phase, game.Remote)
	s.Voting.SetMarked(sh.MarkedPlayer, game.Remote)
	g.SetDayCount(sh.DayCount, game.Remote)

	s.ApplyFabled(sh.Fabled)
}

func (s State) resize(seats []wire.SeatState) {
	r := s.Roster
	for i := r.Len(); i < len(seats); i++ {
		r.Add(seats[i].Name, game.Remote)
	}
	for i := r.Len(); i > len(seats); i-- {
		r.Remove(i-1, game.Remote)
	}
}

func (s State) applySeat(i int, st wire.SeatState) {
	r := s.Roster
	p, ok := r.Player(i)
	if !ok {
		return
	}
	if p.Name != st.Name {
		r.Update(i, roster.Name(st.Name), game.Remote)
	}
	if p.ID != st.ID {
		r.Update(i, roster.ID(st.ID), game.Remote)
	}
	if p.IsDead != st.IsDead {
		r.Update(i, roster.Dead(st.IsDead), game.Remote)
	}
	if p.VoteToken != st.VoteToken {
		r.Update(i, roster.VoteToken(st.VoteToken), game.Remote)
	}
	if p.Pronouns != st.Pronouns {
		r.Update(i, roster.Pronouns(st.Pronouns), game.Remote)
	}

	switch {
	case st.RoleID != "" && p.Role.ID != st.RoleID:
		if role, ok := s.Grimoire.ResolveRole(st.RoleID); ok {
			r.Update(i, roster.Role{Role: role}, game.Remote)
		}
	case st.RoleID == "" && p.Role.IsTraveler():
		r.Update(i, roster.Role{}, game.Remote)
	}
}

// ApplyEdition loads the host's script. It returns the custom role ids this
// replica could not resolve; the caller decides whether to stay.
func (s State) ApplyEdition(p wire.EditionPayload) []string {
	s.Grimoire.SetEdition(p.Edition, game.Remote)
	if p.Roles == nil {
		return nil
	}
	return s.Grimoire.SetCustomRoles(p.Roles, game.Remote)
}

// ApplyFabled replaces the fabled in play, enriching id-only entries from the
// catalog.
func (s State) ApplyFabled(fabled []game.Role) {
	out := make([]game.Role, 0, len(fabled))
	for _, f := range fabled {
		if known, ok := s.Grimoire.ResolveFabled(f.ID); ok {
			f = known
		}
		out = append(out, f)
	}
	s.Roster.SetFabled(out, game.Remote)
}
