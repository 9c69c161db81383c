// Package grimoire holds the storyteller's shared table settings: game phase,
// day counter, timer, edition and the various permission flags.
package grimoire

import (
	"regexp"
	"slices"
	"strings"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

const SoundRooster = "rooster"

// Outbox is what the grimoire needs from the live session.
type Outbox interface {
	wire.Link
	// PushEdition broadcasts the edition and, for custom scripts, its roles.
	PushEdition()
}

// Hooks are the side effects a phase or flag change has on other stores.
type Hooks interface {
	ResetMarked(origin game.Origin)
	SyncHistory()
	Play(sound string)
}

// Catalog is the role data the grimoire resolves ids against.
type Catalog interface {
	Role(id string) (game.Role, bool)
	Fabled(id string) (game.Role, bool)
	EditionRoles(edition string) []game.Role
}

type Store struct {
	out     Outbox
	hooks   Hooks
	catalog Catalog

	timer              game.Timer
	edition            game.Edition
	roles              []game.Role
	customFabled       []game.Role
	allowSelfNaming    bool
	voteHistoryAllowed bool
	secretVote         bool
	textChatAllowed    bool
	phase              game.GamePhase
	day                int

	locale    string
	preferred string
}

// emptyCatalog knows no roles.
type emptyCatalog struct{}

func (emptyCatalog) Role(string) (game.Role, bool)   { return game.Role{}, false }
func (emptyCatalog) Fabled(string) (game.Role, bool) { return game.Role{}, false }
func (emptyCatalog) EditionRoles(string) []game.Role { return nil }

// New builds a grimoire. A nil catalog resolves nothing, so only custom roles
// that carry their own name, ability and team load.
func New(out Outbox, hooks Hooks, catalog Catalog, locale string) *Store {
	if catalog == nil {
		catalog = emptyCatalog{}
	}
	return &Store{
		out:                out,
		hooks:              hooks,
		catalog:            catalog,
		allowSelfNaming:    true,
		voteHistoryAllowed: true,
		textChatAllowed:    true,
		phase:              game.PhaseOffline,
		locale:             locale,
		preferred:          locale,
	}
}

func (s *Store) Timer() game.Timer         { return s.timer }
func (s *Store) Edition() game.Edition     { return s.edition }
func (s *Store) Roles() []game.Role        { return s.roles }
func (s *Store) AllowSelfNaming() bool     { return s.allowSelfNaming }
func (s *Store) VoteHistoryAllowed() bool  { return s.voteHistoryAllowed }
func (s *Store) SecretVote() bool          { return s.secretVote }
func (s *Store) TextChatAllowed() bool     { return s.textChatAllowed }
func (s *Store) GamePhase() game.GamePhase { return s.phase }
func (s *Store) DayCount() int             { return s.day }
func (s *Store) Locale() string            { return s.locale }

func (s *Store) host(origin game.Origin) bool {
	return origin == game.Local && s.out.IsHost()
}

func (s *Store) SetTimer(t game.Timer, origin game.Origin) {
	s.timer = t
	if s.host(origin) {
		s.out.Send(wire.TagSetTimer, t)
	}
}

func (s *Store) SetAllowSelfNaming(v bool, origin game.Origin) {
	s.allowSelfNaming = v
	if s.host(origin) {
		s.out.Send(wire.TagAllowSelfNaming, v)
	}
}

// SetVoteHistoryAllowed also re-syncs the history so guests see exactly what
// the new setting permits.
func (s *Store) SetVoteHistoryAllowed(v bool, origin game.Origin) {
	s.voteHistoryAllowed = v
	if s.host(origin) {
		s.out.Send(wire.TagIsVoteHistoryAllowed, v)
		s.hooks.SyncHistory()
	}
}

func (s *Store) SetSecretVote(v bool, origin game.Origin) {
	s.secretVote = v
	if s.host(origin) {
		s.out.Send(wire.TagIsSecretVote, v)
	}
}

func (s *Store) SetTextChatAllowed(v bool, origin game.Origin) {
	s.textChatAllowed = v
	if s.host(origin) {
		s.out.Send(wire.TagIsTextChatAllowed, v)
	}
}

// SetGamePhase moves the game along. Re-entering the current phase does
// nothing, so a host refresh does not replay side effects.
func (s *Store) SetGamePhase(p game.GamePhase, origin game.Origin) {
	if s.phase == p {
		return
	}
	s.phase = p
	if s.host(origin) {
		s.out.Send(wire.TagGamePhase, p)
	}
	switch p {
	case game.PhaseDay:
		s.hooks.Play(SoundRooster)
	case game.PhaseFirstNight:
		s.hooks.ResetMarked(origin)
		s.SetDayCount(1, origin)
	case game.PhaseOtherNight:
		s.hooks.ResetMarked(origin)
		s.SetDayCount(s.day+1, origin)
	case game.PhasePregame:
		s.SetDayCount(0, origin)
	}
}

// ToggleNight advances pregame -> first night -> day -> other night -> day.
func (s *Store) ToggleNight(origin game.Origin) {
	switch s.phase {
	case game.PhasePregame:
		s.SetGamePhase(game.PhaseFirstNight, origin)
	case game.PhaseFirstNight, game.PhaseOtherNight:
		s.SetGamePhase(game.PhaseDay, origin)
	case game.PhaseDay:
		s.SetGamePhase(game.PhaseOtherNight, origin)
	}
}

// SetDayCount ignores negative days.
func (s *Store) SetDayCount(day int, origin game.Origin) {
	if day < 0 {
		return
	}
	s.day = day
	if s.host(origin) {
		s.out.Send(wire.TagDayCount, day)
	}
}

// SetLocale changes the host's language and tells the guests to follow.
func (s *Store) SetLocale(locale string, origin game.Origin) {
	s.locale = locale
	s.preferred = locale
	if s.host(origin) {
		s.out.Send(wire.TagLocale, locale)
	}
}

// ForceLocale switches to the host's language without touching the user's
// own preference.
func (s *Store) ForceLocale(locale string) {
	if locale == "" {
		return
	}
	s.locale = locale
}

func (s *Store) RevertLocale() {
	s.locale = s.preferred
}

// SetEdition selects a script. Official editions replace the role set;
// custom ones are extended with roles resolved from the catalog.
func (s *Store) SetEdition(e game.Edition, origin game.Origin) {
	s.edition = e
	if e.IsOfficial {
		s.roles = nil
	}
	if len(e.Roles) > 0 {
		for _, id := range e.Roles {
			if r, ok := s.catalog.Role(id); ok {
				s.putRole(r)
			}
		}
	} else {
		for _, r := range s.catalog.EditionRoles(e.ID) {
			s.putRole(r)
		}
	}
	if s.host(origin) {
		s.out.PushEdition()
	}
}

func (s *Store) putRole(r game.Role) {
	if i := slices.IndexFunc(s.roles, func(x game.Role) bool { return x.ID == r.ID }); i >= 0 {
		s.roles[i] = r
		return
	}
	s.roles = append(s.roles, r)
}

var nonLetters = regexp.MustCompile(`[^a-z]`)

// NormalizeRoleID lowercases an id and strips everything but letters.
func NormalizeRoleID(id string) string {
	return nonLetters.ReplaceAllString(strings.ToLower(id), "")
}

// SetCustomRoles loads a custom script. Known ids resolve to catalog roles;
// unknown ones are kept as custom roles when they carry a name, ability and
// team. It returns the ids that could not be loaded.
func (s *Store) SetCustomRoles(roles []game.Role, origin game.Origin) (missing []string) {
	var loaded, fabled []game.Role
	for _, in := range roles {
		in.ID = NormalizeRoleID(in.ID)
		if in.Team == "traveller" {
			in.Team = game.TeamTraveler
		}
		r, ok := s.resolveCustom(in)
		if !ok {
			missing = append(missing, in.ID)
			continue
		}
		if r.Team == game.TeamFabled || r.Team == "loric" {
			fabled = append(fabled, r)
		} else {
			loaded = append(loaded, r)
		}
	}
	slices.SortStableFunc(loaded, func(a, b game.Role) int { return strings.Compare(string(b.Team), string(a.Team)) })
	s.roles = loaded
	s.customFabled = fabled
	if s.host(origin) {
		s.out.PushEdition()
	}
	return missing
}

func (s *Store) resolveCustom(in game.Role) (game.Role, bool) {
	if r, ok := s.catalog.Role(in.ID); ok {
		return r, true
	}
	if r, ok := s.catalog.Fabled(in.ID); ok {
		return r, true
	}
	if r, ok := s.role(in.ID); ok {
		return r, true
	}
	if in.Name == "" || in.Ability == "" || in.Team == "" {
		return game.Role{}, false
	}
	in.IsCustom = true
	if in.Edition == "" {
		in.Edition = "custom"
	}
	if in.FirstNight < 0 {
		in.FirstNight = -in.FirstNight
	}
	if in.OtherNight < 0 {
		in.OtherNight = -in.OtherNight
	}
	return in, true
}

func (s *Store) role(id string) (game.Role, bool) {
	i := slices.IndexFunc(s.roles, func(r game.Role) bool { return r.ID == id })
	if i < 0 {
		return game.Role{}, false
	}
	return s.roles[i], true
}

// ResolveRole looks an id up in the active script first, then the catalog.
func (s *Store) ResolveRole(id string) (game.Role, bool) {
	if r, ok := s.role(id); ok {
		return r, true
	}
	return s.catalog.Role(id)
}

func (s *Store) ResolveFabled(id string) (game.Role, bool) {
	for _, f := range s.customFabled {
		if f.ID == id {
			return f, true
		}
	}
	return s.catalog.Fabled(id)
}

// EditionPayload is the edition message body. Custom scripts carry their
// roles, official ones by id and custom ones whole.
func (s *Store) EditionPayload() wire.EditionPayload {
	p := wire.EditionPayload{Edition: s.edition}
	if s.edition.ID == "" || s.edition.IsOfficial {
		return p
	}
	p.Roles = make([]game.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if r.IsCustom {
			p.Roles = append(p.Roles, r)
		} else {
			p.Roles = append(p.Roles, game.Role{ID: r.ID})
		}
	}
	return p
}

// Reset restores defaults, keeping the locale preference.
func (s *Store) Reset() {
	*s = Store{
		out:                s.out,
		hooks:              s.hooks,
		catalog:            s.catalog,
		allowSelfNaming:    true,
		voteHistoryAllowed: true,
		textChatAllowed:    true,
		phase:              game.PhaseOffline,
		locale:             s.preferred,
		preferred:          s.preferred,
	}
}
