package game

import (
	"encoding/json"
	"time"
)

type Team string

const (
	TeamTownsfolk Team = "townsfolk"
	TeamOutsider  Team = "outsider"
	TeamMinion    Team = "minion"
	TeamDemon     Team = "demon"
	TeamTraveler  Team = "traveler"
	TeamFabled    Team = "fabled"
	TeamDefault   Team = "default"
)

type Alignment string

const (
	AlignmentNone Alignment = ""
	AlignmentGood Alignment = "good"
	AlignmentEvil Alignment = "evil"
)

// AlignmentFor derives the default alignment a role grants its holder.
func AlignmentFor(t Team) Alignment {
	switch t {
	case TeamTownsfolk, TeamOutsider:
		return AlignmentGood
	case TeamMinion, TeamDemon:
		return AlignmentEvil
	default:
		return AlignmentNone
	}
}

type GamePhase string

const (
	PhaseOffline    GamePhase = "offline"
	PhasePregame    GamePhase = "pregame"
	PhaseFirstNight GamePhase = "firstNight"
	PhaseDay        GamePhase = "day"
	PhaseOtherNight GamePhase = "otherNight"
	PhasePostgame   GamePhase = "postgame"
)

// Origin tags where a mutation came from. Only Local mutations are echoed
// back onto the wire.
type Origin uint8

const (
	Local Origin = iota
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

type Role struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name,omitempty" yaml:"name"`
	Team               Team     `json:"team,omitempty" yaml:"team"`
	Ability            string   `json:"ability,omitempty" yaml:"ability"`
	Edition            string   `json:"edition,omitempty" yaml:"edition"`
	Image              string   `json:"image,omitempty" yaml:"image"`
	IsCustom           bool     `json:"isCustom,omitempty" yaml:"isCustom"`
	FirstNight         float64  `json:"firstNight,omitempty" yaml:"firstNight"`
	OtherNight         float64  `json:"otherNight,omitempty" yaml:"otherNight"`
	FirstNightReminder string   `json:"firstNightReminder,omitempty" yaml:"firstNightReminder"`
	OtherNightReminder string   `json:"otherNightReminder,omitempty" yaml:"otherNightReminder"`
	Reminders          []string `json:"reminders,omitempty" yaml:"reminders"`
	RemindersGlobal    []string `json:"remindersGlobal,omitempty" yaml:"remindersGlobal"`
	Setup              bool     `json:"setup,omitempty" yaml:"setup"`
	Forbidden          bool     `json:"forbidden,omitempty" yaml:"forbidden"`
}

func (r Role) IsTraveler() bool { return r.Team == TeamTraveler }

// IsZero reports whether no role is assigned.
func (r Role) IsZero() bool { return r.ID == "" }

type Reminder struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name"`
}

type Player struct {
	Name      string     `json:"name"`
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Alignment Alignment  `json:"alignment,omitempty"`
	Reminders []Reminder `json:"reminders"`
	VoteToken bool       `json:"voteToken"`
	IsDead    bool       `json:"isDead"`
	Pronouns  string     `json:"pronouns"`
	IsMarked  bool       `json:"isMarked,omitempty"`
}

type Timer struct {
	Name     string  `json:"name,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type Edition struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name,omitempty" yaml:"name"`
	Author     string   `json:"author,omitempty" yaml:"author"`
	Logo       string   `json:"logo,omitempty" yaml:"logo"`
	IsOfficial bool     `json:"isOfficial,omitempty" yaml:"isOfficial"`
	Roles      []string `json:"roles,omitempty" yaml:"roles"`
}

type SpecialVote struct {
	Type        string `json:"type"`
	TimerText   string `json:"timerText,omitempty"`
	DebateText  string `json:"debateText,omitempty"`
	ButtonLabel string `json:"buttonLabel,omitempty"`
}

type Nomination struct {
	Nominator   SeatRef      `json:"nominator"`
	Nominee     SeatRef      `json:"nominee"`
	SpecialVote *SpecialVote `json:"specialVote,omitempty"`
}

// IsStandard reports an execution/exile nomination: both sides are seats and
// no special vote is attached.
func (n *Nomination) IsStandard() bool {
	if n == nil {
		return false
	}
	return n.Nominator.Kind == RefSeat && n.Nominee.Kind == RefSeat && n.SpecialVote == nil
}

func (n *Nomination) IsSpecial() bool { return n != nil && n.SpecialVote != nil }

type VoteHistoryEntry struct {
	Day       int       `json:"day"`
	Timestamp time.Time `json:"timestamp"`
	Nominator string    `json:"nominator"`
	Nominee   string    `json:"nominee"`
	Type      string    `json:"type"`
	Majority  int       `json:"majority"`
	Votes     []string  `json:"votes"`
	Anonymous bool      `json:"anonymous,omitempty"`
}

// Votes is the sparse per-seat vote array. Holes arrive as JSON null and
// decode to false.
type Votes []bool

func (v *Votes) UnmarshalJSON(data []byte) error {
	var raw []*bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Votes, len(raw))
	for i, b := range raw {
		out[i] = b != nil && *b
	}
	*v = out
	return nil
}

// At returns the vote for seat i, treating out-of-range seats as "no".
func (v Votes) At(i int) bool {
	if i < 0 || i >= len(v) {
		return false
	}
	return v[i]
}
