package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/DoyleJ11/townsquare-live/internal/game"
)

// SeatState is the per-seat roster projection carried by a snapshot. RoleID is
// only populated for traveler seats.
type SeatState struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDead    bool   `json:"isDead"`
	VoteToken bool   `json:"voteToken"`
	Pronouns  string `json:"pronouns"`
	RoleID    string `json:"roleId,omitempty"`
}

// Shared is the bundle a full snapshot adds on top of the roster projection.
type Shared struct {
	GamePhase            game.GamePhase          `json:"gamePhase"`
	DayCount             int                     `json:"dayCount"`
	Timer                game.Timer              `json:"timer"`
	AllowSelfNaming      bool                    `json:"allowSelfNaming"`
	IsVoteHistoryAllowed bool                    `json:"isVoteHistoryAllowed"`
	IsSecretVoteMode     bool                    `json:"isSecretVoteMode"`
	IsTextChatAllowed    bool                    `json:"isTextChatAllowed"`
	Nomination           *game.Nomination        `json:"nomination"`
	VotingSpeed          int                     `json:"votingSpeed"`
	LockedVote           int                     `json:"lockedVote"`
	IsVoteInProgress     bool                    `json:"isVoteInProgress"`
	MarkedPlayer         int                     `json:"markedPlayer"`
	Fabled               []game.Role             `json:"fabled"`
	Votes                game.Votes              `json:"votes,omitempty"`
	VoteHistory          []game.VoteHistoryEntry `json:"voteHistory"`
	Locale               string                  `json:"locale"`
}

// Gamestate is the "gs" payload. Lightweight snapshots leave Shared nil so
// only the roster projection is serialized.
type Gamestate struct {
	Gamestate     []SeatState `json:"gamestate"`
	IsLightweight bool        `json:"isLightweight,omitempty"`
	*Shared
}

type EditionPayload struct {
	Edition game.Edition `json:"edition"`
	Roles   []game.Role  `json:"roles,omitempty"`
}

type Property string

const (
	PropName      Property = "name"
	PropID        Property = "id"
	PropRole      Property = "role"
	PropAlignment Property = "alignment"
	PropVoteToken Property = "voteToken"
	PropIsDead    Property = "isDead"
	PropPronouns  Property = "pronouns"
	PropIsMarked  Property = "isMarked"
	PropReminders Property = "reminders"
)

func (p Property) Valid() bool {
	switch p {
	case PropName, PropID, PropRole, PropAlignment, PropVoteToken, PropIsDead, PropPronouns, PropIsMarked, PropReminders:
		return true
	}
	return false
}

type PlayerUpdate struct {
	Index    int             `json:"index"`
	Property Property        `json:"property"`
	Value    json.RawMessage `json:"value"`
}

type Chat struct {
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

type ChatActivity struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Sound struct {
	Sound string `json:"sound"`
}

// Ping is a decoded heartbeat. Guests send their identity; the host sends the
// number of connected peers. Latency is absent when the relay did not
// substitute a number.
type Ping struct {
	PlayerID   string
	Count      int
	Latency    int
	HasLatency bool
}

func (p *Ping) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*p = Ping{}
	if len(parts) > 0 {
		var s string
		if err := json.Unmarshal(parts[0], &s); err == nil {
			p.PlayerID = s
		} else if n, ok := parseInt(parts[0]); ok {
			p.Count = n
		}
	}
	if len(parts) > 1 {
		p.Latency, p.HasLatency = parseInt(parts[1])
	}
	return nil
}

// Vote is [seat, value, fromHost].
type Vote struct {
	Seat     int
	Value    bool
	FromHost bool
}

func (v Vote) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{v.Seat, v.Value, v.FromHost})
}

func (v *Vote) UnmarshalJSON(data []byte) error {
	parts, err := tuple(data, 1)
	if err != nil {
		return err
	}
	seat, ok := parseInt(parts[0])
	if !ok {
		return fmt.Errorf("vote seat %s", parts[0])
	}
	*v = Vote{Seat: seat}
	if len(parts) > 1 {
		v.Value = truthy(parts[1])
	}
	if len(parts) > 2 {
		v.FromHost = truthy(parts[2])
	}
	return nil
}

// Lock is [lockedVote, forcedValue].
type Lock struct {
	Locked int
	Forced bool
}

func (l Lock) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{l.Locked, l.Forced})
}

func (l *Lock) UnmarshalJSON(data []byte) error {
	parts, err := tuple(data, 1)
	if err != nil {
		return err
	}
	locked, ok := parseInt(parts[0])
	if !ok {
		return fmt.Errorf("lock index %s", parts[0])
	}
	*l = Lock{Locked: locked}
	if len(parts) > 1 {
		l.Forced = truthy(parts[1])
	}
	return nil
}

// SeatValue is [seat, text], used by name and pronoun edits.
type SeatValue struct {
	Seat  int
	Value string
}

func (s SeatValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Seat, s.Value})
}

func (s *SeatValue) UnmarshalJSON(data []byte) error {
	parts, err := tuple(data, 2)
	if err != nil {
		return err
	}
	seat, ok := parseInt(parts[0])
	if !ok {
		return fmt.Errorf("seat %s", parts[0])
	}
	var value string
	if err := json.Unmarshal(parts[1], &value); err != nil {
		return fmt.Errorf("seat value: %w", err)
	}
	*s = SeatValue{Seat: seat, Value: value}
	return nil
}

// Claim is [seat, playerId]; seat -1 releases any claimed seat.
type Claim struct {
	Seat     int
	PlayerID string
}

func (c Claim) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Seat, c.PlayerID})
}

func (c *Claim) UnmarshalJSON(data []byte) error {
	var sv SeatValue
	if err := sv.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = Claim{Seat: sv.Seat, PlayerID: sv.Value}
	return nil
}

// Pair is [from, to] for swap and move.
type Pair struct {
	From int
	To   int
}

func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.From, p.To})
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	parts, err := tuple(data, 2)
	if err != nil {
		return err
	}
	from, ok1 := parseInt(parts[0])
	to, ok2 := parseInt(parts[1])
	if !ok1 || !ok2 {
		return fmt.Errorf("pair %s", data)
	}
	*p = Pair{From: from, To: to}
	return nil
}

func tuple(data []byte, min int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, err
	}
	if len(parts) < min {
		return nil, fmt.Errorf("want at least %d elements, got %d", min, len(parts))
	}
	return parts, nil
}

// parseInt accepts a JSON number or a numeric string, truncating fractions the
// way the browser client's parseInt does.
func parseInt(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) || f >= 1<<63 || f < -(1<<63) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
