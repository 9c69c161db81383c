package roster

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

// Change is one field edit on a seat. The set of changes is closed; each maps
// to exactly one wire property.
type Change interface {
	Property() wire.Property
	Value() any
	apply(p *game.Player)
}

type (
	Name      string
	ID        string
	Pronouns  string
	Dead      bool
	VoteToken bool
	Marked    bool
	Alignment game.Alignment
	Reminders []game.Reminder
	Role      struct{ game.Role }
)

func (Name) Property() wire.Property      { return wire.PropName }
func (ID) Property() wire.Property        { return wire.PropID }
func (Pronouns) Property() wire.Property  { return wire.PropPronouns }
func (Dead) Property() wire.Property      { return wire.PropIsDead }
func (VoteToken) Property() wire.Property { return wire.PropVoteToken }
func (Marked) Property() wire.Property    { return wire.PropIsMarked }
func (Alignment) Property() wire.Property { return wire.PropAlignment }
func (Reminders) Property() wire.Property { return wire.PropReminders }
func (Role) Property() wire.Property      { return wire.PropRole }

func (c Name) Value() any      { return string(c) }
func (c ID) Value() any        { return string(c) }
func (c Pronouns) Value() any  { return string(c) }
func (c Dead) Value() any      { return bool(c) }
func (c VoteToken) Value() any { return bool(c) }
func (c Marked) Value() any    { return bool(c) }
func (c Alignment) Value() any { return game.Alignment(c) }
func (c Reminders) Value() any { return []game.Reminder(c) }
func (c Role) Value() any      { return c.Role }

func (c Name) apply(p *game.Player)      { p.Name = string(c) }
func (c ID) apply(p *game.Player)        { p.ID = string(c) }
func (c Pronouns) apply(p *game.Player)  { p.Pronouns = string(c) }
func (c Dead) apply(p *game.Player)      { p.IsDead = bool(c) }
func (c VoteToken) apply(p *game.Player) { p.VoteToken = bool(c) }
func (c Marked) apply(p *game.Player)    { p.IsMarked = bool(c) }
func (c Alignment) apply(p *game.Player) { p.Alignment = game.Alignment(c) }
func (c Reminders) apply(p *game.Player) { p.Reminders = []game.Reminder(c) }

// A role assignment also resets the seat's alignment to the role's default.
func (c Role) apply(p *game.Player) {
	p.Role = c.Role
	p.Alignment = game.AlignmentFor(c.Team)
}

// Resolver looks a role up by id, used to enrich role payloads that only
// carry an id.
type Resolver func(id string) (game.Role, bool)

// Decode turns a "player" update into a Change.
func Decode(prop wire.Property, raw json.RawMessage, resolve Resolver) (Change, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var err error
	switch prop {
	case wire.PropName:
		var v string
		err = json.Unmarshal(raw, &v)
		return Name(v), wrap(prop, err)
	case wire.PropID:
		var v string
		err = json.Unmarshal(raw, &v)
		return ID(v), wrap(prop, err)
	case wire.PropPronouns:
		var v string
		err = json.Unmarshal(raw, &v)
		return Pronouns(v), wrap(prop, err)
	case wire.PropIsDead:
		var v bool
		err = json.Unmarshal(raw, &v)
		return Dead(v), wrap(prop, err)
	case wire.PropVoteToken:
		var v bool
		err = json.Unmarshal(raw, &v)
		return VoteToken(v), wrap(prop, err)
	case wire.PropIsMarked:
		var v bool
		err = json.Unmarshal(raw, &v)
		return Marked(v), wrap(prop, err)
	case wire.PropAlignment:
		var v *string
		err = json.Unmarshal(raw, &v)
		if v == nil {
			return Alignment(game.AlignmentNone), wrap(prop, err)
		}
		return Alignment(*v), wrap(prop, err)
	case wire.PropReminders:
		var v []game.Reminder
		err = json.Unmarshal(raw, &v)
		return Reminders(v), wrap(prop, err)
	case wire.PropRole:
		var v game.Role
		if err = json.Unmarshal(raw, &v); err != nil {
			return nil, wrap(prop, err)
		}
		if v.ID != "" && resolve != nil && v.Name == "" {
			if known, ok := resolve(v.ID); ok {
				v = known
			}
		}
		return Role{v}, nil
	default:
		return nil, fmt.Errorf("%w: %q", wire.ErrUnknownProperty, prop)
	}
}

func wrap(prop wire.Property, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s value: %v", wire.ErrMalformed, prop, err)
}

// Raw marshals a player value for a "player" frame, falling back to null.
func Raw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
