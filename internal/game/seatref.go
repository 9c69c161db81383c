package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type RefKind uint8

const (
	RefNone RefKind = iota
	RefSeat
	RefLabel
)

// SeatRef is a nominator or nominee: a seat index, a free-form label used by
// special votes, or nothing.
type SeatRef struct {
	Kind  RefKind
	Seat  int
	Label string
}

func Seat(i int) SeatRef        { return SeatRef{Kind: RefSeat, Seat: i} }
func Label(s string) SeatRef    { return SeatRef{Kind: RefLabel, Label: s} }
func NoRef() SeatRef            { return SeatRef{} }
func (r SeatRef) IsSeat() bool  { return r.Kind == RefSeat }
func (r SeatRef) IsLabel() bool { return r.Kind == RefLabel }

// SeatIndex returns the seat number when the reference points at a seat.
func (r SeatRef) SeatIndex() (int, bool) {
	if r.Kind != RefSeat {
		return 0, false
	}
	return r.Seat, true
}

// DisplayName resolves the reference against the roster for history records.
func (r SeatRef) DisplayName(players []Player) string {
	switch r.Kind {
	case RefSeat:
		if r.Seat >= 0 && r.Seat < len(players) {
			return players[r.Seat].Name
		}
		return ""
	case RefLabel:
		return r.Label
	default:
		return ""
	}
}

func (r SeatRef) String() string {
	switch r.Kind {
	case RefSeat:
		return strconv.Itoa(r.Seat)
	case RefLabel:
		return strconv.Quote(r.Label)
	default:
		return "none"
	}
}

func (r SeatRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefSeat:
		return []byte(strconv.Itoa(r.Seat)), nil
	case RefLabel:
		return json.Marshal(r.Label)
	default:
		return []byte("null"), nil
	}
}

func (r *SeatRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = NoRef()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Label(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("seat reference %s: %w", data, err)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("seat reference %s is not an integer", data)
	}
	*r = Seat(int(f))
	return nil
}
