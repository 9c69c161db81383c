package voting

import "github.com/DoyleJ11/townsquare-live/internal/game"

// Anchor is the seat voting is counted from: the nominee when it is a seat,
// else the nominator when it is a seat, else 0.
func Anchor(n *game.Nomination) int {
	if n == nil {
		return 0
	}
	if seat, ok := n.Nominee.SeatIndex(); ok {
		return seat
	}
	if seat, ok := n.Nominator.SeatIndex(); ok {
		return seat
	}
	return 0
}

// AdjustedIndex maps a raw seat to its position in the voting order, where 0
// is the seat right after the anchor.
func AdjustedIndex(raw, seats, anchor int) int {
	if seats <= 0 {
		return -1
	}
	return mod(raw-1+seats-anchor, seats)
}

// LockIndex is the raw seat whose vote the lock pointer currently sits on.
func LockIndex(anchor, locked, seats int) int {
	if seats <= 0 {
		return -1
	}
	return mod(anchor+locked-1, seats)
}

// Accept reports whether a vote for an adjusted seat may still change. Votes
// relayed by the host always apply; anything else behind the lock is stale.
func Accept(fromHost bool, adjusted, locked int) bool {
	return fromHost || adjusted >= locked-1
}

// IsExile reports a standard nomination of a traveler.
func IsExile(n *game.Nomination, players []game.Player) bool {
	if !n.IsStandard() {
		return false
	}
	seat := n.Nominee.Seat
	if seat < 0 || seat >= len(players) {
		return false
	}
	return players[seat].Role.IsTraveler()
}

// Majority is half of the eligible voters, rounded up. Dead players still
// count towards an exile.
func Majority(players []game.Player, exile bool) int {
	eligible := 0
	for _, p := range players {
		if !p.IsDead || exile {
			eligible++
		}
	}
	return (eligible + 1) / 2
}

// Texts are the localized vote type labels.
type Texts struct {
	Exile     string
	Execution string
}

var DefaultTexts = Texts{Exile: "Exile", Execution: "Execution"}

// VoteType labels a nomination for history and display.
func VoteType(n *game.Nomination, exile bool, texts Texts) string {
	switch {
	case n != nil && n.SpecialVote != nil && n.SpecialVote.ButtonLabel != "":
		return n.SpecialVote.ButtonLabel
	case exile:
		return texts.Exile
	default:
		return texts.Execution
	}
}

// ExecutionLabel marks execution totals as partial for guests while votes
// are secret.
func ExecutionLabel(label string, secret, viewerIsHost bool) string {
	if secret && !viewerIsHost {
		return label + "*"
	}
	return label
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
