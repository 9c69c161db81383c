package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/DoyleJ11/townsquare-live/internal/client"
	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/live"
)

var errQuit = errors.New("quit")

const help = `commands:
  status                 show the session
  seat <n>               claim seat n (-1 to stand up)
  chat <player> <text>   message a player
  say <text>             message everyone
  vote [seat] yes|no     raise or lower a hand (guests: own seat)
  hand [seat]            flip a hand
  refresh                ask the host for a fresh snapshot
  leave                  leave the session and quit
host only:
  add <name>             add a seat
  phase <phase>          pregame|firstNight|day|otherNight|postgame
  nominate <a> <b>       seat a nominates seat b
  lock                   advance the vote clock
  deal                   send every player their role
  end                    clear the nomination`

// Session is the subset of client.Client the shell drives.
type Session interface {
	Do(f func(r *live.Router)) error
	Status() (client.Status, error)
	RequestGamestate() error
	Leave() error
}

type shell struct {
	s   Session
	out io.Writer
}

// run reads commands until EOF, leave, or an io error.
func (sh *shell) run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		err := sh.exec(sc.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(sh.out, "error:", err)
		}
	}
	return sc.Err()
}

func (sh *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(sh.out, help)
		return nil
	case "status":
		st, err := sh.s.Status()
		if err != nil {
			return err
		}
		printStatus(sh.out, st)
		return nil
	case "refresh":
		return sh.s.RequestGamestate()
	case "leave", "quit":
		if err := sh.s.Leave(); err != nil {
			return err
		}
		return errQuit
	case "seat":
		n, err := intArg(args, 0)
		if err != nil {
			return err
		}
		return sh.s.Do(func(r *live.Router) { r.ClaimSeat(n) })
	case "chat":
		if len(args) < 2 {
			return errors.New("usage: chat <player> <text>")
		}
		text := strings.Join(args[1:], " ")
		return sh.s.Do(func(r *live.Router) { r.SendChat(args[0], text) })
	case "vote", "hand":
		return sh.vote(cmd, args)
	case "say":
		if len(args) == 0 {
			return errors.New("usage: say <text>")
		}
		text := strings.Join(args, " ")
		return sh.s.Do(func(r *live.Router) { r.SendGlobalChat(text) })
	}
	return sh.host(cmd, args)
}

// vote sets (vote) or flips (hand) a hand during a nomination. The host may
// name any seat; a guest votes on their own seat.
func (sh *shell) vote(cmd string, args []string) error {
	usage := fmt.Errorf("usage: %s [seat] yes|no", cmd)
	if cmd == "hand" {
		usage = errors.New("usage: hand [seat]")
	}
	seat := -1
	if (cmd == "vote" && len(args) == 2) || (cmd == "hand" && len(args) == 1) {
		n, err := intArg(args, 0)
		if err != nil {
			return err
		}
		seat, args = n, args[1:]
	}
	var hand bool
	if cmd == "vote" {
		if len(args) != 1 {
			return usage
		}
		switch args[0] {
		case "yes", "y":
			hand = true
		case "no", "n":
		default:
			return usage
		}
	} else if len(args) != 0 {
		return usage
	}

	var err error
	doErr := sh.s.Do(func(r *live.Router) {
		own := r.Directory().ClaimedSeat
		if own < 0 {
			own = r.Roster.IndexOf(r.Directory().PlayerID)
		}
		if seat < 0 {
			seat = own
		}
		switch {
		case seat < 0:
			err = errors.New("claim a seat first")
		case !r.IsHost() && seat != own:
			err = errors.New("guests can only vote on their own seat")
		case r.Voting.Nomination() == nil:
			err = errors.New("no nomination in progress")
		case cmd == "hand":
			r.Voting.Toggle(seat, game.Local)
		default:
			r.Voting.Vote(seat, hand, game.Local)
		}
	})
	return multierr.Append(doErr, err)
}

// host runs storyteller commands. Guests get an error instead of a silent
// local change the host would overwrite.
func (sh *shell) host(cmd string, args []string) error {
	var run func(r *live.Router)
	switch cmd {
	case "add":
		if len(args) == 0 {
			return errors.New("usage: add <name>")
		}
		name := strings.Join(args, " ")
		run = func(r *live.Router) { r.Roster.Add(name, game.Local) }
	case "phase":
		if len(args) != 1 {
			return errors.New("usage: phase <phase>")
		}
		p := game.GamePhase(args[0])
		switch p {
		case game.PhasePregame, game.PhaseFirstNight, game.PhaseDay, game.PhaseOtherNight, game.PhasePostgame:
		default:
			return fmt.Errorf("unknown phase %q", args[0])
		}
		run = func(r *live.Router) { r.Grimoire.SetGamePhase(p, game.Local) }
	case "nominate":
		a, err := intArg(args, 0)
		if err != nil {
			return err
		}
		b, err := intArg(args, 1)
		if err != nil {
			return err
		}
		n := &game.Nomination{Nominator: game.Seat(a), Nominee: game.Seat(b)}
		run = func(r *live.Router) { r.Voting.SetNomination(n, game.Local) }
	case "lock":
		run = func(r *live.Router) { r.Voting.LockVote(nil, game.Local) }
	case "deal":
		run = func(r *live.Router) { r.DistributeRoles() }
	case "end":
		run = func(r *live.Router) { r.Voting.SetNomination(nil, game.Local) }
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}

	var notHost bool
	err := sh.s.Do(func(r *live.Router) {
		if !r.IsHost() {
			notHost = true
			return
		}
		run(r)
	})
	if err != nil {
		return err
	}
	if notHost {
		return fmt.Errorf("%s: only the host can do that", cmd)
	}
	return nil
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return n, nil
}

func printStatus(w io.Writer, st client.Status) {
	fmt.Fprintf(w, "session %s as %s (%s), %s\n", st.SessionID, st.Role, st.PlayerID, st.State)
	if st.Reconnecting {
		fmt.Fprintln(w, "  reconnecting...")
	}
	fmt.Fprintf(w, "  %d connected, ping %dms, phase %s, day %d\n", st.PlayerCount, st.Ping, st.Phase, st.Day)
	for i, p := range st.Players {
		mark := " "
		if i == st.ClaimedSeat {
			mark = "*"
		}
		state := "alive"
		if p.IsDead {
			state = "dead"
		}
		name := p.Name
		if name == "" {
			name = "(empty)"
		}
		fmt.Fprintf(w, " %s%2d %-16s %-6s %s\n", mark, i, name, state, p.Role.Name)
	}
}
