// Command townsquare hosts or joins a live session from the terminal.
//
//	townsquare [-config file] host [-qr] [session]
//	townsquare [-config file] join <session>
//	townsquare [-config file] resume
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/townsquare-live/internal/catalog"
	"github.com/DoyleJ11/townsquare-live/internal/client"
	"github.com/DoyleJ11/townsquare-live/internal/config"
	"github.com/DoyleJ11/townsquare-live/internal/live"
	"github.com/DoyleJ11/townsquare-live/internal/logging"
	"github.com/DoyleJ11/townsquare-live/internal/prefs"
	"github.com/DoyleJ11/townsquare-live/internal/session"
	"github.com/DoyleJ11/townsquare-live/internal/transport"
)

func main() {
	fs := flag.NewFlagSet("townsquare", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: townsquare [-config file] host [-qr] [session] | join <session> | resume")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if err := run(*configPath, fs.Args(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printer surfaces alerts and sounds on the terminal.
type printer struct{ w io.Writer }

func (p printer) Alert(msg string)   { fmt.Fprintln(p.w, "!", msg) }
func (p printer) Play(sound string) { fmt.Fprintf(p.w, "♪ %s\n", sound) }

type plan struct {
	guest     bool
	sessionID string
	qr        bool
}

func parsePlan(args []string, store prefs.Store) (plan, error) {
	if len(args) == 0 {
		return plan{}, errors.New("missing command: host, join or resume")
	}
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	qr := cmd.Bool("qr", false, "print the join link as a QR code")
	if err := cmd.Parse(args[1:]); err != nil {
		return plan{}, err
	}
	p := plan{qr: *qr, sessionID: cmd.Arg(0)}

	switch args[0] {
	case "host":
		if p.sessionID == "" {
			id, err := session.NewSessionID()
			if err != nil {
				return plan{}, err
			}
			p.sessionID = id
		}
	case "join":
		p.guest = true
		if p.sessionID == "" {
			return plan{}, session.ErrNoSession
		}
	case "resume":
		guest, id, err := store.Membership()
		if err != nil || id == "" {
			return plan{}, fmt.Errorf("no session to resume: %w", session.ErrNoSession)
		}
		p.guest, p.sessionID = guest, id
	default:
		return plan{}, fmt.Errorf("unknown command %q", args[0])
	}
	return p, nil
}

func run(configPath string, args []string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, err := prefs.Open(cfg.Client.PrefsDSN)
	if err != nil {
		return err
	}
	p, err := parsePlan(args, store)
	if err != nil {
		store.Close()
		return err
	}

	roles := catalog.Default()
	if cfg.Client.CatalogPath != "" {
		if roles, err = catalog.Load(cfg.Client.CatalogPath); err != nil {
			store.Close()
			return err
		}
	}
	locale := cfg.Client.Locale
	if locale == "" {
		locale = catalog.MatchLocale(strings.Split(os.Getenv("LANG"), ".")[0])
	}
	texts := catalog.TextsFor(locale)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tty := printer{out}
	cl, err := client.New(context.Background(), client.Options{
		Logger:         log,
		ServerURL:      cfg.Client.ServerURL,
		PingInterval:   cfg.Client.PingInterval,
		ReconnectDelay: cfg.Client.ReconnectDelay,
		Dialer:         client.Websocket(transport.NewDialer(transport.Options{Logger: log})),
		Prefs:          store,
		Live: live.Options{
			Catalog:  roles,
			Locale:   locale,
			Texts:    texts.Voting(),
			HostName: texts.Host,
			Sounds:   tty,
			Alerter:  tty,
		},
	})
	if err != nil {
		store.Close()
		return err
	}

	if p.guest {
		err = cl.Join(p.sessionID)
	} else {
		err = cl.Host(p.sessionID)
		if err == nil {
			printInvite(out, cfg.Client.ServerURL, p.sessionID, p.qr)
		}
	}
	if err != nil {
		return multierr.Append(err, cl.Close())
	}
	log.Info("session started", zap.String("session", p.sessionID), zap.Bool("guest", p.guest))

	shellDone := make(chan error, 1)
	go func() { shellDone <- (&shell{s: cl, out: out}).run(in) }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-shellDone:
			stop()
			return err
		}
	})
	g.Go(func() error { return watch(ctx, cl, out) })
	return multierr.Append(g.Wait(), cl.Close())
}

// watch reports connection state changes until ctx ends.
func watch(ctx context.Context, cl *client.Client, out io.Writer) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	last := session.Disconnected
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		st, err := cl.Status()
		if err != nil {
			return err
		}
		if st.State != last {
			fmt.Fprintf(out, "[%s]\n", st.State)
			last = st.State
		}
	}
}

// printInvite shows the session id guests join with, as text and optionally
// as a QR code of the relay link.
func printInvite(w io.Writer, serverURL, sessionID string, qr bool) {
	fmt.Fprintf(w, "hosting session %s\n", sessionID)
	if !qr {
		return
	}
	link, err := url.JoinPath(serverURL, sessionID)
	if err != nil {
		link = sessionID
	}
	code, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		fmt.Fprintln(w, "qr:", err)
		return
	}
	fmt.Fprint(w, code.ToString(false))
	fmt.Fprintln(w, link)
}
