package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/townsquare-live/internal/config"
	"github.com/DoyleJ11/townsquare-live/internal/logging"
	"github.com/DoyleJ11/townsquare-live/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := relay.NewHub(ctx, log.Named("relay"))
	handler := relay.Routes(h, relay.Options{
		Logger:         log.Named("relay"),
		OriginPatterns: cfg.Relay.OriginPatterns,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		ReadTimeout:    cfg.Relay.ReadTimeout,
		WriteTimeout:   cfg.Relay.WriteTimeout,
		PingInterval:   cfg.Relay.PingInterval,
		RateLimit:      rate.Limit(cfg.Relay.RateLimit),
		RateBurst:      cfg.Relay.RateLimitBurst,
	})
	srv := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		select {
		case h.Inbox() <- relay.ShutdownHub{}:
		case <-h.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
