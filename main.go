/*
Slipstream is an authoritative multiplayer racing server. Cars integrate on a
fixed 60 Hz tick inside per-room simulations, state snapshots broadcast at
20 Hz over websockets, and a REST surface exposes tracks, leaderboards, and
the race archive. The server owns all game state; clients predict locally and
reconcile against the snapshots it sends.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slipstream/config"
	"slipstream/gateway"
	"slipstream/httpapi"
	"slipstream/protocol"
	"slipstream/room"
	"slipstream/storage"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the yaml config file")
	initConfig := flag.Bool("init-config", false, "write a starter config file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.Default().WriteYaml(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("wrote", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	if err := run(log, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.PrettyLog() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(log zerolog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(log, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	manager := room.NewManager(log, store)
	manager.SetLapRecorder(func(trackID, nickname string, lapMs int64) {
		if err := store.RecordLap(trackID, nickname, lapMs); err != nil {
			log.Error().Err(err).Str("track", trackID).Msg("lap record failed")
		}
	})
	manager.SetResultsRecorder(func(roomID, trackID string, results []protocol.RaceResult) {
		if err := store.RecordRace(roomID, trackID, results); err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("race archive failed")
		}
	})
	manager.Start()
	defer manager.Stop()

	router := mux.NewRouter()
	router.Handle("/ws", gateway.New(log, manager, store))
	httpapi.New(log, store, manager).Register(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).
			Str("deploy", cfg.Deploy).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return grp.Wait()
}
