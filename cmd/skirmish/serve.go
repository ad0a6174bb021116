package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/cfoust/skirmish/pkg/config"
	"github.com/cfoust/skirmish/pkg/gameserver"
	"github.com/cfoust/skirmish/pkg/ingress"
	"github.com/cfoust/skirmish/pkg/replication"
	"github.com/cfoust/skirmish/pkg/store"

	"github.com/rs/zerolog/log"
)

// The scoreboard mirror subscribes with an id no connection will use.
const SCOREBOARD_CLIENT replication.ClientID = 1 << 31

func serve(configs []string) error {
	config, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(config.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := gameserver.New(ctx, &config.Match, nil, nil)
	go server.Poll(ctx)

	var results *store.Results
	if config.Store.Database != "" {
		db, err := store.InitDB(config.Store.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		results = store.NewResults(db, log.Logger)
		go results.Record(ctx, server.Events)
	}

	if config.Store.Redis.Address != "" {
		scoreboard := store.NewScoreboard(config.Store.Redis, log.Logger)
		defer scoreboard.Close()
		go func() {
			err := scoreboard.Mirror(ctx, server.Hub, SCOREBOARD_CLIENT)
			if err != nil {
				log.Error().Err(err).Msg("scoreboard stopped")
			}
		}()
	}

	err = server.Start()
	if err != nil {
		return err
	}

	ids := &ingress.IDs{}
	wsIngress := ingress.NewWSIngress(server, ids)

	errc := make(chan error, 2)

	if config.Ingress.Desktop.Enabled {
		enetIngress := ingress.NewENetIngress(server, ids)
		go func() {
			errc <- enetIngress.Serve(ctx, config.Ingress.Desktop.Port)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/", wsIngress)
	mux.Handle("/api/", &api{server: server, results: results})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", config.Ingress.Web.Port),
		Handler: mux,
	}
	go func() {
		errc <- httpServer.ListenAndServe()
	}()

	log.Info().
		Int("port", config.Ingress.Web.Port).
		Str("level", server.Level()).
		Msg("serving match")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to serve")
		}
	case sig := <-sigs:
		log.Info().Msgf("terminating: %v", sig)
	}

	server.Shutdown()
	return httpServer.Shutdown(context.Background())
}
