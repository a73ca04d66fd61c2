package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"cultura-chupistica/internal/config"
	"cultura-chupistica/internal/gateway"
	"cultura-chupistica/internal/logging"
	"cultura-chupistica/internal/store"
	httptransport "cultura-chupistica/internal/transport/http"
	"cultura-chupistica/internal/ws"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logging.Init(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("init logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		archive gateway.ArchiveFunc
		pinger  httptransport.Pinger
	)
	if cfg.Server.PostgresDSN != "" {
		st, err := store.New(cfg.Server.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("connect archive store")
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure archive schema")
		}
		archive = st.ArchiveEnded
		pinger = st
		log.Info().Msg("ended-game archive enabled")
	}

	seed := cfg.Server.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	registry := gateway.NewRegistry(gateway.RegistryConfig{
		MaxSessions: cfg.Server.MaxSessions,
		QueueSize:   cfg.Server.SessionQueueSize,
		IdleTimeout: time.Duration(cfg.Server.IdleTimeoutMins) * time.Minute,
		GraceEnded:  time.Duration(cfg.Server.EndedGraceMins) * time.Minute,
	}, rand.New(rand.NewSource(seed)), time.Now, archive)
	registry.StartJanitor(ctx, time.Duration(cfg.Server.JanitorIntervalSecs)*time.Second)

	dispatcher := gateway.NewDispatcher(registry, time.Now)
	wsServer := ws.NewServer(registry, dispatcher, cfg.Server.SubscriberBuffer)
	router := httptransport.NewRouter(dispatcher, wsServer, pinger)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("game server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
