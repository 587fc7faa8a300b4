package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Mesh/internal/adapters/http"
	wsignal "github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/app/mesh"
	"github.com/dkeye/Mesh/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("parse flags")
	}
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	s, err := mesh.Connect(ctx, cfg.RelayURL, mesh.Config{
		WebRTC: cfg.WebRTC(),
		Label:  cfg.Label,
		Policy: app.SimplePolicy{MaxBuffered: cfg.MaxBuffered},
	}, wsignal.Options{
		SendBuffer:   cfg.SendBuffer,
		ReadLimit:    cfg.ReadLimit,
		WriteTimeout: cfg.WriteTimeout,
	}, wireDemo)
	if err != nil {
		log.Fatal().Err(err).Str("relay", cfg.RelayURL).Msg("connect")
	}

	var srv *http.Server
	if cfg.StatusPort > 0 {
		addr := fmt.Sprintf(":%d", cfg.StatusPort)
		srv = &http.Server{
			Addr:    addr,
			Handler: router.SetupRouter(cfg, s),
		}
		go func() {
			log.Info().Str("addr", addr).Msg("status api started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status api error")
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		s.Close()
	case <-s.Done():
		log.Info().Msg("Session ended")
	}
	<-s.Done()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status api forced to shutdown")
		}
	}
	log.Info().Msg("Peer exited gracefully")
}
