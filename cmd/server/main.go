package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/SignMeet/internal/adapters/classify"
	router "github.com/dkeye/SignMeet/internal/adapters/http"
	"github.com/dkeye/SignMeet/internal/adapters/memory"
	sig "github.com/dkeye/SignMeet/internal/adapters/signal"
	"github.com/dkeye/SignMeet/internal/app"
	"github.com/dkeye/SignMeet/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// config.Load logs, so the logger goes first.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)

	participants := memory.NewParticipantRepository()
	rooms := app.NewRooms(memory.NewRoomRepository(), participants, cfg.DefaultCapacity)

	classifier := classify.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout)
	if !classifier.Ready() {
		log.Warn().Str("module", "main").Msg("no classifier configured, predictions return empty results")
	}

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Captions: &app.Captions{
			Classifier:   classifier,
			Repo:         memory.NewCaptionRepository(),
			Participants: participants,
			Threshold:    cfg.CaptionThreshold,
		},
		Policy: app.SimplePolicy{},
	}

	ctl := sig.NewSignalWSController(orch, sig.NewRoomRateLimiter(cfg.SignalRate, cfg.SignalBurst))
	ctl.ReadLimit = cfg.ReadLimit
	ctl.PingPeriod = cfg.PingPeriod

	r := router.SetupRouter(ctx, cfg, orch, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("SignMeet server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
