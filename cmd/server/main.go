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

	router "github.com/wavechat/wave/internal/adapters/http"
	"github.com/wavechat/wave/internal/adapters/ws"
	"github.com/wavechat/wave/internal/app"
	"github.com/wavechat/wave/internal/auth"
	"github.com/wavechat/wave/internal/config"
	"github.com/wavechat/wave/internal/directory"
	"github.com/wavechat/wave/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dir, err := directory.Open(cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open directory db")
	}

	pending, err := store.Open(cfg.DataDir + "/pending")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open pending store")
	}
	defer func() {
		if err := pending.Close(); err != nil {
			log.Error().Err(err).Msg("pending store close")
		}
	}()

	coord := app.NewCoordinator(dir, pending)
	ctl := &ws.Controller{
		Coord:      coord,
		Verify:     auth.NewVerifier(cfg.Secret),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("wave server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
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
