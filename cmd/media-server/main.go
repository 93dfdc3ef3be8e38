package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quickchat/internal/config"
	"quickchat/internal/logging"
	"quickchat/internal/wire"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.With().Str("service", "media-server").Logger()

	mediaServer, cleanup, err := wire.InitializeMediaServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media server")
	}
	defer cleanup()

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MediaServerPort),
		Handler:           mediaServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", server.Addr).Str("base_url", cfg.Server.MediaBaseURL).Msg("media server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("media server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("media server forced to shutdown")
	}
	log.Info().Msg("media server stopped")
}
