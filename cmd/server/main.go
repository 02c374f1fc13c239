package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/logging"
	"github.com/omochice/linkchat/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	listen := flag.String("listen", ":8080", "Address for TCP connections; also serves WebSocket unless -ws-listen is set")
	wsListen := flag.String("ws-listen", "", "Separate address for WebSocket connections (e.g., :8081)")
	localID := flag.String("id", "", "Local device id (e.g., AA:BB:CC:DD:EE:FF); random when empty")
	logLevel := flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := logging.Configure(logging.ProfileRuntime, "linkchat-server")

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
		cfg = loaded
	}

	// Flags given on the command line win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "ws-listen":
			cfg.WSListen = *wsListen
		case "id":
			cfg.LocalID = *localID
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logger = logger.Level(level)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}
	if err := srv.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to listen")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("local_id", cfg.LocalID).Str("tcp", srv.TCPAddr()).Str("ws", srv.WSAddr()).Msg("Server running")
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal().Err(err).Msg("Server error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		srv.Stop()
	}

	logger.Info().Msg("Server stopped")
}
