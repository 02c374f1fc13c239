package main

import (
	"flag"
	"os"

	"github.com/pterm/pterm"

	"github.com/omochice/linkchat/internal/client"
	clienttcp "github.com/omochice/linkchat/internal/client/tcp"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/logging"
)

func main() {
	serverAddr := flag.String("server", "localhost:8080", "Server address (e.g., localhost:8080)")
	username := flag.String("username", "", "Username for chat")
	configPath := flag.String("config", "", "Path to a TOML config file")
	flag.Parse()

	logger := logging.Configure(logging.ProfileRuntime, "linkchat-client")

	if *username == "" {
		logger.Fatal().Msg("Username is required. Use -username flag")
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
		cfg = loaded
	}

	c := clienttcp.New(*serverAddr, *username, client.WithConfig(cfg), client.WithLogger(logger))
	if err := c.Connect(); err != nil {
		logger.Fatal().Err(err).Str("server", *serverAddr).Msg("Failed to connect to server")
	}
	pterm.Success.Printfln("Connected to %s as %s", *serverAddr, *username)

	console := &client.Console{Client: c, In: os.Stdin}
	if err := console.Run(); err != nil {
		logger.Error().Err(err).Msg("Error reading input")
	}

	pterm.Info.Printfln("Disconnected from server (%s)", c.CloseCode())
}
