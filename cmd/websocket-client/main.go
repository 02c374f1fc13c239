package main

import (
	"flag"
	"os"

	"github.com/pterm/pterm"

	"github.com/omochice/linkchat/internal/client"
	clientws "github.com/omochice/linkchat/internal/client/ws"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/logging"
)

func main() {
	serverAddr := flag.String("server", "ws://localhost:8080/ws", "WebSocket server address (e.g., ws://localhost:8080/ws)")
	username := flag.String("username", "", "Username for chat")
	configPath := flag.String("config", "", "Path to a TOML config file")
	gorilla := flag.Bool("gorilla", false, "Dial with gorilla/websocket instead of gobwas/ws")
	flag.Parse()

	logger := logging.Configure(logging.ProfileRuntime, "linkchat-websocket-client")

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

	opts := []client.Option{client.WithConfig(cfg), client.WithLogger(logger)}
	c := clientws.New(*serverAddr, *username, opts...)
	if *gorilla {
		c = clientws.NewGorilla(*serverAddr, *username, opts...)
	}
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
