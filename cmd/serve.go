package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"valheimcli/internal/host"
	"valheimcli/internal/relay"
	"valheimcli/pkg/logging"
)

var (
	// serveHostConfig is a YAML file describing the simulated game's console
	serveHostConfig string
	servePort       int
	serveBind       string
)

// serveCmd starts a relay server backed by the simulated game.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a relay server in front of a simulated game",
	Long: `Starts a relay server on a loopback address and drives it with a
simulated game: a scripted console with configurable commands, responses
and state transitions. It behaves like the real game plugin on the wire and
is meant for developing test plans and tools without the game running.

The simulated game starts in MainMenu. Without --host-config it provides
help, start, logout, pos, spawn, god, goto and tod.

A plan can launch it as its game executable:

  game:
    launch: true
    executable: valheimcli
    args: [serve, --port, "5555"]

Configuration:
  relay.host, relay.port and relay.hostConfig in the config file are used
  unless overridden by flags. The server runs until interrupted (Ctrl+C).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	serverCfg := appConfig.Relay.ServerConfig()
	if cmd.Flags().Changed("port") {
		serverCfg.Port = servePort
	}
	if cmd.Flags().Changed("bind") {
		serverCfg.Host = serveBind
	}

	hostCfg, err := loadHostConfig()
	if err != nil {
		return err
	}
	game, err := host.New(hostCfg)
	if err != nil {
		return fmt.Errorf("failed to create simulated host: %w", err)
	}

	server := relay.New(serverCfg, game)
	server.AttachTracker(game.Tracker())
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	defer server.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "🚀 Relay listening on %s (simulated host %q, state %s)\n",
		server.Addr(), game.Name(), game.State())

	err = game.Run(ctx, server)
	if errors.Is(err, context.Canceled) {
		logging.Info("Host", "Shutting down")
		return nil
	}
	return err
}

func loadHostConfig() (host.Config, error) {
	path := serveHostConfig
	if path == "" {
		path = appConfig.Relay.HostConfig
	}
	if path == "" {
		return host.DefaultConfig(), nil
	}
	return host.LoadConfig(path)
}

// init registers the serve command and its flags with the root command.
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHostConfig, "host-config", "", "YAML file describing the simulated game's console")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", relay.DefaultPort, "Port to listen on (0 picks a free port)")
	serveCmd.Flags().StringVar(&serveBind, "bind", relay.DefaultHost, "Loopback address to bind to")

	serveCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if servePort < 0 || servePort > 65535 {
			return fmt.Errorf("port must be between 0 and 65535, got %d", servePort)
		}
		return nil
	}
}
