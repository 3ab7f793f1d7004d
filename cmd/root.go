package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"valheimcli/internal/cli"
	"valheimcli/internal/color"
	"valheimcli/internal/config"
	"valheimcli/pkg/logging"
)

var (
	// cfgFile replaces the layered user/project configuration
	cfgFile string
	// rootDebug forces debug logging regardless of the configured level
	rootDebug bool
	// rootAddress is the relay host:port; empty means the configured one
	rootAddress string
	// rootOutput selects table, json or yaml output
	rootOutput string
	rootQuiet  bool

	// appConfig is loaded once per invocation by initRoot
	appConfig = config.GetDefaultConfig()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "valheimcli",
	Short: "Drive a running Valheim game through its console relay",
	Long: `valheimcli talks to the in-game console relay over a loopback TCP
connection. It sends console commands, reads back their output, watches the
game state, and runs YAML test plans against the game.

Use 'valheimcli serve' to start a simulated game with a relay for local
development and testing.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed connections)
	SilenceUsage:      true,
	PersistentPreRunE: initRoot,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "valheimcli version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/valheimcli/config.yaml and .valheimcli/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&rootAddress, "address", "a", "", "Relay address host:port (default from config, 127.0.0.1:5555)")
	rootCmd.PersistentFlags().StringVarP(&rootOutput, "output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress headers and summaries")

	_ = rootCmd.RegisterFlagCompletionFunc("output", completeOutputFlag)
}

// initRoot loads configuration and sets up logging and colors.
func initRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	appConfig = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid logging.level in config: %w", err)
	}
	if rootDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())
	color.Initialize(lipgloss.HasDarkBackground())

	if rootAddress == "" {
		rootAddress = cfg.Relay.Address()
	}
	if _, err := cli.ParseOutputFormat(rootOutput); err != nil {
		return err
	}
	return nil
}

func loadConfiguration() (config.ValheimConfig, error) {
	if cfgFile != "" {
		return config.LoadConfigFile(cfgFile)
	}
	return config.LoadConfig()
}

// newRelayClient creates an unconnected client for the configured relay.
func newRelayClient(address string) *cli.Client {
	return cli.NewClient(address, appConfig.Client.ClientOptions()...)
}

// connectRelay creates a client and connects it.
func connectRelay(ctx context.Context) (*cli.Client, error) {
	client := newRelayClient(rootAddress)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to relay at %s: %w", rootAddress, err)
	}
	return client, nil
}

// newPrinter returns a printer honouring --output and --quiet.
func newPrinter(cmd *cobra.Command) *cli.Printer {
	format, _ := cli.ParseOutputFormat(rootOutput)
	return cli.NewPrinter(cmd.OutOrStdout(), cli.ExecutorOptions{
		Format: format,
		Quiet:  rootQuiet,
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// completeOutputFlag provides shell completion for the output flag
func completeOutputFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
}
