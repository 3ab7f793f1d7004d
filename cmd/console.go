package cmd

import (
	"github.com/spf13/cobra"

	"valheimcli/internal/agent"
	"valheimcli/internal/cli"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start an interactive console connected to the game",
	Long: `Opens an interactive console. Every line is sent to the game console
and its output printed; lines starting with a slash are console commands:

  /state                  Show the current game state
  /commands [filter]      List the game's console commands
  /wait <state> [timeout] Wait until the game reaches a state
  /ping                   Check that the relay answers
  /help                   Show help
  exit                    Leave the console

Command names complete with TAB and history is kept between sessions.
State changes pushed by the game are printed as they happen.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	client := newRelayClient(rootAddress)
	defer client.Close()

	format, _ := cli.ParseOutputFormat(rootOutput)
	console := agent.NewConsole(client, cmd.OutOrStdout(), cli.ExecutorOptions{
		Format:   format,
		Quiet:    rootQuiet,
		MaxWidth: 80,
	})
	return console.Run(ctx)
}
