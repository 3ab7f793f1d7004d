package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [args...]",
	Short: "Send a console command to the game and print its output",
	Long: `Sends one console command through the relay and prints the lines the
game produced in response. A command that produces no output within the
relay's output window succeeds with empty output.

Example usage:
  valheimcli send spawn Boar 5
  valheimcli send "goto 100 200" -o json`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeHostCommands,
	RunE:              runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	client, err := connectRelay(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	command := strings.Join(args, " ")
	lines, err := client.SendCommand(ctx, command)
	if err != nil {
		return err
	}
	return newPrinter(cmd).PrintOutput(command, lines)
}

// completeHostCommands completes the first argument with the game's command
// names. Nothing is offered when the relay is not reachable.
func completeHostCommands(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if err := initRoot(cmd, args); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	client, err := connectRelay(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer client.Close()

	commands, err := client.ListCommands(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, c := range commands {
		if strings.HasPrefix(c.Name, toComplete) {
			names = append(names, c.Name+"\t"+c.Description)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
