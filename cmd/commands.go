package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"valheimcli/internal/protocol"
)

var commandsNoCheats bool

var commandsCmd = &cobra.Command{
	Use:     "commands [filter]",
	Aliases: []string{"cmds"},
	Short:   "List the game's console commands",
	Long: `Lists the console commands registered in the game, with their
descriptions and whether they require cheats. An optional filter keeps
commands whose name or description contains the text.

Example usage:
  valheimcli commands
  valheimcli commands spawn --no-cheats -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommands,
}

func init() {
	rootCmd.AddCommand(commandsCmd)

	commandsCmd.Flags().BoolVar(&commandsNoCheats, "no-cheats", false, "Hide commands that require cheats")
}

func runCommands(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	client, err := connectRelay(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	commands, err := client.ListCommands(ctx)
	if err != nil {
		return err
	}

	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}
	return newPrinter(cmd).PrintCommands(selectCommands(commands, filter, commandsNoCheats))
}

// selectCommands applies the filter argument and --no-cheats.
func selectCommands(commands []protocol.CommandInfo, filter string, noCheats bool) []protocol.CommandInfo {
	filter = strings.ToLower(filter)
	selected := make([]protocol.CommandInfo, 0, len(commands))
	for _, c := range commands {
		if noCheats && c.IsCheat {
			continue
		}
		if filter != "" &&
			!strings.Contains(strings.ToLower(c.Name), filter) &&
			!strings.Contains(strings.ToLower(c.Description), filter) {
			continue
		}
		selected = append(selected, c)
	}
	return selected
}
