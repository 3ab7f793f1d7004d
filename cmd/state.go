package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"valheimcli/internal/state"
)

var (
	stateWait    string
	stateTimeout time.Duration
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current game state",
	Long: `Prints the game state reported by the relay (Unknown, MainMenu, Loading,
InWorld or InWorldNoPlayer).

With --wait the command blocks until the game reaches the given state and
fails if it does not within --timeout.

Example usage:
  valheimcli state
  valheimcli state --wait InWorld --timeout 2m`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if stateWait != "" {
			if _, ok := state.ParseGameState(stateWait); !ok {
				return fmt.Errorf("unknown state %q", stateWait)
			}
		}
		if stateTimeout <= 0 {
			return fmt.Errorf("--timeout must be positive, got %v", stateTimeout)
		}
		return nil
	},
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)

	stateCmd.Flags().StringVar(&stateWait, "wait", "", "Wait until the game reaches this state")
	stateCmd.Flags().DurationVar(&stateTimeout, "timeout", 30*time.Second, "Maximum time to wait with --wait")

	_ = stateCmd.RegisterFlagCompletionFunc("wait", completeStateFlag)
}

func runState(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	client, err := connectRelay(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if stateWait != "" {
		if err := client.SubscribeToStateChanges(ctx); err != nil {
			return err
		}
		reached, err := client.WaitForState(ctx, stateWait, stateTimeout)
		if err != nil {
			return err
		}
		if !reached {
			return fmt.Errorf("state %s not reached within %v", stateWait, stateTimeout)
		}
	}

	current, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	return newPrinter(cmd).PrintState(current)
}

// completeStateFlag provides shell completion for state names
func completeStateFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var names []string
	for _, s := range state.AllStates() {
		names = append(names, s.String())
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
