package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"valheimcli/internal/agent"
	vtesting "valheimcli/internal/testing"
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Expose the game as MCP tools over stdio",
	Long: `Runs a Model Context Protocol server on stdin/stdout so an AI assistant
can drive the game. Tools:

  valheim_send_command    Send a console command and return its output
  valheim_get_state       Get the current game state
  valheim_list_commands   List the game's console commands
  valheim_wait_for_state  Wait until the game reaches a state
  valheim_run_test_plan   Run a YAML test plan and return the result

Logs go to stderr. Configure it in your AI assistant's MCP settings, e.g.:

  {"command": "valheimcli", "args": ["mcp-server"]}`,
	Args: cobra.NoArgs,
	RunE: runMCPServer,
}

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	// The relay may come up after the server; tools connect on demand.
	client := newRelayClient(rootAddress)
	defer client.Close()

	runner := func(ctx context.Context, path string, vars map[string]string) (*vtesting.TestPlanResult, error) {
		plan, err := vtesting.NewTestPlanLoader().LoadPlan(path)
		if err != nil {
			return nil, err
		}
		// stdout carries the protocol; progress goes to stderr.
		output := planOutput{out: cmd.ErrOrStderr(), quiet: true}
		return runPlan(ctx, plan, vtesting.RunOptions{Variables: vars, Client: client}, output)
	}

	server := agent.NewMCPServer(client, runner, rootCmd.Version)
	return server.Serve(ctx, os.Stdin, os.Stdout)
}
