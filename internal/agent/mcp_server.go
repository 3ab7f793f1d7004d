package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	vtesting "valheimcli/internal/testing"
	"valheimcli/pkg/logging"
)

// PlanRunner loads and runs the test plan at path.
type PlanRunner func(ctx context.Context, path string, vars map[string]string) (*vtesting.TestPlanResult, error)

// MCPServer exposes the relay as MCP tools over stdio.
type MCPServer struct {
	client  RelayClient
	runPlan PlanRunner
	server  *server.MCPServer
}

// NewMCPServer creates the MCP server. runPlan may be nil, in which case the
// test plan tool is not registered.
func NewMCPServer(client RelayClient, runPlan PlanRunner, version string) *MCPServer {
	m := &MCPServer{
		client:  client,
		runPlan: runPlan,
		server: server.NewMCPServer(
			"valheimcli",
			version,
			server.WithToolCapabilities(true),
		),
	}
	m.registerTools()
	return m
}

// Serve handles MCP requests from in until ctx is cancelled or in closes.
func (m *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	logging.Info("MCP", "Serving relay %s over stdio", m.client.Address())
	stdio := server.NewStdioServer(m.server)
	return stdio.Listen(ctx, in, out)
}

func (m *MCPServer) registerTools() {
	m.server.AddTool(mcp.NewTool("valheim_send_command",
		mcp.WithDescription("Send a console command to the game and return its output lines"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Console command text, e.g. 'spawn Boar 5'"),
		),
	), m.handleSendCommand)

	m.server.AddTool(mcp.NewTool("valheim_get_state",
		mcp.WithDescription("Get the current game state"),
	), m.handleGetState)

	m.server.AddTool(mcp.NewTool("valheim_list_commands",
		mcp.WithDescription("List the console commands registered in the game"),
		mcp.WithString("filter",
			mcp.Description("Only return commands whose name or description contains this text"),
		),
		mcp.WithBoolean("include_cheats",
			mcp.Description("Include commands that require cheats"),
			mcp.DefaultBool(true),
		),
	), m.handleListCommands)

	m.server.AddTool(mcp.NewTool("valheim_wait_for_state",
		mcp.WithDescription("Wait until the game reaches a state"),
		mcp.WithString("state",
			mcp.Required(),
			mcp.Description("Target state, e.g. InWorld"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Maximum time to wait (default 30)"),
		),
	), m.handleWaitForState)

	if m.runPlan != nil {
		m.server.AddTool(mcp.NewTool("valheim_run_test_plan",
			mcp.WithDescription("Run a YAML test plan against the game and return the result as JSON"),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path to the test plan file"),
			),
			mcp.WithObject("variables",
				mcp.Description("Variable overrides for ${name} substitution"),
			),
		), m.handleRunTestPlan)
	}
}

// handleSendCommand handles the valheim_send_command MCP tool
func (m *MCPServer) handleSendCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(command) == "" {
		return mcp.NewToolResultError("command must not be empty"), nil
	}

	if err := ensureConnected(ctx, m.client); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect to relay: %v", err)), nil
	}
	lines, err := m.client.SendCommand(ctx, command)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send command: %v", err)), nil
	}

	if len(lines) == 0 {
		return mcp.NewToolResultText("(no output)"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// handleGetState handles the valheim_get_state MCP tool
func (m *MCPServer) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := ensureConnected(ctx, m.client); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect to relay: %v", err)), nil
	}
	state, err := m.client.GetState(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get state: %v", err)), nil
	}
	return mcp.NewToolResultText(state), nil
}

// handleListCommands handles the valheim_list_commands MCP tool
func (m *MCPServer) handleListCommands(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var filter string
	if f, ok := args["filter"].(string); ok {
		filter = f
	}
	includeCheats := true
	if b, ok := args["include_cheats"].(bool); ok {
		includeCheats = b
	}

	if err := ensureConnected(ctx, m.client); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect to relay: %v", err)), nil
	}
	commands, err := m.client.ListCommands(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list commands: %v", err)), nil
	}

	if filter != "" {
		commands = filterCommands(commands, filter)
	}
	if !includeCheats {
		regular := commands[:0]
		for _, cmd := range commands {
			if !cmd.IsCheat {
				regular = append(regular, cmd)
			}
		}
		commands = regular
	}

	if len(commands) == 0 {
		return mcp.NewToolResultText("No commands available"), nil
	}

	jsonData, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format commands: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

// handleWaitForState handles the valheim_wait_for_state MCP tool
func (m *MCPServer) handleWaitForState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := request.RequireString("state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeout := defaultWaitTimeout
	if seconds, ok := request.GetArguments()["timeout_seconds"].(float64); ok {
		if seconds <= 0 {
			return mcp.NewToolResultError("timeout_seconds must be positive"), nil
		}
		timeout = time.Duration(seconds * float64(time.Second))
	}

	if err := ensureConnected(ctx, m.client); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect to relay: %v", err)), nil
	}
	reached, err := m.client.WaitForState(ctx, state, timeout)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed waiting for state %s: %v", state, err)), nil
	}
	if !reached {
		return mcp.NewToolResultError(fmt.Sprintf("State %s not reached within %v", state, timeout)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reached state %s", state)), nil
}

// handleRunTestPlan handles the valheim_run_test_plan MCP tool
func (m *MCPServer) handleRunTestPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	vars := make(map[string]string)
	if raw, ok := request.GetArguments()["variables"].(map[string]interface{}); ok {
		for name, value := range raw {
			vars[name] = fmt.Sprint(value)
		}
	}

	result, err := m.runPlan(ctx, path, vars)
	if result == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to run test plan: %v", err)), nil
	}

	jsonData, marshalErr := json.MarshalIndent(result, "", "  ")
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format results: %v", marshalErr)), nil
	}
	if err != nil || !result.Succeeded() {
		return mcp.NewToolResultError(string(jsonData)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
