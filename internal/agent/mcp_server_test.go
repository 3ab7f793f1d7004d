package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vtesting "valheimcli/internal/testing"
)

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text, result.IsError
}

func TestMCPServer_SendCommand(t *testing.T) {
	client := newFakeClient()
	m := NewMCPServer(client, nil, "test")

	text, isError := callTool(t, m.handleSendCommand, map[string]interface{}{"command": "spawn Boar 5"})
	assert.False(t, isError)
	assert.Equal(t, "Spawned Boar x5", text)

	text, isError = callTool(t, m.handleSendCommand, map[string]interface{}{"command": "pos"})
	assert.False(t, isError)
	assert.Equal(t, "(no output)", text)

	_, isError = callTool(t, m.handleSendCommand, map[string]interface{}{})
	assert.True(t, isError)

	_, isError = callTool(t, m.handleSendCommand, map[string]interface{}{"command": "  "})
	assert.True(t, isError)

	client.sendErr = errors.New("broken pipe")
	text, isError = callTool(t, m.handleSendCommand, map[string]interface{}{"command": "pos"})
	assert.True(t, isError)
	assert.Contains(t, text, "broken pipe")
}

func TestMCPServer_GetState(t *testing.T) {
	client := newFakeClient()
	client.state = "InWorld"
	m := NewMCPServer(client, nil, "test")

	text, isError := callTool(t, m.handleGetState, nil)
	assert.False(t, isError)
	assert.Equal(t, "InWorld", text)
}

func TestMCPServer_ConnectFailure(t *testing.T) {
	client := newFakeClient()
	client.connected = false
	client.connectErr = errors.New("connection refused")
	m := NewMCPServer(client, nil, "test")

	text, isError := callTool(t, m.handleGetState, nil)
	assert.True(t, isError)
	assert.Contains(t, text, "connection refused")
}

func TestMCPServer_ListCommands(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]interface{}
		contains    []string
		notContains []string
	}{
		{
			name:     "all",
			args:     map[string]interface{}{},
			contains: []string{`"name": "spawn"`, `"name": "start"`, `"cheat": true`},
		},
		{
			name:        "filter",
			args:        map[string]interface{}{"filter": "world"},
			contains:    []string{`"name": "start"`},
			notContains: []string{`"name": "spawn"`},
		},
		{
			name:        "without cheats",
			args:        map[string]interface{}{"include_cheats": false},
			contains:    []string{`"name": "pos"`},
			notContains: []string{`"name": "spawn"`},
		},
		{
			name:     "nothing matches",
			args:     map[string]interface{}{"filter": "zzz"},
			contains: []string{"No commands available"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMCPServer(newFakeClient(), nil, "test")

			text, isError := callTool(t, m.handleListCommands, tt.args)
			assert.False(t, isError)
			for _, s := range tt.contains {
				assert.Contains(t, text, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, text, s)
			}
		})
	}
}

func TestMCPServer_WaitForState(t *testing.T) {
	client := newFakeClient()
	m := NewMCPServer(client, nil, "test")

	text, isError := callTool(t, m.handleWaitForState, map[string]interface{}{"state": "InWorld"})
	assert.False(t, isError)
	assert.Equal(t, "Reached state InWorld", text)
	assert.Equal(t, defaultWaitTimeout, client.waitTimeout)

	text, isError = callTool(t, m.handleWaitForState, map[string]interface{}{"state": "Dead", "timeout_seconds": 2.5})
	assert.True(t, isError)
	assert.Contains(t, text, "not reached")
	assert.Equal(t, 2500*time.Millisecond, client.waitTimeout)

	_, isError = callTool(t, m.handleWaitForState, map[string]interface{}{"state": "InWorld", "timeout_seconds": -1.0})
	assert.True(t, isError)

	_, isError = callTool(t, m.handleWaitForState, map[string]interface{}{})
	assert.True(t, isError)
}

func TestMCPServer_RunTestPlan(t *testing.T) {
	var gotPath string
	var gotVars map[string]string
	runPlan := func(ctx context.Context, path string, vars map[string]string) (*vtesting.TestPlanResult, error) {
		gotPath, gotVars = path, vars
		if path == "missing.yaml" {
			return nil, errors.New("no such file")
		}
		result := &vtesting.TestPlanResult{PlanName: "smoke", TotalCases: 1}
		if path == "failing.yaml" {
			result.FailedCases = 1
		} else {
			result.PassedCases = 1
		}
		return result, nil
	}
	m := NewMCPServer(newFakeClient(), runPlan, "test")

	text, isError := callTool(t, m.handleRunTestPlan, map[string]interface{}{
		"path":      "smoke.yaml",
		"variables": map[string]interface{}{"mob": "Boar", "count": 5.0},
	})
	assert.False(t, isError)
	assert.Contains(t, text, `"plan_name": "smoke"`)
	assert.Equal(t, "smoke.yaml", gotPath)
	assert.Equal(t, map[string]string{"mob": "Boar", "count": "5"}, gotVars)

	text, isError = callTool(t, m.handleRunTestPlan, map[string]interface{}{"path": "failing.yaml"})
	assert.True(t, isError)
	assert.Contains(t, text, `"failed_cases": 1`)

	text, isError = callTool(t, m.handleRunTestPlan, map[string]interface{}{"path": "missing.yaml"})
	assert.True(t, isError)
	assert.Contains(t, text, "no such file")
}
