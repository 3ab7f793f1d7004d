package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valheimcli/internal/cli"
	"valheimcli/internal/protocol"
)

// fakeClient is an in-memory RelayClient.
type fakeClient struct {
	connected  bool
	connectErr error
	state      string
	commands   []protocol.CommandInfo
	outputs    map[string][]string
	sendErr    error
	reachable  map[string]bool

	sent         []string
	listCalls    int
	connectCalls int
	waitTimeout  time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		connected: true,
		state:     "MainMenu",
		commands: []protocol.CommandInfo{
			{Name: "spawn", Description: "Spawn a prefab", IsCheat: true},
			{Name: "start", Description: "Start a world"},
			{Name: "pos", Description: "Print player position"},
		},
		outputs: map[string][]string{
			"spawn Boar 5": {"Spawned Boar x5"},
		},
		reachable: map[string]bool{"InWorld": true},
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Address() string { return "127.0.0.1:5555" }

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) SendCommand(ctx context.Context, command string) ([]string, error) {
	f.sent = append(f.sent, command)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.outputs[command], nil
}

func (f *fakeClient) GetState(ctx context.Context) (string, error) { return f.state, nil }

func (f *fakeClient) ListCommands(ctx context.Context) ([]protocol.CommandInfo, error) {
	f.listCalls++
	return append([]protocol.CommandInfo(nil), f.commands...), nil
}

func (f *fakeClient) WaitForState(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	f.waitTimeout = timeout
	return f.reachable[target], nil
}

func (f *fakeClient) SubscribeToStateChanges(ctx context.Context) error { return nil }

func newTestConsole(client RelayClient) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return NewConsole(client, &out, cli.ExecutorOptions{Format: cli.OutputFormatJSON}), &out
}

func TestConsole_HostCommand(t *testing.T) {
	client := newFakeClient()
	console, out := newTestConsole(client)

	require.NoError(t, console.Execute(context.Background(), "  spawn Boar 5  "))

	assert.Equal(t, []string{"spawn Boar 5"}, client.sent)
	assert.Contains(t, out.String(), "Spawned Boar x5")
}

func TestConsole_HostCommandError(t *testing.T) {
	client := newFakeClient()
	client.sendErr = errors.New("connection reset")
	console, _ := newTestConsole(client)

	err := console.Execute(context.Background(), "pos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestConsole_Reconnects(t *testing.T) {
	client := newFakeClient()
	client.connected = false
	console, _ := newTestConsole(client)

	require.NoError(t, console.Execute(context.Background(), "pos"))
	assert.Equal(t, 1, client.connectCalls)

	client.connected = false
	client.connectErr = errors.New("refused")
	err := console.Execute(context.Background(), "pos")
	assert.EqualError(t, err, "refused")
}

func TestConsole_MetaCommands(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		contains string
		wantErr  string
	}{
		{name: "state", line: "/state", contains: `"state": "MainMenu"`},
		{name: "commands", line: "/commands", contains: `"name": "start"`},
		{name: "filtered commands", line: "/commands prefab", contains: `"name": "spawn"`},
		{name: "help", line: "/help", contains: "/wait <state> [timeout]"},
		{name: "ping", line: "/ping", contains: "PONG"},
		{name: "wait reached", line: "/wait InWorld 5", contains: "Reached InWorld"},
		{name: "wait missed", line: "/wait Dead 1s", wantErr: "state Dead not reached within 1s"},
		{name: "wait without state", line: "/wait", wantErr: "usage: /wait <state> [timeout]"},
		{name: "wait bad timeout", line: "/wait InWorld soon", wantErr: "invalid timeout"},
		{name: "unknown", line: "/teleport", wantErr: "unknown console command: /teleport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console, out := newTestConsole(newFakeClient())

			err := console.Execute(context.Background(), tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestConsole_FilteredCommandsExcludeOthers(t *testing.T) {
	console, out := newTestConsole(newFakeClient())

	require.NoError(t, console.Execute(context.Background(), "/commands position"))
	assert.Contains(t, out.String(), `"name": "pos"`)
	assert.NotContains(t, out.String(), `"name": "spawn"`)
}

func TestConsole_Exit(t *testing.T) {
	console, _ := newTestConsole(newFakeClient())

	for _, line := range []string{"exit", "quit", "/exit", "QUIT"} {
		assert.ErrorIs(t, console.Execute(context.Background(), line), errExitConsole, line)
	}
	assert.NoError(t, console.Execute(context.Background(), "   "))
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "5", want: 5 * time.Second},
		{in: "1.5", want: 1500 * time.Millisecond},
		{in: "90s", want: 90 * time.Second},
		{in: "2m", want: 2 * time.Minute},
		{in: "0", wantErr: true},
		{in: "-1s", wantErr: true},
		{in: "later", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimeout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandCompleter(t *testing.T) {
	client := newFakeClient()
	completer := &commandCompleter{catalog: newCommandCatalog(client)}

	line := []rune("sp")
	suggestions, length := completer.Do(line, len(line))
	assert.Equal(t, 2, length)
	assert.Equal(t, [][]rune{[]rune("awn ")}, suggestions)

	line = []rune("/w")
	suggestions, _ = completer.Do(line, len(line))
	assert.Equal(t, [][]rune{[]rune("ait ")}, suggestions)

	line = []rune("spawn Bo")
	suggestions, length = completer.Do(line, len(line))
	assert.Nil(t, suggestions)
	assert.Zero(t, length)

	// The command table is fetched once and then served from the cache.
	assert.Equal(t, 1, client.listCalls)
}

func TestCommandCatalog_Invalidate(t *testing.T) {
	client := newFakeClient()
	catalog := newCommandCatalog(client)
	ctx := context.Background()

	_, err := catalog.Commands(ctx)
	require.NoError(t, err)
	_, err = catalog.Commands(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, client.listCalls)

	catalog.Invalidate()
	_, err = catalog.Commands(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, client.listCalls)
}

func TestFilterInput(t *testing.T) {
	_, ok := filterInput('a')
	assert.True(t, ok)
	_, ok = filterInput(26)
	assert.False(t, ok)
}
