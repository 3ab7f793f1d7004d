package host

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"valheimcli/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	commands []string
	output   []string
}

func (r *fakeRelay) DrainPendingCommand() (string, bool) {
	if len(r.commands) == 0 {
		return "", false
	}
	cmd := r.commands[0]
	r.commands = r.commands[1:]
	return cmd, true
}

func (r *fakeRelay) ReportOutput(lines ...string) {
	r.output = append(r.output, lines...)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestHost(t *testing.T, cfg Config) (*Host, *fakeClock) {
	t.Helper()
	h, err := New(cfg)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	h.now = clock.Now
	return h, clock
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown initial state", Config{InitialState: "Paused"}},
		{"duplicate command", Config{Commands: []CommandConfig{{Name: "pos"}, {Name: "POS"}}}},
		{"empty name", Config{Commands: []CommandConfig{{Name: " "}}}},
		{"unknown target state", Config{Commands: []CommandConfig{{Name: "go", Responses: []ResponseConfig{{State: "Nowhere"}}}}}},
		{"bad template", Config{Commands: []CommandConfig{{Name: "x", Responses: []ResponseConfig{{Output: []string{"{{.Arg"}}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestHost_Execute(t *testing.T) {
	h, _ := newTestHost(t, DefaultConfig())

	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"templated arguments", "spawn Boar 5", []string{"Spawning object Boar x5"}},
		{"default argument", "spawn Troll", []string{"Spawning object Troll x1"}},
		{"conditional response", "spawn", []string{"Usage: spawn [name] [amount]"}},
		{"case-insensitive name", "POS", []string{"Player position (X,Y,Z): (12.5, 31.0, -40.2)"}},
		{"joined arguments", "goto 10,20 5", []string{"Teleported to 10,20 5"}},
		{"unknown command", "fly", []string{"Unknown command: fly"}},
		{"blank command", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, delay := h.Execute(tt.command)
			assert.Equal(t, tt.want, lines)
			assert.Zero(t, delay)
		})
	}
}

func TestHost_HelpListsCommands(t *testing.T) {
	h, _ := newTestHost(t, DefaultConfig())

	lines, _ := h.Execute("help")
	require.Len(t, lines, len(DefaultConfig().Commands))
	assert.Equal(t, "god - Toggles god mode", lines[0])
}

func TestHost_ExecutionFailures(t *testing.T) {
	h, _ := newTestHost(t, Config{Commands: []CommandConfig{
		{Name: "broken", Responses: []ResponseConfig{{Error: "object reference not set"}}},
		{Name: "crash", Responses: []ResponseConfig{{Panic: "index out of range"}}},
	}})

	lines, _ := h.Execute("broken now")
	assert.Equal(t, []string{"Error executing command 'broken now': object reference not set"}, lines)

	lines, _ = h.Execute("crash")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Error executing command 'crash': panic:"))

	assert.Equal(t, 2, h.Executed())
}

func TestHost_Tick(t *testing.T) {
	h, clock := newTestHost(t, Config{Commands: []CommandConfig{
		{Name: "pos", Responses: []ResponseConfig{{Output: []string{"at home"}}}},
		{Name: "slow", Responses: []ResponseConfig{{Output: []string{"done"}, Delay: time.Second}}},
		{Name: "quiet"},
	}})
	relay := &fakeRelay{commands: []string{"pos", "slow", "quiet"}}

	h.Tick(relay)
	assert.Equal(t, []string{"at home"}, relay.output)
	assert.Empty(t, relay.commands)

	clock.Advance(500 * time.Millisecond)
	h.Tick(relay)
	assert.Equal(t, []string{"at home"}, relay.output)

	clock.Advance(500 * time.Millisecond)
	h.Tick(relay)
	assert.Equal(t, []string{"at home", "done"}, relay.output)
}

func TestHost_StateTransitions(t *testing.T) {
	h, clock := newTestHost(t, DefaultConfig())
	relay := &fakeRelay{}

	var changes []state.GameState
	h.Tracker().OnChange(func(ev state.ChangeEvent) { changes = append(changes, ev.Current) })

	h.Tick(relay)
	assert.Equal(t, state.MainMenu, h.Tracker().Current())

	relay.commands = []string{"start Meadows"}
	h.Tick(relay)
	assert.Equal(t, []string{"Loading world Meadows"}, relay.output)
	assert.Equal(t, state.Loading, h.Tracker().Current())

	clock.Advance(time.Second)
	h.Tick(relay)
	assert.Equal(t, state.InWorld, h.Tracker().Current())

	relay.commands = []string{"logout"}
	h.Tick(relay)
	assert.Equal(t, state.MainMenu, h.Tracker().Current())

	assert.Equal(t, []state.GameState{state.MainMenu, state.Loading, state.InWorld, state.MainMenu}, changes)
}

func TestLoadConfig(t *testing.T) {
	content := `name: test-host
initial_state: inworld
tick_interval: 10ms
commands:
  - name: spawn
    description: Spawns things
    cheat: true
    responses:
      - condition:
          arg0: troll
        output: ["No trolls allowed"]
      - output: ["Spawned {{.Arg 0}}"]
        delay: 250ms
`
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.Name)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	require.Len(t, cfg.Commands, 1)
	assert.Equal(t, 250*time.Millisecond, cfg.Commands[0].Responses[1].Delay)

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, state.InWorld, h.State())

	commands := h.Commands()
	require.Len(t, commands, 1)
	assert.True(t, commands[0].IsCheat)

	lines, _ := h.Execute("spawn TROLL")
	assert.Equal(t, []string{"No trolls allowed"}, lines)
	lines, delay := h.Execute("spawn Boar")
	assert.Equal(t, []string{"Spawned Boar"}, lines)
	assert.Equal(t, 250*time.Millisecond, delay)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("initial_state: Sleeping\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
