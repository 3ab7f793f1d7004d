package host

import (
	"fmt"
	"os"
	"strings"
	"time"

	"valheimcli/internal/state"

	"gopkg.in/yaml.v3"
)

const DefaultTickInterval = 20 * time.Millisecond

// Config describes a simulated host: its starting state and the console
// commands it understands.
type Config struct {
	Name         string          `yaml:"name"`
	InitialState string          `yaml:"initial_state,omitempty"`
	TickInterval time.Duration   `yaml:"tick_interval,omitempty"`
	Commands     []CommandConfig `yaml:"commands"`
}

// CommandConfig describes one console command.
type CommandConfig struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Cheat       bool             `yaml:"cheat,omitempty"`
	Responses   []ResponseConfig `yaml:"responses,omitempty"`
}

// ResponseConfig is one possible reaction to a command. Responses with a
// condition are tried in order; the first without a condition is the
// fallback.
type ResponseConfig struct {
	// Condition maps "arg0".."argN" (or "args" for the whole argument string)
	// to the value that must match, case-insensitively.
	Condition map[string]string `yaml:"condition,omitempty"`
	// Output lines are text/template strings; see templateData.
	Output []string      `yaml:"output,omitempty"`
	Delay  time.Duration `yaml:"delay,omitempty"`
	Error  string        `yaml:"error,omitempty"`
	// Panic simulates a crash inside the command implementation.
	Panic string `yaml:"panic,omitempty"`
	// State switches the host to this state after the command runs. With
	// Loading set, the host passes through Loading for that long first.
	State   string        `yaml:"state,omitempty"`
	Loading time.Duration `yaml:"loading,omitempty"`
}

// LoadConfig reads a host definition from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read host config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse host config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid host config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks state names and command uniqueness.
func (c Config) Validate() error {
	if c.InitialState != "" {
		if _, ok := state.ParseGameState(c.InitialState); !ok {
			return fmt.Errorf("unknown initial_state %q", c.InitialState)
		}
	}

	seen := make(map[string]bool)
	for _, cmd := range c.Commands {
		name := strings.ToLower(strings.TrimSpace(cmd.Name))
		if name == "" {
			return fmt.Errorf("command without a name")
		}
		if strings.ContainsAny(name, " \t") {
			return fmt.Errorf("command name %q contains whitespace", cmd.Name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate command %q", cmd.Name)
		}
		seen[name] = true

		for i, resp := range cmd.Responses {
			if resp.State == "" {
				continue
			}
			if _, ok := state.ParseGameState(resp.State); !ok {
				return fmt.Errorf("command %q response %d: unknown state %q", cmd.Name, i, resp.State)
			}
		}
	}
	return nil
}

// DefaultConfig returns a small console resembling the game's own, used when
// no host file is given.
func DefaultConfig() Config {
	return Config{
		Name:         "valheim-sim",
		InitialState: state.MainMenu.String(),
		TickInterval: DefaultTickInterval,
		Commands: []CommandConfig{
			{
				Name:        "help",
				Description: "Shows a list of console commands",
				Responses:   []ResponseConfig{{Output: []string{"{{range .Commands}}{{.Name}} - {{.Description}}\n{{end}}"}}},
			},
			{
				Name:        "start",
				Description: "Loads the world and spawns the player",
				Responses: []ResponseConfig{
					{Output: []string{"Loading world {{.ArgOr 0 \"Dev\"}}"}, State: state.InWorld.String(), Loading: 500 * time.Millisecond},
				},
			},
			{
				Name:        "logout",
				Description: "Returns to the main menu",
				Responses:   []ResponseConfig{{Output: []string{"Logging out"}, State: state.MainMenu.String()}},
			},
			{
				Name:        "pos",
				Description: "Prints the player position",
				Responses:   []ResponseConfig{{Output: []string{"Player position (X,Y,Z): (12.5, 31.0, -40.2)"}}},
			},
			{
				Name:        "spawn",
				Description: "Spawns a prefab near the player [name] [amount]",
				Cheat:       true,
				Responses: []ResponseConfig{
					{Condition: map[string]string{"args": ""}, Output: []string{"Usage: spawn [name] [amount]"}},
					{Output: []string{"Spawning object {{.Arg 0}} x{{.ArgOr 1 \"1\"}}"}},
				},
			},
			{
				Name:        "god",
				Description: "Toggles god mode",
				Cheat:       true,
				Responses:   []ResponseConfig{{Output: []string{"God mode toggled"}}},
			},
			{
				Name:        "goto",
				Description: "Teleports the player [x,z] [y]",
				Cheat:       true,
				Responses:   []ResponseConfig{{Output: []string{"Teleported to {{.Args}}"}}},
			},
			{
				Name:        "tod",
				Description: "Sets the time of day [0-1]",
				Cheat:       true,
				Responses:   []ResponseConfig{{Output: []string{"Time of day set to {{.ArgOr 0 \"0.5\"}}"}}},
			},
		},
	}
}
