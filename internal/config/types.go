package config

import (
	"net"
	"strconv"
	"time"
)

// ValheimConfig is the top-level configuration structure for valheimcli.
type ValheimConfig struct {
	Relay   RelayConfig   `yaml:"relay"`
	Client  ClientConfig  `yaml:"client"`
	Game    GameConfig    `yaml:"game"`
	Logging LoggingConfig `yaml:"logging"`
}

// RelayConfig configures the relay server started by `serve`.
type RelayConfig struct {
	Host         string        `yaml:"host,omitempty"`         // Loopback host to bind to (default: 127.0.0.1)
	Port         int           `yaml:"port,omitempty"`         // TCP port (default: 5555)
	OutputWait   time.Duration `yaml:"outputWait,omitempty"`   // Longest wait for command output (default: 5s)
	PollInterval time.Duration `yaml:"pollInterval,omitempty"` // Output buffer poll interval (default: 50ms)
	WriteTimeout time.Duration `yaml:"writeTimeout,omitempty"` // Per-line write deadline (default: 2s)
	// HostConfig is a YAML file describing the simulated host's console
	HostConfig string `yaml:"hostConfig,omitempty"`
}

// Address returns host:port.
func (r RelayConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// ClientConfig configures connections made by the CLI commands.
type ClientConfig struct {
	Timeout           time.Duration `yaml:"timeout,omitempty"`           // Per-request timeout (default: 30s)
	DialTimeout       time.Duration `yaml:"dialTimeout,omitempty"`       // Connect timeout (default: 5s)
	StatePollInterval time.Duration `yaml:"statePollInterval,omitempty"` // WaitForState poll interval (default: 2s)
}

// GameConfig tells the test runner how to launch the host when a plan asks
// for it but does not name an executable.
type GameConfig struct {
	Executable     string        `yaml:"executable,omitempty"`
	Args           []string      `yaml:"args,omitempty"`
	WorkDir        string        `yaml:"workDir,omitempty"`
	StartupTimeout time.Duration `yaml:"startupTimeout,omitempty"` // default: 120s
}

// LoggingConfig holds the default log level.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn or error (default: info)
}
