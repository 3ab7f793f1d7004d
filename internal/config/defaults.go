package config

import (
	"time"

	"valheimcli/internal/cli"
	"valheimcli/internal/relay"
)

// GetDefaultConfig returns the configuration used when no file overrides it.
func GetDefaultConfig() ValheimConfig {
	return ValheimConfig{
		Relay: RelayConfig{
			Host:         relay.DefaultHost,
			Port:         relay.DefaultPort,
			OutputWait:   relay.DefaultOutputWait,
			PollInterval: relay.DefaultPollInterval,
			WriteTimeout: relay.DefaultWriteTimeout,
		},
		Client: ClientConfig{
			Timeout:           cli.DefaultTimeout,
			DialTimeout:       cli.DefaultDialTimeout,
			StatePollInterval: cli.DefaultStatePollInterval,
		},
		Game: GameConfig{
			StartupTimeout: 120 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ServerConfig converts the relay section for relay.New.
func (r RelayConfig) ServerConfig() relay.Config {
	return relay.Config{
		Host:         r.Host,
		Port:         r.Port,
		OutputWait:   r.OutputWait,
		PollInterval: r.PollInterval,
		WriteTimeout: r.WriteTimeout,
	}
}

// ClientOptions converts the client section for cli.NewClient.
func (c ClientConfig) ClientOptions() []cli.Option {
	return []cli.Option{
		cli.WithTimeout(c.Timeout),
		cli.WithDialTimeout(c.DialTimeout),
		cli.WithStatePollInterval(c.StatePollInterval),
	}
}
