package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"valheimcli/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/valheimcli"
	projectConfigDir = ".valheimcli"
	configFileName   = "config.yaml"
)

// LoadConfig loads the configuration by layering default, user, and project
// settings.
func LoadConfig() (ValheimConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// user config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if config, err = overlayFile(config, userConfigPath); err != nil {
		return ValheimConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if config, err = overlayFile(config, projectConfigPath); err != nil {
		return ValheimConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	return config, nil
}

// LoadConfigFile layers a single explicit file over the defaults. Unlike the
// user and project files it must exist.
func LoadConfigFile(path string) (ValheimConfig, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return ValheimConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return mergeConfigs(GetDefaultConfig(), fileConfig), nil
}

// overlayFile merges the file at path over base when it exists.
func overlayFile(base ValheimConfig, path string) (ValheimConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return base, err
	}
	logging.Debug("Config", "Loaded configuration from %s", path)
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a ValheimConfig from a YAML file.
func loadConfigFromFile(filePath string) (ValheimConfig, error) {
	var config ValheimConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ValheimConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return ValheimConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Zero values in
// overlay leave base untouched.
func mergeConfigs(base, overlay ValheimConfig) ValheimConfig {
	merged := base

	if overlay.Relay.Host != "" {
		merged.Relay.Host = overlay.Relay.Host
	}
	if overlay.Relay.Port != 0 {
		merged.Relay.Port = overlay.Relay.Port
	}
	if overlay.Relay.OutputWait > 0 {
		merged.Relay.OutputWait = overlay.Relay.OutputWait
	}
	if overlay.Relay.PollInterval > 0 {
		merged.Relay.PollInterval = overlay.Relay.PollInterval
	}
	if overlay.Relay.WriteTimeout > 0 {
		merged.Relay.WriteTimeout = overlay.Relay.WriteTimeout
	}
	if overlay.Relay.HostConfig != "" {
		merged.Relay.HostConfig = overlay.Relay.HostConfig
	}

	if overlay.Client.Timeout > 0 {
		merged.Client.Timeout = overlay.Client.Timeout
	}
	if overlay.Client.DialTimeout > 0 {
		merged.Client.DialTimeout = overlay.Client.DialTimeout
	}
	if overlay.Client.StatePollInterval > 0 {
		merged.Client.StatePollInterval = overlay.Client.StatePollInterval
	}

	// The executable and its arguments travel together.
	if overlay.Game.Executable != "" {
		merged.Game.Executable = overlay.Game.Executable
		merged.Game.Args = overlay.Game.Args
	}
	if overlay.Game.WorkDir != "" {
		merged.Game.WorkDir = overlay.Game.WorkDir
	}
	if overlay.Game.StartupTimeout > 0 {
		merged.Game.StartupTimeout = overlay.Game.StartupTimeout
	}

	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
