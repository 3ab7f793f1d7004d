package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConfigPaths points the loader at files inside dir.
func mockConfigPaths(t *testing.T, userPath, projectPath string) {
	t.Helper()
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	t.Cleanup(func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	})

	getUserConfigPath = func() (string, error) { return userPath, nil }
	getProjectConfigPath = func() (string, error) { return projectPath, nil }
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t,
		filepath.Join(tempDir, "non-existent-user-config.yaml"),
		filepath.Join(tempDir, "non-existent-project-config.yaml"),
	)

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
	assert.Equal(t, "127.0.0.1:5555", loaded.Relay.Address())
}

func TestLoadConfig_Layering(t *testing.T) {
	tempDir := t.TempDir()
	userPath := filepath.Join(tempDir, "home", userConfigDir, configFileName)
	projectPath := filepath.Join(tempDir, "project", projectConfigDir, configFileName)
	mockConfigPaths(t, userPath, projectPath)

	writeFile(t, userPath, `relay:
  port: 6000
  outputWait: 3s
client:
  timeout: 10s
game:
  executable: /opt/valheim/valheim_server
  args: ["-nographics"]
logging:
  level: debug
`)
	writeFile(t, projectPath, `relay:
  port: 6001
game:
  workDir: /tmp/world
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6001, loaded.Relay.Port)
	assert.Equal(t, 3*time.Second, loaded.Relay.OutputWait)
	assert.Equal(t, "127.0.0.1", loaded.Relay.Host)
	assert.Equal(t, 10*time.Second, loaded.Client.Timeout)
	assert.Equal(t, GetDefaultConfig().Client.DialTimeout, loaded.Client.DialTimeout)
	assert.Equal(t, "/opt/valheim/valheim_server", loaded.Game.Executable)
	assert.Equal(t, []string{"-nographics"}, loaded.Game.Args)
	assert.Equal(t, "/tmp/world", loaded.Game.WorkDir)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	tempDir := t.TempDir()
	userPath := filepath.Join(tempDir, "user.yaml")
	mockConfigPaths(t, userPath, filepath.Join(tempDir, "missing.yaml"))

	writeFile(t, userPath, "relay: [not, a, mapping]\n")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, path, "relay:\n  hostConfig: host.yaml\n")

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "host.yaml", loaded.Relay.HostConfig)
	assert.Equal(t, 5555, loaded.Relay.Port)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetUserConfigDir(t *testing.T) {
	original := osUserHomeDir
	defer func() { osUserHomeDir = original }()
	osUserHomeDir = func() (string, error) { return "/home/viking", nil }

	dir, err := GetUserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/viking", ".config", "valheimcli"), dir)
}

func TestConversions(t *testing.T) {
	cfg := GetDefaultConfig()

	server := cfg.Relay.ServerConfig()
	assert.Equal(t, cfg.Relay.Port, server.Port)
	assert.Equal(t, cfg.Relay.OutputWait, server.OutputWait)

	assert.Len(t, cfg.Client.ClientOptions(), 3)
}
