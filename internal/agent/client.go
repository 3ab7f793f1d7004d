package agent

import (
	"context"
	"time"

	"valheimcli/internal/protocol"
)

// RelayClient is the relay client surface used by the console and the MCP
// server.
type RelayClient interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Address() string
	Ping(ctx context.Context) error
	SendCommand(ctx context.Context, command string) ([]string, error)
	GetState(ctx context.Context) (string, error)
	ListCommands(ctx context.Context) ([]protocol.CommandInfo, error)
	WaitForState(ctx context.Context, target string, timeout time.Duration) (bool, error)
	SubscribeToStateChanges(ctx context.Context) error
}

// ensureConnected connects client when a previous failure closed it.
func ensureConnected(ctx context.Context, client RelayClient) error {
	if client.IsConnected() {
		return nil
	}
	return client.Connect(ctx)
}
