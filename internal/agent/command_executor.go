package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"valheimcli/internal/protocol"
	"valheimcli/pkg/logging"
)

const (
	commandCacheKey = "commands"
	commandCacheTTL = 30 * time.Second
)

// commandCatalog caches the host's command table so tab completion does not
// hit the relay on every key press.
type commandCatalog struct {
	client RelayClient
	cache  *cache.Cache
}

func newCommandCatalog(client RelayClient) *commandCatalog {
	return &commandCatalog{
		client: client,
		cache:  cache.New(commandCacheTTL, 2*commandCacheTTL),
	}
}

// Commands returns the cached table, fetching it when expired.
func (c *commandCatalog) Commands(ctx context.Context) ([]protocol.CommandInfo, error) {
	if cached, found := c.cache.Get(commandCacheKey); found {
		return cached.([]protocol.CommandInfo), nil
	}
	if err := ensureConnected(ctx, c.client); err != nil {
		return nil, err
	}

	commands, err := c.client.ListCommands(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	c.cache.Set(commandCacheKey, commands, cache.DefaultExpiration)
	logging.Debug("Console", "Cached %d host commands", len(commands))
	return commands, nil
}

// Invalidate drops the cached table.
func (c *commandCatalog) Invalidate() {
	c.cache.Delete(commandCacheKey)
}

// GetCompletions returns command names starting with partial, host
// commands first, then console commands.
func (c *commandCatalog) GetCompletions(ctx context.Context, partial string) []string {
	lower := strings.ToLower(partial)

	commands, err := c.Commands(ctx)
	if err != nil {
		logging.Debug("Console", "Completion without host commands: %v", err)
	}

	var completions []string
	for _, cmd := range commands {
		if strings.HasPrefix(strings.ToLower(cmd.Name), lower) {
			completions = append(completions, cmd.Name)
		}
	}
	sort.Strings(completions)

	for _, builtin := range consoleCommands {
		if strings.HasPrefix(builtin.name, lower) {
			completions = append(completions, builtin.name)
		}
	}
	return completions
}

// filterCommands keeps commands whose name or description contains filter,
// ignoring case.
func filterCommands(commands []protocol.CommandInfo, filter string) []protocol.CommandInfo {
	filter = strings.ToLower(filter)
	var filtered []protocol.CommandInfo
	for _, cmd := range commands {
		if strings.Contains(strings.ToLower(cmd.Name), filter) ||
			strings.Contains(strings.ToLower(cmd.Description), filter) {
			filtered = append(filtered, cmd)
		}
	}
	return filtered
}
