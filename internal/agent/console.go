package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"valheimcli/internal/cli"
	"valheimcli/internal/color"
	"valheimcli/pkg/logging"
)

const (
	historyFileName    = ".valheimcli_history"
	defaultWaitTimeout = 30 * time.Second
	completionTimeout  = 2 * time.Second
)

// errExitConsole ends the read loop.
var errExitConsole = errors.New("exit")

type consoleCommand struct {
	name        string
	usage       string
	description string
}

var consoleCommands = []consoleCommand{
	{"/help", "/help", "Show this help"},
	{"/state", "/state", "Show the current game state"},
	{"/commands", "/commands [filter]", "List the host's console commands"},
	{"/wait", "/wait <state> [timeout]", "Wait until the game reaches a state"},
	{"/ping", "/ping", "Check that the relay answers"},
	{"/exit", "/exit", "Leave the console"},
}

// stateNotifier is implemented by clients that deliver state pushes.
type stateNotifier interface {
	OnStateChanged(handler cli.StateChangeHandler)
}

// Console is an interactive line console for the relay. Lines starting with
// a slash are handled locally, everything else is sent to the host.
type Console struct {
	client      RelayClient
	catalog     *commandCatalog
	options     cli.ExecutorOptions
	historyFile string

	mu      sync.Mutex
	out     io.Writer
	printer *cli.Printer
}

// NewConsole creates a console that prints to out.
func NewConsole(client RelayClient, out io.Writer, options cli.ExecutorOptions) *Console {
	c := &Console{
		client:      client,
		catalog:     newCommandCatalog(client),
		options:     options,
		historyFile: filepath.Join(os.TempDir(), historyFileName),
	}
	c.setOutput(out)
	return c
}

func (c *Console) setOutput(out io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = out
	c.printer = cli.NewPrinter(out, c.options)
}

func (c *Console) output() (io.Writer, *cli.Printer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out, c.printer
}

// Run reads lines until exit, EOF or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	if err := ensureConnected(ctx, c.client); err != nil {
		return fmt.Errorf("failed to connect to relay at %s: %w", c.client.Address(), err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              color.PromptStyle.Render("valheim") + "> ",
		HistoryFile:         c.historyFile,
		AutoComplete:        &commandCompleter{catalog: c.catalog},
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	c.setOutput(rl.Stdout())

	if notifier, ok := c.client.(stateNotifier); ok {
		notifier.OnStateChanged(c.printStateChange)
		if err := c.client.SubscribeToStateChanges(ctx); err != nil {
			logging.Warn("Console", "State change notifications unavailable: %v", err)
		}
	}

	// Readline blocks on the terminal; closing it releases the loop.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			rl.Close()
		case <-stop:
		}
	}()

	out, _ := c.output()
	fmt.Fprintf(out, "Connected to %s. Type /help for help, exit to quit.\n\n", c.client.Address())

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Ctrl+C clears the current line only.
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "Goodbye!")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errExitConsole) {
				fmt.Fprintln(out, "Goodbye!")
				return nil
			}
			fmt.Fprintf(out, "%s\n", color.ErrorStyle.Render("Error: "+err.Error()))
		}
	}
}

// Execute handles one console line.
func (c *Console) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "exit", "quit", "/exit", "/quit":
		return errExitConsole
	case "/help", "/?":
		c.showHelp()
		return nil
	case "/state":
		return c.handleState(ctx)
	case "/commands":
		filter := ""
		if len(fields) > 1 {
			filter = fields[1]
		}
		return c.handleCommands(ctx, filter)
	case "/wait":
		return c.handleWait(ctx, fields[1:])
	case "/ping":
		return c.handlePing(ctx)
	}

	if strings.HasPrefix(line, "/") {
		return fmt.Errorf("unknown console command: %s (type /help)", fields[0])
	}
	return c.handleHostCommand(ctx, line)
}

func (c *Console) handleHostCommand(ctx context.Context, line string) error {
	if err := ensureConnected(ctx, c.client); err != nil {
		return err
	}
	lines, err := c.client.SendCommand(ctx, line)
	if err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	_, printer := c.output()
	return printer.PrintOutput(line, lines)
}

func (c *Console) handleState(ctx context.Context) error {
	if err := ensureConnected(ctx, c.client); err != nil {
		return err
	}
	state, err := c.client.GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get state: %w", err)
	}
	_, printer := c.output()
	return printer.PrintState(state)
}

func (c *Console) handleCommands(ctx context.Context, filter string) error {
	c.catalog.Invalidate()
	commands, err := c.catalog.Commands(ctx)
	if err != nil {
		return err
	}

	if filter != "" {
		commands = filterCommands(commands, filter)
	}
	_, printer := c.output()
	return printer.PrintCommands(commands)
}

func (c *Console) handleWait(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: /wait <state> [timeout]")
	}
	timeout := defaultWaitTimeout
	if len(args) > 1 {
		parsed, err := parseTimeout(args[1])
		if err != nil {
			return err
		}
		timeout = parsed
	}
	if err := ensureConnected(ctx, c.client); err != nil {
		return err
	}

	out, _ := c.output()
	fmt.Fprintf(out, "⏳ Waiting up to %v for %s...\n", timeout, args[0])
	reached, err := c.client.WaitForState(ctx, args[0], timeout)
	if err != nil {
		return err
	}
	if !reached {
		return fmt.Errorf("state %s not reached within %v", args[0], timeout)
	}
	fmt.Fprintf(out, "✅ %s\n", color.PassedStyle.Render("Reached "+args[0]))
	return nil
}

func (c *Console) handlePing(ctx context.Context) error {
	if err := ensureConnected(ctx, c.client); err != nil {
		return err
	}
	start := time.Now()
	if err := c.client.Ping(ctx); err != nil {
		return err
	}
	out, _ := c.output()
	fmt.Fprintf(out, "PONG (%v)\n", time.Since(start).Round(time.Microsecond))
	return nil
}

func (c *Console) showHelp() {
	out, _ := c.output()
	fmt.Fprintln(out, color.TitleStyle.Render("Console commands:"))
	for _, cmd := range consoleCommands {
		fmt.Fprintf(out, "  %-26s %s\n", cmd.usage, cmd.description)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Any other line is sent to the game console, e.g. `spawn Boar 5`.")
	fmt.Fprintln(out, "Press TAB to complete host command names.")
}

func (c *Console) printStateChange(state string) {
	out, _ := c.output()
	fmt.Fprintf(out, "%s\n", color.InfoStyle.Render("🔔 State changed: "+state))
}

// parseTimeout accepts a duration ("90s") or a number of seconds ("90").
func parseTimeout(s string) (time.Duration, error) {
	if seconds, err := strconv.ParseFloat(s, 64); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("timeout must be positive: %s", s)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive: %s", s)
	}
	return d, nil
}

// filterInput blocks Ctrl+Z, which would suspend the process under the
// terminal's raw mode.
func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// commandCompleter completes the first word of a line.
type commandCompleter struct {
	catalog *commandCatalog
}

// Do implements readline.AutoCompleter.
func (cc *commandCompleter) Do(line []rune, pos int) ([][]rune, int) {
	head := line[:pos]
	for _, r := range head {
		if r == ' ' {
			return nil, 0
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	partial := string(head)
	var suggestions [][]rune
	for _, name := range cc.catalog.GetCompletions(ctx, partial) {
		suffix := []rune(name)[len(head):]
		suggestions = append(suggestions, append(suffix, ' '))
	}
	return suggestions, len(head)
}
