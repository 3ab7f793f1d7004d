package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"valheimcli/internal/protocol"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputFormatTable, "":
		return OutputFormatTable, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	case OutputFormatYAML:
		return OutputFormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// ExecutorOptions contains options for printing relay results
type ExecutorOptions struct {
	Format OutputFormat
	Quiet  bool
	// MaxWidth truncates description cells; 0 disables truncation.
	MaxWidth int
}

// Printer renders relay results in the configured format.
type Printer struct {
	out     io.Writer
	options ExecutorOptions
}

// NewPrinter creates a printer writing to out (os.Stdout when nil).
func NewPrinter(out io.Writer, options ExecutorOptions) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if options.Format == "" {
		options.Format = OutputFormatTable
	}
	return &Printer{out: out, options: options}
}

type commandOutput struct {
	Command string   `json:"command" yaml:"command"`
	Lines   []string `json:"output" yaml:"output"`
}

type stateOutput struct {
	State string `json:"state" yaml:"state"`
}

// PrintOutput prints the output of one console command.
func (p *Printer) PrintOutput(command string, lines []string) error {
	if lines == nil {
		lines = []string{}
	}
	switch p.options.Format {
	case OutputFormatJSON:
		return p.printJSON(commandOutput{Command: command, Lines: lines})
	case OutputFormatYAML:
		return p.printYAML(commandOutput{Command: command, Lines: lines})
	}

	if len(lines) == 0 {
		if !p.options.Quiet {
			fmt.Fprintln(p.out, text.FgHiBlack.Sprint("(no output)"))
		}
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(p.out, line)
	}
	return nil
}

// PrintState prints the host's state.
func (p *Printer) PrintState(name string) error {
	switch p.options.Format {
	case OutputFormatJSON:
		return p.printJSON(stateOutput{State: name})
	case OutputFormatYAML:
		return p.printYAML(stateOutput{State: name})
	}
	if p.options.Quiet {
		fmt.Fprintln(p.out, name)
		return nil
	}
	fmt.Fprintf(p.out, "%s %s\n", text.FgHiBlue.Sprint("State:"), formatState(name))
	return nil
}

// PrintCommands prints the host's command table.
func (p *Printer) PrintCommands(commands []protocol.CommandInfo) error {
	switch p.options.Format {
	case OutputFormatJSON:
		return p.printJSON(commands)
	case OutputFormatYAML:
		return p.printYAML(commands)
	}

	if len(commands) == 0 {
		fmt.Fprintln(p.out, text.FgYellow.Sprint("No commands found"))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("DESCRIPTION"),
		text.FgHiCyan.Sprint("CHEAT"),
	})

	cheats := 0
	for _, cmd := range commands {
		cheat := text.FgHiBlack.Sprint("-")
		if cmd.IsCheat {
			cheats++
			cheat = text.FgRed.Sprint("yes")
		}
		t.AppendRow(table.Row{
			text.FgYellow.Sprint(cmd.Name),
			p.formatDescription(cmd.Description),
			cheat,
		})
	}
	t.Render()

	if !p.options.Quiet {
		fmt.Fprintf(p.out, "\n%s %d commands (%d cheats)\n",
			text.FgHiBlue.Sprint("Total:"), len(commands), cheats)
	}
	return nil
}

func (p *Printer) formatDescription(desc string) string {
	if desc == "" {
		return text.FgHiBlack.Sprint("-")
	}
	if p.options.MaxWidth > 0 {
		return runewidth.Truncate(desc, p.options.MaxWidth, "...")
	}
	return desc
}

func (p *Printer) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Fprintln(p.out, string(data))
	return nil
}

func (p *Printer) printYAML(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	fmt.Fprint(p.out, string(data))
	return nil
}

// formatState adds color coding to a game state name
func formatState(name string) string {
	switch strings.ToLower(name) {
	case "inworld":
		return text.FgGreen.Sprint(name)
	case "loading":
		return text.FgYellow.Sprint(name)
	case "mainmenu", "inworldnoplayer":
		return text.FgCyan.Sprint(name)
	default:
		return text.FgHiBlack.Sprint(name)
	}
}
