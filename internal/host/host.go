package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"valheimcli/internal/protocol"
	"valheimcli/internal/state"
	"valheimcli/pkg/logging"
)

// Relay is the side of the relay server the host tick loop talks to.
type Relay interface {
	DrainPendingCommand() (string, bool)
	ReportOutput(lines ...string)
}

// CommandExecutionError wraps a failure inside a console command. The host
// reports it as a single output line instead of propagating it.
type CommandExecutionError struct {
	Command string
	Err     error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("Error executing command '%s': %v", e.Command, e.Err)
}

func (e *CommandExecutionError) Unwrap() error { return e.Err }

type command struct {
	info      protocol.CommandInfo
	responses []*response
}

type response struct {
	cfg       ResponseConfig
	templates []*template.Template
	target    state.GameState
	hasTarget bool
}

// pending is work scheduled for a later tick: delayed output or a state
// change that completes a loading phase.
type pending struct {
	due    time.Time
	output []string
	state  *state.GameState
}

// Host is a scripted stand-in for the game. Its tick loop consumes relay
// commands, answers them from its Config and moves between game states.
type Host struct {
	cfg      Config
	commands map[string]*command
	infos    []protocol.CommandInfo
	tracker  *state.Tracker
	now      func() time.Time

	mu        sync.Mutex
	current   state.GameState
	scheduled []pending
	executed  int
}

// New builds a host from cfg, compiling every response template.
func New(cfg Config) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	h := &Host{
		cfg:      cfg,
		commands: make(map[string]*command),
		now:      time.Now,
		current:  state.MainMenu,
	}
	if cfg.InitialState != "" {
		h.current, _ = state.ParseGameState(cfg.InitialState)
	}

	for _, cc := range cfg.Commands {
		cmd := &command{info: protocol.CommandInfo{
			Name:        strings.TrimSpace(cc.Name),
			Description: cc.Description,
			IsCheat:     cc.Cheat,
		}}
		for i, rc := range cc.Responses {
			resp := &response{cfg: rc}
			for j, line := range rc.Output {
				name := fmt.Sprintf("%s/%d/%d", cc.Name, i, j)
				tmpl, err := template.New(name).Option("missingkey=error").Parse(line)
				if err != nil {
					return nil, fmt.Errorf("command %q: invalid output template %q: %w", cc.Name, line, err)
				}
				resp.templates = append(resp.templates, tmpl)
			}
			if rc.State != "" {
				resp.target, resp.hasTarget = state.ParseGameState(rc.State)
			}
			cmd.responses = append(cmd.responses, resp)
		}
		h.commands[strings.ToLower(cmd.info.Name)] = cmd
		h.infos = append(h.infos, cmd.info)
	}
	sort.Slice(h.infos, func(i, j int) bool { return h.infos[i].Name < h.infos[j].Name })

	h.tracker = state.NewTracker(h.State)
	return h, nil
}

// Name returns the configured host name.
func (h *Host) Name() string { return h.cfg.Name }

// Commands implements relay.CommandTable.
func (h *Host) Commands() []protocol.CommandInfo {
	out := make([]protocol.CommandInfo, len(h.infos))
	copy(out, h.infos)
	return out
}

// Tracker returns the state tracker sampled by Tick.
func (h *Host) Tracker() *state.Tracker { return h.tracker }

// State returns the host's actual state, which the tracker samples.
func (h *Host) State() state.GameState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// SetState moves the host to s. The change becomes visible to the tracker
// on the next tick.
func (h *Host) SetState(s state.GameState) {
	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
}

// Executed returns how many commands the host has run.
func (h *Host) Executed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executed
}

// Run ticks until ctx is cancelled.
func (h *Host) Run(ctx context.Context, relay Relay) error {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	logging.Info("Host", "Simulated host %q running with %d commands", h.cfg.Name, len(h.infos))
	h.tracker.Sample()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Tick(relay)
		}
	}
}

// Tick runs one frame: due scheduled work, every pending command, then a
// state sample.
func (h *Host) Tick(relay Relay) {
	now := h.now()

	for _, work := range h.takeDue(now) {
		if len(work.output) > 0 {
			relay.ReportOutput(work.output...)
		}
		if work.state != nil {
			h.SetState(*work.state)
		}
	}

	for {
		raw, ok := relay.DrainPendingCommand()
		if !ok {
			break
		}
		lines, delay := h.Execute(raw)
		switch {
		case len(lines) == 0:
		case delay > 0:
			h.schedule(pending{due: now.Add(delay), output: lines})
		default:
			relay.ReportOutput(lines...)
		}
	}

	h.tracker.Sample()
}

// Execute runs one console command and returns its output and how long the
// output should be held back. Failures and panics become a single line.
func (h *Host) Execute(raw string) (lines []string, delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			err := &CommandExecutionError{Command: raw, Err: fmt.Errorf("panic: %v", r)}
			logging.Error("Host", err, "Command panicked")
			lines, delay = []string{err.Error()}, 0
		}
	}()

	h.mu.Lock()
	h.executed++
	h.mu.Unlock()

	lines, delay, err := h.run(raw)
	if err != nil {
		execErr := &CommandExecutionError{Command: raw, Err: err}
		logging.Warn("Host", "%v", execErr)
		return []string{execErr.Error()}, delay
	}
	return lines, delay
}

func (h *Host) run(raw string) ([]string, time.Duration, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, 0, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	cmd, ok := h.commands[name]
	if !ok {
		logging.Debug("Host", "Unknown command %q", raw)
		return []string{fmt.Sprintf("Unknown command: %s", fields[0])}, 0, nil
	}

	resp := selectResponse(cmd.responses, args)
	if resp == nil {
		return nil, 0, nil
	}

	if resp.cfg.Panic != "" {
		panic(resp.cfg.Panic)
	}
	if resp.cfg.Error != "" {
		return nil, resp.cfg.Delay, errors.New(resp.cfg.Error)
	}

	data := templateData{
		Name:     cmd.info.Name,
		Raw:      raw,
		ArgList:  args,
		State:    h.State().String(),
		Commands: h.infos,
	}
	var lines []string
	for _, tmpl := range resp.templates {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, 0, fmt.Errorf("template execution failed: %w", err)
		}
		lines = append(lines, strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")...)
	}

	if resp.hasTarget {
		h.transition(resp.target, resp.cfg.Loading)
	}

	logging.Debug("Host", "Executed %q -> %d line(s)", raw, len(lines))
	return lines, resp.cfg.Delay, nil
}

// transition moves to target, passing through Loading when loading > 0.
func (h *Host) transition(target state.GameState, loading time.Duration) {
	if loading <= 0 {
		h.SetState(target)
		return
	}
	h.SetState(state.Loading)
	h.schedule(pending{due: h.now().Add(loading), state: &target})
}

func (h *Host) schedule(p pending) {
	h.mu.Lock()
	h.scheduled = append(h.scheduled, p)
	h.mu.Unlock()
}

func (h *Host) takeDue(now time.Time) []pending {
	h.mu.Lock()
	defer h.mu.Unlock()

	var due, rest []pending
	for _, p := range h.scheduled {
		if !now.Before(p.due) {
			due = append(due, p)
		} else {
			rest = append(rest, p)
		}
	}
	h.scheduled = rest
	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	return due
}

// selectResponse returns the first response whose condition matches args,
// else the first unconditional one.
func selectResponse(responses []*response, args []string) *response {
	for _, r := range responses {
		if len(r.cfg.Condition) > 0 && matchesCondition(r.cfg.Condition, args) {
			return r
		}
	}
	for _, r := range responses {
		if len(r.cfg.Condition) == 0 {
			return r
		}
	}
	return nil
}

func matchesCondition(condition map[string]string, args []string) bool {
	for key, want := range condition {
		var got string
		switch {
		case key == "args":
			got = strings.Join(args, " ")
		case strings.HasPrefix(key, "arg"):
			i, err := strconv.Atoi(strings.TrimPrefix(key, "arg"))
			if err != nil {
				return false
			}
			if i < len(args) {
				got = args[i]
			}
		default:
			return false
		}
		if !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

// templateData is the dot value of output templates.
type templateData struct {
	Name     string
	Raw      string
	ArgList  []string
	State    string
	Commands []protocol.CommandInfo
}

// Args returns the arguments joined by spaces.
func (d templateData) Args() string { return strings.Join(d.ArgList, " ") }

// Arg returns argument i or "".
func (d templateData) Arg(i int) string { return d.ArgOr(i, "") }

// ArgOr returns argument i or def when absent.
func (d templateData) ArgOr(i int, def string) string {
	if i >= 0 && i < len(d.ArgList) {
		return d.ArgList[i]
	}
	return def
}
