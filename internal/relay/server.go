package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"valheimcli/internal/protocol"
	"valheimcli/internal/state"
	"valheimcli/pkg/logging"

	"github.com/google/uuid"
)

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 5555
	DefaultOutputWait   = 5 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultWriteTimeout = 2 * time.Second
)

// ErrNotLoopback is returned by Start when the configured host is not a
// loopback address.
var ErrNotLoopback = errors.New("relay server only binds to loopback addresses")

// Config controls the relay listener and command transactions.
type Config struct {
	Host string `yaml:"host"`
	// Port 0 picks a free port; see Server.Addr.
	Port         int           `yaml:"port"`
	OutputWait   time.Duration `yaml:"outputWait"`
	PollInterval time.Duration `yaml:"pollInterval"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		OutputWait:   DefaultOutputWait,
		PollInterval: DefaultPollInterval,
		WriteTimeout: DefaultWriteTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.OutputWait <= 0 {
		c.OutputWait = DefaultOutputWait
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// CommandTable provides the host's console command list for LIST_COMMANDS.
type CommandTable interface {
	Commands() []protocol.CommandInfo
}

// CommandTableFunc adapts a function to CommandTable.
type CommandTableFunc func() []protocol.CommandInfo

// Commands implements CommandTable.
func (f CommandTableFunc) Commands() []protocol.CommandInfo { return f() }

// Server relays console commands between network clients and the host tick
// loop. The host consumes commands with DrainPendingCommand and answers with
// ReportOutput; clients never touch the host directly.
type Server struct {
	cfg      Config
	commands CommandTable

	pending Queue[string]
	output  Queue[string]
	// txMu serializes command transactions from enqueue until the output
	// block has been drained, so concurrent clients never see each other's
	// output.
	txMu sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup

	peersMu sync.Mutex
	peers   map[string]*peer

	subsMu      sync.RWMutex
	subscribers map[string]*subscription
	pushers     sync.WaitGroup

	trackerMu sync.RWMutex
	tracker   *state.Tracker
}

// New creates a relay server. commands may be nil, in which case
// LIST_COMMANDS answers with an empty block.
func New(cfg Config, commands CommandTable) *Server {
	return &Server{
		cfg:         cfg.withDefaults(),
		commands:    commands,
		peers:       make(map[string]*peer),
		subscribers: make(map[string]*subscription),
	}
}

// Start begins accepting connections. Calling Start on a running server is a
// no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	if !isLoopback(s.cfg.Host) {
		return fmt.Errorf("%w: %s", ErrNotLoopback, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.acceptLoop(listener, s.done)

	logging.Info("RelayServer", "Listening on %s", listener.Addr())
	return nil
}

// Stop closes the listener and every live connection, then waits for the
// handlers to exit. Calling Stop on a stopped server is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return
	}
	close(s.done)
	_ = s.listener.Close()
	s.listener = nil
	s.mu.Unlock()

	s.peersMu.Lock()
	for _, p := range s.peers {
		p.close()
	}
	s.peersMu.Unlock()

	s.wg.Wait()
	s.unsubscribeAll()
	logging.Info("RelayServer", "Stopped")
}

// Addr returns the bound listener address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the listener is open.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// EnqueueForHost queues a sanitized command for the host tick loop.
func (s *Server) EnqueueForHost(command string) {
	command = protocol.Sanitize(command)
	s.pending.Push(command)
	logging.Debug("RelayServer", "Queued command: %s", command)
}

// DrainPendingCommand returns the oldest queued command without blocking.
func (s *Server) DrainPendingCommand() (string, bool) {
	return s.pending.Pop()
}

// PendingCount returns the number of commands not yet consumed by the host.
func (s *Server) PendingCount() int {
	return s.pending.Len()
}

// ReportOutput appends output produced by the host. All lines of one call are
// appended atomically; a line containing newlines is split into several.
func (s *Server) ReportOutput(lines ...string) {
	var out []string
	for _, line := range lines {
		for _, part := range strings.Split(line, "\n") {
			out = append(out, strings.TrimRight(part, "\r"))
		}
	}
	s.output.Push(out...)
}

// AttachTracker makes tracker the source for STATE queries and broadcasts
// every transition it raises to subscribers.
func (s *Server) AttachTracker(tracker *state.Tracker) {
	if tracker == nil {
		return
	}
	s.trackerMu.Lock()
	s.tracker = tracker
	s.trackerMu.Unlock()

	tracker.OnChange(func(ev state.ChangeEvent) {
		s.BroadcastStateChange(ev.Current)
	})
}

// CurrentState returns the attached tracker's state, or Unknown.
func (s *Server) CurrentState() state.GameState {
	s.trackerMu.RLock()
	tracker := s.tracker
	s.trackerMu.RUnlock()

	if tracker == nil {
		return state.Unknown
	}
	return tracker.Current()
}

// BroadcastStateChange queues a notification for every subscriber and
// returns without touching the network, so it is safe to call from the host
// tick. Each subscriber's goroutine performs the write; a failed write or a
// full queue drops the subscriber. It returns the number of subscribers the
// notification was queued for.
func (s *Server) BroadcastStateChange(gs state.GameState) int {
	s.subsMu.RLock()
	targets := make([]*subscription, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		targets = append(targets, sub)
	}
	s.subsMu.RUnlock()

	line := protocol.FormatStateChanged(gs.String())
	queued := 0
	for _, sub := range targets {
		if !sub.offer(line) {
			logging.Debug("RelayServer", "Dropping subscriber %s: %d notification(s) pending", sub.peer.id, pushQueueSize)
			s.unsubscribe(sub.peer)
			continue
		}
		queued++
	}

	if len(targets) > 0 {
		logging.Debug("RelayServer", "Broadcast %s to %d/%d subscriber(s)", gs, queued, len(targets))
	}
	return queued
}

// SubscriberCount returns the number of connections subscribed to state
// changes.
func (s *Server) SubscriberCount() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subscribers)
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	return len(s.peers)
}

func (s *Server) acceptLoop(listener net.Listener, done <-chan struct{}) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("RelayServer", "Accept failed: %v", err)
			continue
		}

		p := newPeer(uuid.NewString(), conn)
		if !s.registerPeer(p, done) {
			p.close()
			return
		}

		s.wg.Add(1)
		go s.handleConnection(p)
	}
}

// registerPeer adds p to the live set unless the server is stopping.
func (s *Server) registerPeer(p *peer, done <-chan struct{}) bool {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()

	select {
	case <-done:
		return false
	default:
	}
	s.peers[p.id] = p
	return true
}

func (s *Server) dropPeer(p *peer) {
	s.unsubscribe(p)

	s.peersMu.Lock()
	delete(s.peers, p.id)
	s.peersMu.Unlock()

	p.close()
	logging.Debug("RelayServer", "Client %s disconnected", p.id)
}

// subscribe starts delivering notifications to p. Subscribing twice keeps
// the existing queue.
func (s *Server) subscribe(p *peer) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if _, ok := s.subscribers[p.id]; ok {
		return
	}
	sub := newSubscription(p)
	s.subscribers[p.id] = sub

	s.pushers.Add(1)
	go func() {
		defer s.pushers.Done()
		if err := sub.run(s.cfg.WriteTimeout); err != nil {
			logging.Debug("RelayServer", "Dropping subscriber %s: %v", p.id, err)
			s.unsubscribe(p)
		}
	}()
}

func (s *Server) unsubscribe(p *peer) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if sub, ok := s.subscribers[p.id]; ok {
		delete(s.subscribers, p.id)
		close(sub.done)
	}
}

// unsubscribeAll stops every subscription and waits for their writers.
func (s *Server) unsubscribeAll() {
	s.subsMu.Lock()
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub.done)
	}
	s.subsMu.Unlock()

	s.pushers.Wait()
}

func (s *Server) handleConnection(p *peer) {
	defer s.wg.Done()
	defer s.dropPeer(p)

	logging.Debug("RelayServer", "Client %s connected from %s", p.id, p.remoteAddr())

	if err := p.writeLine(protocol.ReadySentinel, s.cfg.WriteTimeout); err != nil {
		logging.Debug("RelayServer", "Handshake with %s failed: %v", p.id, err)
		return
	}

	reader := bufio.NewReader(p.conn)
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			if werr := s.dispatch(p, protocol.TrimLine(raw)); werr != nil {
				logging.Debug("RelayServer", "Write to %s failed: %v", p.id, werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logging.Debug("RelayServer", "Read from %s failed: %v", p.id, err)
			}
			return
		}
	}
}

func (s *Server) dispatch(p *peer, line string) error {
	line = strings.TrimSpace(line)
	timeout := s.cfg.WriteTimeout

	switch line {
	case "":
		return nil
	case protocol.Ping:
		return p.writeLine(protocol.Pong, timeout)
	case protocol.ListCommands:
		return p.writeBlock(protocol.KindCommands, s.commandLines(), timeout)
	case protocol.StateQuery:
		return p.writeLine(protocol.FormatState(s.CurrentState().String()), timeout)
	case protocol.SubscribeState:
		s.subscribe(p)
		return p.writeLine(protocol.Subscribed, timeout)
	case protocol.UnsubscribeState:
		s.unsubscribe(p)
		return p.writeLine(protocol.Unsubscribed, timeout)
	}

	if text, ok := protocol.ParseCommand(line); ok {
		return s.runCommand(p, text)
	}

	logging.Debug("RelayServer", "Ignoring unknown line from %s: %q", p.id, line)
	return nil
}

func (s *Server) commandLines() []string {
	if s.commands == nil {
		return nil
	}
	infos := s.commands.Commands()
	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		lines = append(lines, info.Encode())
	}
	return lines
}

// runCommand performs one command transaction: enqueue, wait for output,
// reply with an OUTPUT block. An empty block is a valid reply.
func (s *Server) runCommand(p *peer, text string) error {
	command := strings.TrimSpace(protocol.Sanitize(text))
	if command == "" {
		return p.writeBlock(protocol.KindOutput, nil, s.cfg.WriteTimeout)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if stale := s.output.DrainAll(); len(stale) > 0 {
		logging.Warn("RelayServer", "Discarding %d stale output line(s) before %q", len(stale), command)
	}

	s.EnqueueForHost(command)
	lines := s.awaitOutput()

	logging.Debug("RelayServer", "Command %q from %s produced %d line(s)", command, p.id, len(lines))
	return p.writeBlock(protocol.KindOutput, lines, s.cfg.WriteTimeout)
}

// awaitOutput polls the output buffer until it stops growing for one poll
// interval or the output wait elapses, then drains it.
func (s *Server) awaitOutput() []string {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	deadline := time.NewTimer(s.cfg.OutputWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	seen := 0
	for {
		n := s.output.Len()
		if n > 0 && n == seen {
			break
		}
		seen = n

		select {
		case <-ticker.C:
		case <-deadline.C:
			return s.output.DrainAll()
		case <-done:
			return s.output.DrainAll()
		}
	}
	return s.output.DrainAll()
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
