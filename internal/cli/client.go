package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"valheimcli/internal/protocol"
	"valheimcli/pkg/logging"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultDialTimeout       = 5 * time.Second
	DefaultStatePollInterval = 2 * time.Second

	// pushReadWindow bounds the non-blocking read used to pick up pushed
	// notifications between state polls.
	pushReadWindow = 50 * time.Millisecond
	pushCheckEvery = 100 * time.Millisecond

	// footerSettle is how long readBlock waits after a footer that arrived
	// before the announced count. A line arriving within it means the footer
	// text was payload.
	footerSettle = 50 * time.Millisecond
)

// errNothingPending is returned by a lineReader when no line arrived within
// the requested window.
var errNothingPending = errors.New("no line within window")

// lineReader reads the next line of a reply. A positive within bounds the
// wait and yields errNothingPending instead of failing the connection.
type lineReader func(within time.Duration) (string, error)

// StateChangeHandler receives the state name carried by a STATE_CHANGED push.
type StateChangeHandler func(state string)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-transaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDialTimeout sets the timeout for establishing the TCP connection.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithStatePollInterval sets how often WaitForState queries the state.
func WithStatePollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// Client talks to a relay server. Transactions are serialized; push
// notifications that arrive while a transaction waits for its reply are
// dispatched to the registered handlers.
type Client struct {
	address      string
	timeout      time.Duration
	dialTimeout  time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	partial string

	handlersMu sync.RWMutex
	handlers   []StateChangeHandler
	watchers   map[int]chan string
	nextWatch  int
}

// NewClient creates a client for the relay server at address (host:port).
func NewClient(address string, opts ...Option) *Client {
	c := &Client{
		address:      address,
		timeout:      DefaultTimeout,
		dialTimeout:  DefaultDialTimeout,
		pollInterval: DefaultStatePollInterval,
		watchers:     make(map[int]chan string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the relay address this client dials.
func (c *Client) Address() string {
	return c.address
}

// Connect dials the server and waits for the ready sentinel. Connecting an
// already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return &ConnectionError{Op: "dial", Address: c.address, Err: err}
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.partial = ""

	stop := context.AfterFunc(ctx, interrupt(conn))
	defer stop()

	line, err := c.readLine(c.deadline(ctx))
	if err != nil {
		c.closeLocked()
		return &HandshakeError{Address: c.address, Err: contextError(ctx, err)}
	}
	if line != protocol.ReadySentinel {
		c.closeLocked()
		return &HandshakeError{Address: c.address, Got: line}
	}

	logging.Debug("RelayClient", "Connected to %s", c.address)
	return nil
}

// IsConnected reports whether the client holds an open connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close closes the connection. Closing a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.partial = ""
	return err
}

// OnStateChanged registers a handler for pushed state changes.
func (c *Client) OnStateChanged(handler StateChangeHandler) {
	if handler == nil {
		return
	}
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, handler)
	c.handlersMu.Unlock()
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.expectLine(ctx, protocol.Ping, protocol.Pong)
}

// SubscribeToStateChanges asks the server to push state transitions.
func (c *Client) SubscribeToStateChanges(ctx context.Context) error {
	return c.expectLine(ctx, protocol.SubscribeState, protocol.Subscribed)
}

// UnsubscribeFromStateChanges stops state pushes for this connection.
func (c *Client) UnsubscribeFromStateChanges(ctx context.Context) error {
	return c.expectLine(ctx, protocol.UnsubscribeState, protocol.Unsubscribed)
}

// GetState returns the host's current state name.
func (c *Client) GetState(ctx context.Context) (string, error) {
	var name string
	err := c.roundTrip(ctx, protocol.StateQuery, func(first string, _ lineReader) error {
		parsed, ok := protocol.ParseState(first)
		if !ok {
			return &ProtocolError{Expected: protocol.StatePrefix + "<state>", Got: first}
		}
		name = parsed
		return nil
	})
	return name, err
}

// SendCommand runs one console command and returns its output lines. A
// command without output yields an empty, non-nil slice.
func (c *Client) SendCommand(ctx context.Context, command string) ([]string, error) {
	var lines []string
	err := c.roundTrip(ctx, protocol.FormatCommand(command), func(first string, next lineReader) error {
		var err error
		lines, err = readBlock(first, protocol.KindOutput, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ListCommands returns the host's console command table.
func (c *Client) ListCommands(ctx context.Context) ([]protocol.CommandInfo, error) {
	var infos []protocol.CommandInfo
	err := c.roundTrip(ctx, protocol.ListCommands, func(first string, next lineReader) error {
		lines, err := readBlock(first, protocol.KindCommands, next)
		if err != nil {
			return err
		}
		infos = make([]protocol.CommandInfo, 0, len(lines))
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			infos = append(infos, protocol.ParseCommandInfo(line))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// WaitForState waits until the host reports target, either through a state
// poll or a pushed notification. The first poll happens immediately. It
// returns false without error when timeout elapses and the context error when
// ctx is cancelled first.
func (c *Client) WaitForState(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pushes, unwatch := c.watch()
	defer unwatch()

	poll := time.NewTimer(0)
	defer poll.Stop()
	pushCheck := time.NewTicker(pushCheckEvery)
	defer pushCheck.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return false, err
			}
			logging.Debug("RelayClient", "Timed out after %s waiting for state %s", timeout, target)
			return false, nil

		case name := <-pushes:
			if strings.EqualFold(name, target) {
				return true, nil
			}

		case <-poll.C:
			// Polls use the caller's context so an expiring wait never
			// interrupts a reply mid-read.
			current, err := c.GetState(ctx)
			if err != nil {
				return false, err
			}
			if strings.EqualFold(current, target) {
				return true, nil
			}
			// Pushes read during the poll predate its reply.
			drain(pushes)
			poll.Reset(c.pollInterval)

		case <-pushCheck.C:
			if err := c.readPushes(); err != nil {
				return false, err
			}
		}
	}
}

func (c *Client) expectLine(ctx context.Context, request, want string) error {
	return c.roundTrip(ctx, request, func(first string, _ lineReader) error {
		if first != want {
			return &ProtocolError{Expected: want, Got: first}
		}
		return nil
	})
}

// roundTrip writes request and hands the first non-push reply line to
// handle. next reads further lines of the same reply without intercepting
// pushes. Network failures close the connection because the stream can no
// longer be trusted to be in sync.
func (c *Client) roundTrip(ctx context.Context, request string, handle func(first string, next lineReader) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, interrupt(c.conn))
	defer stop()

	deadline := c.deadline(ctx)
	if err := c.writeLine(request, deadline); err != nil {
		return c.failLocked(ctx, "write", err)
	}

	var first string
	for {
		line, err := c.readLine(deadline)
		if err != nil {
			return c.failLocked(ctx, "read", err)
		}
		if name, ok := protocol.ParseStateChanged(line); ok {
			c.notify(name)
			continue
		}
		first = line
		break
	}

	var readErr error
	next := func(within time.Duration) (string, error) {
		until := deadline
		if within > 0 {
			if d := time.Now().Add(within); d.Before(until) {
				until = d
			}
		}
		line, err := c.readLine(until)
		if err != nil {
			if within > 0 && isTimeout(err) && ctx.Err() == nil && time.Now().Before(deadline) {
				return "", errNothingPending
			}
			readErr = err
		}
		return line, err
	}

	err := handle(first, next)
	if readErr != nil {
		return c.failLocked(ctx, "read", readErr)
	}
	return err
}

// readPushes drains notifications that are already on the wire, waiting at
// most pushReadWindow. Partial lines are kept for the next read.
func (c *Client) readPushes() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(pushReadWindow)
	for {
		line, err := c.readLine(deadline)
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return c.failLocked(context.Background(), "read", err)
		}
		if name, ok := protocol.ParseStateChanged(line); ok {
			c.notify(name)
			continue
		}
		if line != "" {
			logging.Debug("RelayClient", "Discarding unsolicited line: %q", line)
		}
	}
}

func (c *Client) writeLine(line string, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return protocol.WriteLine(c.conn, line)
}

// readLine returns the next complete line. Bytes read before a deadline
// expires are kept in c.partial so the line can be completed later.
func (c *Client) readLine(deadline time.Time) (string, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	raw, err := c.reader.ReadString('\n')
	if err != nil {
		c.partial += raw
		return "", err
	}
	line := c.partial + raw
	c.partial = ""
	return protocol.TrimLine(line), nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// interrupt returns a function that unblocks any pending read or write on
// conn. Used when a context is cancelled mid-transaction.
func interrupt(conn net.Conn) func() {
	return func() {
		_ = conn.SetDeadline(time.Now())
	}
}

func (c *Client) failLocked(ctx context.Context, op string, err error) error {
	err = contextError(ctx, err)
	logging.Debug("RelayClient", "Connection to %s failed during %s: %v", c.address, op, err)
	c.closeLocked()
	return &ConnectionError{Op: op, Address: c.address, Err: err}
}

func (c *Client) notify(name string) {
	c.handlersMu.RLock()
	handlers := make([]StateChangeHandler, len(c.handlers))
	copy(handlers, c.handlers)
	for _, ch := range c.watchers {
		select {
		case ch <- name:
		default:
		}
	}
	c.handlersMu.RUnlock()

	logging.Debug("RelayClient", "State changed: %s", name)
	for _, h := range handlers {
		h(name)
	}
}

// drain discards whatever is buffered in ch.
func drain(ch <-chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// watch registers a channel that receives every pushed state name until the
// returned function is called.
func (c *Client) watch() (<-chan string, func()) {
	ch := make(chan string, 16)

	c.handlersMu.Lock()
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = ch
	c.handlersMu.Unlock()

	return ch, func() {
		c.handlersMu.Lock()
		delete(c.watchers, id)
		c.handlersMu.Unlock()
	}
}

// readBlock reads a framed block whose header is first. A header whose count
// does not parse is tolerated by reading up to the footer. Inside a counted
// block the count wins: a footer line followed promptly by more data is
// payload, otherwise the block ended early and the lines so far are returned.
func readBlock(first string, kind protocol.BlockKind, next lineReader) ([]string, error) {
	if !protocol.IsHeader(first, kind) {
		return nil, &ProtocolError{Expected: protocol.FormatHeader(kind, 0), Got: first}
	}

	footer := protocol.Footer(kind)
	count, ok := protocol.ParseHeader(first, kind)
	if !ok {
		logging.Debug("RelayClient", "Malformed header %q, reading until %s", first, footer)
		lines := []string{}
		for {
			line, err := next(0)
			if err != nil {
				return nil, err
			}
			if line == footer {
				return lines, nil
			}
			lines = append(lines, line)
		}
	}

	lines := make([]string, 0, count)
	for len(lines) < count {
		line, err := next(0)
		if err != nil {
			return nil, err
		}
		if line != footer {
			lines = append(lines, line)
			continue
		}

		following, err := next(footerSettle)
		if errors.Is(err, errNothingPending) {
			logging.Debug("RelayClient", "%s arrived after %d of %d line(s)", footer, len(lines), count)
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		if len(lines) < count {
			lines = append(lines, following)
			continue
		}
		// The footer text filled the count; following is the real footer.
		if following != footer {
			logging.Debug("RelayClient", "Expected %s, got %q", footer, following)
		}
		return lines, nil
	}

	line, err := next(0)
	if err != nil {
		return nil, err
	}
	if line != footer {
		logging.Debug("RelayClient", "Expected %s, got %q", footer, line)
	}
	return lines, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// contextError prefers the context's error when the failure was caused by
// cancellation.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && (isTimeout(err) || errors.Is(err, io.EOF)) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
