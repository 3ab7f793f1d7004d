package relay

import (
	"io"
	"net"
	"sync"
	"time"

	"valheimcli/internal/protocol"
)

// peer wraps one accepted connection. Writes from the handler goroutine and
// from broadcasts are serialized by writeMu.
type peer struct {
	id   string
	conn net.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newPeer(id string, conn net.Conn) *peer {
	return &peer{id: id, conn: conn}
}

func (p *peer) remoteAddr() string {
	if addr := p.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// writeLine sends one protocol line. A zero timeout means no deadline.
func (p *peer) writeLine(line string, timeout time.Duration) error {
	return p.write(timeout, func(w io.Writer) error {
		return protocol.WriteLine(w, line)
	})
}

// writeBlock sends a framed block in a single write.
func (p *peer) writeBlock(kind protocol.BlockKind, lines []string, timeout time.Duration) error {
	return p.write(timeout, func(w io.Writer) error {
		return protocol.WriteBlock(w, kind, lines)
	})
}

func (p *peer) write(timeout time.Duration, fn func(io.Writer) error) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if timeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	return fn(p.conn)
}

// pushQueueSize bounds the notifications waiting for one subscriber. A
// subscriber that falls this far behind is dropped.
const pushQueueSize = 32

// subscription feeds queued STATE_CHANGED lines to one peer from its own
// goroutine, so broadcasting never waits on a socket.
type subscription struct {
	peer  *peer
	lines chan string
	done  chan struct{}
}

func newSubscription(p *peer) *subscription {
	return &subscription{
		peer:  p,
		lines: make(chan string, pushQueueSize),
		done:  make(chan struct{}),
	}
}

// offer queues line without blocking. It reports false when the queue is full.
func (sub *subscription) offer(line string) bool {
	select {
	case sub.lines <- line:
		return true
	default:
		return false
	}
}

// run writes queued lines until done is closed or a write fails.
func (sub *subscription) run(timeout time.Duration) error {
	for {
		select {
		case <-sub.done:
			return nil
		case line := <-sub.lines:
			if err := sub.peer.writeLine(line, timeout); err != nil {
				return err
			}
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		_ = p.conn.Close()
	})
}
