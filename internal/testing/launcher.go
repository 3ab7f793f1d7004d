package testing

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"valheimcli/internal/protocol"
	"valheimcli/pkg/logging"
)

const (
	DefaultShutdownTimeout = 10 * time.Second
	readyPollInterval      = 500 * time.Millisecond
	probeTimeout           = time.Second
)

// HostLogs holds the captured output of the host process.
type HostLogs struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Combined string `json:"combined,omitempty"`
}

// logCapture captures stdout and stderr from a process
type logCapture struct {
	stdoutBuf    *bytes.Buffer
	stderrBuf    *bytes.Buffer
	stdoutWriter *io.PipeWriter
	stderrWriter *io.PipeWriter
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closeOnce    sync.Once
}

func newLogCapture() *logCapture {
	lc := &logCapture{
		stdoutBuf: &bytes.Buffer{},
		stderrBuf: &bytes.Buffer{},
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	lc.stdoutWriter, lc.stderrWriter = stdoutWriter, stderrWriter

	lc.wg.Add(2)
	go lc.captureOutput(stdoutReader, lc.stdoutBuf)
	go lc.captureOutput(stderrReader, lc.stderrBuf)

	return lc
}

func (lc *logCapture) captureOutput(reader io.Reader, buffer *bytes.Buffer) {
	defer lc.wg.Done()

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		logging.Debug("Launcher", "host: %s", line)
		lc.mu.Lock()
		buffer.WriteString(line + "\n")
		lc.mu.Unlock()
	}
	// keep draining so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, reader)
}

func (lc *logCapture) close() {
	lc.closeOnce.Do(func() {
		lc.stdoutWriter.Close()
		lc.stderrWriter.Close()
	})
	lc.wg.Wait()
}

func (lc *logCapture) logs() HostLogs {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	stdout := lc.stdoutBuf.String()
	stderr := lc.stderrBuf.String()

	combined := ""
	if stdout != "" {
		combined += "=== STDOUT ===\n" + stdout
	}
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += "=== STDERR ===\n" + stderr
	}
	return HostLogs{Stdout: stdout, Stderr: stderr, Combined: combined}
}

// LauncherConfig describes how to start the host application.
type LauncherConfig struct {
	Executable string
	Args       []string
	WorkDir    string
	// Env is appended to the current environment
	Env []string
	// Address is the relay address probed for readiness
	Address         string
	ShutdownTimeout time.Duration
}

// managedProcess is a started host with its log capture
type managedProcess struct {
	cmd        *exec.Cmd
	logCapture *logCapture
	exited     chan struct{}
	exitErr    error
}

// ProcessLauncher implements HostLauncher for a local executable.
type ProcessLauncher struct {
	cfg LauncherConfig

	mu   sync.Mutex
	proc *managedProcess
	last HostLogs
}

// NewProcessLauncher creates a launcher for cfg.
func NewProcessLauncher(cfg LauncherConfig) *ProcessLauncher {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &ProcessLauncher{cfg: cfg}
}

// IsHostRunning reports whether a process started by this launcher is alive.
func (l *ProcessLauncher) IsHostRunning() bool {
	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()
	if proc == nil {
		return false
	}
	select {
	case <-proc.exited:
		return false
	default:
		return true
	}
}

// TryConnect dials the relay and checks for the ready sentinel.
func (l *ProcessLauncher) TryConnect(ctx context.Context) bool {
	return probeRelay(ctx, l.cfg.Address)
}

// Launch starts the host process. It is a no-op when the host is running.
func (l *ProcessLauncher) Launch(ctx context.Context) error {
	if l.IsHostRunning() {
		return nil
	}
	if l.cfg.Executable == "" {
		return errors.New("no host executable configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := exec.LookPath(l.cfg.Executable)
	if err != nil {
		return fmt.Errorf("failed to find host executable: %w", err)
	}

	// The host outlives the launching context; Stop ends it.
	cmd := exec.Command(path, l.cfg.Args...)
	cmd.Dir = l.cfg.WorkDir
	cmd.Env = append(os.Environ(), l.cfg.Env...)
	cmd.WaitDelay = time.Second

	capture := newLogCapture()
	cmd.Stdout = capture.stdoutWriter
	cmd.Stderr = capture.stderrWriter

	logging.Info("Launcher", "Starting host: %s %v", path, l.cfg.Args)
	if err := cmd.Start(); err != nil {
		capture.close()
		return fmt.Errorf("failed to start host process: %w", err)
	}

	proc := &managedProcess{cmd: cmd, logCapture: capture, exited: make(chan struct{})}
	go func() {
		proc.exitErr = cmd.Wait()
		capture.close()
		close(proc.exited)
	}()

	l.mu.Lock()
	l.proc = proc
	l.mu.Unlock()

	logging.Debug("Launcher", "Host started (PID: %d)", cmd.Process.Pid)
	return nil
}

// WaitUntilReady polls the relay until it answers with the ready sentinel.
func (l *ProcessLauncher) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()
	var exited <-chan struct{}
	if proc != nil {
		exited = proc.exited
	}

	for {
		if probeRelay(readyCtx, l.cfg.Address) {
			logging.Info("Launcher", "Host relay ready at %s", l.cfg.Address)
			return nil
		}

		select {
		case <-readyCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("host did not become ready within %v", timeout)
		case <-exited:
			logs := proc.logCapture.logs()
			return fmt.Errorf("host exited before becoming ready (%v): %s", proc.exitErr, logs.Stderr)
		case <-ticker.C:
		}
	}
}

// Stop sends SIGTERM and kills the host if it has not exited after the
// shutdown timeout.
func (l *ProcessLauncher) Stop(ctx context.Context) error {
	l.mu.Lock()
	proc := l.proc
	l.proc = nil
	l.mu.Unlock()

	if proc == nil {
		return nil
	}
	err := gracefulShutdown(ctx, proc, l.cfg.ShutdownTimeout)
	if err == nil {
		<-proc.exited
	}
	l.mu.Lock()
	l.last = proc.logCapture.logs()
	l.mu.Unlock()
	return err
}

// Logs returns the output of the current or most recently stopped host.
func (l *ProcessLauncher) Logs() HostLogs {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc != nil {
		return l.proc.logCapture.logs()
	}
	return l.last
}

func gracefulShutdown(ctx context.Context, proc *managedProcess, timeout time.Duration) error {
	process := proc.cmd.Process

	select {
	case <-proc.exited:
		return nil
	default:
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		logging.Debug("Launcher", "SIGTERM failed, killing host: %v", err)
		return killProcess(process)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-proc.exited:
		logging.Info("Launcher", "Host exited")
		return nil
	case <-timer.C:
		logging.Warn("Launcher", "Host did not exit within %v, killing it", timeout)
		return killProcess(process)
	case <-ctx.Done():
		_ = killProcess(process)
		return ctx.Err()
	}
}

func killProcess(process *os.Process) error {
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill host: %w", err)
	}
	return nil
}

// probeRelay reports whether address accepts a connection and greets with
// the ready sentinel.
func probeRelay(ctx context.Context, address string) bool {
	if address == "" {
		return false
	}
	dialer := net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(probeTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return protocol.TrimLine(line) == protocol.ReadySentinel
}
