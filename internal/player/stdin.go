// Package player spawns the external media-player process and carries
// segment bytes to it over its standard input pipe.
package player

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/logging"
)

// Command describes the external player to spawn: the executable path and
// its arguments, plus the write/teardown tunables that would otherwise live
// on the call site. The canonical argument shape is "<binary_path> -",
// where "-" selects stdin as the player's input.
type Command struct {
	BinaryPath       string
	Args             []string
	WriteChunkSize   int
	ShutdownGrace    time.Duration
	InterruptGrace   time.Duration
	DiagnosticsOn    bool
	DiagnosticPeriod time.Duration
}

// CommandFromConfig builds a Command from the engine's player configuration.
func CommandFromConfig(cfg config.PlayerConfig) Command {
	return Command{
		BinaryPath:       cfg.BinaryPath,
		Args:             cfg.Args,
		WriteChunkSize:   int(cfg.WriteChunkSize.Bytes()),
		ShutdownGrace:    cfg.ShutdownGrace,
		InterruptGrace:   cfg.InterruptGrace,
		DiagnosticsOn:    cfg.DiagnosticsEnabled,
		DiagnosticPeriod: cfg.DiagnosticPeriod,
	}
}

// DisconnectError means the player's stdin pipe is gone: a closed pipe or
// broken-pipe write, which is a terminal condition for the owning stream.
type DisconnectError struct {
	Err error
}

func (e DisconnectError) Error() string { return "player: disconnected: " + e.Err.Error() }
func (e DisconnectError) Unwrap() error { return e.Err }

// Handle is a launched player process and its stdin pipe.
type Handle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	cfg Command

	closed   atomic.Bool
	closedCh chan struct{}
	wg       sync.WaitGroup

	logger *slog.Logger
}

// Launch spawns the external player with its standard input wired to a pipe
// the engine owns, and its stderr line-scanned for diagnostics.
func Launch(ctx context.Context, cmd Command, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithCategory(logger, logging.CategoryIPC)

	if cmd.BinaryPath == "" {
		return nil, errors.New("player: binary_path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Deliberately exec.Command, not exec.CommandContext(ctx, ...): the
	// Stream's cancellation context is cancelled the instant Cancel() is
	// called, and CommandContext's default Cancel hook SIGKILLs the process
	// the moment ctx.Done() fires — racing ahead of and defeating the
	// graceful close→wait→interrupt→kill sequence Close() below implements.
	// Process lifetime is governed solely by Close(), never by ctx.
	execCmd := exec.Command(cmd.BinaryPath, cmd.Args...)

	stdin, err := execCmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := execCmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		cmd:      execCmd,
		stdin:    stdin,
		cfg:      cmd,
		closedCh: make(chan struct{}),
		logger:   logger,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.readStderr(stderr)
	}()

	if cmd.DiagnosticsOn {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.reportDiagnostics()
		}()
	}

	logger.Info("player launched", slog.String("binary_path", cmd.BinaryPath), slog.Int("pid", execCmd.Process.Pid))
	return h, nil
}

// reportDiagnostics periodically logs the player process's RSS and CPU
// usage at IPC category, until the handle is closed. Opt-in via
// cfg.DiagnosticsOn since gopsutil's CPUPercent sampling has a cost and most
// deployments don't need per-player resource telemetry.
func (h *Handle) reportDiagnostics() {
	period := h.cfg.DiagnosticPeriod
	if period <= 0 {
		period = 10 * time.Second
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.logDiagnostics()
		case <-h.closedCh:
			return
		}
	}
}

func (h *Handle) logDiagnostics() {
	if h.cmd.Process == nil {
		return
	}
	proc, err := process.NewProcess(int32(h.cmd.Process.Pid))
	if err != nil {
		return
	}
	cpuPercent, cpuErr := proc.CPUPercent()
	memInfo, memErr := proc.MemoryInfo()

	attrs := []any{slog.Int("pid", h.cmd.Process.Pid)}
	if cpuErr == nil {
		attrs = append(attrs, slog.Float64("cpu_percent", cpuPercent))
	}
	if memErr == nil && memInfo != nil {
		attrs = append(attrs, slog.Float64("rss_mb", float64(memInfo.RSS)/(1024*1024)))
	}
	h.logger.Debug("player process diagnostics", attrs...)
}

// Write sends payload to the player's stdin in chunks of at most
// cfg.WriteChunkSize, polling ctx between chunks. A closed-pipe or
// broken-pipe write returns a DisconnectError.
func (h *Handle) Write(ctx context.Context, payload []byte) error {
	chunkSize := h.cfg.WriteChunkSize
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}

	for len(payload) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := chunkSize
		if n > len(payload) {
			n = len(payload)
		}

		written, err := h.stdin.Write(payload[:n])
		if err != nil {
			if isDisconnect(err) {
				return DisconnectError{Err: err}
			}
			return err
		}
		payload = payload[written:]
	}
	return nil
}

func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return strings.Contains(err.Error(), "closed pipe")
}

// IsAlive reports whether the player process is still running, probed with
// a non-blocking signal-0 check.
func (h *Handle) IsAlive() bool {
	if h.closed.Load() {
		return false
	}
	if h.cmd.Process == nil {
		return false
	}
	return h.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Close tears the player down: closes stdin, waits up to ShutdownGrace for
// a clean exit, then os.Interrupt, a short grace window, then Kill.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	if h.stdin != nil {
		h.stdin.Close()
	}

	if h.cmd.Process != nil {
		h.waitWithTimeout(h.shutdownGrace())
	}

	close(h.closedCh)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.logger.Warn("player stderr reader did not finish in time")
	}

	return nil
}

func (h *Handle) shutdownGrace() time.Duration {
	if h.cfg.ShutdownGrace > 0 {
		return h.cfg.ShutdownGrace
	}
	return 5 * time.Second
}

func (h *Handle) interruptGrace() time.Duration {
	if h.cfg.InterruptGrace > 0 {
		return h.cfg.InterruptGrace
	}
	return 500 * time.Millisecond
}

func (h *Handle) waitWithTimeout(timeout time.Duration) {
	done := make(chan error, 1)
	go func() {
		done <- h.cmd.Wait()
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		h.logger.Warn("player did not exit in time, sending interrupt",
			slog.Int("pid", h.cmd.Process.Pid))
		_ = h.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-done:
		return
	case <-time.After(h.interruptGrace()):
		h.logger.Warn("player did not respond to interrupt, killing",
			slog.Int("pid", h.cmd.Process.Pid))
		_ = h.cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		h.logger.Error("player could not be killed, draining in background",
			slog.Int("pid", h.cmd.Process.Pid))
		go func() { <-done }()
	}
}

// readStderr scans the player's stderr, treating both \r and \n as line
// delimiters since some players emit carriage-return progress updates, and
// surfaces each line at IPC category for diagnostics.
func (h *Handle) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLinesWithCR)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.logger.Debug("player stderr", slog.String("line", line))
	}
}

// scanLinesWithCR is a bufio.SplitFunc that treats both '\r' and '\n' as
// line delimiters.
func scanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}
