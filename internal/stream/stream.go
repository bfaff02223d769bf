// Package stream implements the per-channel fetch, filter, buffer, and
// dispatch pipeline: the segment scheduler, downloader, bounded buffer, and
// the Stream task that owns their lifecycle.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tardsplaya/tardsplayad/internal/cancel"
	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/fetch"
	"github.com/tardsplaya/tardsplayad/internal/ipcname"
	"github.com/tardsplaya/tardsplayad/internal/logging"
	"github.com/tardsplaya/tardsplayad/internal/player"
)

// Phase is one of the Stream's four lifecycle states.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies why a Stream ended.
type OutcomeKind int

const (
	OutcomeNormalEnd OutcomeKind = iota
	OutcomeUserCancel
	OutcomeError
)

// ErrorKind further classifies an OutcomeError.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorRepeatedFetch
	ErrorDisconnect
	ErrorPlayerLaunch
	ErrorInternal
)

// Outcome is the Stream's terminal completion signal.
type Outcome struct {
	Kind      OutcomeKind
	ErrorKind ErrorKind
	Err       error
}

// Params configures one Stream's pipeline.
type Params struct {
	Channel   string
	MediaURL  string
	PlayerCmd player.Command
	Fetch     config.FetchConfig
	Scheduler config.SchedulerConfig
	Download  config.DownloadConfig
	Buffer    config.BufferConfig
	Logger    *slog.Logger
}

// Stream owns the scheduler, downloader, buffer, and player transport for
// one channel. It is created by the coordinator and is never shared across
// channels.
type Stream struct {
	channel       string
	correlationID string

	mu    sync.Mutex
	phase Phase

	cancelToken cancel.Token
	chunkCount  atomic.Int64

	group *errgroup.Group

	done    chan struct{}
	outcome Outcome

	logger *slog.Logger
}

// Start launches a Stream's pipeline in the background and returns
// immediately with a handle; the pipeline itself runs on goroutines owned
// by the returned Stream.
func Start(parent context.Context, p Params) *Stream {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithChannel(logger, p.Channel)

	token := cancel.New(parent)
	group, gctx := errgroup.WithContext(token.Context())
	correlationID := uuid.NewString()

	s := &Stream{
		channel:       p.Channel,
		correlationID: correlationID,
		phase:         PhaseStarting,
		cancelToken:   token,
		group:         group,
		done:          make(chan struct{}),
		logger:        logging.WithCorrelationID(logger, correlationID),
	}

	go s.run(gctx, p)
	return s
}

func (s *Stream) run(ctx context.Context, p Params) {
	defer close(s.done)

	lifecycleLog := logging.WithCategory(s.logger, logging.CategoryLifecycle)
	lifecycleLog.Info("stream starting",
		slog.String("media_url", p.MediaURL),
		slog.String("transport", ipcname.Name(p.Channel, "stdin")))

	maxDepth := p.Buffer.MaxDepth()
	buf := NewBuffer(p.Buffer.TargetDepth, maxDepth, &s.chunkCount, s.logger)

	fetcher := fetch.New(p.Fetch, s.logger)
	scheduler := NewScheduler(p.Scheduler, fetcher, buf, maxDepth, s.logger)
	downloader := NewDownloader(p.Download, fetcher, buf, s.logger)

	handle, err := player.Launch(ctx, p.PlayerCmd, s.logger)
	if err != nil {
		lifecycleLog.Error("player launch failed", slog.String("error", err.Error()))
		s.setPhase(PhaseTerminated)
		s.finish(Outcome{Kind: OutcomeError, ErrorKind: ErrorPlayerLaunch, Err: err})
		return
	}

	tasks := make(chan DownloadTask, maxDepth)

	var schedulerExit ExitReason
	var downloadErr error
	var writerErr error

	// A panicking worker must not take the whole process down; its panic is
	// recorded once, the stream cancelled, and the outcome folded into
	// Error(Internal).
	var (
		panicMu  sync.Mutex
		panicErr error
	)
	guard := func(worker string) {
		if r := recover(); r != nil {
			panicMu.Lock()
			if panicErr == nil {
				panicErr = fmt.Errorf("%s worker panicked: %v", worker, r)
			}
			panicMu.Unlock()
			lifecycleLog.Error("worker panicked",
				slog.String("worker", worker),
				slog.String("panic", fmt.Sprint(r)))
			s.cancelToken.Cancel()
		}
	}

	s.group.Go(func() error {
		defer close(tasks)
		defer guard("scheduler")
		schedulerExit = scheduler.Run(ctx, p.MediaURL, tasks)
		return nil
	})

	s.group.Go(func() error {
		defer buf.Close()
		defer guard("downloader")
		downloadErr = downloader.Run(ctx, tasks)
		return nil
	})

	s.group.Go(func() error {
		defer guard("writer")
		writerErr = s.runWriter(ctx, buf, handle)
		if writerErr != nil {
			s.transition(PhaseRunning, PhaseDraining)
			s.cancelToken.Cancel()
		}
		return nil
	})

	s.group.Wait()
	s.setPhase(PhaseDraining)

	_ = handle.Close()

	outcome := classifyOutcome(schedulerExit, downloadErr, writerErr)
	if panicErr != nil {
		outcome = Outcome{Kind: OutcomeError, ErrorKind: ErrorInternal, Err: panicErr}
	}
	s.setPhase(PhaseTerminated)
	lifecycleLog.Info("stream terminated",
		slog.String("outcome_kind", outcomeKindString(outcome.Kind)),
		slog.Int("chunk_count", int(s.ChunkCount())))
	s.finish(outcome)
}

func classifyOutcome(schedulerExit ExitReason, downloadErr, writerErr error) Outcome {
	// Cancellation surfacing through a worker is not that worker's failure;
	// the scheduler's exit reason decides between UserCancel and the rest.
	if errors.Is(writerErr, context.Canceled) || errors.Is(writerErr, ErrBufferClosed) {
		writerErr = nil
	}
	if errors.Is(downloadErr, context.Canceled) || errors.Is(downloadErr, ErrBufferClosed) {
		downloadErr = nil
	}

	if writerErr != nil {
		var disconnect player.DisconnectError
		if errors.As(writerErr, &disconnect) {
			return Outcome{Kind: OutcomeError, ErrorKind: ErrorDisconnect, Err: writerErr}
		}
		return Outcome{Kind: OutcomeError, ErrorKind: ErrorInternal, Err: writerErr}
	}
	if downloadErr != nil {
		return Outcome{Kind: OutcomeError, ErrorKind: ErrorInternal, Err: downloadErr}
	}
	switch schedulerExit {
	case ExitEndList:
		return Outcome{Kind: OutcomeNormalEnd}
	case ExitErrorCap:
		return Outcome{Kind: OutcomeError, ErrorKind: ErrorRepeatedFetch}
	case ExitCancelled:
		return Outcome{Kind: OutcomeUserCancel}
	default:
		return Outcome{Kind: OutcomeError, ErrorKind: ErrorInternal}
	}
}

func outcomeKindString(k OutcomeKind) string {
	switch k {
	case OutcomeNormalEnd:
		return "normal_end"
	case OutcomeUserCancel:
		return "user_cancel"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// playerLivenessInterval is how often the writer probes the player process
// while it is otherwise idle.
const playerLivenessInterval = time.Second

// runWriter pumps payloads from buf to the player handle until the buffer
// is closed and drained, the player disconnects, or the player process
// exits while the writer is idle.
func (s *Stream) runWriter(ctx context.Context, buf *Buffer, handle *player.Handle) error {
	// Liveness watchdog. The writer spends most of its life blocked on the
	// initial-fill gate or an empty buffer; a player that exits during such
	// a wait must still end the stream, not linger until the next write
	// fails with a broken pipe.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	playerDead := make(chan struct{})
	go func() {
		ticker := time.NewTicker(playerLivenessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if !handle.IsAlive() {
					close(playerDead)
					stopWatch()
					return
				}
			}
		}
	}()

	// dead promotes err to a DisconnectError once the watchdog has seen the
	// player exit, and reports nil otherwise.
	dead := func(err error) error {
		select {
		case <-playerDead:
			if err == nil {
				err = errors.New("player process exited")
			}
			return player.DisconnectError{Err: err}
		default:
			return nil
		}
	}

	// The initial-fill gate: no bytes reach the player until the buffer has
	// absorbed target_depth segments once (or the producer side has already
	// finished, for playlists shorter than the target).
	if buf.AwaitInitialFill(watchCtx) {
		s.transition(PhaseStarting, PhaseRunning)
	} else if err := dead(nil); err != nil {
		return err
	}

	for {
		payload, ok := buf.Pop(watchCtx)
		if !ok {
			return dead(nil)
		}
		if err := handle.Write(watchCtx, payload.Bytes); err != nil {
			if derr := dead(err); derr != nil {
				return derr
			}
			return err
		}
	}
}

func (s *Stream) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// transition moves the phase from from to to, and is a no-op when the
// current phase is anything else, so racing callers cannot move the
// lifecycle backwards.
func (s *Stream) transition(from, to Phase) {
	s.mu.Lock()
	if s.phase == from {
		s.phase = to
	}
	s.mu.Unlock()
}

func (s *Stream) finish(o Outcome) {
	s.mu.Lock()
	s.outcome = o
	s.mu.Unlock()
}

// Phase returns the Stream's current lifecycle state.
func (s *Stream) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Channel returns the owning channel name.
func (s *Stream) Channel() string {
	return s.channel
}

// CorrelationID returns the Stream's log/IPC correlation identifier.
func (s *Stream) CorrelationID() string {
	return s.correlationID
}

// Cancel requests cooperative teardown of the Stream. Idempotent.
func (s *Stream) Cancel() {
	s.transition(PhaseRunning, PhaseDraining)
	s.cancelToken.Cancel()
}

// ChunkCount returns the buffer's most recently published depth.
func (s *Stream) ChunkCount() int64 {
	return s.chunkCount.Load()
}

// Done returns a channel closed once the Stream has fully terminated.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the Stream's terminal completion signal. Only meaningful
// after Done() has been closed.
func (s *Stream) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}
