// Package coordinator implements the multi-stream coordinator: the
// process-wide registry of Stream tasks, keyed by channel name, enforcing
// single-instance-per-channel and tracking the active-stream count.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/fetch"
	"github.com/tardsplaya/tardsplayad/internal/logging"
	"github.com/tardsplaya/tardsplayad/internal/player"
	"github.com/tardsplaya/tardsplayad/internal/playlist"
	"github.com/tardsplaya/tardsplayad/internal/resolve"
	"github.com/tardsplaya/tardsplayad/internal/stream"
)

// ErrAlreadyRunning is returned by Start when channel already has a Stream
// registered.
var ErrAlreadyRunning = errors.New("coordinator: channel already running")

// ErrUnknownQuality is returned by Start when qualityLabel does not match
// any variant in the resolved master playlist.
var ErrUnknownQuality = errors.New("coordinator: unknown quality label")

// ErrResolve wraps a failure from the ResolvePlaylist collaborator.
var ErrResolve = errors.New("coordinator: resolve failed")

// ErrNotRunning is returned by Stop when channel has no registered Stream.
var ErrNotRunning = errors.New("coordinator: channel not running")

// StreamHandle is the coordinator's view of one running Stream: cancel,
// chunk-count, lifecycle phase, and the completion signal. It is owned
// exclusively by the Coordinator while registered.
type StreamHandle = stream.Stream

// StartRequest configures one Stream start.
type StartRequest struct {
	Channel   string
	Quality   string
	PlayerCmd player.Command
}

// Coordinator is the process-wide singleton mapping channel name to Stream.
// Admission is not rate-limited here; Config.MaxConcurrentStreams is an
// advisory the internal/api boundary may enforce.
type Coordinator struct {
	mu      sync.RWMutex
	streams map[string]*stream.Stream

	active atomic.Int64

	resolver resolve.Resolver
	fetcher  *fetch.Fetcher

	fetchCfg     config.FetchConfig
	schedulerCfg config.SchedulerConfig
	downloadCfg  config.DownloadConfig
	bufferCfg    config.BufferConfig

	cron      *cron.Cron
	logger    *slog.Logger
	closeOnce sync.Once
}

// New creates a Coordinator. cfg supplies the per-stream pipeline tunables
// (fetch/scheduler/download/buffer) applied to every Stream it starts;
// resolver turns channel names into master playlist URLs.
func New(cfg *config.Config, resolver resolve.Resolver, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithCategory(logger, logging.CategoryLifecycle)

	c := &Coordinator{
		streams:      make(map[string]*stream.Stream),
		resolver:     resolver,
		fetcher:      fetch.New(cfg.Fetch, logger),
		fetchCfg:     cfg.Fetch,
		schedulerCfg: cfg.Scheduler,
		downloadCfg:  cfg.Download,
		bufferCfg:    cfg.Buffer,
		logger:       logger,
	}

	if cfg.Coordinator.HousekeepingCron != "" {
		c.cron = cron.New()
		_, err := c.cron.AddFunc(cfg.Coordinator.HousekeepingCron, c.housekeep)
		if err != nil {
			logger.Warn("invalid housekeeping cron expression, housekeeping disabled",
				slog.String("expr", cfg.Coordinator.HousekeepingCron), slog.String("error", err.Error()))
			c.cron = nil
		} else {
			c.cron.Start()
		}
	}

	return c
}

// housekeep is the periodic cron tick: it logs the current active-stream
// count, a cheap observational signal for operators watching a long-running
// engine process.
func (c *Coordinator) housekeep() {
	c.logger.Info("coordinator housekeeping tick",
		slog.Int64("active_streams", c.active.Load()))
}

// Start resolves channel's master playlist, selects the variant matching
// quality, and launches a new Stream for it. Returns ErrAlreadyRunning if
// channel already has a registered Stream, ErrResolve if the resolver
// fails, or ErrUnknownQuality if quality does not match any master-playlist
// variant — all three surfaced synchronously to the caller, before any
// Stream object is created.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (*StreamHandle, error) {
	if req.Channel == "" {
		return nil, fmt.Errorf("coordinator: channel must not be empty")
	}

	c.mu.Lock()
	if _, exists := c.streams[req.Channel]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, req.Channel)
	}
	// Reserve the slot under lock so two concurrent Start calls for the
	// same channel can't both pass the existence check before either
	// inserts; released on any early return via removeReservation.
	c.streams[req.Channel] = nil
	c.mu.Unlock()

	mediaURL, err := c.selectVariant(ctx, req.Channel, req.Quality)
	if err != nil {
		c.removeReservation(req.Channel)
		return nil, err
	}

	// ctx is the caller's (often a single HTTP request's) context: it scopes
	// the synchronous resolve and master-playlist fetch above, but must not
	// govern the Stream's lifetime — only Stop/StopAll and the Stream's own
	// terminal conditions end it.
	s := stream.Start(context.WithoutCancel(ctx), stream.Params{
		Channel:   req.Channel,
		MediaURL:  mediaURL,
		PlayerCmd: req.PlayerCmd,
		Fetch:     c.fetchCfg,
		Scheduler: c.schedulerCfg,
		Download:  c.downloadCfg,
		Buffer:    c.bufferCfg,
		Logger:    c.logger,
	})

	c.mu.Lock()
	c.streams[req.Channel] = s
	c.mu.Unlock()

	count := c.active.Add(1)
	c.logger.Info("stream started",
		slog.String("channel", req.Channel),
		slog.String("correlation_id", s.CorrelationID()),
		slog.Int64("active_count", count))

	go c.awaitCompletion(req.Channel, s)

	return s, nil
}

// selectVariant resolves channel's master URL, fetches and parses the
// master playlist, and returns the media URL of the variant keyed by
// quality.
func (c *Coordinator) selectVariant(ctx context.Context, channel, quality string) (string, error) {
	masterURL, err := c.resolver.Resolve(ctx, channel)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolve, err)
	}

	body, err := c.fetcher.GetText(ctx, masterURL)
	if err != nil {
		return "", fmt.Errorf("%w: fetching master playlist: %w", ErrResolve, err)
	}

	variants, err := playlist.ParseMaster([]byte(body), masterURL)
	if err != nil {
		return "", fmt.Errorf("%w: parsing master playlist: %w", ErrResolve, err)
	}

	for _, v := range variants {
		if v.Quality == quality {
			return v.MediaURL, nil
		}
	}

	return "", fmt.Errorf("%w: %q (available: %s)", ErrUnknownQuality, quality, variantQualities(variants))
}

func variantQualities(variants []playlist.Variant) string {
	qualities := make([]string, 0, len(variants))
	for _, v := range variants {
		qualities = append(qualities, v.Quality)
	}
	return fmt.Sprintf("%v", qualities)
}

// removeReservation deletes channel's map entry, undoing the placeholder
// Start inserted before a resolve/quality failure.
func (c *Coordinator) removeReservation(channel string) {
	c.mu.Lock()
	delete(c.streams, channel)
	c.mu.Unlock()
}

// awaitCompletion waits for s to terminate, then removes it from the
// registry and decrements the active count. This is the only path that
// removes a completed Stream; Stop only cancels it.
func (c *Coordinator) awaitCompletion(channel string, s *stream.Stream) {
	<-s.Done()

	c.mu.Lock()
	delete(c.streams, channel)
	c.mu.Unlock()

	count := c.active.Add(-1)
	c.logger.Info("stream terminated",
		slog.String("channel", channel),
		slog.Int64("active_count", count),
		slog.Int64("chunk_count", s.ChunkCount()),
		slog.String("correlation_id", s.CorrelationID()))
}

// Stop requests cooperative cancellation of channel's Stream. It returns
// immediately; the Stream's own teardown sequence removes it from the
// registry once done. Idempotent: cancelling an already-cancelled Stream is
// a no-op.
func (c *Coordinator) Stop(channel string) error {
	c.mu.RLock()
	s, ok := c.streams[channel]
	c.mu.RUnlock()
	if !ok || s == nil {
		return fmt.Errorf("%w: %s", ErrNotRunning, channel)
	}
	s.Cancel()
	return nil
}

// StopAll requests cooperative cancellation of every registered Stream.
// Idempotent.
func (c *Coordinator) StopAll() {
	c.mu.RLock()
	streams := make([]*stream.Stream, 0, len(c.streams))
	for _, s := range c.streams {
		if s != nil {
			streams = append(streams, s)
		}
	}
	c.mu.RUnlock()

	for _, s := range streams {
		s.Cancel()
	}
}

// ActiveCount returns the number of currently registered, non-terminated
// Streams.
func (c *Coordinator) ActiveCount() int {
	return int(c.active.Load())
}

// Get returns the registered StreamHandle for channel, if any.
func (c *Coordinator) Get(channel string) (*StreamHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.streams[channel]
	return s, ok && s != nil
}

// List returns a snapshot of all currently registered channel names.
func (c *Coordinator) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	channels := make([]string, 0, len(c.streams))
	for ch, s := range c.streams {
		if s != nil {
			channels = append(channels, ch)
		}
	}
	return channels
}

// Close stops the housekeeping cron. It does not stop running Streams; call
// StopAll first and wait for them to drain if a full shutdown is wanted.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		if c.cron != nil {
			ctx := c.cron.Stop()
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
	})
}
