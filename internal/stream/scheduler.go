package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/fetch"
	"github.com/tardsplaya/tardsplayad/internal/logging"
	"github.com/tardsplaya/tardsplayad/internal/playlist"
)

// DownloadTask is one segment handed from the scheduler to the downloader,
// tagged with its playlist-order sequence so the downloader can re-sequence
// out-of-order completions before pushing to the buffer.
type DownloadTask struct {
	URL      string
	Sequence int64
}

// ExitReason explains why the scheduler loop stopped.
type ExitReason int

const (
	ExitCancelled ExitReason = iota
	ExitErrorCap
	ExitEndList
)

func (r ExitReason) String() string {
	switch r {
	case ExitCancelled:
		return "cancelled"
	case ExitErrorCap:
		return "error_cap"
	case ExitEndList:
		return "end_list"
	default:
		return "unknown"
	}
}

// DepthChecker reports the current occupancy of the buffer a scheduler
// schedules into, so it can apply backpressure before committing a URL to
// the seen set.
type DepthChecker interface {
	Depth() int
}

// Scheduler polls a channel's live media playlist, filters out ads, and
// emits new segment download tasks in playlist order.
type Scheduler struct {
	cfg      config.SchedulerConfig
	fetcher  *fetch.Fetcher
	filter   *playlist.Filter
	seen     *seenSet
	buffer   DepthChecker
	maxDepth int
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler for one stream's media playlist loop.
func NewScheduler(cfg config.SchedulerConfig, fetcher *fetch.Fetcher, buffer DepthChecker, maxDepth int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		filter:   playlist.NewFilter(),
		seen:     newSeenSet(max(cfg.SeenURLCap, 10)),
		buffer:   buffer,
		maxDepth: maxDepth,
		logger:   logging.WithCategory(logger, logging.CategorySched),
	}
}

// Run polls mediaURL until ctx is cancelled, the consecutive-error cap is
// reached, or the playlist reports end_list, emitting keep-list segment
// URLs as DownloadTasks on tasks in strict playlist order.
func (s *Scheduler) Run(ctx context.Context, mediaURL string, tasks chan<- DownloadTask) ExitReason {
	consecutiveErrors := 0
	var nextSequence int64

	for {
		if ctx.Err() != nil {
			return ExitCancelled
		}

		body, err := s.fetcher.GetText(ctx, mediaURL)
		if err != nil {
			if ctx.Err() != nil {
				return ExitCancelled
			}
			consecutiveErrors++
			s.logger.Warn("media playlist fetch failed",
				slog.String("url", mediaURL),
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.String("error", err.Error()))
			if consecutiveErrors >= s.cfg.ErrorThreshold {
				return ExitErrorCap
			}
			if !s.sleep(ctx, s.cfg.ErrorSleep) {
				return ExitCancelled
			}
			continue
		}
		consecutiveErrors = 0

		media, err := playlist.ParseMedia([]byte(body), mediaURL)
		if err != nil {
			consecutiveErrors++
			s.logger.Warn("media playlist parse rejected",
				slog.String("url", mediaURL),
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.String("error", err.Error()))
			if consecutiveErrors >= s.cfg.ErrorThreshold {
				return ExitErrorCap
			}
			if !s.sleep(ctx, s.cfg.ErrorSleep) {
				return ExitCancelled
			}
			continue
		}

		kept := s.filter.Filter(media.Segments)
		for _, entry := range kept {
			if s.seen.Contains(entry.URL) {
				continue
			}
			if !s.waitForRoom(ctx) {
				return ExitCancelled
			}
			s.seen.Add(entry.URL)
			task := DownloadTask{URL: entry.URL, Sequence: nextSequence}
			nextSequence++
			select {
			case tasks <- task:
			case <-ctx.Done():
				return ExitCancelled
			}
		}

		if media.EndList {
			return ExitEndList
		}

		if !s.sleep(ctx, s.cfg.PollInterval) {
			return ExitCancelled
		}
	}
}

// waitForRoom blocks in ~500ms increments while the buffer is at max depth,
// without committing the URL to the seen set until room is confirmed.
func (s *Scheduler) waitForRoom(ctx context.Context) bool {
	for s.buffer.Depth() >= s.maxDepth {
		if !s.sleep(ctx, 500*time.Millisecond) {
			return false
		}
	}
	return ctx.Err() == nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
