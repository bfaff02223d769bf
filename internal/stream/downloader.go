package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/fetch"
	"github.com/tardsplaya/tardsplayad/internal/logging"
)

// Downloader pulls DownloadTasks from the scheduler and pushes fetched
// segment bytes to the buffer, preserving strict playlist order even when
// a worker pool completes downloads out of order.
type Downloader struct {
	cfg     config.DownloadConfig
	fetcher *fetch.Fetcher
	buffer  *Buffer
	logger  *slog.Logger
}

// NewDownloader creates a Downloader. cfg.Workers controls the size of the
// errgroup-managed worker pool; the default of 1 makes downloads strictly
// sequential, matching the scheduler's emission order with no resequencing
// needed.
func NewDownloader(cfg config.DownloadConfig, fetcher *fetch.Fetcher, buffer *Buffer, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Downloader{
		cfg:     cfg,
		fetcher: fetcher,
		buffer:  buffer,
		logger:  logging.WithCategory(logger, logging.CategoryDownload),
	}
}

// Run consumes tasks until the channel is closed or ctx is cancelled,
// fetching each segment's bytes and pushing them to the buffer in the
// original playlist order regardless of which worker completes first.
func (d *Downloader) Run(ctx context.Context, tasks <-chan DownloadTask) error {
	g, gctx := errgroup.WithContext(ctx)

	var (
		resequenceMu sync.Mutex
		nextToPush   int64
		pushing      bool
		pending      = map[int64]SegmentPayload{}
	)

	sem := make(chan struct{}, d.cfg.Workers)

consume:
	for {
		var task DownloadTask
		var ok bool
		select {
		case task, ok = <-tasks:
			if !ok {
				break consume
			}
		case <-ctx.Done():
			break consume
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break consume
		}

		t := task
		g.Go(func() error {
			defer func() { <-sem }()

			payload, err := d.fetchWithRetry(gctx, t.URL)
			if err != nil {
				d.logger.Warn("segment download failed, discarding",
					slog.String("url", t.URL),
					slog.Int64("sequence", t.Sequence),
					slog.String("error", err.Error()))
				payload = SegmentPayload{} // still resequenced as a no-op slot
			}

			resequenceMu.Lock()
			pending[t.Sequence] = payload
			if pushing {
				// Another worker is already draining the ready prefix; it
				// will pick this payload up when its sequence comes due.
				// Only one drainer at a time keeps buffer insertion in
				// sequence order.
				resequenceMu.Unlock()
				return nil
			}
			pushing = true
			for {
				next, ready := pending[nextToPush]
				if !ready {
					break
				}
				delete(pending, nextToPush)
				nextToPush++
				if len(next.Bytes) == 0 {
					continue
				}
				resequenceMu.Unlock()
				pushErr := d.buffer.Push(gctx, next)
				resequenceMu.Lock()
				if pushErr != nil {
					pushing = false
					resequenceMu.Unlock()
					return pushErr
				}
			}
			pushing = false
			resequenceMu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// fetchWithRetry fetches url's bytes with up to cfg.RetryAttempts attempts
// and a ~300ms delay between attempts, respecting the buffer's backpressure
// contract (the buffer itself blocks Push at max depth rather than the
// downloader polling depth separately).
func (d *Downloader) fetchWithRetry(ctx context.Context, url string) (SegmentPayload, error) {
	var lastErr error
	attempts := d.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return SegmentPayload{}, ctx.Err()
		}

		body, err := d.fetcher.GetBytes(ctx, url)
		if err != nil {
			lastErr = err
			if !d.sleep(ctx, d.cfg.RetryDelay) {
				return SegmentPayload{}, ctx.Err()
			}
			continue
		}

		data, readErr := io.ReadAll(body)
		body.Close()
		if readErr != nil {
			lastErr = readErr
			if !d.sleep(ctx, d.cfg.RetryDelay) {
				return SegmentPayload{}, ctx.Err()
			}
			continue
		}

		return SegmentPayload{Bytes: data}, nil
	}

	return SegmentPayload{}, lastErr
}

func (d *Downloader) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
