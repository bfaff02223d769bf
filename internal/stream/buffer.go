package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tardsplaya/tardsplayad/internal/logging"
)

// SegmentPayload is one downloaded segment's transport-stream bytes,
// carried between the downloader and the player writer.
type SegmentPayload struct {
	Bytes []byte
}

// Buffer is the bounded single-producer/single-consumer FIFO between the
// downloader and the player writer. It blocks Push while full and Pop while
// empty, and publishes its depth to an external chunk-count observable on
// every transition. Backpressure is strict: Push blocks at max depth rather
// than evicting the oldest payload.
type Buffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	queue       []SegmentPayload
	targetDepth int
	maxDepth    int
	closed      bool

	filledOnce bool
	chunkCount *atomic.Int64

	logger *slog.Logger
}

// NewBuffer creates a Buffer with the given target and max depth. chunkCount,
// if non-nil, receives the current depth on every push and pop so the
// owning Stream can expose it as a status observable.
func NewBuffer(targetDepth, maxDepth int, chunkCount *atomic.Int64, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	if chunkCount == nil {
		chunkCount = &atomic.Int64{}
	}
	b := &Buffer{
		targetDepth: targetDepth,
		maxDepth:   maxDepth,
		chunkCount: chunkCount,
		logger:     logging.WithCategory(logger, logging.CategoryBuffer),
	}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	return b
}

// Push appends payload to the queue, blocking while the queue is at
// max_depth. It returns ctx.Err() if ctx is done before room is available or
// the buffer is closed for producers.
func (b *Buffer) Push(ctx context.Context, payload SegmentPayload) error {
	done := b.watchContext(ctx, b.notFull)
	defer done()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) >= b.maxDepth && !b.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.notFull.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed {
		return ErrBufferClosed
	}

	b.queue = append(b.queue, payload)
	depth := int64(len(b.queue))
	b.chunkCount.Store(depth)

	if !b.filledOnce && int(depth) >= b.targetDepth {
		b.filledOnce = true
		b.logger.Info("initial fill reached", slog.Int("target_depth", b.targetDepth))
	}

	b.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest payload, blocking while the queue is
// empty and the producer has not closed the buffer. ok is false once the
// buffer is closed and drained.
func (b *Buffer) Pop(ctx context.Context) (SegmentPayload, bool) {
	done := b.watchContext(ctx, b.notEmpty)
	defer done()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) == 0 && !b.closed {
		if ctx.Err() != nil {
			return SegmentPayload{}, false
		}
		b.notEmpty.Wait()
	}
	if len(b.queue) == 0 {
		return SegmentPayload{}, false
	}

	payload := b.queue[0]
	b.queue = b.queue[1:]
	b.chunkCount.Store(int64(len(b.queue)))

	b.notFull.Signal()
	return payload, true
}

// AwaitInitialFill blocks until the queue's depth has reached targetDepth at
// least once, the buffer is closed, or ctx is done. It reports whether the
// fill target was actually reached. The consumer calls it exactly once,
// before its first Pop; the gate is never re-asserted for the lifetime of
// the stream.
func (b *Buffer) AwaitInitialFill(ctx context.Context) bool {
	done := b.watchContext(ctx, b.notEmpty)
	defer done()

	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.filledOnce && !b.closed {
		if ctx.Err() != nil {
			return false
		}
		b.notEmpty.Wait()
	}
	return b.filledOnce
}

// Close signals end-of-stream to the consumer: no further Push succeeds,
// and Pop drains remaining payloads before returning (_, false).
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}

// Depth returns the current queue length.
func (b *Buffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// watchContext starts a goroutine that broadcasts on cond when ctx is done,
// so a blocked Wait() returns promptly on cancellation instead of only on
// the next push/pop/close. The returned func must be called to stop the
// goroutine once the caller is no longer waiting.
func (b *Buffer) watchContext(ctx context.Context, cond *sync.Cond) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// ErrBufferClosed is returned by Push once the buffer has been closed.
var ErrBufferClosed = bufferClosedError{}

type bufferClosedError struct{}

func (bufferClosedError) Error() string { return "stream: buffer closed" }
