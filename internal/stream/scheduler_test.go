package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tardsplaya/tardsplayad/internal/config"
)

type fixedDepth struct {
	depth int
}

func (f *fixedDepth) Depth() int { return f.depth }

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		PollInterval:   10 * time.Millisecond,
		ErrorSleep:     10 * time.Millisecond,
		ErrorThreshold: 3,
		SeenURLCap:     10,
	}
}

func TestScheduler_EmitsNewSegmentsInOrderThenEndList(t *testing.T) {
	body := `#EXTM3U
#EXT-X-MEDIA-SEQUENCE:1
#EXTINF:2.000,
seg1.ts
#EXTINF:2.000,
seg2.ts
#EXT-X-ENDLIST
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	sched := NewScheduler(testSchedulerConfig(), newTestFetcher(), &fixedDepth{}, 10, nil)
	tasks := make(chan DownloadTask, 10)

	reason := sched.Run(context.Background(), srv.URL, tasks)
	close(tasks)

	assert.Equal(t, ExitEndList, reason)

	var urls []string
	for task := range tasks {
		urls = append(urls, task.URL)
	}
	require.Len(t, urls, 2)
	assert.Contains(t, urls[0], "seg1.ts")
	assert.Contains(t, urls[1], "seg2.ts")
}

func TestScheduler_SkipsAlreadySeenSegmentsAcrossPolls(t *testing.T) {
	var poll atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := poll.Add(1)
		if n == 1 {
			w.Write([]byte("#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n"))
			return
		}
		w.Write([]byte("#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n#EXTINF:2.000,\nseg2.ts\n#EXT-X-ENDLIST\n"))
	}))
	defer srv.Close()

	sched := NewScheduler(testSchedulerConfig(), newTestFetcher(), &fixedDepth{}, 10, nil)
	tasks := make(chan DownloadTask, 10)

	reason := sched.Run(context.Background(), srv.URL, tasks)
	close(tasks)

	assert.Equal(t, ExitEndList, reason)

	var urls []string
	for task := range tasks {
		urls = append(urls, task.URL)
	}
	require.Len(t, urls, 2, "seg1.ts should only be scheduled once across polls")
}

func TestScheduler_ExitsOnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n"))
	}))
	defer srv.Close()

	sched := NewScheduler(testSchedulerConfig(), newTestFetcher(), &fixedDepth{}, 10, nil)
	tasks := make(chan DownloadTask, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	reason := sched.Run(ctx, srv.URL, tasks)
	assert.Equal(t, ExitCancelled, reason)
}

func TestScheduler_ExitsOnErrorCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testSchedulerConfig()
	cfg.ErrorThreshold = 2
	sched := NewScheduler(cfg, newTestFetcher(), &fixedDepth{}, 10, nil)
	tasks := make(chan DownloadTask, 10)

	reason := sched.Run(context.Background(), srv.URL, tasks)
	assert.Equal(t, ExitErrorCap, reason)
}

func TestScheduler_WaitsForBufferRoomBeforeCommittingToSeenSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n#EXT-X-ENDLIST\n"))
	}))
	defer srv.Close()

	depth := &fixedDepth{depth: 10}
	sched := NewScheduler(testSchedulerConfig(), newTestFetcher(), depth, 10, nil)
	tasks := make(chan DownloadTask, 10)

	done := make(chan ExitReason)
	go func() { done <- sched.Run(context.Background(), srv.URL, tasks) }()

	time.Sleep(30 * time.Millisecond)
	select {
	case task := <-tasks:
		t.Fatalf("expected scheduler to wait for buffer room, got task %v", task)
	default:
	}

	depth.depth = 0
	reason := <-done
	assert.Equal(t, ExitEndList, reason)
}

func TestScheduler_ExitsOnErrorCapWhenPlaylistUnparseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(""))
	}))
	defer srv.Close()

	cfg := testSchedulerConfig()
	cfg.ErrorThreshold = 2
	sched := NewScheduler(cfg, newTestFetcher(), &fixedDepth{}, 10, nil)
	tasks := make(chan DownloadTask, 10)

	reason := sched.Run(context.Background(), srv.URL, tasks)
	assert.Equal(t, ExitErrorCap, reason, "an unparseable playlist body must be treated as a fetch failure toward the error cap")
}
