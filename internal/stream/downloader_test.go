package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/fetch"
)

func newTestFetcher() *fetch.Fetcher {
	return fetch.New(config.FetchConfig{
		Timeout:       time.Second,
		RetryAttempts: 1,
		RetryDelay:    10 * time.Millisecond,
		UserAgent:     "tardsplayad-test",
	}, nil)
}

func TestDownloader_PreservesOrderDespiteOutOfOrderCompletion(t *testing.T) {
	delays := map[string]time.Duration{
		"/slow": 60 * time.Millisecond,
		"/fast": 0,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delays[r.URL.Path])
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	buf := NewBuffer(1, 8, nil, nil)
	dl := NewDownloader(config.DownloadConfig{RetryAttempts: 1, RetryDelay: 10 * time.Millisecond, Workers: 4}, newTestFetcher(), buf, nil)

	tasks := make(chan DownloadTask, 2)
	tasks <- DownloadTask{URL: srv.URL + "/slow", Sequence: 0}
	tasks <- DownloadTask{URL: srv.URL + "/fast", Sequence: 1}
	close(tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error)
	go func() { done <- dl.Run(ctx, tasks) }()

	first, ok := buf.Pop(ctx)
	require.True(t, ok)
	second, ok := buf.Pop(ctx)
	require.True(t, ok)

	assert.Equal(t, "/slow", string(first.Bytes))
	assert.Equal(t, "/fast", string(second.Bytes))

	require.NoError(t, <-done)
}

func TestDownloader_DiscardsFailedSegmentWithoutBlockingLaterOnes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	buf := NewBuffer(1, 8, nil, nil)
	dl := NewDownloader(config.DownloadConfig{RetryAttempts: 1, RetryDelay: 5 * time.Millisecond, Workers: 1}, newTestFetcher(), buf, nil)

	tasks := make(chan DownloadTask, 2)
	tasks <- DownloadTask{URL: srv.URL + "/bad", Sequence: 0}
	tasks <- DownloadTask{URL: srv.URL + "/good", Sequence: 1}
	close(tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error)
	go func() { done <- dl.Run(ctx, tasks) }()

	payload, ok := buf.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "ok", string(payload.Bytes))

	require.NoError(t, <-done)
}
