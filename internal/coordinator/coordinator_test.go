package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/player"
	"github.com/tardsplaya/tardsplayad/internal/resolve"
	"github.com/tardsplaya/tardsplayad/internal/stream"
)

func testConfig() *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{
			Timeout:       time.Second,
			RetryAttempts: 1,
			RetryDelay:    10 * time.Millisecond,
		},
		Scheduler: config.SchedulerConfig{
			PollInterval:   10 * time.Millisecond,
			ErrorSleep:     10 * time.Millisecond,
			ErrorThreshold: 3,
			SeenURLCap:     10,
		},
		Download: config.DownloadConfig{
			RetryAttempts: 1,
			RetryDelay:    10 * time.Millisecond,
			Workers:       1,
		},
		Buffer: config.BufferConfig{TargetDepth: 2},
		Coordinator: config.CoordinatorConfig{
			MaxConcurrentStreams: 10,
			HousekeepingCron:     "",
		},
	}
}

func catPlayerCommand() player.Command {
	return player.Command{
		BinaryPath:     "/bin/cat",
		WriteChunkSize: 32 * 1024,
		ShutdownGrace:  time.Second,
		InterruptGrace: 100 * time.Millisecond,
	}
}

func masterAndMediaServers(t *testing.T, mediaBody string) (master *httptest.Server, media *httptest.Server) {
	t.Helper()
	media = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mediaBody))
	}))
	master = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=100,VIDEO=\"720p\"\n" + media.URL + "\n"))
	}))
	return master, media
}

func TestCoordinator_StartAndNormalCompletion(t *testing.T) {
	master, media := masterAndMediaServers(t, "#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n#EXT-X-ENDLIST\n")
	defer master.Close()
	defer media.Close()

	resolver := resolve.NewStaticResolver(map[string]string{"somechannel": master.URL})
	c := New(testConfig(), resolver, nil)
	defer c.Close()

	handle, err := c.Start(context.Background(), StartRequest{
		Channel:   "somechannel",
		Quality:   "720p",
		PlayerCmd: catPlayerCommand(),
	})
	require.NoError(t, err)
	require.NotNil(t, handle)

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate in time")
	}

	assert.Equal(t, stream.OutcomeNormalEnd, handle.Outcome().Kind)
	assert.Equal(t, 0, c.ActiveCount())

	_, ok := c.Get("somechannel")
	assert.False(t, ok)
}

func TestCoordinator_StartRejectsDuplicateChannel(t *testing.T) {
	master, media := masterAndMediaServers(t, "#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n")
	defer master.Close()
	defer media.Close()

	resolver := resolve.NewStaticResolver(map[string]string{"somechannel": master.URL})
	c := New(testConfig(), resolver, nil)
	defer c.Close()
	defer c.StopAll()

	_, err := c.Start(context.Background(), StartRequest{Channel: "somechannel", Quality: "720p", PlayerCmd: catPlayerCommand()})
	require.NoError(t, err)

	_, err = c.Start(context.Background(), StartRequest{Channel: "somechannel", Quality: "720p", PlayerCmd: catPlayerCommand()})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.Equal(t, 1, c.ActiveCount())
}

func TestCoordinator_StartUnknownQuality(t *testing.T) {
	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=100,VIDEO=\"720p\"\nhttps://example.com/720p.m3u8\n"))
	}))
	defer master.Close()

	resolver := resolve.NewStaticResolver(map[string]string{"somechannel": master.URL})
	c := New(testConfig(), resolver, nil)
	defer c.Close()

	_, err := c.Start(context.Background(), StartRequest{
		Channel:   "somechannel",
		Quality:   "1080p",
		PlayerCmd: catPlayerCommand(),
	})
	assert.ErrorIs(t, err, ErrUnknownQuality)
	assert.Equal(t, 0, c.ActiveCount())

	_, ok := c.Get("somechannel")
	assert.False(t, ok)
}

func TestCoordinator_StartResolveFailure(t *testing.T) {
	resolver := resolve.NewStaticResolver(nil)
	c := New(testConfig(), resolver, nil)
	defer c.Close()

	_, err := c.Start(context.Background(), StartRequest{
		Channel:   "unconfigured",
		Quality:   "720p",
		PlayerCmd: catPlayerCommand(),
	})
	assert.ErrorIs(t, err, ErrResolve)
}

func TestCoordinator_StopCancelsRunningStream(t *testing.T) {
	master, media := masterAndMediaServers(t, "#EXTM3U\n#EXTINF:2.000,\nseg1.ts\n")
	defer master.Close()
	defer media.Close()

	resolver := resolve.NewStaticResolver(map[string]string{"somechannel": master.URL})
	c := New(testConfig(), resolver, nil)
	defer c.Close()

	handle, err := c.Start(context.Background(), StartRequest{
		Channel:   "somechannel",
		Quality:   "720p",
		PlayerCmd: catPlayerCommand(),
	})
	require.NoError(t, err)

	require.NoError(t, c.Stop("somechannel"))

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after Stop")
	}

	assert.Equal(t, stream.OutcomeUserCancel, handle.Outcome().Kind)
}

func TestCoordinator_StopUnknownChannelErrors(t *testing.T) {
	c := New(testConfig(), resolve.NewStaticResolver(nil), nil)
	defer c.Close()

	err := c.Stop("never-started")
	assert.ErrorIs(t, err, ErrNotRunning)
}
