package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,VIDEO="1080p60"
1080p60/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,VIDEO="720p"
720p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000
audio_only/index.m3u8
`

func TestParseMaster_ParsesVariants(t *testing.T) {
	variants, err := ParseMaster([]byte(masterPlaylist), "https://example.com/channel/master.m3u8")
	require.NoError(t, err)
	require.Len(t, variants, 3)

	assert.Equal(t, "1080p60", variants[0].Quality)
	assert.Equal(t, 5000000, variants[0].Bandwidth)
	assert.Equal(t, "https://example.com/channel/1080p60/index.m3u8", variants[0].MediaURL)

	assert.Equal(t, "720p", variants[1].Quality)
	assert.Equal(t, "unknown", variants[2].Quality)
}

func TestParseMaster_LaterDuplicateQualityWins(t *testing.T) {
	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=100,VIDEO="720p"
first/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=200,VIDEO="720p"
second/index.m3u8
`
	variants, err := ParseMaster([]byte(body), "https://example.com/master.m3u8")
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "https://example.com/second/index.m3u8", variants[0].MediaURL)
	assert.Equal(t, 200, variants[0].Bandwidth)
}

func TestParseMaster_NoStreamInfTreatsBodyAsSourceVariant(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-TARGETDURATION:2\n"
	variants, err := ParseMaster([]byte(body), "https://example.com/live.m3u8")
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "source", variants[0].Quality)
	assert.Equal(t, "https://example.com/live.m3u8", variants[0].MediaURL)
}

func TestParseMaster_InvalidBodyErrors(t *testing.T) {
	_, err := ParseMaster([]byte("not a playlist"), "https://example.com/live.m3u8")
	assert.Error(t, err)
}

const mediaPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:100
#EXTINF:2.000,
segment100.ts
#EXTINF:2.000,
segment101.ts
#EXT-X-SCTE35-OUT
#EXTINF:2.000,
ad1.ts
#EXTINF:2.000,
ad2.ts
#EXT-X-SCTE35-IN
#EXTINF:2.000,
segment104.ts
`

func TestParseMedia_ParsesSegmentsAndMetadata(t *testing.T) {
	pl, err := ParseMedia([]byte(mediaPlaylist), "https://example.com/channel/index.m3u8")
	require.NoError(t, err)

	assert.Equal(t, 2.0, pl.TargetDuration)
	assert.Equal(t, int64(100), pl.MediaSequence)
	assert.False(t, pl.EndList)
	require.Len(t, pl.Segments, 5)

	assert.Equal(t, "https://example.com/channel/segment100.ts", pl.Segments[0].URL)
	assert.Equal(t, int64(100), pl.Segments[0].Sequence)
	assert.True(t, pl.Segments[2].Flags.AdStart)
	assert.True(t, pl.Segments[4].Flags.AdEnd)
}

func TestParseMedia_EndListSetsFlag(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:2.000,\nlast.ts\n#EXT-X-ENDLIST\n"
	pl, err := ParseMedia([]byte(body), "https://example.com/index.m3u8")
	require.NoError(t, err)
	assert.True(t, pl.EndList)
}

func TestParseMedia_AdDurationHeuristicFlagsNextSegment(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:2.001,\nad.ts\n#EXTINF:2.000,\ncontent.ts\n"
	pl, err := ParseMedia([]byte(body), "https://example.com/index.m3u8")
	require.NoError(t, err)
	require.Len(t, pl.Segments, 2)
	assert.True(t, pl.Segments[0].Flags.AdDurationHit)
	assert.False(t, pl.Segments[1].Flags.AdDurationHit)
}

func TestParseMedia_StitchedAdDaterangeFlagsNextSegment(t *testing.T) {
	body := `#EXTM3U
#EXT-X-DATERANGE:ID="stitched-ad-1",START-DATE="2024-01-01T00:00:00Z"
#EXTINF:2.000,
ad.ts
`
	pl, err := ParseMedia([]byte(body), "https://example.com/index.m3u8")
	require.NoError(t, err)
	require.Len(t, pl.Segments, 1)
	assert.True(t, pl.Segments[0].Flags.StitchedAd)
}

func TestParseMedia_RelativeURLsResolveAgainstBase(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:2.000,\n../chunks/seg.ts\n"
	pl, err := ParseMedia([]byte(body), "https://example.com/channel/720p/index.m3u8")
	require.NoError(t, err)
	require.Len(t, pl.Segments, 1)
	assert.Equal(t, "https://example.com/channel/chunks/seg.ts", pl.Segments[0].URL)
}
