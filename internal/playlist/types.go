// Package playlist parses Twitch-style HLS master and media playlists and
// classifies their segments as content or inline advertisement.
package playlist

// Variant is one quality rendition listed in a master playlist.
type Variant struct {
	Quality    string // the VIDEO= label, or "unknown" / "source"
	MediaURL   string
	Bandwidth  int
	Resolution string
}

// SegmentFlags encodes the inline markers a segment's surrounding lines
// carried at parse time, consumed by the ad-filter state machine.
type SegmentFlags struct {
	AdStart       bool // #EXT-X-SCTE35-OUT seen immediately before this segment
	AdEnd         bool // #EXT-X-SCTE35-IN seen immediately before this segment
	Discontinuity bool
	StitchedAd    bool // stitched-ad / MIDROLL heuristic matched
	AdDurationHit bool // #EXTINF:2.001 or #EXTINF:2.002 heuristic matched
}

// SegmentEntry is one segment URL in a media playlist, in playlist order.
type SegmentEntry struct {
	URL      string
	Duration float64
	Sequence int64
	Flags    SegmentFlags
}

// MediaPlaylist is a single fetch-time snapshot of a live media playlist.
type MediaPlaylist struct {
	TargetDuration float64
	MediaSequence  int64
	EndList        bool
	Segments       []SegmentEntry
}
