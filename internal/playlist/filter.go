package playlist

// adState is the ad-filter's persistent classification state, carried
// across playlist refreshes for one stream.
type adState int

const (
	inContent adState = iota
	inAdBlock
)

// Filter is the ad-marker state machine. Create one Filter per stream and
// call Filter on every successive MediaPlaylist's segment list so the
// persistent state and one-shot skip flag survive across refreshes.
type Filter struct {
	state    adState
	skipNext bool
}

// NewFilter returns a Filter starting in content.
func NewFilter() *Filter {
	return &Filter{state: inContent}
}

// Filter classifies entries in playlist order and returns only the ones to
// keep. It is not safe for concurrent use by multiple goroutines; a stream
// has exactly one scheduler driving its Filter.
func (f *Filter) Filter(entries []SegmentEntry) []SegmentEntry {
	kept := make([]SegmentEntry, 0, len(entries))

	for _, e := range entries {
		if e.Flags.AdStart {
			f.state = inAdBlock
			f.skipNext = true
		}
		if e.Flags.AdEnd {
			f.state = inContent
		}
		if e.Flags.StitchedAd || e.Flags.AdDurationHit {
			f.skipNext = true
		}

		keep := !(f.skipNext || f.state == inAdBlock)
		f.skipNext = false

		if keep {
			kept = append(kept, e)
		}
	}

	return kept
}
