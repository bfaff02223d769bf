package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func urls(entries []SegmentEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.URL
	}
	return out
}

func TestFilter_DropsSegmentsWithinAdBlock(t *testing.T) {
	entries := []SegmentEntry{
		{URL: "a.ts"},
		{URL: "ad1.ts", Flags: SegmentFlags{AdStart: true}},
		{URL: "ad2.ts"},
		{URL: "b.ts", Flags: SegmentFlags{AdEnd: true}},
	}

	f := NewFilter()
	kept := f.Filter(entries)

	assert.Equal(t, []string{"a.ts", "b.ts"}, urls(kept))
}

func TestFilter_StitchedAdHeuristicDropsSingleSegment(t *testing.T) {
	entries := []SegmentEntry{
		{URL: "a.ts"},
		{URL: "stitched.ts", Flags: SegmentFlags{StitchedAd: true}},
		{URL: "b.ts"},
	}

	f := NewFilter()
	kept := f.Filter(entries)

	assert.Equal(t, []string{"a.ts", "b.ts"}, urls(kept))
}

func TestFilter_AdDurationHeuristicDropsSingleSegment(t *testing.T) {
	entries := []SegmentEntry{
		{URL: "a.ts"},
		{URL: "ad.ts", Flags: SegmentFlags{AdDurationHit: true}},
		{URL: "b.ts"},
	}

	f := NewFilter()
	kept := f.Filter(entries)

	assert.Equal(t, []string{"a.ts", "b.ts"}, urls(kept))
}

func TestFilter_StatePersistsAcrossCallsUntilAdEnd(t *testing.T) {
	f := NewFilter()

	first := f.Filter([]SegmentEntry{
		{URL: "a.ts"},
		{URL: "ad1.ts", Flags: SegmentFlags{AdStart: true}},
	})
	assert.Equal(t, []string{"a.ts"}, urls(first))

	// A later refresh with no explicit ad markers stays in the ad block
	// because state carried over from the previous call.
	second := f.Filter([]SegmentEntry{
		{URL: "ad2.ts"},
		{URL: "b.ts", Flags: SegmentFlags{AdEnd: true}},
	})
	assert.Equal(t, []string{"b.ts"}, urls(second))
}

func TestFilter_IsIdempotentOverAFreshReplay(t *testing.T) {
	entries := []SegmentEntry{
		{URL: "a.ts"},
		{URL: "ad1.ts", Flags: SegmentFlags{AdStart: true}},
		{URL: "ad2.ts"},
		{URL: "b.ts", Flags: SegmentFlags{AdEnd: true}},
	}

	first := NewFilter().Filter(entries)
	second := NewFilter().Filter(entries)

	assert.Equal(t, urls(first), urls(second))
}

func TestFilter_NoMarkersKeepsEverything(t *testing.T) {
	entries := []SegmentEntry{{URL: "a.ts"}, {URL: "b.ts"}, {URL: "c.ts"}}
	kept := NewFilter().Filter(entries)
	assert.Equal(t, urls(entries), urls(kept))
}
