package playlist

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/tardsplaya/tardsplayad/internal/urlutil"
)

// ParseMaster parses a master playlist body, resolving variant media URLs
// against baseURL. If the body carries no #EXT-X-STREAM-INF lines but is a
// valid M3U8, it is treated as a single-variant media playlist and a lone
// "source" variant pointing at baseURL itself is returned.
func ParseMaster(body []byte, baseURL string) ([]Variant, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		variants  []Variant
		index     = map[string]int{}
		sawM3U    bool
		pending   *Variant
		sawStream bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "#EXTM3U":
			sawM3U = true
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			sawStream = true
			v := parseStreamInf(line)
			pending = &v
		case strings.HasPrefix(line, "#"):
			// other tags are irrelevant to variant selection
		default:
			if pending == nil {
				continue
			}
			resolved, err := urlutil.Resolve(baseURL, line)
			if err != nil {
				return nil, fmt.Errorf("resolving variant URL %q: %w", line, err)
			}
			pending.MediaURL = resolved
			if i, ok := index[pending.Quality]; ok {
				variants[i] = *pending
			} else {
				index[pending.Quality] = len(variants)
				variants = append(variants, *pending)
			}
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning master playlist: %w", err)
	}

	if !sawStream {
		if !sawM3U {
			return nil, fmt.Errorf("not a valid m3u8 playlist")
		}
		return []Variant{{Quality: "source", MediaURL: baseURL}}, nil
	}

	return variants, nil
}

func parseStreamInf(line string) Variant {
	attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))

	v := Variant{Quality: "unknown"}
	if vid, ok := attrs["VIDEO"]; ok && vid != "" {
		v.Quality = vid
	}
	if bw, ok := attrs["BANDWIDTH"]; ok {
		if n, err := strconv.Atoi(bw); err == nil {
			v.Bandwidth = n
		}
	}
	if res, ok := attrs["RESOLUTION"]; ok {
		v.Resolution = res
	}
	return v
}

// parseAttributeList parses a comma-separated KEY=VALUE attribute list,
// honoring double-quoted values that may themselves contain commas.
func parseAttributeList(s string) map[string]string {
	attrs := map[string]string{}
	var key strings.Builder
	var val strings.Builder
	inQuotes := false
	inKey := true

	flush := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			attrs[k] = strings.Trim(strings.TrimSpace(val.String()), `"`)
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			if inKey {
				key.WriteRune(r)
			} else {
				val.WriteRune(r)
			}
		case r == '=' && inKey && !inQuotes:
			inKey = false
		case r == ',' && !inQuotes:
			flush()
		default:
			if inKey {
				key.WriteRune(r)
			} else {
				val.WriteRune(r)
			}
		}
	}
	flush()
	return attrs
}

// ParseMedia parses a media playlist body, resolving segment URLs against
// baseURL and annotating each segment with the inline markers encountered
// on the lines preceding it.
func ParseMedia(body []byte, baseURL string) (MediaPlaylist, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		playlist    MediaPlaylist
		haveSeq     bool
		pendingDur  float64
		pendingFlag SegmentFlags
		seqCounter  int64
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if f, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				playlist.TargetDuration = f
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if n, err := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64); err == nil {
				playlist.MediaSequence = n
				haveSeq = true
				seqCounter = n
			}
		case line == "#EXT-X-ENDLIST":
			playlist.EndList = true
		case line == "#EXT-X-DISCONTINUITY":
			pendingFlag.Discontinuity = true
		case strings.HasPrefix(line, "#EXT-X-SCTE35-OUT"):
			pendingFlag.AdStart = true
		case strings.HasPrefix(line, "#EXT-X-SCTE35-IN"):
			pendingFlag.AdEnd = true
		case strings.HasPrefix(line, "#EXT-X-DATERANGE:"):
			if isMidrollDaterange(line) {
				pendingFlag.StitchedAd = true
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			dur, adHit := parseExtinf(line)
			pendingDur = dur
			if adHit {
				pendingFlag.AdDurationHit = true
			}
		case strings.HasPrefix(line, "#"):
			if containsStitchedMarker(line) {
				pendingFlag.StitchedAd = true
			}
		default:
			if !haveSeq {
				seqCounter = 0
				haveSeq = true
			}
			resolved, err := urlutil.Resolve(baseURL, line)
			if err != nil {
				return MediaPlaylist{}, fmt.Errorf("resolving segment URL %q: %w", line, err)
			}
			playlist.Segments = append(playlist.Segments, SegmentEntry{
				URL:      resolved,
				Duration: pendingDur,
				Sequence: seqCounter,
				Flags:    pendingFlag,
			})
			seqCounter++
			pendingDur = 0
			pendingFlag = SegmentFlags{}
		}
	}
	if err := scanner.Err(); err != nil {
		return MediaPlaylist{}, fmt.Errorf("scanning media playlist: %w", err)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return MediaPlaylist{}, fmt.Errorf("empty media playlist body")
	}

	return playlist, nil
}

func containsStitchedMarker(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "stitched-ad") || strings.Contains(lower, "stitched")
}

func isMidrollDaterange(line string) bool {
	attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-DATERANGE:"))
	if id, ok := attrs["ID"]; ok && strings.Contains(strings.ToLower(id), "stitched-ad") {
		return true
	}
	for _, v := range attrs {
		if strings.Contains(strings.ToUpper(v), "MIDROLL") {
			return true
		}
	}
	return containsStitchedMarker(line)
}

// parseExtinf parses an #EXTINF:<duration>[,title] line and reports whether
// the duration matches one of the known ad-segment heuristic values.
func parseExtinf(line string) (duration float64, adHeuristic bool) {
	rest := strings.TrimPrefix(line, "#EXTINF:")
	if comma := strings.Index(rest, ","); comma >= 0 {
		rest = rest[:comma]
	}
	rest = strings.TrimSpace(rest)
	f, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	return f, rest == "2.001" || rest == "2.002"
}
