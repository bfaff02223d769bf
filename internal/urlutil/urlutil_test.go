package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		ref      string
		expected string
	}{
		{
			name:     "relative segment in same directory",
			base:     "https://cdn.example.com/live/chan/index.m3u8",
			ref:      "segment-1.ts",
			expected: "https://cdn.example.com/live/chan/segment-1.ts",
		},
		{
			name:     "relative variant one level down",
			base:     "https://cdn.example.com/live/chan/master.m3u8",
			ref:      "720p/index.m3u8",
			expected: "https://cdn.example.com/live/chan/720p/index.m3u8",
		},
		{
			name:     "absolute URL reference ignores base",
			base:     "https://cdn.example.com/live/chan/index.m3u8",
			ref:      "https://other.example.com/seg.ts",
			expected: "https://other.example.com/seg.ts",
		},
		{
			name:     "root-relative reference",
			base:     "https://cdn.example.com/live/chan/index.m3u8",
			ref:      "/live/chan2/seg.ts",
			expected: "https://cdn.example.com/live/chan2/seg.ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Resolve(tt.base, tt.ref)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expectError bool
		errorMsg    string
	}{
		{"valid http", "http://example.com/playlist.m3u8", false, ""},
		{"valid https", "https://example.com/playlist.m3u8", false, ""},
		{"empty url", "", true, "URL is required"},
		{"no scheme", "example.com/playlist.m3u8", true, "URL must include a scheme"},
		{"unsupported scheme", "ftp://example.com/playlist.m3u8", true, "unsupported URL scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.expectError {
				assert.Error(t, err)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
