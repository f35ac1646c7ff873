package util

import (
	"strings"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(formatBytes(tc.in)) != 8 {
			t.Errorf("formatBytes(%v) is not 8 chars wide", tc.in)
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(3, 4, 1, 2048, 512)
	for _, want := range []string{"3↑", "4↓", "1 active", "2.0 KiB"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatStats() = %q, missing %q", got, want)
		}
	}
}
