package feed

import (
	"math"
	"testing"
	"time"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1.2K", 1200},
		{"3M", 3000000},
		{"1,234", 1234},
		{"56 comments", 56},
		{"2.3k reposts", 2300},
		{"1.5 M", 1500000},
		{"7", 7},
		{"", 0},
		{"no numbers here", 0},
		{".", 0},
		{"1,2,3,4", 1234},
		{"Like, 45 reactions", 45},
		{"..., 3 comments", 3},
		{"99999999999999999999", math.MaxInt},
		{"99999999999999M", math.MaxInt},
	}
	for _, tc := range tests {
		if got := ParseCount(tc.in); got != tc.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseCountNeverNegative(t *testing.T) {
	if got := ParseCount("-5"); got != 5 {
		t.Errorf("expected sign to be ignored, got %d", got)
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"5s", 5 * time.Second},
		{"3m", 3 * time.Minute},
		{"2h •", 2 * time.Hour},
		{"4d", 4 * 24 * time.Hour},
		{"1w • Edited", 7 * 24 * time.Hour},
		{"2mo", 60 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
		{" 10H ", 10 * time.Hour},
	}
	for _, tc := range tests {
		got := ParseRelativeTime(tc.in, now)
		if got == nil {
			t.Errorf("ParseRelativeTime(%q) = nil", tc.in)
			continue
		}
		if want := now.Add(-tc.want); !got.Equal(want) {
			t.Errorf("ParseRelativeTime(%q) = %v, want %v", tc.in, got, want)
		}
	}

	for _, in := range []string{"", "yesterday", "5 minutes", "h3"} {
		if got := ParseRelativeTime(in, now); got != nil {
			t.Errorf("ParseRelativeTime(%q) = %v, want nil", in, got)
		}
	}
}
