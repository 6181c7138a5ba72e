package utils

import (
	"testing"
	"time"
)

func TestNormalizeLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"no_helmet", "no_helmet"},
		{"No Helmet", "no_helmet"},
		{"  no-vest ", "no_vest"},
		{"NO__SHOES", "no_shoes"},
		{"no gloves", "no_gloves"},
		{"", ""},
		{"   ", ""},
		{"_no_helmet_", "no_helmet"},
	}
	for _, tc := range cases {
		if got := NormalizeLabel(tc.in); got != tc.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTimeFromUnix(t *testing.T) {
	got := TimeFromUnix(1767225600.5)
	want := time.Date(2026, 1, 1, 0, 0, 0, 500000000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("TimeFromUnix = %v, want %v", got, want)
	}
}
