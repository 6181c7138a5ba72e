package utils

import (
	"math"
	"strings"
	"time"
)

// NormalizeLabel canonicalizes a detector label: trimmed, lowercased,
// inner whitespace and dashes collapsed to underscores. "No Helmet" and
// "no-helmet" both normalize to "no_helmet". Unknown labels survive
// normalization verbatim.
func NormalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' || r == '_' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}
	return strings.Trim(b.String(), "_")
}

// TimeFromUnix converts fractional Unix seconds to a UTC time.
func TimeFromUnix(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}
