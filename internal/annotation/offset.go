package annotation

import (
	"fmt"
	"math"
	"strconv"
)

// OffsetPrecision is the number of decimal places in a canonical offset.
const OffsetPrecision = 6

// Canonical formats seconds as a fixed 6-decimal string. Offsets that round to
// the same string are the same offset; provider timestamps (seconds+nanos) and
// decoder timestamps (frame/fps) only meet through this rounding.
func Canonical(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', OffsetPrecision, 64)
}

// OffsetOf returns the canonical offset of a provider duration.
func OffsetOf(d Duration) string {
	return Canonical(d.Float())
}

// FrameOffset returns the canonical offset of zero-based frame n at fps.
// It assumes a constant frame rate; variable frame rate sources or provider
// side rounding silently miss alignment.
func FrameOffset(n int, fps float64) string {
	return Canonical(float64(n) / fps)
}

// ParseOffset parses a canonical (or any decimal) offset back to seconds.
func ParseOffset(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse offset %q: %w", s, err)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse offset %q: out of range", s)
	}
	return v, nil
}
