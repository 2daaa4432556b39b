package media

import (
	"math"
	"strconv"
)

// durationEpsilon is the tolerance under which two durations count as equal.
const durationEpsilon = 0.01

// RetimeFactor is the setpts multiplier that brings a fragment of natural
// length to target. A missing or invalid target keeps the clip as is.
func RetimeFactor(natural float64, target *float64) float64 {
	if target == nil || *target <= 0 || natural <= 0 {
		return 1
	}
	return *target / natural
}

// SyncFactor is the setpts multiplier that stretches a visual track of
// length dv so that it ends together with narration of length da.
func SyncFactor(dv, da float64) float64 {
	if dv <= 0 || da <= 0 || math.Abs(dv-da) < durationEpsilon {
		return 1
	}
	return da / dv
}

// MusicLoops is how many back-to-back copies of a track of length dm are
// needed to cover da seconds.
func MusicLoops(da, dm float64) int {
	if dm <= 0 || dm >= da {
		return 1
	}
	return int(da/dm) + 1
}

// DBToGain converts a decibel offset to a linear amplitude multiplier.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// CeilingFactor is the speed-up needed to fit d seconds into limit.
func CeilingFactor(d, limit float64) float64 {
	if limit <= 0 || d <= limit {
		return 1
	}
	return d / limit
}

// AtempoChain splits speed into factors accepted by a single atempo filter.
func AtempoChain(speed float64) []float64 {
	if speed <= 0 || math.Abs(speed-1) < 1e-9 {
		return nil
	}
	var out []float64
	for speed > 2.0 {
		out = append(out, 2.0)
		speed /= 2.0
	}
	for speed < 0.5 {
		out = append(out, 0.5)
		speed /= 0.5
	}
	return append(out, speed)
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
