package main

import (
	"math"
)

// The target band covers targetWidth percentage points of the spectrum,
// split into three nested zones of width zoneWidth on each side.
const (
	targetWidth = 25.0
	zoneWidth   = 5.0
)

const (
	ZoneCenter = "center"
	ZoneInner  = "inner"
	ZoneOuter  = "outer"
	ZoneMiss   = "miss"
)

// adjustedTarget nudges a target whose band would barely spill past the
// 0/100 edges back inside the spectrum. Scoring and any rendering of the
// target band must both use this value; deriving them separately from the
// raw target produces mismatched zones.
func adjustedTarget(target float64) float64 {
	half := targetWidth / 2
	slack := 0.15 * half

	if target < half && half-target < slack {
		return half
	}
	if target > 100-half && target-(100-half) < slack {
		return 100 - half
	}

	return target
}

// scoreGuess maps the shared dial position and the (already adjusted)
// target to a point value and zone name. Boundaries are inclusive on the
// tighter zone.
func scoreGuess(dial, target float64) (int, string) {
	distance := math.Abs(dial - target)

	switch {
	case distance <= zoneWidth/2:
		return 4, ZoneCenter
	case distance <= zoneWidth*1.5:
		return 3, ZoneInner
	case distance <= zoneWidth*2.5:
		return 2, ZoneOuter
	default:
		return 0, ZoneMiss
	}
}
