package main

import (
	"math"
	"testing"
)

func TestScoreGuessZones(t *testing.T) {
	tests := []struct {
		name   string
		dial   float64
		target float64
		points int
		zone   string
	}{
		{"exact hit", 50, 50, 4, ZoneCenter},
		{"center boundary", 52.5, 50, 4, ZoneCenter},
		{"just past center", 52.6, 50, 3, ZoneInner},
		{"inner boundary", 57.5, 50, 3, ZoneInner},
		{"just past inner", 57.6, 50, 2, ZoneOuter},
		{"outer boundary", 62.5, 50, 2, ZoneOuter},
		{"just past outer", 62.6, 50, 0, ZoneMiss},
		{"far miss", 100, 0, 0, ZoneMiss},
		{"left side symmetric", 42.5, 50, 3, ZoneInner},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			points, zone := scoreGuess(tc.dial, tc.target)
			if points != tc.points || zone != tc.zone {
				t.Errorf("scoreGuess(%v, %v) = (%d, %q), want (%d, %q)",
					tc.dial, tc.target, points, zone, tc.points, tc.zone)
			}
		})
	}
}

// Points must be a non-increasing step function of distance with exactly
// four levels.
func TestScoreGuessMonotone(t *testing.T) {
	last := 5
	seen := make(map[int]bool)

	for d := 0.0; d <= 100.0; d += 0.1 {
		points, _ := scoreGuess(50+d/2, 50-d/2)
		if points > last {
			t.Fatalf("points increased with distance at %v: %d > %d", d, points, last)
		}
		last = points
		seen[points] = true
	}

	for _, want := range []int{4, 3, 2, 0} {
		if !seen[want] {
			t.Errorf("step value %d never produced", want)
		}
	}
	if len(seen) != 4 {
		t.Errorf("expected exactly 4 step values, got %d", len(seen))
	}
}

func TestAdjustedTarget(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		want   float64
	}{
		{"middle untouched", 50, 50},
		{"safe near left edge", 12.5, 12.5},
		{"small spill left recentered", 11, 12.5},
		{"large spill left untouched", 5, 5},
		{"small spill right recentered", 89, 87.5},
		{"safe near right edge", 87.5, 87.5},
		{"large spill right untouched", 95, 95},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := adjustedTarget(tc.target); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("adjustedTarget(%v) = %v, want %v", tc.target, got, tc.want)
			}
		})
	}
}

// Scoring and rendering must share one adjusted center: scoring against
// the adjusted value of an edge target differs from scoring against the
// raw target, which is exactly the mismatch the shared computation avoids.
func TestAdjustedTargetSharedCenter(t *testing.T) {
	raw := 11.0
	adjusted := adjustedTarget(raw)
	if adjusted != 12.5 {
		t.Fatalf("adjustedTarget(%v) = %v, want 12.5", raw, adjusted)
	}

	// Dial at the adjusted band's outer edge.
	rawPoints, rawZone := scoreGuess(25, raw)
	adjPoints, adjZone := scoreGuess(25, adjusted)

	if rawPoints != 0 || rawZone != ZoneMiss {
		t.Errorf("raw center scored (%d, %q), want miss", rawPoints, rawZone)
	}
	if adjPoints != 2 || adjZone != ZoneOuter {
		t.Errorf("adjusted center scored (%d, %q), want (2, outer)", adjPoints, adjZone)
	}
}
