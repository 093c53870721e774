// Package stats contains the per-user experience model: cumulative XP, the
// derived level, the daily XP bucket and the activity streak.
package stats

import "math"

// MaxLevel caps the derived level. The quadratic curve makes this practically
// unreachable; the clamp guards against pathological XP values.
const MaxLevel = 9999

// TotalXPForLevel returns the cumulative XP required to reach level L:
// T(L) = 50·L² + 50·L. T(0) = 0.
func TotalXPForLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return 50*level*level + 50*level
}

// LevelFromXP returns the largest level L with TotalXPForLevel(L) <= xp,
// solved in closed form from the quadratic: L = floor((-50 + sqrt(2500 + 200x)) / 100).
// Negative input is clamped to zero; the result is clamped to [0, MaxLevel].
func LevelFromXP(xp int) int {
	if xp <= 0 {
		return 0
	}

	level := int(math.Floor((-50 + math.Sqrt(2500+200*float64(xp))) / 100))

	// Floating point can land one off near exact boundaries; settle against
	// the integer curve.
	for level > 0 && TotalXPForLevel(level) > xp {
		level--
	}
	for level < MaxLevel && TotalXPForLevel(level+1) <= xp {
		level++
	}

	if level < 0 {
		return 0
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// LevelProgress describes where a given XP total sits within its level.
type LevelProgress struct {
	// Level is the derived level.
	Level int `json:"level"`

	// Current is the XP earned inside the current level.
	Current int `json:"current"`

	// Needed is the XP span of the current level.
	Needed int `json:"needed"`
}

// ProgressForXP returns the level progress breakdown for a cumulative XP value.
func ProgressForXP(xp int) LevelProgress {
	if xp < 0 {
		xp = 0
	}

	level := LevelFromXP(xp)
	floor := TotalXPForLevel(level)
	ceil := TotalXPForLevel(level + 1)

	return LevelProgress{
		Level:   level,
		Current: xp - floor,
		Needed:  ceil - floor,
	}
}
