package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Clamp functions for common value ranges

// clampFloat clamps a value between min and max.
func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// clamp01 clamps a value to the [0, 1] range.
func clamp01(v float64) float64 {
	return clampFloat(v, 0, 1)
}

// Angle conversion

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

// Vector helpers

// unitOrZero returns v normalised, or the zero vector when v has no length.
func unitOrZero(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// appendVec appends the three components of v.
func appendVec(dst []float32, v r3.Vec) []float32 {
	return append(dst, float32(v.X), float32(v.Y), float32(v.Z))
}
