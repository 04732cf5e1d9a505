// math/core.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

// Everything here works in float64: universal time in seconds quickly
// exceeds what float32 can resolve and pressures span many decades.

// Radians converts an angle expressed in degrees to radians
func Radians(d float64) float64 {
	return d / 180 * gomath.Pi
}

func Sin(a float64) float64 { return gomath.Sin(a) }
func Cos(a float64) float64 { return gomath.Cos(a) }

func SafeACos(a float64) float64 {
	return gomath.Acos(Clamp(a, -1, 1))
}

func Sqrt(a float64) float64 { return gomath.Sqrt(a) }
func Pow(a, b float64) float64 { return gomath.Pow(a, b) }
func Exp(x float64) float64 { return gomath.Exp(x) }
func Log(x float64) float64 { return gomath.Log(x) }
func Floor(v float64) float64 { return gomath.Floor(v) }

func NaN() float64 { return gomath.NaN() }

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !gomath.IsNaN(v) && !gomath.IsInf(v, 0)
}

// Mod returns a modulo b, always in [0,b) for positive b (unlike
// math.Mod, which keeps the sign of a).
func Mod(a, b float64) float64 {
	m := gomath.Mod(a, b)
	if m < 0 {
		m += b
	}
	if m >= b { // -tiny + b rounds to b
		m = 0
	}
	return m
}

// Wrap01 maps v into [0,1) by discarding its integer part.
func Wrap01(v float64) float64 {
	return Mod(v, 1)
}

// WrapIndex maps i into [0,n) for n > 0.
func WrapIndex(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func Abs[V constraints.Integer | constraints.Float](x V) V {
	if x < 0 {
		return -x
	}
	return x
}

func Sqr[V constraints.Integer | constraints.Float](v V) V { return v * v }

func Clamp[T constraints.Ordered](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

// Lerp linearly interpolates x of the way between a and b. x==0
// corresponds to a, x==1 corresponds to b, etc.
func Lerp(x, a, b float64) float64 {
	return (1-x)*a + x*b
}

// Bilerp performs bilinear interpolation of the four corner values where
// v00 is at (0,0), v10 at (1,0), v01 at (0,1) and v11 at (1,1).
func Bilerp(x, y, v00, v10, v01, v11 float64) float64 {
	return Lerp(y, Lerp(x, v00, v10), Lerp(x, v01, v11))
}
