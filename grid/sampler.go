// grid/sampler.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package grid

import (
	"github.com/atmofield/atmofield/math"
)

// Blend exponents for the transition from gridded data to the analytic
// fallback above the top of the model.
const (
	PressureBlendExponent    = 0.125
	TemperatureBlendExponent = 0.5
)

// Fallback describes the analytic model that takes over above a
// Sampler's model top.
type Fallback struct {
	// Exponent shapes the blend weight ((alt-top)/(depth-top))^Exponent.
	Exponent float64
	Value    func(alt float64) float64
}

// Sampler performs quadrilinear (longitude, latitude, altitude, time)
// interpolation of a Dataset. A Sampler is immutable after setup and can
// be used from multiple goroutines.
//
// Longitude column i is centered at i*360/Lon - 180 - LonOffset and the
// columns wrap around; latitude row 0 is the north pole and the last row
// the south pole.
type Sampler struct {
	Data *Dataset

	// ModelTop is the altitude of the dataset's top layer, in meters.
	ModelTop float64
	// AtmosphereDepth is the body's atmosphere height, in meters.
	AtmosphereDepth float64
	// LonOffset shifts the dataset's longitudes, in degrees.
	LonOffset float64
	// TimeStep is the time covered by each slice, in seconds.
	TimeStep   float64
	TimeOffset float64
	// VerticalScale spaces the altitude layers non-uniformly when > 1,
	// packing more layers near the surface.
	VerticalScale float64
	// LogAltitude selects log-domain blending between altitude layers,
	// which preserves the exponential falloff of pressure.
	LogAltitude bool

	Above *Fallback
}

// top returns the altitude the dataset's top layer maps to.
func (s *Sampler) top() float64 {
	switch {
	case s.ModelTop > 0 && s.AtmosphereDepth > 0:
		return min(s.ModelTop, s.AtmosphereDepth)
	case s.ModelTop > 0:
		return s.ModelTop
	default:
		return s.AtmosphereDepth
	}
}

// Sample returns the interpolated value at the given longitude and
// latitude (degrees), altitude (meters) and time (seconds). Finite
// arguments never cause a failure: longitude and time wrap and latitude
// and altitude are clamped. NaN is returned if any argument is not
// finite.
func (s *Sampler) Sample(lon, lat, alt, time float64) float64 {
	if !math.IsFinite(lon) || !math.IsFinite(lat) || !math.IsFinite(alt) || !math.IsFinite(time) {
		return math.NaN()
	}

	d := s.Data.Dims
	top := s.top()

	// Longitude wraps around.
	x := math.Wrap01((lon+180+s.LonOffset)/360) * float64(d.Lon)
	x0 := int(math.Floor(x))
	fx := x - float64(x0)
	x0 = math.WrapIndex(x0, d.Lon)
	x1 := math.WrapIndex(x0+1, d.Lon)

	// Latitude is clamped at the poles.
	y0, y1, fy := bracket(math.Clamp((90-lat)/180, 0, 1)*float64(d.Lat-1), d.Lat)

	var n float64
	if top > 0 {
		n = math.Clamp(alt/top, 0, 1)
	}
	z0, z1, fz := bracket(s.AltitudeLayer(n), d.Alt)

	s0, s1, ft := s.timeSlices(time)

	layer := func(slice, z int) float64 {
		return math.Bilerp(fx, fy,
			float64(s.Data.At(slice, z, y0, x0)), float64(s.Data.At(slice, z, y0, x1)),
			float64(s.Data.At(slice, z, y1, x0)), float64(s.Data.At(slice, z, y1, x1)))
	}
	column := func(slice int) float64 {
		v0, v1 := layer(slice, z0), layer(slice, z1)
		if s.LogAltitude {
			return LogLerp(fz, v0, v1)
		}
		return math.Lerp(fz, v0, v1)
	}

	v := column(s0)
	if ft != 0 {
		v = math.Lerp(ft, v, column(s1))
	}

	if s.Above != nil && s.Above.Value != nil && alt > top && s.AtmosphereDepth > top {
		w := math.Clamp((alt-top)/(s.AtmosphereDepth-top), 0, 1)
		w = math.Pow(w, s.Above.Exponent)
		v = math.Lerp(w, v, s.Above.Value(alt))
	}
	return v
}

// AltitudeLayer maps normalized altitude n in [0,1] to a continuous layer
// coordinate in [0, Alt-1].
func (s *Sampler) AltitudeLayer(n float64) float64 {
	top := float64(s.Data.Dims.Alt - 1)
	if top == 0 {
		return 0
	}
	if b := s.VerticalScale; b > 1 {
		z := (math.Pow(b, -n*top) - 1) / (math.Pow(b, -top) - 1) * top
		return math.Clamp(z, 0, top)
	}
	return n * top
}

// timeSlices returns the two slices bracketing the given time and the
// fraction of the way from the first to the second.
func (s *Sampler) timeSlices(time float64) (int, int, float64) {
	n := s.Data.Dims.Slices
	if n == 1 || s.TimeStep <= 0 {
		return 0, 0, 0
	}

	// The offset shifts the fraction along with the index so the blend
	// stays continuous across slice boundaries.
	t := time + s.TimeOffset
	s0 := int(math.Mod(math.Floor(t/s.TimeStep), float64(n)))
	s0 = math.WrapIndex(s0, n)
	return s0, (s0 + 1) % n, math.Mod(t, s.TimeStep) / s.TimeStep
}

// bracket splits continuous coordinate c along an axis of n samples into
// the two neighboring indices and the fractional offset between them.
func bracket(c float64, n int) (int, int, float64) {
	if n == 1 {
		return 0, 0, 0
	}
	i := min(int(math.Floor(c)), n-2)
	i = max(i, 0)
	return i, i + 1, math.Clamp(c-float64(i), 0, 1)
}

// LogLerp interpolates x of the way between a and b in the log domain,
// so that halfway between 100 and 25 is 50. It falls back to linear
// interpolation if either value is at or near zero.
func LogLerp(x, a, b float64) float64 {
	const eps = 1e-12
	if a <= eps || b <= eps {
		return math.Lerp(x, a, b)
	}
	return a * math.Exp(-math.Lerp(x, 0, math.Log(a/b)))
}
