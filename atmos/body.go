// atmos/body.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"github.com/atmofield/atmofield/math"
)

// Body describes a simulated celestial body: its native analytic
// atmosphere, used whenever no base provider gives a value, and the
// curves that drive the sun-relative temperature bias.
type Body struct {
	Name string
	// AtmosphereDepth is the altitude in meters where the atmosphere ends.
	AtmosphereDepth float64
	Native          Native
	Curves          TemperatureCurves
	// LagAngle rotates the surface normal about the body's axis before
	// it is compared with the sun direction, so that the warmest point
	// trails the subsolar point.
	LagAngle float64
	// Sun is optional; without it the sun blend factor is 0.5.
	Sun SunSource
}

// Native is a body's analytic atmosphere model.
type Native interface {
	Pressure(alt float64) float64
	Temperature(alt float64) float64
	MolarMass() float64
	AdiabaticIndex() float64
}

// TemperatureCurves are the curves of the temperature offset. SunMult is
// indexed by altitude, LatitudeBias, LatitudeSunMult and AxialSunMult by
// absolute latitude, AxialSunBias by true anomaly and EccentricityBias by
// the eccentricity parameter. Nil curves evaluate to zero.
type TemperatureCurves struct {
	SunMult          *math.Curve
	LatitudeBias     *math.Curve
	LatitudeSunMult  *math.Curve
	AxialSunBias     *math.Curve
	AxialSunMult     *math.Curve
	EccentricityBias *math.Curve
}

func (b *Body) native(q Quantity, alt float64) float64 {
	if b.Native == nil {
		return 0
	}
	var v float64
	switch q {
	case Pressure:
		v = b.Native.Pressure(alt)
	case Temperature:
		v = b.Native.Temperature(alt)
	case MolarMass:
		v = b.Native.MolarMass()
	case AdiabaticIndex:
		v = b.Native.AdiabaticIndex()
	}
	if !math.IsFinite(v) {
		return 0
	}
	return v
}

const gasConstant = 8.31446261815324 // J/(mol K)

// StandardAtmosphere is a troposphere with a constant lapse rate capped
// by an isothermal layer once MinTemperature is reached. Pressures are in
// kPa and temperatures in Kelvin.
type StandardAtmosphere struct {
	SeaLevelPressure    float64 `json:"sea_level_pressure"`
	SeaLevelTemperature float64 `json:"sea_level_temperature"`
	LapseRate           float64 `json:"lapse_rate"` // K/m
	MinTemperature      float64 `json:"min_temperature"`
	Gravity             float64 `json:"gravity"`        // m/s^2
	AirMolarMass        float64 `json:"molar_mass"`     // kg/mol
	Gamma               float64 `json:"adiabatic_index"`
	// Depth, if positive, is the altitude above which pressure is zero.
	Depth float64 `json:"depth,omitempty"`
}

// EarthStandardAtmosphere is the ISA troposphere and lower stratosphere.
var EarthStandardAtmosphere = StandardAtmosphere{
	SeaLevelPressure:    101.325,
	SeaLevelTemperature: 288.15,
	LapseRate:           0.0065,
	MinTemperature:      216.65,
	Gravity:             9.80665,
	AirMolarMass:        0.0289644,
	Gamma:               1.4,
	Depth:               70000,
}

func (s StandardAtmosphere) tropopause() (alt, temp float64) {
	tmin := s.MinTemperature
	if tmin <= 0 || tmin >= s.SeaLevelTemperature {
		tmin = 1
	}
	return (s.SeaLevelTemperature - tmin) / s.LapseRate, tmin
}

func (s StandardAtmosphere) Temperature(alt float64) float64 {
	if s.LapseRate <= 0 {
		return s.SeaLevelTemperature
	}
	_, tmin := s.tropopause()
	return max(s.SeaLevelTemperature-s.LapseRate*alt, tmin)
}

func (s StandardAtmosphere) Pressure(alt float64) float64 {
	if s.Depth > 0 && alt >= s.Depth {
		return 0
	}
	gm := s.Gravity * s.AirMolarMass
	if s.LapseRate <= 0 {
		return s.SeaLevelPressure * math.Exp(-gm*alt/(gasConstant*s.SeaLevelTemperature))
	}

	// Barometric formula: P = P0 * (T/T0)^(g*M/(R*L))
	exp := gm / (gasConstant * s.LapseRate)
	htrop, ttrop := s.tropopause()
	if alt <= htrop {
		return s.SeaLevelPressure * math.Pow((s.SeaLevelTemperature-s.LapseRate*alt)/s.SeaLevelTemperature, exp)
	}
	ptrop := s.SeaLevelPressure * math.Pow(ttrop/s.SeaLevelTemperature, exp)
	return ptrop * math.Exp(-gm*(alt-htrop)/(gasConstant*ttrop))
}

func (s StandardAtmosphere) MolarMass() float64      { return s.AirMolarMass }
func (s StandardAtmosphere) AdiabaticIndex() float64 { return s.Gamma }

// SunSource gives the geometry needed for the sun blend factor at a
// point: the body's rotation axis, the direction to the sun, and the
// surface normal, all in the same frame. ok is false if the sun is not
// known for the point.
type SunSource interface {
	SunVectors(p Point) (up, sun, normal math.Vec3, ok bool)
}
