// atmos/sun.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"github.com/atmofield/atmofield/math"
)

// degenerateSpan is the smallest t1-n1 span that Blend will divide by.
const degenerateSpan = 1e-3

// SunGeometry computes how closely a point faces the sun relative to the
// best and worst alignment it could have at the current sun declination.
type SunGeometry struct {
	// LagAngle in degrees rotates the surface normal about the up axis.
	LagAngle float64
}

// Blend returns the sun alignment factor in [0,1]: 1 where the
// lag-rotated normal is as close to the sun as the point's latitude
// allows, 0 where it is furthest.
func (g SunGeometry) Blend(up, sun, normal math.Vec3) float64 {
	up, sun, normal = up.Normalize(), sun.Normalize(), normal.Normalize()

	a := math.SafeACos(up.Dot(sun))
	b := math.SafeACos(up.Dot(normal))
	t1 := (1 + math.Cos(a-b)) / 2
	n1 := (1 + math.Cos(a+b)) / 2

	sunmult := (1 + sun.Dot(normal.RotateAbout(up, g.LagAngle))) / 2

	var f float64
	if math.Abs(t1-n1) > degenerateSpan {
		f = (sunmult - n1) / (t1 - n1)
	} else {
		f = n1 + 0.5
	}
	if !math.IsFinite(f) {
		if sunmult-0.5 > 0 {
			f = 1
		} else {
			f = 0
		}
	}
	return math.Clamp(f, 0, 1)
}

// OrbitalSun is a SunSource for a body on a circular orbit in the xy
// plane with its rotation axis tilted toward -y by AxialTilt degrees.
// The sun is at the origin; true anomaly 0 puts the body on +x.
type OrbitalSun struct {
	// RotationPeriod is the sidereal day in seconds; zero means the body
	// does not rotate.
	RotationPeriod float64 `json:"rotation_period"`
	// InitialRotation is the longitude in degrees facing +x at time 0
	// (before tilt).
	InitialRotation float64 `json:"initial_rotation"`
	AxialTilt       float64 `json:"axial_tilt"`
}

var xAxis = math.Vec3{1, 0, 0}

func (o OrbitalSun) SunVectors(p Point) (up, sun, normal math.Vec3, ok bool) {
	if !p.IsFinite() {
		return
	}

	rot := -o.InitialRotation
	if o.RotationPeriod != 0 {
		rot += math.Mod(p.Time/o.RotationPeriod, 1) * 360
	}

	up = math.Vec3{0, 0, 1}.RotateAbout(xAxis, o.AxialTilt)
	normal = math.SphericalToVec3(p.Lat, p.Lon+rot).RotateAbout(xAxis, o.AxialTilt)
	ta := math.Radians(p.TrueAnomaly)
	sun = math.Vec3{-math.Cos(ta), -math.Sin(ta), 0}
	return up, sun, normal, true
}
