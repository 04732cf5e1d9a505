// math/vec3.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import "fmt"

///////////////////////////////////////////////////////////////////////////
// Vec3

// Vec3 is used both for geometry (unit vectors in a body-centered frame)
// and for wind, where the components are east, north and up in m/s.
type Vec3 [3]float64

// a+b
func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// a-b
func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// a*s
func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{s * a[0], s * a[1], s * a[2]}
}

func (a Vec3) Dot(b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a Vec3) Length() float64 {
	return Sqrt(a.Dot(a))
}

// Normalize returns a unit vector in the direction of a, or the zero
// vector if a has zero length.
func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

func (a Vec3) IsFinite() bool {
	return IsFinite(a[0]) && IsFinite(a[1]) && IsFinite(a[2])
}

// RotateAbout rotates v by angle degrees around the given axis (which
// need not be normalized) using Rodrigues' formula; positive angles are
// counter-clockwise looking down the axis.
func (v Vec3) RotateAbout(axis Vec3, angle float64) Vec3 {
	k := axis.Normalize()
	s, c := Sin(Radians(angle)), Cos(Radians(angle))
	return v.Scale(c).Add(k.Cross(v).Scale(s)).Add(k.Scale(k.Dot(v) * (1 - c)))
}

// SphericalToVec3 returns the unit vector for the given latitude and
// longitude in degrees; +z is the north pole and +x points at longitude 0.
func SphericalToVec3(lat, lon float64) Vec3 {
	clat := Cos(Radians(lat))
	return Vec3{clat * Cos(Radians(lon)), clat * Sin(Radians(lon)), Sin(Radians(lat))}
}

func (a Vec3) String() string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", a[0], a[1], a[2])
}
