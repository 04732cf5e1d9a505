// atmos/sun_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	gomath "math"
	"testing"

	"github.com/atmofield/atmofield/math"
)

func TestSunBlend(t *testing.T) {
	up := math.Vec3{0, 0, 1}
	sun := math.Vec3{1, 0, 0}

	for _, c := range []struct {
		name   string
		lag    float64
		normal math.Vec3
		expect float64
	}{
		{"subsolar", 0, math.Vec3{1, 0, 0}, 1},
		{"antisolar", 0, math.Vec3{-1, 0, 0}, 0},
		{"terminator", 0, math.Vec3{0, 1, 0}, 0.5},
		{"noon at 45N", 0, math.SphericalToVec3(45, 0), 1},
		{"midnight at 45N", 0, math.SphericalToVec3(45, 180), 0},
		{"lagged", -90, math.Vec3{0, 1, 0}, 1},
		{"unnormalized", 0, math.Vec3{3, 0, 0}, 1},
		// At the pole t1 == n1 and f is n1+0.5, clamped.
		{"pole", 0, math.Vec3{0, 0, 1}, 1},
	} {
		t.Run(c.name, func(t *testing.T) {
			f := SunGeometry{LagAngle: c.lag}.Blend(up, sun, c.normal)
			if gomath.Abs(f-c.expect) > 1e-6 {
				t.Errorf("got %f, expected %f", f, c.expect)
			}
		})
	}

	// With the sun over the pole, n1 = 1 so f = 1.5 before clamping.
	if f := (SunGeometry{}).Blend(up, up, up); f != 1 {
		t.Errorf("sun over pole: got %f, expected 1", f)
	}
	// With the sun under the pole, the degenerate case gives 0.5.
	if f := (SunGeometry{}).Blend(up, up.Scale(-1), up); gomath.Abs(f-0.5) > 1e-6 {
		t.Errorf("sun under pole: got %f, expected 0.5", f)
	}

	if f := (SunGeometry{}).Blend(up, math.Vec3{gomath.NaN(), 0, 0}, up); f != 0 {
		t.Errorf("NaN sun: got %f, expected 0", f)
	}
}

func TestSunBlendRange(t *testing.T) {
	up := math.Vec3{0, 0.2, 1}
	sun := math.Vec3{0.7, -0.3, 0.1}
	for lat := -90.0; lat <= 90; lat += 15 {
		for lon := -180.0; lon < 180; lon += 20 {
			for _, lag := range []float64{-30, 0, 45} {
				f := SunGeometry{LagAngle: lag}.Blend(up, sun, math.SphericalToVec3(lat, lon))
				if f < 0 || f > 1 || gomath.IsNaN(f) {
					t.Errorf("lat %f lon %f lag %f: f = %f", lat, lon, lag, f)
				}
			}
		}
	}
}

func TestOrbitalSun(t *testing.T) {
	b := Body{Name: "kerbin", Sun: OrbitalSun{RotationPeriod: 100}}

	// At true anomaly 180 the sun is on +x, over longitude 0 at time 0.
	p := Point{TrueAnomaly: 180}
	if f := b.SunBlend(p); gomath.Abs(f-1) > 1e-6 {
		t.Errorf("noon: got %f, expected 1", f)
	}
	p.Time = 50
	if f := b.SunBlend(p); gomath.Abs(f) > 1e-6 {
		t.Errorf("half a day later: got %f, expected 0", f)
	}
	p.Time = 100
	if f := b.SunBlend(p); gomath.Abs(f-1) > 1e-6 {
		t.Errorf("a day later: got %f, expected 1", f)
	}

	b.Sun = OrbitalSun{InitialRotation: 90}
	if f := b.SunBlend(Point{Lon: 90, TrueAnomaly: 180}); gomath.Abs(f-1) > 1e-6 {
		t.Errorf("initial rotation: got %f, expected 1", f)
	}

	b.Sun = nil
	if f := b.SunBlend(p); f != 0.5 {
		t.Errorf("no sun: got %f, expected 0.5", f)
	}
	if _, _, _, ok := (OrbitalSun{}).SunVectors(Point{Lat: gomath.NaN()}); ok {
		t.Errorf("expected !ok for NaN latitude")
	}
}
