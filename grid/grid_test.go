// grid/grid_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package grid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	gomath "math"
	"os"
	"path/filepath"
	"testing"
)

// makeTestDataset returns a dataset where every value encodes its own
// indices so that lookups are easy to verify.
func makeTestDataset(dims Dims) *Dataset {
	d := NewDataset(dims)
	for s := range dims.Slices {
		for z := range dims.Alt {
			for y := range dims.Lat {
				for x := range dims.Lon {
					d.Set(s, z, y, x, float32(1000*s+100*z+10*y+x+1))
				}
			}
		}
	}
	return d
}

func binaryFor(t *testing.T, d *Dataset) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, d.Values); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadBinary(t *testing.T) {
	dims := Dims{Lon: 4, Lat: 3, Alt: 2, Slices: 2}
	want := makeTestDataset(dims)
	raw := binaryFor(t, want)

	t.Run("plain", func(t *testing.T) {
		d, err := ReadBinary(bytes.NewReader(raw), dims, LoadOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.At(1, 1, 2, 3) != want.At(1, 1, 2, 3) {
			t.Errorf("got %f, want %f", d.At(1, 1, 2, 3), want.At(1, 1, 2, 3))
		}
	})

	t.Run("offset", func(t *testing.T) {
		src := append([]byte{0xde, 0xad, 0xbe}, raw...)
		d, err := ReadBinary(bytes.NewReader(src), dims, LoadOptions{Offset: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.At(0, 0, 0, 0) != 1 {
			t.Errorf("first value %f, want 1", d.At(0, 0, 0, 0))
		}
	})

	t.Run("invert altitude", func(t *testing.T) {
		d, err := ReadBinary(bytes.NewReader(raw), dims, LoadOptions{InvertAltitude: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.At(0, 0, 1, 2) != want.At(0, 1, 1, 2) || d.At(1, 1, 0, 0) != want.At(1, 0, 0, 0) {
			t.Errorf("altitude layers not reversed")
		}
	})

	t.Run("short", func(t *testing.T) {
		_, err := ReadBinary(bytes.NewReader(raw[:len(raw)-2]), dims, LoadOptions{})
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("expected *FormatError, got %v", err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("expected io.ErrUnexpectedEOF in chain, got %v", err)
		}
	})

	t.Run("short offset", func(t *testing.T) {
		_, err := ReadBinary(bytes.NewReader(raw[:2]), dims, LoadOptions{Offset: 16})
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
		}
	})

	t.Run("bad dims", func(t *testing.T) {
		if _, err := ReadBinary(bytes.NewReader(raw), Dims{Lon: 4}, LoadOptions{}); err == nil {
			t.Errorf("expected error for zero dimensions")
		}
	})
}

func TestOpen(t *testing.T) {
	dims := Dims{Lon: 3, Lat: 2, Alt: 2, Slices: 1}
	want := makeTestDataset(dims)
	dir := t.TempDir()

	rawPath := filepath.Join(dir, "temperature.bin")
	if err := os.WriteFile(rawPath, binaryFor(t, want), 0o600); err != nil {
		t.Fatal(err)
	}
	packedPath := filepath.Join(dir, "temperature"+PackedSuffix)
	f, err := os.Create(packedPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := want.WritePacked(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	for _, path := range []string{rawPath, packedPath} {
		d, err := Open(path, dims, LoadOptions{})
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if d.Dims != dims || d.At(0, 1, 1, 2) != want.At(0, 1, 1, 2) {
			t.Errorf("%s: mismatched contents", path)
		}
	}

	if _, err := Open(packedPath, Dims{Lon: 9, Lat: 2, Alt: 2, Slices: 1}, LoadOptions{}); err == nil {
		t.Errorf("expected dimension mismatch error")
	}

	_, err = Open(rawPath, Dims{Lon: 3, Lat: 2, Alt: 2, Slices: 2}, LoadOptions{})
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Name != rawPath {
		t.Errorf("expected *FormatError naming %s, got %v", rawPath, err)
	}
}

func TestLogLerp(t *testing.T) {
	if v := LogLerp(0.5, 100, 25); gomath.Abs(v-50) > 1e-9 {
		t.Errorf("LogLerp(0.5, 100, 25) = %g, want 50", v)
	}
	if v := LogLerp(0, 100, 25); gomath.Abs(v-100) > 1e-9 {
		t.Errorf("LogLerp(0, 100, 25) = %g, want 100", v)
	}
	if v := LogLerp(1, 100, 25); gomath.Abs(v-25) > 1e-9 {
		t.Errorf("LogLerp(1, 100, 25) = %g, want 25", v)
	}
	// Degrades to linear at zero.
	if v := LogLerp(0.5, 100, 0); v != 50 {
		t.Errorf("LogLerp(0.5, 100, 0) = %g, want 50", v)
	}
}

func testSampler(dims Dims) *Sampler {
	return &Sampler{
		Data:            makeTestDataset(dims),
		ModelTop:        10000,
		AtmosphereDepth: 70000,
		TimeStep:        3600,
	}
}

func TestSampleLattice(t *testing.T) {
	dims := Dims{Lon: 8, Lat: 5, Alt: 3, Slices: 4}
	s := testSampler(dims)
	s.LonOffset = 15
	s.TimeOffset = 600

	for slice := range dims.Slices {
		for z := range dims.Alt {
			for y := range dims.Lat {
				for x := range dims.Lon {
					lon := float64(x)*360/float64(dims.Lon) - 180 - s.LonOffset
					lat := 90 - float64(y)*180/float64(dims.Lat-1)
					alt := float64(z) / float64(dims.Alt-1) * s.ModelTop
					tm := float64(slice)*s.TimeStep - s.TimeOffset

					got := s.Sample(lon, lat, alt, tm)
					want := float64(s.Data.At(slice, z, y, x))
					if gomath.Abs(got-want) > 1e-6 {
						t.Errorf("lattice (%d,%d,%d,%d): got %f, want %f", slice, z, y, x, got, want)
					}
				}
			}
		}
	}
}

func TestSampleWraps(t *testing.T) {
	s := testSampler(Dims{Lon: 6, Lat: 4, Alt: 2, Slices: 3})

	for _, p := range [][3]float64{{10, 0, 500}, {-45, 33, 2000}, {123, -80, 9000}} {
		lat, alt, tm := p[1], p[2], 1234.5
		if a, b := s.Sample(360, lat, alt, tm), s.Sample(0, lat, alt, tm); gomath.Abs(a-b) > 1e-9 {
			t.Errorf("lon 360 %f != lon 0 %f", a, b)
		}
		if a, b := s.Sample(p[0]-720, lat, alt, tm), s.Sample(p[0], lat, alt, tm); gomath.Abs(a-b) > 1e-9 {
			t.Errorf("lon %f-720: %f != %f", p[0], a, b)
		}
		period := float64(s.Data.Dims.Slices) * s.TimeStep
		if a, b := s.Sample(p[0], lat, alt, period), s.Sample(p[0], lat, alt, 0); gomath.Abs(a-b) > 1e-9 {
			t.Errorf("time wrap: %f != %f", a, b)
		}
		if a, b := s.Sample(p[0], lat, alt, tm+5*period), s.Sample(p[0], lat, alt, tm); gomath.Abs(a-b) > 1e-6 {
			t.Errorf("time wrap +5 periods: %f != %f", a, b)
		}
	}
}

func TestSampleTimeOffsetContinuous(t *testing.T) {
	s := testSampler(Dims{Lon: 4, Lat: 3, Alt: 2, Slices: 3})
	s.TimeOffset = s.TimeStep / 3

	// Slice boundaries fall where time+offset is a multiple of the step;
	// the blend fraction rolls over there too.
	for k := 1; k <= 3; k++ {
		edge := float64(k)*s.TimeStep - s.TimeOffset
		eps := 1e-6 * s.TimeStep
		before, after := s.Sample(10, 20, 100, edge-eps), s.Sample(10, 20, 100, edge+eps)
		if gomath.Abs(before-after) > 0.01 {
			t.Errorf("boundary %d: %f before, %f after", k, before, after)
		}
	}
}

func TestSampleInterpolates(t *testing.T) {
	s := testSampler(Dims{Lon: 4, Lat: 3, Alt: 2, Slices: 2})

	// Halfway between columns 0 and 1 on the equator, surface, slice 0.
	lon := -180 + 45.0
	got := s.Sample(lon, 0, 0, 0)
	want := (float64(s.Data.At(0, 0, 1, 0)) + float64(s.Data.At(0, 0, 1, 1))) / 2
	if gomath.Abs(got-want) > 1e-9 {
		t.Errorf("lon midpoint: got %f, want %f", got, want)
	}

	// Halfway through the first time step.
	got = s.Sample(-180, 0, 0, s.TimeStep/2)
	want = (float64(s.Data.At(0, 0, 1, 0)) + float64(s.Data.At(1, 0, 1, 0))) / 2
	if gomath.Abs(got-want) > 1e-9 {
		t.Errorf("time midpoint: got %f, want %f", got, want)
	}

	// Last column blends back to the first.
	got = s.Sample(-180+315, 0, 0, 0)
	want = (float64(s.Data.At(0, 0, 1, 3)) + float64(s.Data.At(0, 0, 1, 0))) / 2
	if gomath.Abs(got-want) > 1e-9 {
		t.Errorf("seam: got %f, want %f", got, want)
	}
}

func TestSampleClampsAndNaN(t *testing.T) {
	s := testSampler(Dims{Lon: 4, Lat: 3, Alt: 2, Slices: 2})

	if a, b := s.Sample(0, 95, 0, 0), s.Sample(0, 90, 0, 0); a != b {
		t.Errorf("latitude beyond the pole should clamp: %f != %f", a, b)
	}
	if a, b := s.Sample(0, 0, -500, 0), s.Sample(0, 0, 0, 0); a != b {
		t.Errorf("negative altitude should clamp: %f != %f", a, b)
	}
	if a, b := s.Sample(0, 0, 1e9, -1e12), s.Sample(0, 0, s.ModelTop, -1e12); a != b {
		t.Errorf("altitude beyond the top should clamp without a fallback: %f != %f", a, b)
	}
	for _, v := range []float64{gomath.NaN(), gomath.Inf(1)} {
		if !gomath.IsNaN(s.Sample(v, 0, 0, 0)) || !gomath.IsNaN(s.Sample(0, 0, 0, v)) {
			t.Errorf("non-finite input %f should give NaN", v)
		}
	}
}

func TestAltitudeLayer(t *testing.T) {
	s := testSampler(Dims{Lon: 1, Lat: 1, Alt: 11, Slices: 1})

	if z := s.AltitudeLayer(0.5); z != 5 {
		t.Errorf("linear: got %f, want 5", z)
	}

	s.VerticalScale = 1.5
	if z := s.AltitudeLayer(0); z != 0 {
		t.Errorf("scaled bottom: got %f", z)
	}
	if z := s.AltitudeLayer(1); gomath.Abs(z-10) > 1e-9 {
		t.Errorf("scaled top: got %f", z)
	}
	n := 0.5
	want := (gomath.Pow(1.5, -n*10) - 1) / (gomath.Pow(1.5, -10) - 1) * 10
	if z := s.AltitudeLayer(n); gomath.Abs(z-want) > 1e-9 || z <= 5 {
		t.Errorf("scaled midpoint: got %f, want %f (> 5)", z, want)
	}
}

func TestSampleLogAltitude(t *testing.T) {
	d := NewDataset(Dims{Lon: 1, Lat: 1, Alt: 2, Slices: 1})
	d.Set(0, 0, 0, 0, 100)
	d.Set(0, 1, 0, 0, 25)
	s := &Sampler{Data: d, ModelTop: 1000, AtmosphereDepth: 1000, LogAltitude: true}

	if v := s.Sample(0, 0, 500, 0); gomath.Abs(v-50) > 1e-6 {
		t.Errorf("log altitude midpoint: got %f, want 50", v)
	}
	s.LogAltitude = false
	if v := s.Sample(0, 0, 500, 0); gomath.Abs(v-62.5) > 1e-6 {
		t.Errorf("linear altitude midpoint: got %f, want 62.5", v)
	}
}

func TestSampleAboveModelTop(t *testing.T) {
	d := NewDataset(Dims{Lon: 1, Lat: 1, Alt: 2, Slices: 1})
	d.Set(0, 0, 0, 0, 300)
	d.Set(0, 1, 0, 0, 200)
	s := &Sampler{
		Data:            d,
		ModelTop:        10000,
		AtmosphereDepth: 20000,
		Above: &Fallback{
			Exponent: TemperatureBlendExponent,
			Value:    func(alt float64) float64 { return 100 },
		},
	}

	// Continuous at the model top.
	if v := s.Sample(0, 0, 10000, 0); gomath.Abs(v-200) > 1e-9 {
		t.Errorf("at model top: got %f, want 200", v)
	}
	// A quarter of the way up, the weight is sqrt(0.25) = 0.5.
	if v := s.Sample(0, 0, 12500, 0); gomath.Abs(v-150) > 1e-9 {
		t.Errorf("above model top: got %f, want 150", v)
	}
	if v := s.Sample(0, 0, 30000, 0); gomath.Abs(v-100) > 1e-9 {
		t.Errorf("beyond the atmosphere: got %f, want 100", v)
	}
}
