// raster/raster.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package raster samples 2-D grayscale maps laid over a body's surface,
// scaled by altitude, time, and orbital-position curves.
package raster

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/atmofield/atmofield/math"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Map is a grayscale raster covering the full sphere: columns span
// longitude -180 to 180 (wrapping), row 0 is the north pole and the last
// row the south pole. Maps are read-only after setup.
type Map struct {
	Width, Height int
	// Pixels holds luminance in [0,1], row-major from the top.
	Pixels []float32

	// Deformity is the value range the [0,1] gray level is scaled to;
	// Offset is added afterward.
	Deformity float64
	Offset    float64

	// Multiplier curves; a nil curve contributes a factor of 1.
	AltitudeCurve     *math.Curve
	TimeCurve         *math.Curve
	TrueAnomalyCurve  *math.Curve
	EccentricityCurve *math.Curve

	// TimeLoop, if positive, is the period of the time curve in seconds.
	TimeLoop float64
	// ScrollPeriod, if non-zero, is the time in seconds for the map to
	// drift eastward once around the body; negative drifts westward.
	ScrollPeriod float64
}

// Decode reads an image in any registered format (PNG, JPEG, GIF, BMP,
// TIFF) and returns a Map with its luminance; the remaining fields are
// left for the caller to set.
func Decode(r io.Reader) (*Map, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("%s image has no pixels", format)
	}

	m := &Map{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Pixels:    make([]float32, b.Dx()*b.Dy()),
		Deformity: 1,
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			m.Pixels[(x-b.Min.X)+(y-b.Min.Y)*m.Width] = float32(g.Y) / 0xffff
		}
	}
	return m, nil
}

// Load decodes the image in the given file.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WithSettings returns a copy of m that shares its pixels but takes its
// scaling, curves, and timing from s. This lets several modifiers use the
// same decoded image with their own settings.
func (m *Map) WithSettings(s Map) *Map {
	s.Width, s.Height, s.Pixels = m.Width, m.Height, m.Pixels
	return &s
}

func evalOr1(c *math.Curve, t float64) float64 {
	if c.Empty() {
		return 1
	}
	return c.Evaluate(t)
}

// Multiplier returns the product of the map's curves.
func (m *Map) Multiplier(alt, time, trueAnomaly, ecc float64) float64 {
	tt := time
	if m.TimeLoop > 0 {
		tt = math.Mod(time, m.TimeLoop)
	}
	return evalOr1(m.AltitudeCurve, alt) * evalOr1(m.TimeCurve, tt) *
		evalOr1(m.TrueAnomalyCurve, trueAnomaly) * evalOr1(m.EccentricityCurve, ecc)
}

// Gray returns the bilinearly interpolated luminance at the given
// longitude and latitude in degrees.
func (m *Map) Gray(lon, lat float64) float64 {
	x := math.Wrap01((lon+180)/360) * float64(m.Width)
	x0 := int(math.Floor(x))
	fx := x - float64(x0)
	x0 = math.WrapIndex(x0, m.Width)
	x1 := math.WrapIndex(x0+1, m.Width)

	y := math.Clamp((90-lat)/180, 0, 1) * float64(m.Height-1)
	y0 := max(0, min(int(math.Floor(y)), m.Height-2))
	y1 := min(y0+1, m.Height-1)
	fy := math.Clamp(y-float64(y0), 0, 1)

	at := func(x, y int) float64 { return float64(m.Pixels[x+y*m.Width]) }
	return math.Bilerp(fx, fy, at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1))
}

// Sample returns (gray*Deformity + Offset) scaled by the map's curves, or
// zero if the curves zero it out or the result is not finite.
func (m *Map) Sample(lon, lat, alt, time, trueAnomaly, ecc float64) float64 {
	mult := m.Multiplier(alt, time, trueAnomaly, ecc)
	if mult == 0 || !math.IsFinite(mult) {
		return 0
	}
	if !math.IsFinite(lon) || !math.IsFinite(lat) {
		return 0
	}

	if m.ScrollPeriod != 0 && math.IsFinite(time) {
		lon -= math.Mod(time/m.ScrollPeriod*360, 360)
	}

	v := (m.Gray(lon, lat)*m.Deformity + m.Offset) * mult
	if !math.IsFinite(v) {
		return 0
	}
	return v
}
