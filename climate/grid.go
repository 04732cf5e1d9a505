// climate/grid.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package climate provides modifiers backed by gridded datasets and
// raster maps.
package climate

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/atmofield/atmofield/atmos"
	"github.com/atmofield/atmofield/grid"
	"github.com/atmofield/atmofield/math"
	"github.com/atmofield/atmofield/raster"
	"github.com/atmofield/atmofield/util"

	"golang.org/x/sync/errgroup"
)

// Decoded datasets and images are shared by every modifier (and body)
// that uses the same file.
var (
	datasets = util.NewLoadCache[*grid.Dataset](16)
	rasters  = util.NewLoadCache[*raster.Map](32)
)

// PurgeCaches drops all cached datasets and images; modifiers that have
// already loaded keep theirs.
func PurgeCaches() {
	datasets.Purge()
	rasters.Purge()
}

// GridSource describes a gridded dataset file and how it lies over a
// body.
type GridSource struct {
	Path string `json:"path"`
	// Dims may be omitted for packed datasets.
	Dims           grid.Dims `json:"dims"`
	Offset         int64     `json:"offset,omitempty"`
	InvertAltitude bool      `json:"invert_altitude,omitempty"`

	ModelTop      float64 `json:"model_top"`
	LonOffset     float64 `json:"lon_offset,omitempty"`
	TimeStep      float64 `json:"time_step,omitempty"`
	TimeOffset    float64 `json:"time_offset,omitempty"`
	VerticalScale float64 `json:"vertical_scale,omitempty"`
}

func (s GridSource) packed() bool {
	return strings.HasSuffix(s.Path, grid.PackedSuffix)
}

func (s GridSource) validate(modifier, field string) error {
	if s.Path == "" {
		return &atmos.ConfigError{Modifier: modifier, Field: field + "path"}
	}
	if s.Dims == (grid.Dims{}) {
		if !s.packed() {
			return &atmos.ConfigError{Modifier: modifier, Field: field + "dims"}
		}
	} else if err := s.Dims.Validate(); err != nil {
		return &atmos.ConfigError{Modifier: modifier, Field: field + "dims", Err: err}
	}
	if s.Dims.Slices > 1 && s.TimeStep <= 0 {
		return &atmos.ConfigError{Modifier: modifier, Field: field + "time_step",
			Err: fmt.Errorf("must be positive for %d slices", s.Dims.Slices)}
	}
	return nil
}

func (s GridSource) load(ctx context.Context) (*grid.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := grid.LoadOptions{Offset: s.Offset, InvertAltitude: s.InvertAltitude}
	key := fmt.Sprintf("%s|%s|%d|%v", s.Path, s.Dims, s.Offset, s.InvertAltitude)
	return datasets.Get(key, func() (*grid.Dataset, error) {
		return grid.Open(s.Path, s.Dims, opts)
	})
}

func (s GridSource) sampler(ds *grid.Dataset, depth float64, above *grid.Fallback, logAlt bool) *grid.Sampler {
	return &grid.Sampler{
		Data:            ds,
		ModelTop:        s.ModelTop,
		AtmosphereDepth: depth,
		LonOffset:       s.LonOffset,
		TimeStep:        s.TimeStep,
		TimeOffset:      s.TimeOffset,
		VerticalScale:   s.VerticalScale,
		LogAltitude:     logAlt,
		Above:           above,
	}
}

func sample(s *grid.Sampler, p atmos.Point) float64 {
	if s == nil {
		return math.NaN()
	}
	return s.Sample(p.Lon, p.Lat, p.Alt, p.Time)
}

///////////////////////////////////////////////////////////////////////////
// GridPressure

// GridPressure is a base pressure provider backed by a dataset. Above
// the model top it blends into the body's native pressure. It gives NaN
// until initialized.
type GridPressure struct {
	Source  GridSource
	body    atmos.Body
	sampler atomic.Pointer[grid.Sampler]
}

func NewGridPressure(body atmos.Body, src GridSource) (*GridPressure, error) {
	if err := src.validate("GridPressure", ""); err != nil {
		return nil, err
	}
	return &GridPressure{Source: src, body: body}, nil
}

func (g *GridPressure) Initialize(ctx context.Context) error {
	ds, err := g.Source.load(ctx)
	if err != nil {
		return err
	}
	var above *grid.Fallback
	if g.body.Native != nil {
		above = &grid.Fallback{Exponent: grid.PressureBlendExponent, Value: g.body.Native.Pressure}
	}
	g.sampler.Store(g.Source.sampler(ds, g.body.AtmosphereDepth, above, true))
	return nil
}

func (g *GridPressure) BasePressure(p atmos.Point) float64 {
	return sample(g.sampler.Load(), p)
}

///////////////////////////////////////////////////////////////////////////
// GridTemperature

// GridTemperature is a base temperature provider backed by a dataset.
// Datasets that already account for some of the sun-relative bias terms
// should disable them.
type GridTemperature struct {
	Source         GridSource
	DisabledBiases atmos.BiasComponents
	body           atmos.Body
	sampler        atomic.Pointer[grid.Sampler]
}

func NewGridTemperature(body atmos.Body, src GridSource, disabled atmos.BiasComponents) (*GridTemperature, error) {
	if err := src.validate("GridTemperature", ""); err != nil {
		return nil, err
	}
	return &GridTemperature{Source: src, DisabledBiases: disabled, body: body}, nil
}

func (g *GridTemperature) Initialize(ctx context.Context) error {
	ds, err := g.Source.load(ctx)
	if err != nil {
		return err
	}
	var above *grid.Fallback
	if g.body.Native != nil {
		above = &grid.Fallback{Exponent: grid.TemperatureBlendExponent, Value: g.body.Native.Temperature}
	}
	g.sampler.Store(g.Source.sampler(ds, g.body.AtmosphereDepth, above, false))
	return nil
}

func (g *GridTemperature) BaseTemperature(p atmos.Point) float64 {
	return sample(g.sampler.Load(), p)
}

func (g *GridTemperature) TemperatureBiases() atmos.BiasComponents {
	return atmos.AllBiasComponents &^ g.DisabledBiases
}

///////////////////////////////////////////////////////////////////////////
// GridWind

// GridWind is a wind provider backed by up to three datasets giving the
// east, north and up components in m/s. The wind fades to zero between
// the model top and the top of the atmosphere.
type GridWind struct {
	East, North, Up GridSource
	// Scale multiplies the horizontal components and VerticalScale the
	// up component; zero means 1.
	Scale, VerticalScale float64

	depth    float64
	samplers atomic.Pointer[[3]*grid.Sampler]
}

// NewGridWind returns a GridWind; the up source may be left empty.
func NewGridWind(body atmos.Body, east, north, up GridSource) (*GridWind, error) {
	if err := east.validate("GridWind", "east."); err != nil {
		return nil, err
	}
	if err := north.validate("GridWind", "north."); err != nil {
		return nil, err
	}
	if up != (GridSource{}) {
		if err := up.validate("GridWind", "up."); err != nil {
			return nil, err
		}
	}
	return &GridWind{East: east, North: north, Up: up, depth: body.AtmosphereDepth}, nil
}

var windFade = &grid.Fallback{Exponent: 1, Value: func(float64) float64 { return 0 }}

// Initialize loads the component datasets concurrently.
func (w *GridWind) Initialize(ctx context.Context) error {
	var s [3]*grid.Sampler
	eg, ctx := errgroup.WithContext(ctx)
	for i, src := range []GridSource{w.East, w.North, w.Up} {
		if src.Path == "" {
			continue
		}
		eg.Go(func() error {
			ds, err := src.load(ctx)
			if err != nil {
				return err
			}
			s[i] = src.sampler(ds, w.depth, windFade, false)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	w.samplers.Store(&s)
	return nil
}

func scaleOr1(s float64) float64 {
	if s == 0 {
		return 1
	}
	return s
}

func (w *GridWind) Wind(p atmos.Point) math.Vec3 {
	s := w.samplers.Load()
	if s == nil {
		return math.Vec3{math.NaN(), math.NaN(), math.NaN()}
	}
	v := math.Vec3{sample(s[0], p) * scaleOr1(w.Scale), sample(s[1], p) * scaleOr1(w.Scale)}
	if s[2] != nil {
		v[2] = sample(s[2], p) * scaleOr1(w.VerticalScale)
	}
	return v
}
