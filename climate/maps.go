// climate/maps.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package climate

import (
	"context"
	"sync/atomic"

	"github.com/atmofield/atmofield/atmos"
	"github.com/atmofield/atmofield/raster"
)

// mapSource is an image file plus the settings used to sample it.
type mapSource struct {
	path     string
	settings raster.Map
	m        atomic.Pointer[raster.Map]
}

func (s *mapSource) initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := rasters.Get(s.path, func() (*raster.Map, error) { return raster.Load(s.path) })
	if err != nil {
		return err
	}
	s.m.Store(img.WithSettings(s.settings))
	return nil
}

// value samples the map, or returns 0 if it hasn't been loaded.
func (s *mapSource) value(p atmos.Point) float64 {
	m := s.m.Load()
	if m == nil {
		return 0
	}
	return m.Sample(p.Lon, p.Lat, p.Alt, p.Time, p.TrueAnomaly, p.Eccentricity)
}

// MapModifier is a flat or fractional modifier of a single quantity
// whose value comes from a grayscale map. Only the image's pixels are
// used from the file; settings gives its scaling, curves, and timing.
type MapModifier struct {
	Quantity   atmos.Quantity
	Fractional bool
	src        mapSource
}

func NewMapModifier(path string, q atmos.Quantity, fractional bool, settings raster.Map) (*MapModifier, error) {
	if path == "" {
		return nil, &atmos.ConfigError{Modifier: "MapModifier", Field: "path"}
	}
	m := &MapModifier{Quantity: q, Fractional: fractional}
	m.src.path, m.src.settings = path, settings
	return m, nil
}

func (m *MapModifier) Path() string { return m.src.path }

func (m *MapModifier) Initialize(ctx context.Context) error { return m.src.initialize(ctx) }

func (m *MapModifier) Value(p atmos.Point) float64 { return m.src.value(p) }

// Attach registers the modifier into the body's list for its quantity.
func (m *MapModifier) Attach(reg *atmos.Registry, body string) error {
	if m.Fractional {
		return reg.AddFractional(body, m.Quantity, m)
	}
	return reg.AddFlat(body, m.Quantity, m)
}

// IntakeChoke gives the air intake choke factor from a grayscale map,
// e.g. for dust storms.
type IntakeChoke struct {
	src mapSource
}

func NewIntakeChoke(path string, settings raster.Map) (*IntakeChoke, error) {
	if path == "" {
		return nil, &atmos.ConfigError{Modifier: "IntakeChoke", Field: "path"}
	}
	c := &IntakeChoke{}
	c.src.path, c.src.settings = path, settings
	return c, nil
}

func (c *IntakeChoke) Initialize(ctx context.Context) error { return c.src.initialize(ctx) }

func (c *IntakeChoke) ChokeFactor(p atmos.Point) float64 { return c.src.value(p) }

// ToxicAtmosphere marks the atmosphere unsafe to breathe below Ceiling
// meters, optionally only between MinLat and MaxLat.
type ToxicAtmosphere struct {
	Ceiling        float64
	MinLat, MaxLat float64
}

func NewToxicAtmosphere(ceiling float64) *ToxicAtmosphere {
	return &ToxicAtmosphere{Ceiling: ceiling, MinLat: -90, MaxLat: 90}
}

func (t *ToxicAtmosphere) Unsafe(p atmos.Point) bool {
	return p.Alt < t.Ceiling && p.Lat >= t.MinLat && p.Lat <= t.MaxLat
}
