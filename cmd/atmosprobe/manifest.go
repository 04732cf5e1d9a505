// cmd/atmosprobe/manifest.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/atmofield/atmofield/atmos"
	"github.com/atmofield/atmofield/climate"
	"github.com/atmofield/atmofield/math"
	"github.com/atmofield/atmofield/raster"
	"github.com/atmofield/atmofield/util"

	"github.com/brunoga/deep"
)

// Manifest describes the bodies to set up and the modifiers to register
// with each. Modifiers may be written out in full or refer to a template
// and override some of its fields.
type Manifest struct {
	Templates map[string]ModifierSpec `json:"templates"`
	Bodies    []BodySpec              `json:"bodies"`
}

type BodySpec struct {
	Name            string                    `json:"name"`
	AtmosphereDepth float64                   `json:"atmosphere_depth"`
	Native          *atmos.StandardAtmosphere `json:"native"`
	LagAngle        float64                   `json:"lag_angle"`
	Sun             *atmos.OrbitalSun         `json:"sun"`
	Curves          CurvesSpec                `json:"curves"`
	Modifiers       []json.RawMessage         `json:"modifiers"`
}

type CurvesSpec struct {
	SunMult          [][]float64 `json:"sun_mult"`
	LatitudeBias     [][]float64 `json:"latitude_bias"`
	LatitudeSunMult  [][]float64 `json:"latitude_sun_mult"`
	AxialSunBias     [][]float64 `json:"axial_sun_bias"`
	AxialSunMult     [][]float64 `json:"axial_sun_mult"`
	EccentricityBias [][]float64 `json:"eccentricity_bias"`
}

type ModifierSpec struct {
	Template string `json:"template,omitempty"`
	// One of grid_pressure, grid_temperature, grid_wind, map,
	// intake_choke, toxic.
	Type string `json:"type"`

	// grid_pressure, grid_temperature
	Grid          climate.GridSource `json:"grid"`
	DisableBiases []string           `json:"disable_biases,omitempty"`

	// grid_wind
	East          climate.GridSource `json:"east"`
	North         climate.GridSource `json:"north"`
	Up            climate.GridSource `json:"up"`
	Scale         float64            `json:"scale,omitempty"`
	VerticalScale float64            `json:"vertical_scale,omitempty"`

	// map, intake_choke
	Path              string      `json:"path,omitempty"`
	Quantity          string      `json:"quantity,omitempty"`
	Fractional        bool        `json:"fractional,omitempty"`
	Deformity         *float64    `json:"deformity,omitempty"`
	Offset            float64     `json:"offset,omitempty"`
	AltitudeCurve     [][]float64 `json:"altitude_curve,omitempty"`
	TimeCurve         [][]float64 `json:"time_curve,omitempty"`
	TrueAnomalyCurve  [][]float64 `json:"true_anomaly_curve,omitempty"`
	EccentricityCurve [][]float64 `json:"eccentricity_curve,omitempty"`
	TimeLoop          float64     `json:"time_loop,omitempty"`
	ScrollPeriod      float64     `json:"scroll_period,omitempty"`

	// toxic
	Ceiling float64 `json:"ceiling,omitempty"`
}

// LoadManifest reads a manifest from r. Duplicate keys and keys that
// don't name a manifest field are errors.
func LoadManifest(r io.Reader) (*Manifest, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var e util.ErrorLogger
	util.CheckJSONKeys(b, &e)
	if err := e.Err(); err != nil {
		return nil, err
	}

	var m Manifest
	if err := util.DecodeJSON(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Build defines each body in reg and registers its modifiers. Relative
// file paths are taken relative to dir. Problems are reported to e;
// modifiers with errors are not registered.
func (m *Manifest) Build(reg *atmos.Registry, dir string, e *util.ErrorLogger) {
	seen := make(map[string]bool)
	for _, bs := range m.Bodies {
		e.Push("body " + bs.Name)
		if bs.Name == "" {
			e.ErrorString("missing \"name\"")
		} else if seen[bs.Name] {
			e.ErrorString("defined more than once")
		}
		seen[bs.Name] = true

		body, ok := bs.body(e)
		if ok {
			reg.DefineBody(body)
			for i, raw := range bs.Modifiers {
				e.Push(fmt.Sprintf("modifier %d", i))
				m.register(reg, body, dir, raw, e)
				e.Pop()
			}
		}
		e.Pop()
	}
}

func (bs BodySpec) body(e *util.ErrorLogger) (atmos.Body, bool) {
	n := e.NumErrors()
	b := atmos.Body{
		Name:            bs.Name,
		AtmosphereDepth: bs.AtmosphereDepth,
		LagAngle:        bs.LagAngle,
	}
	if bs.AtmosphereDepth <= 0 {
		e.ErrorString("\"atmosphere_depth\" must be positive")
	}
	if bs.Native != nil {
		b.Native = *bs.Native
	}
	if bs.Sun != nil {
		b.Sun = *bs.Sun
	}

	for _, c := range []struct {
		name string
		pts  [][]float64
		dst  **math.Curve
	}{
		{"sun_mult", bs.Curves.SunMult, &b.Curves.SunMult},
		{"latitude_bias", bs.Curves.LatitudeBias, &b.Curves.LatitudeBias},
		{"latitude_sun_mult", bs.Curves.LatitudeSunMult, &b.Curves.LatitudeSunMult},
		{"axial_sun_bias", bs.Curves.AxialSunBias, &b.Curves.AxialSunBias},
		{"axial_sun_mult", bs.Curves.AxialSunMult, &b.Curves.AxialSunMult},
		{"eccentricity_bias", bs.Curves.EccentricityBias, &b.Curves.EccentricityBias},
	} {
		if err := parseCurve(c.pts, c.dst); err != nil {
			e.ErrorString("%s curve: %v", c.name, err)
		}
	}
	return b, e.NumErrors() == n
}

func parseCurve(pts [][]float64, dst **math.Curve) error {
	if len(pts) == 0 {
		return nil
	}
	c, err := math.ParseCurve(pts)
	if err != nil {
		return err
	}
	*dst = c
	return nil
}

// instantiate returns the modifier spec for raw, starting from a copy of
// its template if it names one.
func (m *Manifest) instantiate(raw json.RawMessage) (ModifierSpec, error) {
	var hdr struct {
		Template string `json:"template"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return ModifierSpec{}, err
	}

	var ms ModifierSpec
	if hdr.Template != "" {
		t, ok := m.Templates[hdr.Template]
		if !ok {
			return ms, fmt.Errorf("%q: unknown template", hdr.Template)
		}
		// Overrides are decoded into the copy; they must not touch the
		// template's slices.
		var err error
		if ms, err = deep.Copy(t); err != nil {
			return ms, err
		}
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	err := d.Decode(&ms)
	return ms, err
}

func (m *Manifest) register(reg *atmos.Registry, body atmos.Body, dir string, raw json.RawMessage, e *util.ErrorLogger) {
	ms, err := m.instantiate(raw)
	if err != nil {
		e.Error(err)
		return
	}
	e.Push(ms.Type)
	defer e.Pop()

	mod, err := ms.build(body, dir)
	if err != nil {
		e.Error(err)
		return
	}

	if mm, ok := mod.(*climate.MapModifier); ok {
		err = mm.Attach(reg, body.Name)
	} else {
		err = reg.Register(body.Name, mod)
	}
	if err != nil {
		e.Error(err)
	}
}

func resolve(dir string, src climate.GridSource) climate.GridSource {
	if src.Path != "" && !filepath.IsAbs(src.Path) {
		src.Path = filepath.Join(dir, src.Path)
	}
	return src
}

var biasNames = map[string]atmos.BiasComponents{
	"latitude_bias":     atmos.LatitudeBiasComponent,
	"latitude_sun_mult": atmos.LatitudeSunMultComponent,
	"axial_sun_bias":    atmos.AxialSunBiasComponent,
	"eccentricity_bias": atmos.EccentricityBiasComponent,
}

func (ms ModifierSpec) build(body atmos.Body, dir string) (atmos.Modifier, error) {
	switch ms.Type {
	case "grid_pressure":
		return climate.NewGridPressure(body, resolve(dir, ms.Grid))

	case "grid_temperature":
		var disabled atmos.BiasComponents
		for _, n := range ms.DisableBiases {
			c, ok := biasNames[n]
			if !ok {
				return nil, fmt.Errorf("%q: unknown temperature bias", n)
			}
			disabled |= c
		}
		return climate.NewGridTemperature(body, resolve(dir, ms.Grid), disabled)

	case "grid_wind":
		w, err := climate.NewGridWind(body, resolve(dir, ms.East), resolve(dir, ms.North), resolve(dir, ms.Up))
		if err != nil {
			return nil, err
		}
		w.Scale, w.VerticalScale = ms.Scale, ms.VerticalScale
		return w, nil

	case "map", "intake_choke":
		settings, err := ms.mapSettings()
		if err != nil {
			return nil, err
		}
		path := ms.Path
		if path != "" && !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if ms.Type == "intake_choke" {
			return climate.NewIntakeChoke(path, settings)
		}
		q, err := atmos.ParseQuantity(ms.Quantity)
		if err != nil {
			return nil, err
		}
		return climate.NewMapModifier(path, q, ms.Fractional, settings)

	case "toxic":
		if ms.Ceiling <= 0 {
			return nil, &atmos.ConfigError{Modifier: "toxic", Field: "ceiling"}
		}
		return climate.NewToxicAtmosphere(ms.Ceiling), nil

	case "":
		return nil, fmt.Errorf("missing \"type\"")
	default:
		return nil, fmt.Errorf("%q: unknown modifier type", ms.Type)
	}
}

func (ms ModifierSpec) mapSettings() (raster.Map, error) {
	s := raster.Map{
		Deformity:    1,
		Offset:       ms.Offset,
		TimeLoop:     ms.TimeLoop,
		ScrollPeriod: ms.ScrollPeriod,
	}
	if ms.Deformity != nil {
		s.Deformity = *ms.Deformity
	}
	for _, c := range []struct {
		name string
		pts  [][]float64
		dst  **math.Curve
	}{
		{"altitude_curve", ms.AltitudeCurve, &s.AltitudeCurve},
		{"time_curve", ms.TimeCurve, &s.TimeCurve},
		{"true_anomaly_curve", ms.TrueAnomalyCurve, &s.TrueAnomalyCurve},
		{"eccentricity_curve", ms.EccentricityCurve, &s.EccentricityCurve},
	} {
		if err := parseCurve(c.pts, c.dst); err != nil {
			return s, fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return s, nil
}
