// atmos/registry_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"errors"
	gomath "math"
	"sync"
	"testing"

	"github.com/atmofield/atmofield/math"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type constant struct{ v float64 }

func (c *constant) Value(Point) float64 { return c.v }

// multi implements several capabilities at once.
type multi struct {
	temp, flatPressure float64
	wind               math.Vec3
	unsafeBelow        float64
	biases             BiasComponents
}

func (m *multi) BaseTemperature(Point) float64      { return m.temp }
func (m *multi) FlatPressure(Point) float64         { return m.flatPressure }
func (m *multi) Wind(Point) math.Vec3               { return m.wind }
func (m *multi) Unsafe(p Point) bool                { return p.Alt < m.unsafeBelow }
func (m *multi) TemperatureBiases() BiasComponents  { return m.biases }

type panicky struct{}

func (panicky) FlatPressure(Point) float64 { panic("boom") }

type chokeValue float64

func (c *chokeValue) ChokeFactor(Point) float64 { return float64(*c) }

// funcModifier is not comparable, so it can't be purged.
type funcModifier func(Point) float64

func (f funcModifier) FlatPressure(p Point) float64 { return f(p) }

func near(a, b float64) bool { return gomath.Abs(a-b) < 1e-9 }

func mustPressure(t *testing.T, r *Registry, body string, p Point) float64 {
	t.Helper()
	v, ok := r.Pressure(body, p)
	if !ok {
		t.Fatalf("%s: no data", body)
	}
	return v
}

func TestCompositionFractional(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.SetBase("kerbin", Pressure, &constant{100}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddFractional("kerbin", Pressure, &constant{0.5}); err != nil {
		t.Fatal(err)
	}
	if v := mustPressure(t, r, "kerbin", Point{}); !near(v, 150) {
		t.Errorf("got %f, expected 150", v)
	}
}

func TestCompositionTemperatureOffset(t *testing.T) {
	r := NewRegistry(nil)
	r.DefineBody(Body{
		Name: "kerbin",
		Curves: TemperatureCurves{
			SunMult:      math.MakeConstantCurve(1),
			LatitudeBias: math.MakeConstantCurve(5),
		},
	})
	r.SetBase("kerbin", Temperature, &constant{250})
	r.AddFlat("kerbin", Temperature, &constant{10})

	v, ok := r.Temperature("kerbin", Point{Lat: 30})
	if !ok || !near(v, 265) {
		t.Errorf("got %f (%v), expected 265", v, ok)
	}

	// Each bias term gets its own fractional modifiers.
	r.AddFractional("kerbin", LatitudeBias, &constant{1})
	if v, _ := r.Temperature("kerbin", Point{Lat: 30}); !near(v, 270) {
		t.Errorf("with fractional bias: got %f, expected 270", v)
	}
}

func TestTemperatureBiasTerms(t *testing.T) {
	r := NewRegistry(nil)
	r.DefineBody(Body{
		Name: "eve",
		Curves: TemperatureCurves{
			SunMult:          math.MakeLinearCurve([2]float64{0, 2}, [2]float64{1000, 0}),
			LatitudeBias:     math.MakeLinearCurve([2]float64{0, 10}, [2]float64{90, -10}),
			LatitudeSunMult:  math.MakeConstantCurve(4),
			AxialSunBias:     math.MakeConstantCurve(3),
			AxialSunMult:     math.MakeConstantCurve(2),
			EccentricityBias: math.MakeLinearCurve([2]float64{0, 0}, [2]float64{1, 1}),
		},
	})
	base := &multi{temp: 200, biases: AllBiasComponents}
	if err := r.Register("eve", base); err != nil {
		t.Fatal(err)
	}

	// No sun source so f = 0.5: latitude bias 0 at 45 degrees, sun mult
	// 4*0.5, axial 3*2*0.5, eccentricity 0.5; sum 5.5 times SunMult 1.
	p := Point{Lat: -45, Alt: 500, Eccentricity: 0.5}
	if v, _ := r.Temperature("eve", p); !near(v, 205.5) {
		t.Errorf("got %f, expected 205.5", v)
	}

	base.biases = LatitudeBiasComponent | EccentricityBiasComponent
	r2 := NewRegistry(nil)
	r2.DefineBody(*r.GetOrCreate("eve").Body())
	r2.Register("eve", base)
	if v, _ := r2.Temperature("eve", p); !near(v, 200.5) {
		t.Errorf("masked: got %f, expected 200.5", v)
	}
}

func TestTemperatureNonFinitePoint(t *testing.T) {
	r := NewRegistry(nil)
	r.DefineBody(Body{
		Name: "moho",
		Curves: TemperatureCurves{
			SunMult:          math.MakeLinearCurve([2]float64{0, 1}, [2]float64{1000, 0}),
			LatitudeBias:     math.MakeLinearCurve([2]float64{0, 10}, [2]float64{90, -10}),
			LatitudeSunMult:  math.MakeLinearCurve([2]float64{0, 4}, [2]float64{90, 0}),
			AxialSunBias:     math.MakeLinearCurve([2]float64{0, 3}, [2]float64{360, 3}),
			AxialSunMult:     math.MakeLinearCurve([2]float64{0, 2}, [2]float64{90, 0}),
			EccentricityBias: math.MakeLinearCurve([2]float64{0, 0}, [2]float64{1, 1}),
		},
	})
	r.SetBase("moho", Temperature, &constant{400})

	// A bad coordinate drops the offset instead of reaching the caller.
	nan := gomath.NaN()
	for _, p := range []Point{
		{Alt: 100, Eccentricity: nan},
		{Alt: 100, TrueAnomaly: nan},
		{Alt: 100, Lat: nan},
		{Alt: nan},
	} {
		v, ok := r.Temperature("moho", p)
		if !ok || v != 400 {
			t.Errorf("%s: got %f (%v), expected 400", p, v, ok)
		}
	}
}

func TestNativeFallback(t *testing.T) {
	r := NewRegistry(nil)
	r.DefineBody(Body{Name: "kerbin", Native: EarthStandardAtmosphere})

	if v := mustPressure(t, r, "kerbin", Point{}); !near(v, 101.325) {
		t.Errorf("native: got %f, expected 101.325", v)
	}
	r.SetBase("kerbin", Pressure, &constant{gomath.NaN()})
	if v := mustPressure(t, r, "kerbin", Point{}); !near(v, 101.325) {
		t.Errorf("NaN base: got %f, expected 101.325", v)
	}
	if v, _ := r.MolarMass("kerbin", Point{}); !near(v, 0.0289644) {
		t.Errorf("molar mass: got %f", v)
	}
	if v, _ := r.AdiabaticIndex("kerbin", Point{}); !near(v, 1.4) {
		t.Errorf("adiabatic index: got %f", v)
	}

	// Created but never defined.
	r.GetOrCreate("minmus")
	if v := mustPressure(t, r, "minmus", Point{}); v != 0 {
		t.Errorf("undefined body: got %f, expected 0", v)
	}

	if _, ok := r.Pressure("jool", Point{}); ok {
		t.Errorf("unregistered body returned data")
	}
	if _, err := r.Lookup("jool"); !errors.Is(err, ErrUnknownBody) {
		t.Errorf("got %v, expected ErrUnknownBody", err)
	}
}

func TestNonNegative(t *testing.T) {
	for _, c := range []struct {
		name             string
		base, frac, flat float64
		expect           float64
	}{
		{"negative fractional", 10, -3, 4, 4},
		{"negative flat", 10, 0, -3, 7},
		{"both", 10, -3, -5, 0},
		{"negative base", -50, 0, 0, 0},
	} {
		t.Run(c.name, func(t *testing.T) {
			r := NewRegistry(nil)
			r.SetBase("duna", Pressure, &constant{c.base})
			r.AddFractional("duna", Pressure, &constant{c.frac})
			r.AddFlat("duna", Pressure, &constant{c.flat})
			r.SetBase("duna", MolarMass, &constant{c.base})
			r.AddFlat("duna", MolarMass, &constant{c.flat})

			if v := mustPressure(t, r, "duna", Point{}); !near(v, c.expect) {
				t.Errorf("pressure: got %f, expected %f", v, c.expect)
			}
			if v, _ := r.MolarMass("duna", Point{}); v < 0 {
				t.Errorf("molar mass %f < 0", v)
			}
		})
	}
}

func TestWind(t *testing.T) {
	r := NewRegistry(nil)
	r.GetOrCreate("kerbin")
	if w, ok := r.Wind("kerbin", Point{}); !ok || w != (math.Vec3{}) {
		t.Errorf("no providers: got %v (%v), expected zero", w, ok)
	}
	if _, ok := r.Wind("eeloo", Point{}); ok {
		t.Errorf("unregistered body returned wind")
	}

	r.Register("kerbin", &multi{wind: math.Vec3{1, 2, 0}})
	r.AddWindProvider("kerbin", &multi{wind: math.Vec3{3, -1, 0.5}})
	r.AddWindProvider("kerbin", &multi{wind: math.Vec3{gomath.Inf(1), 0, 0}})
	if w, _ := r.Wind("kerbin", Point{}); w != (math.Vec3{4, 1, 0.5}) {
		t.Errorf("got %v, expected (4, 1, 0.5)", w)
	}
}

func TestRuntimeFaultIsolated(t *testing.T) {
	r := NewRegistry(nil)
	r.SetBase("laythe", Pressure, &constant{50})
	r.AddFlat("laythe", Pressure, &constant{2})
	if err := r.Register("laythe", panicky{}); err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(modifierFaultsTotal.WithLabelValues(FaultRuntime))
	for range 3 {
		if v := mustPressure(t, r, "laythe", Point{}); !near(v, 52) {
			t.Errorf("got %f, expected 52", v)
		}
	}
	if d := testutil.ToFloat64(modifierFaultsTotal.WithLabelValues(FaultRuntime)) - before; d != 3 {
		t.Errorf("recorded %f runtime faults, expected 3", d)
	}
}

func TestSecondBaseRejected(t *testing.T) {
	r := NewRegistry(nil)
	first, second := &multi{temp: 250}, &multi{temp: 300}
	if err := r.Register("kerbin", first); err != nil {
		t.Fatal(err)
	}

	err := r.Register("kerbin", second)
	if !errors.Is(err, ErrSlotTaken) {
		t.Errorf("got %v, expected ErrSlotTaken", err)
	}
	if v, _ := r.Temperature("kerbin", Point{}); !near(v, 250) {
		t.Errorf("got %f, expected the first base 250", v)
	}
	if err := r.SetBase("kerbin", Temperature, &constant{1}); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("SetBase: got %v, expected ErrSlotTaken", err)
	}

	// The second modifier's other capabilities were still registered.
	if n := r.GetOrCreate("kerbin").Counts()["pressure.flat"]; n != 2 {
		t.Errorf("%d flat pressure modifiers, expected 2", n)
	}
}

func TestNoSuchList(t *testing.T) {
	r := NewRegistry(nil)
	for _, err := range []error{
		r.AddFractional("kerbin", MolarMass, &constant{1}),
		r.AddFractional("kerbin", AdiabaticIndex, &constant{1}),
		r.AddFlat("kerbin", LatitudeBias, &constant{1}),
		r.SetBase("kerbin", AxialSunBias, &constant{1}),
		r.SetIndicator("kerbin", IndicatorKind(7), &multi{}),
	} {
		if !errors.Is(err, ErrNoSuchList) {
			t.Errorf("got %v, expected ErrNoSuchList", err)
		}
	}

	if err := r.Register("kerbin", struct{}{}); !errors.Is(err, ErrNoCapabilities) {
		t.Errorf("got %v, expected ErrNoCapabilities", err)
	}
	if err := r.SetIndicator("kerbin", IntakeChoke, &multi{}); !errors.Is(err, ErrNoCapabilities) {
		t.Errorf("got %v, expected ErrNoCapabilities", err)
	}
}

func TestIndicators(t *testing.T) {
	r := NewRegistry(nil)
	r.GetOrCreate("duna")
	if v, ok := r.ChokeFactor("duna", Point{}); !ok || v != 0 {
		t.Errorf("no provider: got %f, expected 0", v)
	}
	if u, ok := r.Unsafe("duna", Point{}); !ok || u {
		t.Errorf("no indicator: got unsafe")
	}

	c := chokeValue(1.5)
	r.Register("duna", &c)
	r.Register("duna", &multi{unsafeBelow: 1000})
	if v, _ := r.ChokeFactor("duna", Point{}); v != 1 {
		t.Errorf("got %f, expected clamped 1", v)
	}
	c = chokeValue(gomath.NaN())
	if v, _ := r.ChokeFactor("duna", Point{}); v != 0 {
		t.Errorf("NaN: got %f, expected 0", v)
	}
	if u, _ := r.Unsafe("duna", Point{Alt: 500}); !u {
		t.Errorf("expected unsafe at 500m")
	}
	if u, _ := r.Unsafe("duna", Point{Alt: 5000}); u {
		t.Errorf("expected safe at 5000m")
	}
}

func TestPurge(t *testing.T) {
	r := NewRegistry(nil)
	m := &multi{temp: 280, flatPressure: 3, wind: math.Vec3{1, 0, 0}, unsafeBelow: 100}
	other := &constant{7}
	for _, body := range []string{"kerbin", "duna"} {
		r.Register(body, m)
		r.AddFlat(body, Pressure, other)
	}

	if n := r.Purge(m); n != 8 {
		t.Errorf("purged %d, expected 8", n)
	}
	for _, body := range []string{"kerbin", "duna"} {
		b := r.GetOrCreate(body)
		counts := b.Counts()
		if len(counts) != 1 || counts["pressure.flat"] != 1 {
			t.Errorf("%s: unexpected registrations after purge: %v", body, counts)
		}
		if mods := b.Modifiers(); len(mods) != 1 || mods[0] != Modifier(other) {
			t.Errorf("%s: modifiers %v", body, mods)
		}
		if v := mustPressure(t, r, body, Point{}); !near(v, 7) {
			t.Errorf("%s: got %f, expected 7", body, v)
		}
	}

	if n := r.Purge(m); n != 0 {
		t.Errorf("second purge removed %d", n)
	}

	// The slot is free again.
	if err := r.SetBase("kerbin", Temperature, &constant{1}); err != nil {
		t.Errorf("SetBase after purge: %v", err)
	}
}

func TestPurgeNonComparable(t *testing.T) {
	r := NewRegistry(nil)
	f := funcModifier(func(Point) float64 { return 1 })
	r.Register("kerbin", f)
	if n := r.Purge(f); n != 0 {
		t.Errorf("purged %d non-comparable registrations", n)
	}
	if v := mustPressure(t, r, "kerbin", Point{}); !near(v, 1) {
		t.Errorf("got %f, expected 1", v)
	}
}

func TestPurgeDuringQueries(t *testing.T) {
	r := NewRegistry(nil)
	r.SetBase("kerbin", Pressure, &constant{100})
	var mods []*constant
	for range 50 {
		m := &constant{1}
		mods = append(mods, m)
		r.AddFlat("kerbin", Pressure, m)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if v, _ := r.Pressure("kerbin", Point{}); v < 100 || v > 150 {
					t.Errorf("got %f", v)
					return
				}
			}
		}()
	}
	for _, m := range mods {
		r.Purge(m)
	}
	wg.Wait()

	if v := mustPressure(t, r, "kerbin", Point{}); !near(v, 100) {
		t.Errorf("got %f, expected 100", v)
	}
}

func TestStandardAtmosphere(t *testing.T) {
	s := EarthStandardAtmosphere
	for _, c := range []struct {
		alt, p, temp, tol float64
	}{
		{0, 101.325, 288.15, 1e-6},
		{5000, 54.02, 255.65, 0.05},
		{11000, 22.63, 216.65, 0.05},
		{20000, 5.47, 216.65, 0.05},
		{70000, 0, 216.65, 1e-6},
	} {
		if p := s.Pressure(c.alt); gomath.Abs(p-c.p) > c.tol {
			t.Errorf("pressure at %f: got %f, expected %f", c.alt, p, c.p)
		}
		if tp := s.Temperature(c.alt); gomath.Abs(tp-c.temp) > 1e-6 {
			t.Errorf("temperature at %f: got %f, expected %f", c.alt, tp, c.temp)
		}
	}

	prev := s.Pressure(0)
	for alt := 1000.0; alt < 70000; alt += 1000 {
		p := s.Pressure(alt)
		if p >= prev || p < 0 {
			t.Errorf("pressure at %f not decreasing: %f then %f", alt, prev, p)
		}
		prev = p
	}
}
