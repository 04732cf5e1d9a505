// atmos/types.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package atmos composes atmospheric quantities around simulated bodies
// from base providers and pluggable modifiers.
package atmos

import (
	"fmt"

	"github.com/atmofield/atmofield/math"
)

// Point is a query location: longitude and latitude in degrees, altitude
// in meters above the datum, universal time in seconds, true anomaly in
// degrees, and the normalized orbital eccentricity parameter.
type Point struct {
	Lon, Lat     float64
	Alt          float64
	Time         float64
	TrueAnomaly  float64
	Eccentricity float64
}

func (p Point) IsFinite() bool {
	return math.IsFinite(p.Lon) && math.IsFinite(p.Lat) && math.IsFinite(p.Alt) &&
		math.IsFinite(p.Time) && math.IsFinite(p.TrueAnomaly) && math.IsFinite(p.Eccentricity)
}

func (p Point) String() string {
	return fmt.Sprintf("lon %.4f lat %.4f alt %.1f t %.1f ta %.2f ecc %.3f",
		p.Lon, p.Lat, p.Alt, p.Time, p.TrueAnomaly, p.Eccentricity)
}

// Quantity identifies a scalar quantity or temperature bias component
// that modifiers can contribute to.
type Quantity int

const (
	Pressure Quantity = iota
	Temperature
	MolarMass
	AdiabaticIndex
	LatitudeBias
	LatitudeSunMult
	AxialSunBias
	EccentricityBias
	numQuantities
)

var quantityNames = [numQuantities]string{
	"pressure", "temperature", "molarMass", "adiabaticIndex",
	"latitudeBias", "latitudeSunMult", "axialSunBias", "eccentricityBias",
}

func (q Quantity) String() string {
	if q < 0 || q >= numQuantities {
		return fmt.Sprintf("Quantity(%d)", int(q))
	}
	return quantityNames[q]
}

// ParseQuantity returns the Quantity with the given name.
func ParseQuantity(s string) (Quantity, error) {
	for i, n := range quantityNames {
		if n == s {
			return Quantity(i), nil
		}
	}
	return 0, fmt.Errorf("%q: unknown quantity", s)
}

// Which lists each quantity has: bias components only take fractional
// modifiers, and molar mass and adiabatic index have no fractional list.
func (q Quantity) hasBase() bool { return q >= Pressure && q <= AdiabaticIndex }
func (q Quantity) hasFlat() bool { return q >= Pressure && q <= AdiabaticIndex }
func (q Quantity) hasFractional() bool {
	return q == Pressure || q == Temperature || (q >= LatitudeBias && q < numQuantities)
}

// IndicatorKind identifies one of the single-slot indicator providers.
type IndicatorKind int

const (
	UnsafeAtmosphere IndicatorKind = iota
	IntakeChoke
)

func (k IndicatorKind) String() string {
	switch k {
	case UnsafeAtmosphere:
		return "unsafeAtmosphere"
	case IntakeChoke:
		return "intakeChoke"
	default:
		return fmt.Sprintf("IndicatorKind(%d)", int(k))
	}
}

// Modifier is any value implementing one or more of the capability
// interfaces below. Modifiers are identified by their interface value, so
// they should be pointers.
type Modifier any

type WindProvider interface {
	// Wind returns the (east, north, up) wind vector in m/s.
	Wind(p Point) math.Vec3
}

type BasePressure interface {
	BasePressure(p Point) float64
}

type FractionalPressureModifier interface {
	FractionalPressure(p Point) float64
}

type FlatPressureModifier interface {
	FlatPressure(p Point) float64
}

type BaseTemperature interface {
	BaseTemperature(p Point) float64
}

type FractionalTemperatureModifier interface {
	FractionalTemperature(p Point) float64
}

type FlatTemperatureModifier interface {
	FlatTemperature(p Point) float64
}

type FractionalLatitudeBiasModifier interface {
	FractionalLatitudeBias(p Point) float64
}

type FractionalLatitudeSunMultModifier interface {
	FractionalLatitudeSunMult(p Point) float64
}

type FractionalAxialSunBiasModifier interface {
	FractionalAxialSunBias(p Point) float64
}

type FractionalEccentricityBiasModifier interface {
	FractionalEccentricityBias(p Point) float64
}

type BaseMolarMass interface {
	BaseMolarMass(p Point) float64
}

type FlatMolarMassModifier interface {
	FlatMolarMass(p Point) float64
}

type BaseAdiabaticIndex interface {
	BaseAdiabaticIndex(p Point) float64
}

type FlatAdiabaticIndexModifier interface {
	FlatAdiabaticIndex(p Point) float64
}

type UnsafeAtmosphereIndicator interface {
	Unsafe(p Point) bool
}

type AirIntakeChokeFactor interface {
	// ChokeFactor returns how much air intakes are choked, in [0,1].
	ChokeFactor(p Point) float64
}

// ScalarModifier is a modifier whose target list is chosen when it is
// registered rather than by the interfaces it implements.
type ScalarModifier interface {
	Value(p Point) float64
}

// BiasComponents is a set of the temperature bias terms.
type BiasComponents uint8

const (
	LatitudeBiasComponent BiasComponents = 1 << iota
	LatitudeSunMultComponent
	AxialSunBiasComponent
	EccentricityBiasComponent

	AllBiasComponents = LatitudeBiasComponent | LatitudeSunMultComponent |
		AxialSunBiasComponent | EccentricityBiasComponent
)

// TemperatureBiasMask may be implemented by base temperature providers
// whose data already includes some of the bias terms.
type TemperatureBiasMask interface {
	TemperatureBiases() BiasComponents
}

// scalarTrait describes one of the scalar capabilities: which list of
// which quantity it registers into and how to get its method from a
// modifier.
type scalarTrait struct {
	list listKind
	q    Quantity
	get  func(Modifier) (func(Point) float64, bool)
}

type listKind int

const (
	baseList listKind = iota
	fractionalList
	flatList
)

func (k listKind) String() string {
	return [...]string{"base", "fractional", "flat"}[k]
}

func trait[T any](list listKind, q Quantity, method func(T) func(Point) float64) scalarTrait {
	return scalarTrait{
		list: list,
		q:    q,
		get: func(m Modifier) (func(Point) float64, bool) {
			if t, ok := m.(T); ok {
				return method(t), true
			}
			return nil, false
		},
	}
}

// The fixed sequence of trait checks Register performs.
var scalarTraits = []scalarTrait{
	trait(baseList, Pressure, func(t BasePressure) func(Point) float64 { return t.BasePressure }),
	trait(fractionalList, Pressure, func(t FractionalPressureModifier) func(Point) float64 { return t.FractionalPressure }),
	trait(flatList, Pressure, func(t FlatPressureModifier) func(Point) float64 { return t.FlatPressure }),
	trait(baseList, Temperature, func(t BaseTemperature) func(Point) float64 { return t.BaseTemperature }),
	trait(fractionalList, Temperature, func(t FractionalTemperatureModifier) func(Point) float64 { return t.FractionalTemperature }),
	trait(flatList, Temperature, func(t FlatTemperatureModifier) func(Point) float64 { return t.FlatTemperature }),
	trait(fractionalList, LatitudeBias, func(t FractionalLatitudeBiasModifier) func(Point) float64 { return t.FractionalLatitudeBias }),
	trait(fractionalList, LatitudeSunMult, func(t FractionalLatitudeSunMultModifier) func(Point) float64 { return t.FractionalLatitudeSunMult }),
	trait(fractionalList, AxialSunBias, func(t FractionalAxialSunBiasModifier) func(Point) float64 { return t.FractionalAxialSunBias }),
	trait(fractionalList, EccentricityBias, func(t FractionalEccentricityBiasModifier) func(Point) float64 { return t.FractionalEccentricityBias }),
	trait(baseList, MolarMass, func(t BaseMolarMass) func(Point) float64 { return t.BaseMolarMass }),
	trait(flatList, MolarMass, func(t FlatMolarMassModifier) func(Point) float64 { return t.FlatMolarMass }),
	trait(baseList, AdiabaticIndex, func(t BaseAdiabaticIndex) func(Point) float64 { return t.BaseAdiabaticIndex }),
	trait(flatList, AdiabaticIndex, func(t FlatAdiabaticIndexModifier) func(Point) float64 { return t.FlatAdiabaticIndex }),
}
