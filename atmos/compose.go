// atmos/compose.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"reflect"

	"github.com/atmofield/atmofield/math"
)

// All query methods return ok == false if the body has never been
// registered, in which case the caller should use its own model.

func (r *Registry) Pressure(body string, p Point) (float64, bool) {
	return r.scalar(body, Pressure, p)
}

func (r *Registry) Temperature(body string, p Point) (float64, bool) {
	return r.scalar(body, Temperature, p)
}

func (r *Registry) MolarMass(body string, p Point) (float64, bool) {
	return r.scalar(body, MolarMass, p)
}

func (r *Registry) AdiabaticIndex(body string, p Point) (float64, bool) {
	return r.scalar(body, AdiabaticIndex, p)
}

// Wind returns the sum of the body's wind providers; providers that
// return a non-finite vector contribute nothing.
func (r *Registry) Wind(body string, p Point) (math.Vec3, bool) {
	b := r.lookup(body)
	if b == nil {
		return math.Vec3{}, false
	}
	var w math.Vec3
	for _, e := range b.wind.load() {
		if v, ok := invoke(r, b, e, p, math.Vec3.IsFinite); ok {
			w = w.Add(v)
		}
	}
	return w, true
}

// ChokeFactor returns the body's air intake choke factor in [0,1]; it is
// zero if the body has no provider.
func (r *Registry) ChokeFactor(body string, p Point) (float64, bool) {
	b := r.lookup(body)
	if b == nil {
		return 0, false
	}
	if e := b.choke.load(); e != nil {
		if v, ok := invoke(r, b, e, p, math.IsFinite); ok {
			return math.Clamp(v, 0, 1), true
		}
	}
	return 0, true
}

// Unsafe reports whether the body's atmosphere is unsafe to breathe at
// the point; it never is if the body has no indicator.
func (r *Registry) Unsafe(body string, p Point) (bool, bool) {
	b := r.lookup(body)
	if b == nil {
		return false, false
	}
	if e := b.unsafe.load(); e != nil {
		v, _ := invoke(r, b, e, p, func(bool) bool { return true })
		return v, true
	}
	return false, true
}

func (r *Registry) scalar(body string, q Quantity, p Point) (float64, bool) {
	b := r.lookup(body)
	if b == nil {
		return 0, false
	}
	def := b.Body()

	base := math.NaN()
	if e := b.base[q].load(); e != nil {
		if v, ok := invoke(r, b, e, p, math.IsFinite); ok {
			base = v
		}
	}
	if !math.IsFinite(base) {
		base = def.native(q, p.Alt)
	}

	fractional := 1 + r.sum(b, b.fractional[q].load(), p)
	flat := r.sum(b, b.flat[q].load(), p)

	v := max(base*fractional, 0) + flat
	if q == Temperature {
		v += r.temperatureOffset(b, def, p)
	}
	if !math.IsFinite(v) {
		return 0, true
	}
	return max(v, 0), true
}

// sum adds the finite non-zero outputs of the given modifiers.
func (r *Registry) sum(b *BodyModel, l []*entry[float64], p Point) float64 {
	var s float64
	for _, e := range l {
		if v, ok := invoke(r, b, e, p, math.IsFinite); ok && v != 0 {
			s += v
		}
	}
	return s
}

// SunBlend returns the sun alignment factor for the body at the point,
// or 0.5 if the body has no sun source.
func (b *Body) SunBlend(p Point) float64 {
	if b.Sun == nil {
		return 0.5
	}
	up, sun, normal, ok := b.Sun.SunVectors(p)
	if !ok {
		return 0.5
	}
	return SunGeometry{LagAngle: b.LagAngle}.Blend(up, sun, normal)
}

// temperatureOffset returns the sun-relative temperature offset: the sum
// of the enabled bias terms, each scaled by one plus its fractional
// modifiers, times the altitude sun multiplier.
func (r *Registry) temperatureOffset(b *BodyModel, def *Body, p Point) float64 {
	c := def.Curves
	mask := AllBiasComponents
	if e := b.base[Temperature].load(); e != nil {
		mask = e.mask
	}

	scale := func(q Quantity) float64 { return 1 + r.sum(b, b.fractional[q].load(), p) }
	lat := math.Abs(p.Lat)
	var f float64
	if mask&(LatitudeSunMultComponent|AxialSunBiasComponent) != 0 {
		f = def.SunBlend(p)
	}

	var offset float64
	if mask&LatitudeBiasComponent != 0 {
		offset += c.LatitudeBias.Evaluate(lat) * scale(LatitudeBias)
	}
	if mask&LatitudeSunMultComponent != 0 {
		offset += c.LatitudeSunMult.Evaluate(lat) * f * scale(LatitudeSunMult)
	}
	if mask&AxialSunBiasComponent != 0 {
		offset += c.AxialSunBias.Evaluate(p.TrueAnomaly) * c.AxialSunMult.Evaluate(lat) * f * scale(AxialSunBias)
	}
	if mask&EccentricityBiasComponent != 0 {
		offset += c.EccentricityBias.Evaluate(p.Eccentricity) * scale(EccentricityBias)
	}

	offset *= c.SunMult.Evaluate(p.Alt)
	if !math.IsFinite(offset) {
		return 0
	}
	return offset
}

// invoke calls a modifier, isolating the caller from panics and results
// for which valid returns false. ok is false if the contribution should
// be dropped.
func invoke[T any](r *Registry, b *BodyModel, e *entry[T], p Point, valid func(T) bool) (v T, ok bool) {
	defer func() {
		if err := recover(); err != nil {
			modifierFaultsTotal.WithLabelValues(FaultRuntime).Inc()
			if _, seen := r.faulted.LoadOrStore(faultKey(e.owner), struct{}{}); seen {
				r.lg.Debugf("%s: %T: panic at %s: %v", b.name, e.owner, p, err)
			} else {
				r.lg.Warnf("%s: %T: panic at %s: %v", b.name, e.owner, p, err)
			}
			var zero T
			v, ok = zero, false
		}
	}()

	v = e.fn(p)
	if !valid(v) {
		modifierFaultsTotal.WithLabelValues(FaultNumeric).Inc()
		r.lg.Debugf("%s: %T: non-finite result %v at %s", b.name, e.owner, v, p)
		var zero T
		return zero, false
	}
	return v, true
}

// faultKey returns a map key identifying m; non-comparable modifiers are
// tracked by type.
func faultKey(m Modifier) any {
	if t := reflect.TypeOf(m); t == nil || !t.Comparable() {
		return t
	}
	return m
}
