// math/curve.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"encoding/json"
	"fmt"
	gomath "math"
	"slices"
)

// CurveKey is a single key frame of a Curve: the value at a given time
// along with the incoming and outgoing slopes there.
type CurveKey struct {
	Time, Value           float64
	InTangent, OutTangent float64
}

// Curve is a piecewise cubic Hermite curve defined by key frames. It is
// clamped outside of the range of its keys. Curves are immutable once
// made, so they may be shared between goroutines.
type Curve struct {
	keys []CurveKey
}

// MakeCurve returns a curve through the given keys; they need not be
// sorted. Of keys with duplicate times, the first one given is kept.
func MakeCurve(keys ...CurveKey) *Curve {
	k := slices.Clone(keys)
	slices.SortStableFunc(k, func(a, b CurveKey) int {
		if a.Time < b.Time {
			return -1
		} else if a.Time > b.Time {
			return 1
		}
		return 0
	})
	k = slices.CompactFunc(k, func(a, b CurveKey) bool { return a.Time == b.Time })
	return &Curve{keys: k}
}

// MakeLinearCurve returns a curve that linearly interpolates the given
// (time, value) points.
func MakeLinearCurve(pts ...[2]float64) *Curve {
	keys := make([]CurveKey, len(pts))
	for i, p := range pts {
		keys[i] = CurveKey{Time: p[0], Value: p[1]}
	}
	c := MakeCurve(keys...)
	c.setLinearTangents(nil)
	return c
}

// MakeConstantCurve returns a curve that is v everywhere.
func MakeConstantCurve(v float64) *Curve {
	return &Curve{keys: []CurveKey{{Value: v}}}
}

// setLinearTangents assigns segment slopes as the tangents of every key
// for which explicit[i] is false (or all keys if explicit is nil).
func (c *Curve) setLinearTangents(explicit []bool) {
	for i := range c.keys {
		if explicit != nil && explicit[i] {
			continue
		}
		if i > 0 {
			c.keys[i].InTangent = c.slope(i - 1)
		}
		if i+1 < len(c.keys) {
			c.keys[i].OutTangent = c.slope(i)
		}
	}
}

func (c *Curve) slope(i int) float64 {
	k0, k1 := c.keys[i], c.keys[i+1]
	return (k1.Value - k0.Value) / (k1.Time - k0.Time)
}

// Evaluate returns the curve's value at t. A nil or empty curve
// evaluates to zero and a NaN t gives NaN.
func (c *Curve) Evaluate(t float64) float64 {
	if c == nil || len(c.keys) == 0 {
		return 0
	}
	if gomath.IsNaN(t) {
		return t
	}
	if t <= c.keys[0].Time || len(c.keys) == 1 {
		return c.keys[0].Value
	}
	n := len(c.keys)
	if t >= c.keys[n-1].Time {
		return c.keys[n-1].Value
	}

	// First key with a time > t; there's at least one before it.
	i, _ := slices.BinarySearchFunc(c.keys, t, func(k CurveKey, t float64) int {
		if k.Time <= t {
			return -1
		}
		return 1
	})
	k0, k1 := c.keys[i-1], c.keys[i]

	dt := k1.Time - k0.Time
	s := (t - k0.Time) / dt
	s2, s3 := s*s, s*s*s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	return h00*k0.Value + h10*dt*k0.OutTangent + h01*k1.Value + h11*dt*k1.InTangent
}

// Empty reports whether the curve has no keys.
func (c *Curve) Empty() bool {
	return c == nil || len(c.keys) == 0
}

// Span returns the times of the first and last keys.
func (c *Curve) Span() (float64, float64) {
	if c.Empty() {
		return 0, 0
	}
	return c.keys[0].Time, c.keys[len(c.keys)-1].Time
}

// Keys returns a copy of the curve's key frames.
func (c *Curve) Keys() []CurveKey {
	if c == nil {
		return nil
	}
	return slices.Clone(c.keys)
}

// ParseCurve returns a curve from an array of keys, each either
// [time, value] or [time, value, inTangent, outTangent]; times must be
// increasing. Keys given without tangents get linear ones.
func ParseCurve(raw [][]float64) (*Curve, error) {
	keys := make([]CurveKey, len(raw))
	explicit := make([]bool, len(raw))
	for i, r := range raw {
		switch len(r) {
		case 2:
			keys[i] = CurveKey{Time: r[0], Value: r[1]}
		case 4:
			keys[i] = CurveKey{Time: r[0], Value: r[1], InTangent: r[2], OutTangent: r[3]}
			explicit[i] = true
		default:
			return nil, fmt.Errorf("curve key %d: expected 2 or 4 numbers, got %d", i, len(r))
		}
	}
	for i := 1; i < len(keys); i++ {
		if keys[i].Time <= keys[i-1].Time {
			return nil, fmt.Errorf("curve key %d: times must be increasing", i)
		}
	}

	c := &Curve{keys: keys}
	c.setLinearTangents(explicit)
	return c, nil
}

// UnmarshalJSON accepts the key arrays of ParseCurve.
func (c *Curve) UnmarshalJSON(b []byte) error {
	var raw [][]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	pc, err := ParseCurve(raw)
	if err != nil {
		return err
	}
	*c = *pc
	return nil
}

func (c Curve) MarshalJSON() ([]byte, error) {
	raw := make([][4]float64, len(c.keys))
	for i, k := range c.keys {
		raw[i] = [4]float64{k.Time, k.Value, k.InTangent, k.OutTangent}
	}
	return json.Marshal(raw)
}
