// atmos/registry.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/atmofield/atmofield/log"
	"github.com/atmofield/atmofield/math"
	"github.com/atmofield/atmofield/util"
)

// Registry holds the model of every body. Registration happens during
// setup from a single goroutine; queries may then be made concurrently,
// and Purge may run concurrently with queries.
type Registry struct {
	lg *log.Logger

	mu     sync.RWMutex
	bodies map[string]*BodyModel

	// Modifiers that have already had a runtime fault logged at warn level.
	faulted sync.Map
}

func NewRegistry(lg *log.Logger) *Registry {
	return &Registry{lg: lg, bodies: make(map[string]*BodyModel)}
}

// entry is one registration of a modifier in a list or slot.
type entry[T any] struct {
	owner Modifier
	fn    func(Point) T
	// mask is only used for the base temperature slot.
	mask BiasComponents
}

// cowList is a list that is replaced wholesale on each change so that
// readers can iterate over a snapshot without locking.
type cowList[T any] struct {
	p atomic.Pointer[[]*entry[T]]
}

func (l *cowList[T]) load() []*entry[T] {
	if s := l.p.Load(); s != nil {
		return *s
	}
	return nil
}

func (l *cowList[T]) add(e *entry[T]) {
	for {
		old := l.p.Load()
		var s []*entry[T]
		if old != nil {
			s = slices.Clone(*old)
		}
		s = append(s, e)
		if l.p.CompareAndSwap(old, &s) {
			return
		}
	}
}

func (l *cowList[T]) remove(m Modifier) int {
	for {
		old := l.p.Load()
		if old == nil {
			return 0
		}
		s := slices.DeleteFunc(slices.Clone(*old), func(e *entry[T]) bool { return sameModifier(e.owner, m) })
		n := len(*old) - len(s)
		if n == 0 {
			return 0
		}
		if l.p.CompareAndSwap(old, &s) {
			return n
		}
	}
}

// slot holds at most one registration.
type slot[T any] struct {
	p atomic.Pointer[entry[T]]
}

func (s *slot[T]) load() *entry[T] { return s.p.Load() }

func (s *slot[T]) set(e *entry[T]) bool {
	return s.p.CompareAndSwap(nil, e)
}

func (s *slot[T]) remove(m Modifier) int {
	e := s.p.Load()
	if e != nil && sameModifier(e.owner, m) && s.p.CompareAndSwap(e, nil) {
		return 1
	}
	return 0
}

// sameModifier reports whether a and b are the same modifier instance.
// Values of non-comparable dynamic types never match.
func sameModifier(a, b Modifier) bool {
	if a == nil || b == nil {
		return false
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

// BodyModel is the set of providers and modifiers registered for a body.
type BodyModel struct {
	name string
	body atomic.Pointer[Body]

	base       [numQuantities]slot[float64]
	fractional [numQuantities]cowList[float64]
	flat       [numQuantities]cowList[float64]
	wind       cowList[math.Vec3]
	unsafe     slot[bool]
	choke      slot[float64]
}

func (b *BodyModel) Name() string { return b.name }

// Body returns the body's definition; a body that was never defined has
// only its name set.
func (b *BodyModel) Body() *Body { return b.body.Load() }

// Counts returns the number of registrations for each list of the body,
// keyed by "<quantity>.<list>", plus "wind" and the indicator kinds.
func (b *BodyModel) Counts() map[string]int {
	c := make(map[string]int)
	for q := range numQuantities {
		if b.base[q].load() != nil {
			c[q.String()+".base"] = 1
		}
		if n := len(b.fractional[q].load()); n > 0 {
			c[q.String()+".fractional"] = n
		}
		if n := len(b.flat[q].load()); n > 0 {
			c[q.String()+".flat"] = n
		}
	}
	if n := len(b.wind.load()); n > 0 {
		c["wind"] = n
	}
	if b.unsafe.load() != nil {
		c[UnsafeAtmosphere.String()] = 1
	}
	if b.choke.load() != nil {
		c[IntakeChoke.String()] = 1
	}
	return c
}

// Modifiers returns the distinct modifiers registered with the body, in
// registration order within each list.
func (b *BodyModel) Modifiers() []Modifier {
	var mods []Modifier
	add := func(m Modifier) {
		if !slices.ContainsFunc(mods, func(o Modifier) bool { return sameModifier(o, m) }) {
			mods = append(mods, m)
		}
	}
	for q := range numQuantities {
		if e := b.base[q].load(); e != nil {
			add(e.owner)
		}
		for _, e := range b.fractional[q].load() {
			add(e.owner)
		}
		for _, e := range b.flat[q].load() {
			add(e.owner)
		}
	}
	for _, e := range b.wind.load() {
		add(e.owner)
	}
	if e := b.unsafe.load(); e != nil {
		add(e.owner)
	}
	if e := b.choke.load(); e != nil {
		add(e.owner)
	}
	return mods
}

func (b *BodyModel) purge(m Modifier) int {
	n := b.wind.remove(m) + b.unsafe.remove(m) + b.choke.remove(m)
	for q := range numQuantities {
		n += b.base[q].remove(m) + b.fractional[q].remove(m) + b.flat[q].remove(m)
	}
	return n
}

// GetOrCreate returns the model for the named body, creating an empty one
// if needed.
func (r *Registry) GetOrCreate(name string) *BodyModel {
	r.mu.RLock()
	b, ok := r.bodies[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bodies[name]; ok {
		return b
	}
	b = &BodyModel{name: name}
	b.body.Store(&Body{Name: name})
	r.bodies[name] = b
	return b
}

// DefineBody sets the definition of the body with the given name,
// creating its model if needed. Registered modifiers are kept.
func (r *Registry) DefineBody(body Body) *BodyModel {
	b := r.GetOrCreate(body.Name)
	b.body.Store(&body)
	return b
}

// Lookup returns the model for the named body or ErrUnknownBody.
func (r *Registry) Lookup(name string) (*BodyModel, error) {
	if b := r.lookup(name); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownBody)
}

func (r *Registry) lookup(name string) *BodyModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bodies[name]
}

// Bodies returns the names of all bodies, sorted.
func (r *Registry) Bodies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return util.SortedMapKeys(r.bodies)
}

func (r *Registry) models() []*BodyModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return util.MapSlice(util.SortedMapKeys(r.bodies), func(n string) *BodyModel { return r.bodies[n] })
}

func (r *Registry) setBase(b *BodyModel, q Quantity, e *entry[float64]) error {
	if !b.base[q].set(e) {
		r.lg.Warnf("%s: %T: %s already has base provider %T; ignoring", b.name, e.owner,
			q, b.base[q].load().owner)
		return fmt.Errorf("%s: %s base: %w", b.name, q, ErrSlotTaken)
	}
	return nil
}

// SetBase makes m the base provider of q for the body. If the body
// already has one, the existing provider is kept and ErrSlotTaken is
// returned.
func (r *Registry) SetBase(body string, q Quantity, m ScalarModifier) error {
	if !q.hasBase() {
		return fmt.Errorf("%s base: %w", q, ErrNoSuchList)
	}
	e := &entry[float64]{owner: m, fn: m.Value, mask: AllBiasComponents}
	if q == Temperature {
		e.mask = biasMask(m)
	}
	return r.setBase(r.GetOrCreate(body), q, e)
}

// AddFractional adds m to the fractional modifiers of q for the body.
func (r *Registry) AddFractional(body string, q Quantity, m ScalarModifier) error {
	if !q.hasFractional() {
		return fmt.Errorf("%s fractional: %w", q, ErrNoSuchList)
	}
	r.GetOrCreate(body).fractional[q].add(&entry[float64]{owner: m, fn: m.Value})
	return nil
}

// AddFlat adds m to the flat modifiers of q for the body.
func (r *Registry) AddFlat(body string, q Quantity, m ScalarModifier) error {
	if !q.hasFlat() {
		return fmt.Errorf("%s flat: %w", q, ErrNoSuchList)
	}
	r.GetOrCreate(body).flat[q].add(&entry[float64]{owner: m, fn: m.Value})
	return nil
}

func (r *Registry) AddWindProvider(body string, w WindProvider) {
	r.GetOrCreate(body).wind.add(&entry[math.Vec3]{owner: w, fn: w.Wind})
}

// SetIndicator makes m the provider of the given indicator for the body;
// m must implement the matching interface.
func (r *Registry) SetIndicator(body string, kind IndicatorKind, m Modifier) error {
	b := r.GetOrCreate(body)
	switch kind {
	case UnsafeAtmosphere:
		u, ok := m.(UnsafeAtmosphereIndicator)
		if !ok {
			return fmt.Errorf("%T: not an %s indicator: %w", m, kind, ErrNoCapabilities)
		}
		if !b.unsafe.set(&entry[bool]{owner: m, fn: u.Unsafe}) {
			r.lg.Warnf("%s: %T: %s already has a provider; ignoring", body, m, kind)
			return fmt.Errorf("%s: %s: %w", body, kind, ErrSlotTaken)
		}
	case IntakeChoke:
		c, ok := m.(AirIntakeChokeFactor)
		if !ok {
			return fmt.Errorf("%T: not an %s provider: %w", m, kind, ErrNoCapabilities)
		}
		if !b.choke.set(&entry[float64]{owner: m, fn: c.ChokeFactor}) {
			r.lg.Warnf("%s: %T: %s already has a provider; ignoring", body, m, kind)
			return fmt.Errorf("%s: %s: %w", body, kind, ErrSlotTaken)
		}
	default:
		return fmt.Errorf("%s: %w", kind, ErrNoSuchList)
	}
	return nil
}

func biasMask(m Modifier) BiasComponents {
	if bm, ok := m.(TemperatureBiasMask); ok {
		return bm.TemperatureBiases()
	}
	return AllBiasComponents
}

// Register adds m to every list and slot of the body whose capability
// interface it implements. Slot conflicts are reported in the returned
// error; m is still registered for its other capabilities.
func (r *Registry) Register(body string, m Modifier) error {
	b := r.GetOrCreate(body)
	var errs []error
	matched := false

	for _, t := range scalarTraits {
		fn, ok := t.get(m)
		if !ok {
			continue
		}
		matched = true

		e := &entry[float64]{owner: m, fn: fn}
		switch t.list {
		case baseList:
			e.mask = AllBiasComponents
			if t.q == Temperature {
				e.mask = biasMask(m)
			}
			if err := r.setBase(b, t.q, e); err != nil {
				errs = append(errs, err)
			}
		case fractionalList:
			b.fractional[t.q].add(e)
		case flatList:
			b.flat[t.q].add(e)
		}
	}

	if w, ok := m.(WindProvider); ok {
		matched = true
		b.wind.add(&entry[math.Vec3]{owner: m, fn: w.Wind})
	}
	if _, ok := m.(UnsafeAtmosphereIndicator); ok {
		matched = true
		if err := r.SetIndicator(body, UnsafeAtmosphere, m); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := m.(AirIntakeChokeFactor); ok {
		matched = true
		if err := r.SetIndicator(body, IntakeChoke, m); err != nil {
			errs = append(errs, err)
		}
	}

	if !matched {
		return fmt.Errorf("%s: %T: %w", body, m, ErrNoCapabilities)
	}
	return errors.Join(errs...)
}

// Purge removes every registration of m from every body and returns the
// number removed. It is safe to call concurrently with queries.
func (r *Registry) Purge(m Modifier) int {
	n := 0
	for _, b := range r.models() {
		n += b.purge(m)
	}
	r.faulted.Delete(faultKey(m))
	if n > 0 {
		modifierPurgesTotal.Add(float64(n))
		r.lg.Infof("%T: purged %d registrations", m, n)
	}
	return n
}
