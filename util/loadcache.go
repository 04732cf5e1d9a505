// util/loadcache.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoadCache holds recently loaded read-only objects (decoded datasets,
// rasters) keyed by a string, typically the file path plus anything that
// affects decoding. Concurrent requests for the same key share a single
// load; failed loads are not cached.
type LoadCache[T any] struct {
	cache *lru.Cache[string, T]
	group singleflight.Group
}

// NewLoadCache returns a cache that keeps at most size objects.
func NewLoadCache[T any](size int) *LoadCache[T] {
	c, err := lru.New[string, T](max(1, size))
	if err != nil {
		// Only possible for a non-positive size.
		panic(err)
	}
	return &LoadCache[T]{cache: c}
}

// Get returns the cached object for key, calling load to produce it if
// it isn't present.
func (c *LoadCache[T]) Get(key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		c.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", key, err)
	}
	return v.(T), nil
}

// Len returns the number of objects currently cached.
func (c *LoadCache[T]) Len() int {
	return c.cache.Len()
}

// Purge drops all cached objects.
func (c *LoadCache[T]) Purge() {
	c.cache.Purge()
}
