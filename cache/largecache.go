// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// LargeCache is a concurrent keyed store. Readers never block on writers for
// unrelated keys and iteration observes a weakly-consistent snapshot: entries
// added or removed mid-scan may or may not be seen, but never twice.
type LargeCache[K comparable, V any] struct {
	inner *xsync.MapOf[K, V]
}

func NewLargeCache[K comparable, V any]() *LargeCache[K, V] {
	return &LargeCache[K, V]{inner: xsync.NewMapOf[K, V]()}
}

func (c *LargeCache[K, V]) Get(key K) (V, bool) {
	return c.inner.Load(key)
}

func (c *LargeCache[K, V]) Put(key K, value V) {
	c.inner.Store(key, value)
}

// PutIfAbsent stores value only when the key is missing. It returns the
// winning value and whether an existing one was kept, so exactly one of any
// number of racing writers observes loaded == false.
func (c *LargeCache[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	return c.inner.LoadOrStore(key, value)
}

func (c *LargeCache[K, V]) GetOrCreate(key K, create func(K) V) V {
	value, _ := c.inner.LoadOrCompute(key, func() V { return create(key) })

	return value
}

// Compute atomically replaces the value for key. The update function receives
// the current value (or the zero value when absent) and decides the outcome,
// making per-key read-modify-write linearizable.
func (c *LargeCache[K, V]) Compute(key K, update func(current V, loaded bool) (V, bool)) (V, bool) {
	return c.inner.Compute(key, func(current V, loaded bool) (V, bool) {
		next, keep := update(current, loaded)

		return next, !keep
	})
}

func (c *LargeCache[K, V]) Delete(key K) {
	c.inner.Delete(key)
}

func (c *LargeCache[K, V]) Size() int {
	return c.inner.Size()
}

func (c *LargeCache[K, V]) ForEach(fn func(K, V) bool) {
	c.inner.Range(fn)
}

func (c *LargeCache[K, V]) FilterIntoSet(predicate func(K, V) bool) []V {
	var result []V
	c.inner.Range(func(key K, value V) bool {
		if predicate(key, value) {
			result = append(result, value)
		}

		return true
	})

	return result
}

// MapNotNullIntoSet collects transform results, skipping entries for which the
// transform reports no value.
func MapNotNullIntoSet[K comparable, V, R any](c *LargeCache[K, V], transform func(K, V) (R, bool)) []R {
	var result []R
	c.inner.Range(func(key K, value V) bool {
		if mapped, ok := transform(key, value); ok {
			result = append(result, mapped)
		}

		return true
	})

	return result
}
