// SPDX-License-Identifier: ice License 1.0

package subscription

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

type (
	// Hooks are the lifecycle callbacks of one orchestrator. Start fires on
	// the empty-to-nonempty transition before the first filter update, Stop
	// on nonempty-to-empty, each exactly once per transition. Update
	// receives a snapshot of the current key set and turns it into wire
	// filters.
	Hooks[T comparable] struct {
		Start  func()
		Stop   func()
		Update func(keys []T)
	}

	// Orchestrator tracks the set of typed keys observers are interested in
	// and keeps exactly one wire subscription in sync with it. Keys are
	// deduplicated by equality, filter recomputation is debounced so bursts
	// of registrations collapse into a single update.
	Orchestrator[T comparable] struct {
		hooks     Hooks[T]
		mx        sync.Mutex
		keys      map[T]struct{}
		active    bool
		debounced func(func())
	}
)

const defaultInvalidationDebounce = 100 * time.Millisecond

// NewOrchestrator builds an orchestrator with the given lifecycle hooks.
// A zero interval disables debouncing, updates then run synchronously inside
// the mutating call, which tests rely on.
func NewOrchestrator[T comparable](hooks Hooks[T], interval time.Duration) *Orchestrator[T] {
	o := &Orchestrator[T]{hooks: hooks, keys: make(map[T]struct{})}
	if interval > 0 {
		o.debounced = debounce.New(interval)
	} else {
		o.debounced = func(fn func()) { fn() }
	}

	return o
}

// Subscribe registers interest in a key. Nil keys are ignored. Registering a
// key already present still schedules a filter refresh, the underlying data
// may have changed since the last computation.
func (o *Orchestrator[T]) Subscribe(key *T) {
	if key == nil {
		return
	}
	o.mx.Lock()
	wasEmpty := len(o.keys) == 0
	o.keys[*key] = struct{}{}
	start := wasEmpty && !o.active
	if start {
		o.active = true
	}
	o.mx.Unlock()
	if start && o.hooks.Start != nil {
		o.hooks.Start()
	}
	o.InvalidateFilters()
}

// Unsubscribe removes a key. Nil and unknown keys are ignored. Removing the
// last key stops the wire subscription.
func (o *Orchestrator[T]) Unsubscribe(key *T) {
	if key == nil {
		return
	}
	o.mx.Lock()
	if _, found := o.keys[*key]; !found {
		o.mx.Unlock()

		return
	}
	delete(o.keys, *key)
	stop := len(o.keys) == 0 && o.active
	if stop {
		o.active = false
	}
	o.mx.Unlock()
	if stop {
		if o.hooks.Stop != nil {
			o.hooks.Stop()
		}

		return
	}
	o.InvalidateFilters()
}

// InvalidateFilters schedules a recomputation of the wire filters from the
// current key set. Multiple calls within the debounce window coalesce.
func (o *Orchestrator[T]) InvalidateFilters() {
	o.debounced(func() {
		o.mx.Lock()
		if !o.active {
			o.mx.Unlock()

			return
		}
		keys := make([]T, 0, len(o.keys))
		for key := range o.keys {
			keys = append(keys, key)
		}
		o.mx.Unlock()
		if o.hooks.Update != nil {
			o.hooks.Update(keys)
		}
	})
}

func (o *Orchestrator[T]) IsActive() bool {
	o.mx.Lock()
	defer o.mx.Unlock()

	return o.active
}

func (o *Orchestrator[T]) Size() int {
	o.mx.Lock()
	defer o.mx.Unlock()

	return len(o.keys)
}

// Keys returns a snapshot of the registered keys, in no particular order.
func (o *Orchestrator[T]) Keys() []T {
	o.mx.Lock()
	defer o.mx.Unlock()
	keys := make([]T, 0, len(o.keys))
	for key := range o.keys {
		keys = append(keys, key)
	}

	return keys
}
