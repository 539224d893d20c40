// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"sort"
	"sync"

	"github.com/ice-blockchain/permafrost/model"
)

// EventListMatchingFilter is a continuously-updated view of the events
// matching a single filter, kept newest first and bounded by the filter's
// limit. Init seeds it with one full cache scan; afterwards it is maintained
// strictly incrementally by New and Remove.
type EventListMatchingFilter struct {
	mx       sync.Mutex
	filter   *model.Filter
	cache    *EventCache
	onChange func([]*model.Event)
	current  []*model.Event
}

func NewEventListMatchingFilter(filter *model.Filter, cache *EventCache, onChange func([]*model.Event)) *EventListMatchingFilter {
	return &EventListMatchingFilter{
		filter:   filter,
		cache:    cache,
		onChange: onChange,
	}
}

func (f *EventListMatchingFilter) Init() {
	seed := f.cache.Query(f.filter)

	f.mx.Lock()
	f.current = seed
	f.mx.Unlock()

	f.notify(seed)
}

func (f *EventListMatchingFilter) New(event *model.Event) {
	if event == nil || !f.filter.Matches(event) {
		return
	}

	f.mx.Lock()
	for i := range f.current {
		if f.current[i].ID == event.ID {
			f.mx.Unlock()

			return
		}
	}
	idx := sort.Search(len(f.current), func(i int) bool {
		return !f.current[i].SortsBefore(event)
	})
	f.current = append(f.current, nil)
	copy(f.current[idx+1:], f.current[idx:])
	f.current[idx] = event
	if f.filter.Limit > 0 && len(f.current) > f.filter.Limit {
		f.current = f.current[:f.filter.Limit]
	}
	snapshot := f.snapshotLocked()
	f.mx.Unlock()

	f.notify(snapshot)
}

func (f *EventListMatchingFilter) Remove(event *model.Event) {
	if event == nil {
		return
	}

	f.mx.Lock()
	removed := false
	for i := range f.current {
		if f.current[i].ID == event.ID {
			f.current = append(f.current[:i], f.current[i+1:]...)
			removed = true

			break
		}
	}
	if !removed {
		f.mx.Unlock()

		return
	}
	snapshot := f.snapshotLocked()
	f.mx.Unlock()

	f.notify(snapshot)
}

func (f *EventListMatchingFilter) CurrentResults() []*model.Event {
	f.mx.Lock()
	defer f.mx.Unlock()

	return f.snapshotLocked()
}

func (f *EventListMatchingFilter) snapshotLocked() []*model.Event {
	snapshot := make([]*model.Event, len(f.current))
	copy(snapshot, f.current)

	return snapshot
}

func (f *EventListMatchingFilter) notify(snapshot []*model.Event) {
	if f.onChange != nil {
		f.onChange(snapshot)
	}
}
