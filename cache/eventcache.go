// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ice-blockchain/permafrost/model"
)

type (
	// EventListener is notified once for every event newly accepted by the
	// cache, from the ingestion path only.
	EventListener func(event *model.Event) error

	KindAndAuthor struct {
		Kind   model.Kind
		PubKey model.HexKey
	}

	// EventCache is the single in-process source of truth for received events.
	// It is created at session start and torn down on account switch; pass it
	// explicitly to every component that needs it.
	EventCache struct {
		events       *LargeCache[string, *model.Event]
		addressables *LargeCache[model.Address, *model.Event]
		byKind       *xsync.MapOf[model.Kind, *LargeCache[string, *model.Event]]
		latest       *LargeCache[KindAndAuthor, *model.Event]

		listenersMx sync.RWMutex
		listeners   []EventListener
	}
)

func NewEventCache() *EventCache {
	return &EventCache{
		events:       NewLargeCache[string, *model.Event](),
		addressables: NewLargeCache[model.Address, *model.Event](),
		byKind:       xsync.NewMapOf[model.Kind, *LargeCache[string, *model.Event]](),
		latest:       NewLargeCache[KindAndAuthor, *model.Event](),
	}
}

func (c *EventCache) AddListener(listener EventListener) {
	c.listenersMx.Lock()
	defer c.listenersMx.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Put inserts the event and refreshes the derived indices. For replaceable
// and addressable kinds the Address index only moves forward: an event with a
// smaller or equal createdAt than the currently indexed one leaves the index
// untouched, although the raw event is still retained by id for history.
// Returns whether the event was new to the cache.
func (c *EventCache) Put(event *model.Event) (bool, error) {
	if event == nil {
		return false, nil
	}
	if _, known := c.events.PutIfAbsent(event.ID, event); known {
		return false, nil
	}

	if addr := event.Address(); addr != nil {
		c.addressables.Compute(*addr, func(current *model.Event, loaded bool) (*model.Event, bool) {
			if !loaded || event.IsNewerThan(current) {
				return event, true
			}

			return current, true
		})
	}

	bucket, _ := c.byKind.LoadOrCompute(event.Kind, func() *LargeCache[string, *model.Event] {
		return NewLargeCache[string, *model.Event]()
	})
	bucket.Put(event.ID, event)

	c.latest.Compute(KindAndAuthor{Kind: event.Kind, PubKey: event.PubKey}, func(current *model.Event, loaded bool) (*model.Event, bool) {
		if !loaded || event.IsNewerThan(current) {
			return event, true
		}

		return current, true
	})

	return true, c.notifyListeners(event)
}

func (c *EventCache) notifyListeners(event *model.Event) error {
	c.listenersMx.RLock()
	listeners := c.listeners
	c.listenersMx.RUnlock()

	var mErr *multierror.Error
	for _, listener := range listeners {
		mErr = multierror.Append(mErr, listener(event))
	}

	return mErr.ErrorOrNil()
}

func (c *EventCache) Get(id string) *model.Event {
	event, _ := c.events.Get(id)

	return event
}

func (c *EventCache) GetByAddress(addr model.Address) *model.Event {
	event, _ := c.addressables.Get(addr)

	return event
}

// LatestFor returns the most recent event of the given kind and author seen
// so far, regardless of arrival order.
func (c *EventCache) LatestFor(kind model.Kind, pubKey model.HexKey) *model.Event {
	event, _ := c.latest.Get(KindAndAuthor{Kind: kind, PubKey: pubKey})

	return event
}

func (c *EventCache) Delete(id string) {
	event, found := c.events.Get(id)
	if !found {
		return
	}
	c.events.Delete(id)
	if bucket, ok := c.byKind.Load(event.Kind); ok {
		bucket.Delete(id)
	}
	if addr := event.Address(); addr != nil {
		c.addressables.Compute(*addr, func(current *model.Event, loaded bool) (*model.Event, bool) {
			if loaded && current != nil && current.ID == event.ID {
				return nil, false
			}

			return current, loaded
		})
	}
}

func (c *EventCache) Size() int {
	return c.events.Size()
}

// Clear resets the cache to its initial state. Used on account switch.
func (c *EventCache) Clear() {
	c.events = NewLargeCache[string, *model.Event]()
	c.addressables = NewLargeCache[model.Address, *model.Event]()
	c.byKind = xsync.NewMapOf[model.Kind, *LargeCache[string, *model.Event]]()
	c.latest = NewLargeCache[KindAndAuthor, *model.Event]()
}

func (c *EventCache) FilterIntoSet(predicate func(*model.Event) bool) []*model.Event {
	return c.events.FilterIntoSet(func(_ string, event *model.Event) bool {
		return predicate(event)
	})
}

func (c *EventCache) ForEachOfKind(kind model.Kind, fn func(*model.Event) bool) {
	bucket, ok := c.byKind.Load(kind)
	if !ok {
		return
	}
	bucket.ForEach(func(_ string, event *model.Event) bool {
		return fn(event)
	})
}

// Query evaluates a filter against the cache, scanning only the kind buckets
// the filter names instead of the whole store, and returns matches sorted
// newest first with the filter's limit applied.
func (c *EventCache) Query(filter *model.Filter) []*model.Event {
	var matches []*model.Event
	collect := func(event *model.Event) bool {
		if filter.Matches(event) {
			matches = append(matches, event)
		}

		return true
	}

	if filter.Kinds != nil {
		for _, kind := range filter.Kinds {
			c.ForEachOfKind(kind, collect)
		}
	} else {
		c.events.ForEach(func(_ string, event *model.Event) bool {
			return collect(event)
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SortsBefore(matches[j])
	})
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}

	return matches
}
