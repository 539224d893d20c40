// SPDX-License-Identifier: ice License 1.0

package subscription

import (
	"time"

	"github.com/ice-blockchain/permafrost/cache"
	"github.com/ice-blockchain/permafrost/model"
	"github.com/ice-blockchain/permafrost/relay"
)

type (
	// FinderKey identifies one event to locate, either directly by ID or by
	// its replaceable address. Exactly one of the two is set.
	FinderKey struct {
		EventID string
		Address model.Address
	}

	// EventFinder fetches individual events observers asked for and are not
	// in the cache yet. It maintains a single wire subscription whose
	// filters are reassembled from the outstanding keys: lookup filters for
	// events still missing, watch filters for newer versions of addressable
	// events already cached. Lookup filters never carry `since`, the wanted
	// event can be arbitrarily old; only the watch filters are bounded by
	// the per-relay EOSE cursors.
	EventFinder struct {
		pool         *Pool
		eoses        *relay.EOSEAccount
		events       *cache.EventCache
		relayURLs    func() []string
		sub          *Subscription
		orchestrator *Orchestrator[FinderKey]
	}
)

func FinderKeyForID(eventID string) FinderKey {
	return FinderKey{EventID: eventID}
}

func FinderKeyForAddress(address model.Address) FinderKey {
	return FinderKey{Address: address}
}

func NewEventFinder(
	pool *Pool,
	eoses *relay.EOSEAccount,
	events *cache.EventCache,
	relayURLs func() []string,
	debounceInterval time.Duration,
) *EventFinder {
	f := &EventFinder{pool: pool, eoses: eoses, events: events, relayURLs: relayURLs, sub: NewSubscription()}
	f.orchestrator = NewOrchestrator(Hooks[FinderKey]{
		Stop:   func() { pool.Remove(f.sub.ID()) },
		Update: f.updateSubscriptions,
	}, debounceInterval)

	return f
}

func (f *EventFinder) Find(key FinderKey) {
	f.orchestrator.Subscribe(&key)
}

func (f *EventFinder) Forget(key FinderKey) {
	f.orchestrator.Unsubscribe(&key)
}

func (f *EventFinder) SubscriptionID() string {
	return f.sub.ID()
}

func (f *EventFinder) InvalidateFilters() {
	f.orchestrator.InvalidateFilters()
}

// OnEOSE records that a relay finished serving stored history for our
// subscription, advancing its cursor for future reassemblies.
func (f *EventFinder) OnEOSE(relayURL string, when model.Timestamp) {
	f.eoses.NewEOSE(relayURL, f.sub.ID(), when)
}

func (f *EventFinder) updateSubscriptions(keys []FinderKey) {
	lookups, watches := f.assembleFilters(keys)
	f.sub.SetTypedFilters(append(append(model.Filters{}, lookups...), watches...))
	if f.sub.TypedFilters() == nil {
		f.pool.Remove(f.sub.ID())

		return
	}
	perRelay := make(map[string]model.Filters)
	cursors := f.eoses.SincePerRelay(f.sub.ID())
	for _, url := range f.relayURLs() {
		relayWatches := watches
		if since, found := cursors[url]; found {
			relayWatches = withSince(watches, since)
		}
		perRelay[url] = append(append(model.Filters{}, lookups...), relayWatches...)
	}
	f.pool.AddOrUpdate(f.sub.ID(), perRelay)
}

// assembleFilters splits the outstanding keys into lookup filters (one IDs
// filter plus one filter per addressable kind, for events not cached yet) and
// watch filters (per-kind address filters for cached addressable events, to
// pick up newer versions).
func (f *EventFinder) assembleFilters(keys []FinderKey) (lookups, watches model.Filters) {
	var ids []string
	missing := make(map[model.Kind]map[model.Address]struct{})
	watched := make(map[model.Kind]map[model.Address]struct{})
	for _, key := range keys {
		if key.EventID != "" {
			if f.events.Get(key.EventID) == nil {
				ids = append(ids, key.EventID)
			}

			continue
		}
		group := missing
		if f.events.GetByAddress(key.Address) != nil {
			group = watched
		}
		addresses := group[key.Address.Kind]
		if addresses == nil {
			addresses = make(map[model.Address]struct{})
			group[key.Address.Kind] = addresses
		}
		addresses[key.Address] = struct{}{}
	}

	if len(ids) > 0 {
		var filter model.Filter
		filter.IDs = ids
		lookups = append(lookups, filter)
	}
	lookups = append(lookups, addressFilters(missing)...)
	watches = addressFilters(watched)

	return lookups, watches
}

func addressFilters(perKind map[model.Kind]map[model.Address]struct{}) model.Filters {
	var filters model.Filters
	for kind, addresses := range perKind {
		var filter model.Filter
		filter.Kinds = []int{int(kind)}
		for address := range addresses {
			filter.Authors = append(filter.Authors, string(address.PubKeyHex))
			if address.DTag != "" {
				if filter.Tags == nil {
					filter.Tags = make(model.TagMap)
				}
				filter.Tags["d"] = append(filter.Tags["d"], address.DTag)
			}
		}
		filters = append(filters, filter)
	}

	return filters
}

func withSince(filters model.Filters, since model.Timestamp) model.Filters {
	result := make(model.Filters, len(filters))
	for i := range filters {
		result[i] = filters[i]
		ts := since
		result[i].Since = &ts
	}

	return result
}
