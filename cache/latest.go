// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"sync"

	"github.com/ice-blockchain/permafrost/model"
)

// LatestByKindAndAuthor tracks the single most recent event of one
// (kind, author) pair. Out-of-order arrival never downgrades the view:
// createdAt decides, not arrival order.
type LatestByKindAndAuthor struct {
	mx       sync.Mutex
	kind     model.Kind
	pubKey   model.HexKey
	cache    *EventCache
	onChange func(*model.Event)
	current  *model.Event
}

func NewLatestByKindAndAuthor(kind model.Kind, pubKey model.HexKey, cache *EventCache, onChange func(*model.Event)) *LatestByKindAndAuthor {
	return &LatestByKindAndAuthor{
		kind:     kind,
		pubKey:   pubKey,
		cache:    cache,
		onChange: onChange,
	}
}

func (l *LatestByKindAndAuthor) UpdateIfMatches(event *model.Event) {
	if event == nil || event.Kind != l.kind || event.PubKey != l.pubKey {
		return
	}

	l.mx.Lock()
	if l.current != nil && !event.IsNewerThan(l.current) {
		l.mx.Unlock()

		return
	}
	l.current = event
	l.mx.Unlock()

	l.notify(event)
}

// Restart recomputes the view from a fresh cache scan,
// used after bulk imports or other structural changes.
func (l *LatestByKindAndAuthor) Restart() {
	latest := l.cache.LatestFor(l.kind, l.pubKey)

	l.mx.Lock()
	changed := latest != l.current
	l.current = latest
	l.mx.Unlock()

	if changed {
		l.notify(latest)
	}
}

func (l *LatestByKindAndAuthor) Current() *model.Event {
	l.mx.Lock()
	defer l.mx.Unlock()

	return l.current
}

func (l *LatestByKindAndAuthor) notify(event *model.Event) {
	if l.onChange != nil {
		l.onChange(event)
	}
}
