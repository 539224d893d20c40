// SPDX-License-Identifier: ice License 1.0

package subscription

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ice-blockchain/permafrost/model"
)

// Subscription is one logical wire subscription. The ID is stable for its
// whole lifetime, only the filters change as keys come and go.
type Subscription struct {
	id           string
	mx           sync.RWMutex
	typedFilters model.Filters
}

func NewSubscription() *Subscription {
	return &Subscription{id: uuid.NewString()}
}

func (s *Subscription) ID() string {
	return s.id
}

// SetTypedFilters replaces the current filters. Filters that would match
// nothing are discarded wholesale: sending an unconstrained or dead REQ to a
// relay is worse than sending none. Kept filters are validated on the way
// in, malformed hex fields are logged but never rejected.
func (s *Subscription) SetTypedFilters(filters model.Filters) {
	usable := make(model.Filters, 0, len(filters))
	for i := range filters {
		if !filters[i].IsEmpty() {
			filters[i].Validate()
			usable = append(usable, filters[i])
		}
	}
	if len(usable) == 0 {
		usable = nil
	}
	s.mx.Lock()
	s.typedFilters = usable
	s.mx.Unlock()
}

func (s *Subscription) TypedFilters() model.Filters {
	s.mx.RLock()
	defer s.mx.RUnlock()

	return s.typedFilters
}
