// SPDX-License-Identifier: ice License 1.0

package model

import (
	"log"

	"github.com/nbd-wtf/go-nostr"
)

type (
	// Filter extends the NIP-01 filter with TagsAll: tag constraints where
	// every listed value must be present on the event, not just one.
	// TagsAll never reaches the wire; relays only understand the embedded
	// nostr.Filter shape, which the promoted (Un)MarshalJSON preserves bit-exact.
	Filter struct {
		nostr.Filter
		TagsAll TagMap `json:"-"`
	}

	Filters []Filter
)

func (eff Filters) Match(event *Event) bool {
	for i := range eff {
		if eff[i].Matches(event) {
			return true
		}
	}

	return false
}

// Matches evaluates the filter against a single event. Pure, no side effects.
//
// A nil IDs/Kinds/Authors list skips that predicate; an empty non-nil list
// matches nothing. The same holds for the value lists inside Tags: a present
// tag name with zero allowed values cannot be satisfied. Real filter authors
// never produce that shape, but the behavior is kept as-is.
func (ef *Filter) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if ef.IDs != nil && !containsString(ef.IDs, event.ID) {
		return false
	}
	if ef.Kinds != nil && !containsKind(ef.Kinds, event.Kind) {
		return false
	}
	if ef.Authors != nil && !containsString(ef.Authors, event.PubKey) {
		return false
	}
	for tagName, allowed := range ef.Tags {
		if !eventHasAnyTagValue(event, tagName, allowed) {
			return false
		}
	}
	for tagName, required := range ef.TagsAll {
		for _, value := range required {
			if !eventHasTagValue(event, tagName, value) {
				return false
			}
		}
	}
	if ef.Since != nil && event.CreatedAt < *ef.Since {
		return false
	}
	if ef.Until != nil && event.CreatedAt > *ef.Until {
		return false
	}

	return true
}

func (ef *Filter) IsEmpty() bool {
	return len(ef.IDs) == 0 &&
		len(ef.Kinds) == 0 &&
		len(ef.Authors) == 0 &&
		len(ef.Tags) == 0 &&
		len(ef.TagsAll) == 0 &&
		ef.Since == nil &&
		ef.Until == nil &&
		ef.Search == ""
}

// Validate logs a warning for every malformed 256-bit hex field. Malformed
// filters stay usable, the offending predicate simply matches nothing.
func (ef *Filter) Validate() {
	for _, id := range ef.IDs {
		if !IsValidHex64(id) {
			log.Printf("warn: filter id %q is not 64 hex characters", id)
		}
	}
	for _, author := range ef.Authors {
		if !IsValidHex64(author) {
			log.Printf("warn: filter author %q is not 64 hex characters", author)
		}
	}
	for tagName, values := range ef.Tags {
		if tagName != "e" && tagName != "p" {
			continue
		}
		for _, value := range values {
			if !IsValidHex64(value) {
				log.Printf("warn: filter #%v value %q is not 64 hex characters", tagName, value)
			}
		}
	}
}

func FromNostrFilters(filters nostr.Filters) Filters {
	if len(filters) == 0 {
		return nil
	}

	result := make(Filters, len(filters))
	for idx := range filters {
		result[idx] = Filter{Filter: filters[idx]}
	}

	return result
}

func (eff Filters) ToNostr() nostr.Filters {
	if len(eff) == 0 {
		return nil
	}

	result := make(nostr.Filters, len(eff))
	for idx := range eff {
		result[idx] = eff[idx].Filter
	}

	return result
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}

func containsKind(haystack []Kind, needle Kind) bool {
	for _, k := range haystack {
		if k == needle {
			return true
		}
	}

	return false
}

func eventHasAnyTagValue(event *Event, tagName string, allowed []string) bool {
	for _, tag := range event.Tags {
		if len(tag) < 2 || tag.Key() != tagName {
			continue
		}
		if containsString(allowed, tag[1]) {
			return true
		}
	}

	return false
}

func eventHasTagValue(event *Event, tagName, value string) bool {
	for _, tag := range event.Tags {
		if len(tag) > 1 && tag.Key() == tagName && tag[1] == value {
			return true
		}
	}

	return false
}
