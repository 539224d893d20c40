// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"sync"

	"github.com/ice-blockchain/permafrost/model"
)

// EOSEAccount tracks, per relay and per logical query, the newest moment the
// relay confirmed having fully served stored history. Cursors only ever move
// forward, a stale EOSE arriving after a fresher one is ignored, so future
// `since` filters never regress and re-fetch already seen history.
type EOSEAccount struct {
	mx    sync.RWMutex
	since map[string]map[string]model.Timestamp
}

func NewEOSEAccount() *EOSEAccount {
	return &EOSEAccount{since: make(map[string]map[string]model.Timestamp)}
}

// NewEOSE records an end-of-stored-events marker for the given relay and
// logical query key, keeping the maximum of the stored and the new value.
func (e *EOSEAccount) NewEOSE(relayURL, query string, when model.Timestamp) {
	e.mx.Lock()
	defer e.mx.Unlock()
	perQuery := e.since[relayURL]
	if perQuery == nil {
		perQuery = make(map[string]model.Timestamp)
		e.since[relayURL] = perQuery
	}
	if existing, found := perQuery[query]; !found || when > existing {
		perQuery[query] = when
	}
}

func (e *EOSEAccount) Since(relayURL, query string) (model.Timestamp, bool) {
	e.mx.RLock()
	defer e.mx.RUnlock()
	when, found := e.since[relayURL][query]

	return when, found
}

// SincePerRelay returns a copy of the cursor map for one logical query,
// keyed by relay URL. Relays that never reported EOSE for it are absent.
func (e *EOSEAccount) SincePerRelay(query string) map[string]model.Timestamp {
	e.mx.RLock()
	defer e.mx.RUnlock()
	result := make(map[string]model.Timestamp, len(e.since))
	for relayURL, perQuery := range e.since {
		if when, found := perQuery[query]; found {
			result[relayURL] = when
		}
	}

	return result
}

// Reset drops every cursor. Called when the logged-in account changes, the
// new account must re-sync from scratch.
func (e *EOSEAccount) Reset() {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.since = make(map[string]map[string]model.Timestamp)
}

// ResetRelay drops the cursors of a single relay, for when it gets removed
// from the configured set.
func (e *EOSEAccount) ResetRelay(relayURL string) {
	e.mx.Lock()
	defer e.mx.Unlock()
	delete(e.since, relayURL)
}

// FindMinimumEOSEs folds several per-relay cursor maps into one, keeping the
// oldest cursor per relay. A relay missing from any input map is excluded:
// it still needs an unbounded fetch for at least one of the queries, so no
// shared `since` can be safely applied.
func FindMinimumEOSEs(perRelay ...map[string]model.Timestamp) map[string]model.Timestamp {
	if len(perRelay) == 0 {
		return nil
	}
	result := make(map[string]model.Timestamp, len(perRelay[0]))
	for relayURL, when := range perRelay[0] {
		result[relayURL] = when
	}
	for _, cursors := range perRelay[1:] {
		for relayURL := range result {
			if when, found := cursors[relayURL]; found {
				if when < result[relayURL] {
					result[relayURL] = when
				}
			} else {
				delete(result, relayURL)
			}
		}
	}

	return result
}
