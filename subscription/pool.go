// SPDX-License-Identifier: ice License 1.0

package subscription

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/permafrost/model"
	"github.com/ice-blockchain/permafrost/relay"
)

// Pool keeps the desired subscription state per relay and pushes only actual
// changes to the wire. Re-submitting an identical filter set is suppressed by
// comparing the serialized REQ against the last one sent, so debounced
// recomputations that land on the same result stay silent.
type Pool struct {
	mx       sync.Mutex
	relays   map[string]relay.Relay
	desired  map[string]map[string]model.Filters
	lastSent map[string]map[string]string
}

func NewPool() *Pool {
	return &Pool{
		relays:   make(map[string]relay.Relay),
		desired:  make(map[string]map[string]model.Filters),
		lastSent: make(map[string]map[string]string),
	}
}

func (p *Pool) AddRelay(r relay.Relay) {
	p.mx.Lock()
	p.relays[r.URL()] = r
	p.mx.Unlock()
}

func (p *Pool) RemoveRelay(url string) {
	p.mx.Lock()
	delete(p.relays, url)
	delete(p.lastSent, url)
	for _, perRelay := range p.desired {
		delete(perRelay, url)
	}
	p.mx.Unlock()
}

// AddOrUpdate records the desired filters of one subscription per relay and
// sends a REQ to every relay where the filters actually changed. Relays
// absent from perRelay that previously carried this subscription get a CLOSE.
func (p *Pool) AddOrUpdate(subID string, perRelay map[string]model.Filters) {
	p.mx.Lock()
	defer p.mx.Unlock()

	previous := p.desired[subID]
	for url := range previous {
		if _, still := perRelay[url]; !still {
			p.closeLocked(url, subID)
		}
	}

	next := make(map[string]model.Filters, len(perRelay))
	for url, filters := range perRelay {
		if len(filters) == 0 {
			p.closeLocked(url, subID)

			continue
		}
		next[url] = filters
		req := &model.ReqEnvelope{SubscriptionID: subID, Filters: filters}
		fingerprint := req.String()
		if p.lastSent[url][subID] == fingerprint {
			continue
		}
		if r := p.relays[url]; r != nil {
			r.SendIfConnected(req)
		}
		if p.lastSent[url] == nil {
			p.lastSent[url] = make(map[string]string)
		}
		p.lastSent[url][subID] = fingerprint
	}
	if len(next) == 0 {
		delete(p.desired, subID)
	} else {
		p.desired[subID] = next
	}
}

// Remove closes the subscription on every relay that carries it.
func (p *Pool) Remove(subID string) {
	p.mx.Lock()
	defer p.mx.Unlock()
	for url := range p.desired[subID] {
		p.closeLocked(url, subID)
	}
	delete(p.desired, subID)
}

// RenewFilters resends every desired subscription to one relay, bypassing
// change detection. Called after the relay authenticated us: filters sent
// before auth may have been answered from a restricted view.
func (p *Pool) RenewFilters(r relay.Relay) {
	p.mx.Lock()
	defer p.mx.Unlock()
	url := r.URL()
	for subID, perRelay := range p.desired {
		filters, found := perRelay[url]
		if !found {
			continue
		}
		req := &model.ReqEnvelope{SubscriptionID: subID, Filters: filters}
		r.SendIfConnected(req)
		if p.lastSent[url] == nil {
			p.lastSent[url] = make(map[string]string)
		}
		p.lastSent[url][subID] = req.String()
	}
}

// ActiveSubscriptions returns the IDs of subscriptions desired on the given
// relay.
func (p *Pool) ActiveSubscriptions(url string) []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	var subs []string
	for subID, perRelay := range p.desired {
		if _, found := perRelay[url]; found {
			subs = append(subs, subID)
		}
	}

	return subs
}

func (p *Pool) closeLocked(url, subID string) {
	if _, sent := p.lastSent[url][subID]; !sent {
		return
	}
	delete(p.lastSent[url], subID)
	if r := p.relays[url]; r != nil {
		closeEnvelope := nostr.CloseEnvelope(subID)
		r.SendIfConnected(&closeEnvelope)
	}
}
