// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"fmt"

	metrics "github.com/rcrowley/go-metrics"
)

// Stats counts per-relay traffic. Counters are registered lazily on first
// touch, so relays added at runtime show up without extra bookkeeping.
type Stats struct {
	registry metrics.Registry
}

func NewStats() *Stats {
	return &Stats{registry: metrics.NewRegistry()}
}

func (s *Stats) EventReceived(relayURL string) {
	metrics.GetOrRegisterCounter(fmt.Sprintf("relay.%v.events.received", relayURL), s.registry).Inc(1)
}

func (s *Stats) EOSEReceived(relayURL string) {
	metrics.GetOrRegisterCounter(fmt.Sprintf("relay.%v.eoses.received", relayURL), s.registry).Inc(1)
}

func (s *Stats) AuthChallengeReceived(relayURL string) {
	metrics.GetOrRegisterCounter(fmt.Sprintf("relay.%v.auth.challenges", relayURL), s.registry).Inc(1)
}

func (s *Stats) MessageSent(relayURL string) {
	metrics.GetOrRegisterCounter(fmt.Sprintf("relay.%v.messages.sent", relayURL), s.registry).Inc(1)
}

func (s *Stats) Reconnected(relayURL string) {
	metrics.GetOrRegisterCounter(fmt.Sprintf("relay.%v.reconnects", relayURL), s.registry).Inc(1)
}

// Snapshot copies every counter into a plain map, mostly for logging and
// tests.
func (s *Stats) Snapshot() map[string]int64 {
	result := make(map[string]int64)
	s.registry.Each(func(name string, metric any) {
		if counter, ok := metric.(metrics.Counter); ok {
			result[name] = counter.Count()
		}
	})

	return result
}
