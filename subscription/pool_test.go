// SPDX-License-Identifier: ice License 1.0

package subscription

import (
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/permafrost/model"
)

type recordingRelay struct {
	url  string
	mx   sync.Mutex
	sent []model.Envelope
}

func newRecordingRelay(url string) *recordingRelay {
	return &recordingRelay{url: url}
}

func (r *recordingRelay) URL() string {
	return r.url
}

func (r *recordingRelay) IsConnected() bool {
	return true
}

func (r *recordingRelay) SendIfConnected(envelope model.Envelope) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.sent = append(r.sent, envelope)
}

func (r *recordingRelay) sentEnvelopes() []model.Envelope {
	r.mx.Lock()
	defer r.mx.Unlock()

	return append([]model.Envelope(nil), r.sent...)
}

func authorFilter(author string) model.Filters {
	var filter model.Filter
	filter.Authors = []string{author}

	return model.Filters{filter}
}

func TestPoolSuppressesUnchangedFilters(t *testing.T) {
	t.Parallel()
	r := newRecordingRelay("wss://relay.example.com")
	pool := NewPool()
	pool.AddRelay(r)

	pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): authorFilter("aa")})
	require.Len(t, r.sentEnvelopes(), 1)

	t.Run("identical filters are not resent", func(t *testing.T) {
		pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): authorFilter("aa")})
		require.Len(t, r.sentEnvelopes(), 1)
	})
	t.Run("changed filters are resent", func(t *testing.T) {
		pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): authorFilter("bb")})
		sent := r.sentEnvelopes()
		require.Len(t, sent, 2)
		req, ok := sent[1].(*model.ReqEnvelope)
		require.True(t, ok)
		require.Equal(t, "sub-1", req.SubscriptionID)
		require.Equal(t, []string{"bb"}, req.Filters[0].Authors)
	})
}

func TestPoolRemoveSendsClose(t *testing.T) {
	t.Parallel()
	r := newRecordingRelay("wss://relay.example.com")
	pool := NewPool()
	pool.AddRelay(r)
	pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): authorFilter("aa")})

	pool.Remove("sub-1")
	sent := r.sentEnvelopes()
	require.Len(t, sent, 2)
	closeEnvelope, ok := sent[1].(*nostr.CloseEnvelope)
	require.True(t, ok)
	require.Equal(t, "sub-1", string(*closeEnvelope))

	t.Run("removing again is silent", func(t *testing.T) {
		pool.Remove("sub-1")
		require.Len(t, r.sentEnvelopes(), 2)
	})
	t.Run("removing a never-sent subscription is silent", func(t *testing.T) {
		pool.Remove("sub-unknown")
		require.Len(t, r.sentEnvelopes(), 2)
	})
}

func TestPoolDropsRelayFromSubscription(t *testing.T) {
	t.Parallel()
	a := newRecordingRelay("wss://a.example.com")
	b := newRecordingRelay("wss://b.example.com")
	pool := NewPool()
	pool.AddRelay(a)
	pool.AddRelay(b)
	pool.AddOrUpdate("sub-1", map[string]model.Filters{
		a.URL(): authorFilter("aa"),
		b.URL(): authorFilter("aa"),
	})
	require.Len(t, a.sentEnvelopes(), 1)
	require.Len(t, b.sentEnvelopes(), 1)

	pool.AddOrUpdate("sub-1", map[string]model.Filters{a.URL(): authorFilter("aa")})
	require.Len(t, a.sentEnvelopes(), 1)
	sent := b.sentEnvelopes()
	require.Len(t, sent, 2)
	_, ok := sent[1].(*nostr.CloseEnvelope)
	require.True(t, ok)
}

func TestPoolRenewFiltersBypassesChangeDetection(t *testing.T) {
	t.Parallel()
	r := newRecordingRelay("wss://relay.example.com")
	pool := NewPool()
	pool.AddRelay(r)
	pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): authorFilter("aa")})
	pool.AddOrUpdate("sub-2", map[string]model.Filters{r.URL(): authorFilter("bb")})
	require.Len(t, r.sentEnvelopes(), 2)

	pool.RenewFilters(r)
	sent := r.sentEnvelopes()
	require.Len(t, sent, 4)
	require.ElementsMatch(t, []string{"sub-1", "sub-2"}, pool.ActiveSubscriptions(r.URL()))
}

func TestPoolEmptyFiltersCloseInsteadOfRequest(t *testing.T) {
	t.Parallel()
	r := newRecordingRelay("wss://relay.example.com")
	pool := NewPool()
	pool.AddRelay(r)
	pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): authorFilter("aa")})

	pool.AddOrUpdate("sub-1", map[string]model.Filters{r.URL(): nil})
	sent := r.sentEnvelopes()
	require.Len(t, sent, 2)
	_, ok := sent[1].(*nostr.CloseEnvelope)
	require.True(t, ok)
	require.Empty(t, pool.ActiveSubscriptions(r.URL()))
}
