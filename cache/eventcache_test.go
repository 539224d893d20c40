// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/permafrost/model"
)

func helperNewEvent(t *testing.T, kind model.Kind, pubkey string, createdAt model.Timestamp, tags model.Tags) *model.Event {
	t.Helper()

	var ev model.Event
	ev.ID = uuid.NewString()
	ev.PubKey = pubkey
	ev.Kind = kind
	ev.CreatedAt = createdAt
	ev.Tags = tags
	if ev.Tags == nil {
		ev.Tags = model.Tags{}
	}

	return &ev
}

func TestEventCacheAddressReplace(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	pubkey := uuid.NewString()
	addr := model.Address{Kind: 30000, PubKeyHex: pubkey, DTag: "x"}
	dTag := model.Tags{{"d", "x"}}

	evA := helperNewEvent(t, 30000, pubkey, 10, dTag)
	stored, err := c.Put(evA)
	require.NoError(t, err)
	require.True(t, stored)
	require.Equal(t, evA, c.GetByAddress(addr))

	evB := helperNewEvent(t, 30000, pubkey, 5, dTag)
	stored, err = c.Put(evB)
	require.NoError(t, err)
	require.True(t, stored, "older event is still retained by id")
	require.Equal(t, evA, c.GetByAddress(addr), "older createdAt must not replace newer")
	require.Equal(t, evB, c.Get(evB.ID))

	evC := helperNewEvent(t, 30000, pubkey, 20, dTag)
	_, err = c.Put(evC)
	require.NoError(t, err)
	require.Equal(t, evC, c.GetByAddress(addr))

	evTie := helperNewEvent(t, 30000, pubkey, 20, dTag)
	_, err = c.Put(evTie)
	require.NoError(t, err)
	require.Equal(t, evC, c.GetByAddress(addr), "equal createdAt keeps the existing event")
}

func TestEventCacheDuplicatePut(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	ev := helperNewEvent(t, nostr.KindTextNote, uuid.NewString(), 10, nil)

	stored, err := c.Put(ev)
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = c.Put(ev)
	require.NoError(t, err)
	require.False(t, stored)
	require.Equal(t, 1, c.Size())
}

func TestEventCacheMissingKeys(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	require.Nil(t, c.Get("missing"))
	require.Nil(t, c.GetByAddress(model.Address{Kind: 30000, PubKeyHex: "missing"}))
	require.Nil(t, c.LatestFor(1, "missing"))
	require.Empty(t, c.Query(&model.Filter{Filter: nostr.Filter{Kinds: []int{1}}}))
}

func TestEventCacheListeners(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	var seen []string
	c.AddListener(func(event *model.Event) error {
		seen = append(seen, event.ID)

		return nil
	})
	c.AddListener(func(event *model.Event) error {
		return fmt.Errorf("listener failure for %v", event.ID)
	})

	ev := helperNewEvent(t, nostr.KindTextNote, uuid.NewString(), 10, nil)
	stored, err := c.Put(ev)
	require.True(t, stored)
	require.Error(t, err, "listener errors are aggregated, not swallowed")
	require.Equal(t, []string{ev.ID}, seen)

	stored, err = c.Put(ev)
	require.False(t, stored)
	require.NoError(t, err, "duplicates do not re-notify")
	require.Len(t, seen, 1)
}

func TestEventCacheQueryUsesKindBuckets(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	author := uuid.NewString()
	for i := 0; i < 10; i++ {
		_, err := c.Put(helperNewEvent(t, nostr.KindTextNote, author, model.Timestamp(i), nil))
		require.NoError(t, err)
	}
	_, err := c.Put(helperNewEvent(t, nostr.KindReaction, author, 100, nil))
	require.NoError(t, err)

	matches := c.Query(&model.Filter{Filter: nostr.Filter{Kinds: []int{nostr.KindTextNote}, Limit: 3}})
	require.Len(t, matches, 3)
	require.Equal(t, model.Timestamp(9), matches[0].CreatedAt, "newest first")
	require.Equal(t, model.Timestamp(7), matches[2].CreatedAt)
}

func TestEventCacheLatestForIgnoresArrivalOrder(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	author := uuid.NewString()

	newer := helperNewEvent(t, nostr.KindProfileMetadata, author, 50, nil)
	older := helperNewEvent(t, nostr.KindProfileMetadata, author, 10, nil)

	_, err := c.Put(newer)
	require.NoError(t, err)
	_, err = c.Put(older)
	require.NoError(t, err)

	require.Equal(t, newer, c.LatestFor(nostr.KindProfileMetadata, author))
}

func TestEventCacheDelete(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	pubkey := uuid.NewString()
	ev := helperNewEvent(t, 30000, pubkey, 10, model.Tags{{"d", "x"}})
	_, err := c.Put(ev)
	require.NoError(t, err)

	c.Delete(ev.ID)
	require.Nil(t, c.Get(ev.ID))
	require.Nil(t, c.GetByAddress(model.Address{Kind: 30000, PubKeyHex: pubkey, DTag: "x"}))
	require.Empty(t, c.Query(&model.Filter{Filter: nostr.Filter{Kinds: []int{30000}}}))
}

func TestEventCacheConcurrentPut(t *testing.T) {
	t.Parallel()

	c := NewEventCache()
	pubkey := uuid.NewString()
	dTag := model.Tags{{"d", "x"}}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ev := helperNewEvent(t, 30000, pubkey, model.Timestamp(worker*100+i), dTag)
				_, _ = c.Put(ev)
			}
		}(worker)
	}
	wg.Wait()

	current := c.GetByAddress(model.Address{Kind: 30000, PubKeyHex: pubkey, DTag: "x"})
	require.NotNil(t, current)
	require.Equal(t, model.Timestamp(799), current.CreatedAt)
	require.Equal(t, 800, c.Size())
}

func TestEventCacheConcurrentPutOfSameID(t *testing.T) {
	t.Parallel()
	cache := NewEventCache()
	var notifications atomic.Int64
	cache.AddListener(func(*model.Event) error {
		notifications.Add(1)

		return nil
	})

	event := helperNewEvent(t, 1, "aa", 10, nil)
	const workers = 8
	var stored atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			accepted, err := cache.Put(event)
			require.NoError(t, err)
			if accepted {
				stored.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, stored.Load())
	require.EqualValues(t, 1, notifications.Load())
	require.Equal(t, 1, cache.Size())
}
