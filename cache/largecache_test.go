// SPDX-License-Identifier: ice License 1.0

package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLargeCacheBasics(t *testing.T) {
	t.Parallel()

	c := NewLargeCache[string, int]()
	_, found := c.Get("a")
	require.False(t, found)

	c.Put("a", 1)
	value, found := c.Get("a")
	require.True(t, found)
	require.Equal(t, 1, value)

	created := c.GetOrCreate("a", func(string) int { return 99 })
	require.Equal(t, 1, created, "existing value wins")
	created = c.GetOrCreate("b", func(string) int { return 2 })
	require.Equal(t, 2, created)
	require.Equal(t, 2, c.Size())

	c.Delete("a")
	_, found = c.Get("a")
	require.False(t, found)
}

func TestLargeCacheFilterAndMap(t *testing.T) {
	t.Parallel()

	c := NewLargeCache[int, int]()
	for i := 0; i < 10; i++ {
		c.Put(i, i*i)
	}

	even := c.FilterIntoSet(func(key, _ int) bool { return key%2 == 0 })
	require.Len(t, even, 5)

	mapped := MapNotNullIntoSet(c, func(key, value int) (int, bool) {
		if key < 3 {
			return value, true
		}

		return 0, false
	})
	require.Len(t, mapped, 3)
	require.ElementsMatch(t, []int{0, 1, 4}, mapped)
}

func TestLargeCacheConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	c := NewLargeCache[string, *sync.Once]()
	var wg sync.WaitGroup
	results := make([]*sync.Once, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrCreate("shared", func(string) *sync.Once { return new(sync.Once) })
		}(i)
	}
	wg.Wait()

	for i := 1; i < 16; i++ {
		require.Same(t, results[0], results[i], "GetOrCreate must resolve to a single instance")
	}
}

func TestLargeCacheCompute(t *testing.T) {
	t.Parallel()

	c := NewLargeCache[string, int]()
	value, kept := c.Compute("k", func(current int, loaded bool) (int, bool) {
		require.False(t, loaded)

		return 10, true
	})
	require.True(t, kept)
	require.Equal(t, 10, value)

	value, kept = c.Compute("k", func(current int, loaded bool) (int, bool) {
		require.True(t, loaded)

		return current + 1, true
	})
	require.True(t, kept)
	require.Equal(t, 11, value)

	_, kept = c.Compute("k", func(current int, loaded bool) (int, bool) {
		return 0, false
	})
	require.False(t, kept)
	_, found := c.Get("k")
	require.False(t, found)
}

func TestLargeCachePutIfAbsent(t *testing.T) {
	t.Parallel()

	c := NewLargeCache[string, int]()
	value, loaded := c.PutIfAbsent("k", 1)
	require.False(t, loaded)
	require.Equal(t, 1, value)

	value, loaded = c.PutIfAbsent("k", 2)
	require.True(t, loaded)
	require.Equal(t, 1, value)

	t.Run("concurrent writers elect one winner", func(t *testing.T) {
		const workers = 8
		winners := make(chan int, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func(w int) {
				defer wg.Done()
				if _, kept := c.PutIfAbsent("contended", w); !kept {
					winners <- w
				}
			}(w)
		}
		wg.Wait()
		close(winners)
		var count int
		for range winners {
			count++
		}
		require.Equal(t, 1, count)
	})
}
