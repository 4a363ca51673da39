package api

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_BasicGetPut(t *testing.T) {
	cache := NewResultCache(100, time.Hour)

	assert.Nil(t, cache.Get("speed/-33.930000,18.400000"))

	data := []byte(`{"found":true}`)
	cache.Put("speed/-33.930000,18.400000", data)
	assert.Equal(t, data, cache.Get("speed/-33.930000,18.400000"))

	assert.Nil(t, cache.Get("road/-33.930000,18.400000"))
}

func TestResultCache_TTLExpiration(t *testing.T) {
	cache := NewResultCache(100, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Put("k", []byte("v"))
	now = now.Add(30 * time.Second)
	assert.NotNil(t, cache.Get("k"))

	now = now.Add(31 * time.Second)
	assert.Nil(t, cache.Get("k"))

	// Expired entry is removed from the map.
	cache.mu.Lock()
	_, exists := cache.entries["k"]
	cache.mu.Unlock()
	assert.False(t, exists)
}

func TestResultCache_LRUEviction_AccessOrder(t *testing.T) {
	cache := NewResultCache(3, time.Hour)

	cache.Put("a", []byte("1"))
	cache.Put("b", []byte("2"))
	cache.Put("c", []byte("3"))

	// Access "a" to move it to back; "b" becomes oldest.
	cache.Get("a")
	cache.Put("d", []byte("4"))

	assert.NotNil(t, cache.Get("a"))
	assert.Nil(t, cache.Get("b"))
	assert.NotNil(t, cache.Get("c"))
	assert.NotNil(t, cache.Get("d"))
}

func TestResultCache_UpdateExistingKey(t *testing.T) {
	cache := NewResultCache(100, time.Hour)

	cache.Put("a", []byte("old"))
	cache.Put("a", []byte("new"))

	assert.Equal(t, []byte("new"), cache.Get("a"))
	cache.mu.Lock()
	assert.Len(t, cache.entries, 1)
	assert.Len(t, cache.order, 1)
	cache.mu.Unlock()
}

func TestResultCache_Stats(t *testing.T) {
	cache := NewResultCache(100, time.Hour)

	cache.Put("a", []byte("1"))
	cache.Put("b", []byte("2"))

	cache.Get("a") // hit
	cache.Get("b") // hit
	cache.Get("c") // miss

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 100, stats.MaxEntries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	require.InDelta(t, 0.6667, stats.HitRate, 0.01)
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	cache := NewResultCache(50, time.Hour)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("speed/%d", n)
			cache.Put(key, []byte("data"))
			cache.Get(key)
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.Entries, 50)
	assert.Equal(t, int64(100), stats.Hits+stats.Misses)
}

func TestResultCache_Disabled(t *testing.T) {
	cache := NewResultCache(0, time.Hour)
	require.Nil(t, cache)

	cache.Put("a", []byte("1"))
	assert.Nil(t, cache.Get("a"))
	assert.Equal(t, CacheStats{}, cache.Stats())
}
