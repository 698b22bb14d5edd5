package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

func newEntry(sql string) *Entry {
	return &Entry{SQL: sql, Headers: []string{"id"}, CreatedAt: time.Now()}
}

func TestPlanCache_GetPut(t *testing.T) {
	c := New(DefaultConfig())

	_, ok := c.Get("src:postgres:aa")
	assert.False(t, ok)

	e := newEntry("SELECT 1")
	c.Put("src:postgres:aa", e)

	got, ok := c.Get("src:postgres:aa")
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, uint64(1), got.Hits())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestPlanCache_LRUEviction(t *testing.T) {
	c := New(DefaultConfig().WithCapacity(3))

	c.Put("k1", newEntry("q1"))
	c.Put("k2", newEntry("q2"))
	c.Put("k3", newEntry("q3"))

	// Touch k1 so k2 is coldest.
	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Put("k4", newEntry("q4"))

	_, ok = c.Get("k2")
	assert.False(t, ok, "coldest key is evicted")
	_, ok = c.Get("k1")
	assert.True(t, ok)
	_, ok = c.Get("k4")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestPlanCache_DualKeysShareEntry(t *testing.T) {
	c := New(DefaultConfig())
	e := newEntry("SELECT id FROM t")

	k := Key{
		Fingerprint: 0xabc,
		PlanHash:    0xdef,
		Backend:     models.BackendPostgres,
		Options:     models.CompileOptions{AutoLimit: true},
	}
	c.PutBoth(k.SourceKey(), k.PlanKey(), e)

	fromSrc, ok := c.Get(k.SourceKey())
	require.True(t, ok)
	fromPlan, ok := c.Get(k.PlanKey())
	require.True(t, ok)
	assert.Same(t, fromSrc, fromPlan)
	assert.Equal(t, uint64(2), e.Hits(), "both levels feed one hit counter")
}

func TestKey_CompositeKeys(t *testing.T) {
	base := Key{Fingerprint: 1, PlanHash: 2, Backend: models.BackendMySQL}
	paged := Key{
		Fingerprint: 1,
		PlanHash:    2,
		Backend:     models.BackendMySQL,
		Page:        &models.Pagination{Size: 25, Offset: 50},
		Options:     models.CompileOptions{AutoLimit: true},
	}

	assert.NotEqual(t, base.SourceKey(), paged.SourceKey(),
		"pagination and options partition the key space")
	assert.NotEqual(t, base.PlanKey(), paged.PlanKey())

	other := base
	other.Backend = models.BackendSQLite
	assert.NotEqual(t, base.SourceKey(), other.SourceKey())
}

func TestPlanCache_DoCachesSuccess(t *testing.T) {
	c := New(DefaultConfig())

	calls := 0
	fn := func() (*Entry, error) {
		calls++
		return newEntry("SELECT 1"), nil
	}

	e1, err := c.Do("k", fn)
	require.NoError(t, err)
	e2, err := c.Do("k", fn)
	require.NoError(t, err)

	assert.Same(t, e1, e2)
	assert.Equal(t, 1, calls, "second call is a cache hit")
}

func TestPlanCache_DoNeverStoresFailures(t *testing.T) {
	c := New(DefaultConfig())

	boom := errors.New(errors.CodeParseFailed, "bad sql")
	_, err := c.Do("k", func() (*Entry, error) { return nil, boom })
	require.Error(t, err)

	assert.Equal(t, 0, c.Len(), "failed compiles leave no entry behind")

	// The key still compiles fresh afterwards.
	e, err := c.Do("k", func() (*Entry, error) { return newEntry("ok"), nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", e.SQL)
}

func TestPlanCache_DoCollapsesConcurrentCompiles(t *testing.T) {
	c := New(DefaultConfig())

	var calls int
	var callsMu sync.Mutex
	gate := make(chan struct{})

	fn := func() (*Entry, error) {
		callsMu.Lock()
		calls++
		callsMu.Unlock()
		<-gate
		return newEntry("slow"), nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*Entry, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.Do("hot", fn)
			require.NoError(t, err)
			results[i] = e
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	callsMu.Lock()
	defer callsMu.Unlock()
	assert.LessOrEqual(t, calls, 2, "concurrent same-key compiles collapse")
	for _, e := range results {
		assert.NotNil(t, e)
	}
}

func TestPlanCache_TTLExpiry(t *testing.T) {
	c := New(DefaultConfig().WithTTL(10 * time.Millisecond))

	c.Put("k", &Entry{SQL: "old", CreatedAt: time.Now().Add(-time.Second)})
	_, ok := c.Get("k")
	assert.False(t, ok, "expired entries read as misses")
	assert.Equal(t, 0, c.Len())
}

func TestPlanCache_Clear(t *testing.T) {
	c := New(DefaultConfig())
	c.Put("a", newEntry("1"))
	c.Put("b", newEntry("2"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Size)
}

func TestPlanCache_ConcurrentAccess(t *testing.T) {
	c := New(DefaultConfig().WithCapacity(64))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (worker*7+j)%100)
				if j%3 == 0 {
					c.Put(key, newEntry(key))
				} else {
					c.Get(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
	stats := c.Stats()
	assert.NotZero(t, stats.Hits+stats.Misses)
}

func TestPlanCache_DoCountsOneMissPerCompile(t *testing.T) {
	c := New(DefaultConfig())

	_, err := c.Do("k", func() (*Entry, error) { return newEntry("SELECT 1"), nil })
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Misses, "cold lookup is a single miss")
	assert.Equal(t, uint64(0), stats.Hits)

	_, err = c.Do("k", func() (*Entry, error) { return newEntry("SELECT 1"), nil })
	require.NoError(t, err)

	stats = c.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Hits)
}
