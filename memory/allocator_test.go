package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingCollector struct {
	a     *Allocator
	runs  int
	onRun func()
}

func (c *countingCollector) Collect() {
	c.runs++
	if c.onRun != nil {
		c.onRun()
	}
	c.a.SetNextGC(c.a.Allocated() * 2)
}

func TestResizeAccounting(t *testing.T) {
	a := New()
	b := a.Resize(nil, 0, 10)
	require.Len(t, b, 10)
	require.Equal(t, 10, a.Allocated())
	b = a.Resize(b, 10, 200)
	require.Len(t, b, 200)
	require.Equal(t, 200, a.Allocated())
	b = a.Resize(b, 200, 0)
	require.Nil(t, b)
	require.Equal(t, 0, a.Allocated())
}

func TestResizePreservesContent(t *testing.T) {
	a := New()
	b := a.Resize(nil, 0, 5)
	copy(b, "hello")
	b = a.Resize(b, 5, 100)
	require.Equal(t, "hello", string(b[:5]))
	b = a.Resize(b, 100, 3)
	require.Equal(t, "hel", string(b))
}

func TestSmallBlocksComeFromPool(t *testing.T) {
	a := New()
	first := a.Resize(nil, 0, 24)
	require.Equal(t, SmallBlockSize, cap(first))
	a.Resize(first, 24, 0)
	require.Equal(t, 1, a.Stats().PoolSize)

	second := a.Resize(nil, 0, 8)
	require.Equal(t, 0, a.Stats().PoolSize)
	require.Equal(t, 1, a.Stats().PoolHits)
	require.Same(t, &first[:1][0], &second[:1][0])
	require.Equal(t, make([]byte, 8), second)
}

func TestPoolMembershipUsesTrueCapacity(t *testing.T) {
	a := New()
	large := a.Resize(nil, 0, 500)
	// Freeing a large block while reporting a small size must not put it in
	// the pool.
	a.Resize(large, 16, 0)
	require.Equal(t, 0, a.Stats().PoolSize)

	small := a.Resize(nil, 0, 16)
	// Reporting a large old size for a small block still pools it.
	a.Resize(small, 500, 0)
	require.Equal(t, 1, a.Stats().PoolSize)
}

func TestPoolCapacityIsBounded(t *testing.T) {
	a := New()
	blocks := make([][]byte, SmallPoolCapacity+10)
	for i := range blocks {
		blocks[i] = a.Resize(nil, 0, SmallBlockSize)
	}
	for i := range blocks {
		a.Resize(blocks[i], SmallBlockSize, 0)
	}
	require.Equal(t, SmallPoolCapacity, a.Stats().PoolSize)
}

func TestCollectionTriggersAboveThreshold(t *testing.T) {
	a := New(WithThreshold(100))
	c := &countingCollector{a: a}
	a.SetCollector(c)

	a.Resize(nil, 0, 100)
	require.Equal(t, 0, c.runs)

	// Shrinking never collects, even above the threshold.
	b := a.Resize(nil, 0, 64)
	require.Equal(t, 1, c.runs)
	a.Resize(b, 64, 10)
	require.Equal(t, 1, c.runs)
	require.Equal(t, 328, a.NextGC())
}

func TestCollectionRunsBeforeRequestIsServiced(t *testing.T) {
	a := New(WithThreshold(50))
	var seen int
	c := &countingCollector{a: a}
	c.onRun = func() { seen = a.Allocated() }
	a.SetCollector(c)
	a.Resize(nil, 0, 40)
	a.Resize(nil, 0, 20)
	require.Equal(t, 1, c.runs)
	require.Equal(t, 60, seen)
}

func TestStressCollectsOnEveryGrowth(t *testing.T) {
	a := New(WithStress(true))
	c := &countingCollector{a: a}
	a.SetCollector(c)
	b := a.Resize(nil, 0, 1)
	b = a.Resize(b, 1, 2)
	a.Resize(b, 2, 0)
	require.Equal(t, 2, c.runs)
}

func TestCollectorIsNotReentered(t *testing.T) {
	a := New(WithThreshold(1))
	c := &countingCollector{a: a}
	c.onRun = func() { a.Resize(nil, 0, 10) }
	a.SetCollector(c)
	a.Resize(nil, 0, 10)
	require.Equal(t, 1, c.runs)
}

func TestExhaustion(t *testing.T) {
	var got error
	a := New(WithLimit(100), WithExhaustedHandler(func(err error) { got = err }))
	a.Resize(nil, 0, 90)
	require.Panics(t, func() { a.Resize(nil, 0, 20) })
	require.True(t, errors.Is(got, ErrExhausted))
	require.Equal(t, 90, a.Allocated())
}
