package deque

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingTickler struct {
	n atomicInt
}

type atomicInt struct {
	mu sync.Mutex
	v  int
}

func (a *atomicInt) add(d int) {
	a.mu.Lock()
	a.v += d
	a.mu.Unlock()
}

func (a *atomicInt) get() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func (c *countingTickler) Tickle(int) {
	c.n.add(1)
}

func TestChase_PushPopOwnerOnly(t *testing.T) {
	ct := &countingTickler{}
	d := NewChase(ct, 0, 4)

	d.PushBottom(1)
	d.PushBottom(2)
	d.PushBottom(3)
	require.Equal(t, 3, ct.n.get())
	require.Equal(t, 3, d.Len())

	v, ok := d.PopBottom()
	require.True(t, ok)
	require.Equal(t, 3, v)
	require.Equal(t, 2, d.Len())
}

func TestChase_StealFromEmpty(t *testing.T) {
	d := NewChase(nil, 0, 4)
	_, ok := d.Steal()
	require.False(t, ok)
}

func TestChase_ConcurrentStealAndPop(t *testing.T) {
	const n = 2000
	d := NewChase(nil, 0, n)
	for i := 0; i < n; i++ {
		d.PushBottom(i)
	}

	var wg sync.WaitGroup
	results := make(chan int, n)
	thieves := 4
	for i := 0; i < thieves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := d.Steal()
				if !ok {
					if d.Len() == 0 {
						return
					}
					continue
				}
				results <- v.(int)
			}
		}()
	}

	go func() {
		for {
			v, ok := d.PopBottom()
			if !ok {
				break
			}
			results <- v.(int)
		}
	}()

	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for v := range results {
		require.False(t, seen[v], "task %d observed twice", v)
		seen[v] = true
	}
}

func TestInjector_PushPopFIFO(t *testing.T) {
	ct := &countingTickler{}
	q := NewInjector(ct, -1)
	q.Push("a")
	q.Push("b")
	require.Equal(t, 2, ct.n.get())

	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 1, q.Len())
}

func TestInjector_PopEmpty(t *testing.T) {
	q := NewInjector(nil, -1)
	_, ok := q.Pop()
	require.False(t, ok)
}
