package latch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTickler struct {
	mu    sync.Mutex
	calls []int
}

func (f *fakeTickler) Tickle(origin int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, origin)
}

func (f *fakeTickler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSpin_SetTicklesOnce(t *testing.T) {
	ft := &fakeTickler{}
	s := NewSpin(ft, 2)
	require.False(t, s.Probe())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set()
		}()
	}
	wg.Wait()

	require.True(t, s.Probe())
	require.Equal(t, 1, ft.count())
}

func TestCountdown_FiresOnceAllDone(t *testing.T) {
	ft := &fakeTickler{}
	c := NewCountdown(ft, -1, 4)

	for i := 0; i < 3; i++ {
		c.Done()
		require.False(t, c.Probe())
		require.Equal(t, 0, ft.count())
	}
	c.Done()
	require.True(t, c.Probe())
	require.Equal(t, 1, ft.count())
}

func TestCountdown_ZeroFiresImmediately(t *testing.T) {
	ft := &fakeTickler{}
	c := NewCountdown(ft, -1, 0)
	require.True(t, c.Probe())
	require.Equal(t, 1, ft.count())
}
