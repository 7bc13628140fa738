package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_SerialOrder(t *testing.T) {
	q := New()
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Async(func() {
			got = append(got, i)
		})
	}

	// Sync acts as a barrier: everything submitted before it has run.
	q.Sync(func() {})

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestQueue_Sync(t *testing.T) {
	q := New()
	defer q.Close()

	ran := false
	q.Sync(func() { ran = true })
	assert.True(t, ran)
}

func TestQueue_CloseDrains(t *testing.T) {
	q := New()

	var count atomic.Int32
	for i := 0; i < 50; i++ {
		q.Async(func() { count.Add(1) })
	}

	q.Close()
	assert.Equal(t, int32(50), count.Load())
}

func TestQueue_CloseIdempotent(t *testing.T) {
	q := New()
	q.Close()
	require.NotPanics(t, q.Close)
}

func TestQueue_AsyncAfterClose(t *testing.T) {
	q := New()
	q.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := make(chan struct{})
	q.Async(func() {
		close(ran)
		wg.Done()
	})
	wg.Wait()

	select {
	case <-ran:
	default:
		t.Fatal("job submitted after close never ran")
	}
}

func TestQueue_ConcurrentSubmitters(t *testing.T) {
	q := New()

	var count atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				q.Async(func() { count.Add(1) })
			}
		}()
	}
	wg.Wait()
	q.Close()

	assert.Equal(t, int64(8*200), count.Load())
}
