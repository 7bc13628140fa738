package webimg

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PublishOrder(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan struct{})

	require.NoError(t, n.Subscribe(TopicDownloadStarted, func(i int) {
		mu.Lock()
		seen = append(seen, i)
		full := len(seen) == 10
		mu.Unlock()
		if full {
			close(done)
		}
	}))

	for i := 0; i < 10; i++ {
		n.Publish(TopicDownloadStarted, i)
	}

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	var calls int
	fired := make(chan struct{}, 2)
	handler := func() {
		calls++
		fired <- struct{}{}
	}

	require.NoError(t, n.Subscribe(TopicLowMemory, handler))
	n.Publish(TopicLowMemory)

	select {
	case <-fired:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for first event")
	}

	require.NoError(t, n.Unsubscribe(TopicLowMemory, handler))
	n.Publish(TopicLowMemory)

	// Publish a sentinel on another topic behind the removed handler; once
	// it lands the earlier publish has already been delivered (or dropped).
	sentinel := make(chan struct{})
	require.NoError(t, n.Subscribe(TopicTerminate, func() { close(sentinel) }))
	n.Publish(TopicTerminate)

	select {
	case <-sentinel:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for sentinel")
	}
	assert.Equal(t, 1, calls)
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier

	assert.NotPanics(t, func() {
		n.Publish(TopicDownloadStopped, (*DownloadTask)(nil))
		n.Close()
	})
}

func TestNopEnvironment(t *testing.T) {
	end := NopEnvironment{}.BeginBackgroundTask("anything", func() {
		t.Fatal("allowance must never expire")
	})

	require.NotNil(t, end)
	assert.NotPanics(t, func() {
		end()
		end()
	})
}
