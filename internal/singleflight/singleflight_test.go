package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var calls atomic.Int32
	release := make(chan struct{})

	const callers = 16
	var wg sync.WaitGroup
	var sharedCount atomic.Int32
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			v, shared, err := g.Do(context.Background(), "k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
			if shared {
				sharedCount.Add(1)
			}
		}()
	}

	// Release the leader only once every follower has joined.
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		c, ok := g.m["k"]
		return ok && c.dups == callers-1
	}, 5*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(callers), sharedCount.Load())
	assert.False(t, g.InFlight("k"))
}

func TestGroup_FollowerCancellation(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	release := make(chan struct{})
	leaderDone := make(chan struct{})

	go func() {
		defer close(leaderDone)
		v, _, err := g.Do(context.Background(), "k", func() (int, error) {
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, v)
	}()
	require.Eventually(t, func() bool { return g.InFlight("k") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := g.Do(ctx, "k", func() (int, error) { return 2, nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-leaderDone
}

func TestGroup_ErrorAndPanic(t *testing.T) {
	t.Parallel()

	var g Group[int, string]
	boom := errors.New("boom")

	_, _, err := g.Do(context.Background(), 1, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	_, _, err = g.Do(context.Background(), 1, func() (string, error) { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	v, shared, err := g.Do(context.Background(), 1, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "ok", v)
}
