package dedup

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

func TestJoinOrCreateSharesOneCall(t *testing.T) {
	var g Group
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	factory := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "img", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	go func() {
		<-started
		// give the other callers time to join before releasing
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err, _ := g.JoinOrCreate(context.Background(), "k", factory)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, "img", r)
	}
	assert.Zero(t, g.InFlight())
}

func TestJoinOrCreateReleasesKeyAfterFailure(t *testing.T) {
	var g Group
	boom := errors.New("boom")

	_, err, _ := g.JoinOrCreate(context.Background(), "k", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	v, err, _ := g.JoinOrCreate(context.Background(), "k", func(context.Context) (string, error) {
		return "second", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.Zero(t, g.InFlight())
}

func TestJoinOrCreateCallerCancelDoesNotCancelFactory(t *testing.T) {
	var g Group
	release := make(chan struct{})
	factoryErr := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err, _ := g.JoinOrCreate(ctx, "k", func(fctx context.Context) (string, error) {
		<-release
		factoryErr <- fctx.Err()
		return "late", nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	// a second caller joins the still-running call and gets its result
	done := make(chan string, 1)
	go func() {
		v, _, _ := g.JoinOrCreate(context.Background(), "k", func(context.Context) (string, error) {
			return "duplicate", nil
		})
		done <- v
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.NoError(t, <-factoryErr)
	assert.Equal(t, "late", <-done)
}

func TestDistinctKeysRunIndependently(t *testing.T) {
	var g Group
	var calls atomic.Int32
	var wg sync.WaitGroup
	for _, k := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			v, err, _ := g.JoinOrCreate(context.Background(), k, func(context.Context) (string, error) {
				calls.Add(1)
				return k, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, k, v)
		}(k)
	}
	wg.Wait()
	assert.EqualValues(t, 3, calls.Load())
}
