package storage

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	pool := NewPool(2, 8)

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, pool.Submit(func() { ran.Add(1) }))
	}

	pool.Close()
	assert.Equal(t, int32(8), ran.Load())
}

func TestPoolBackPressure(t *testing.T) {
	pool := NewPool(1, 2)
	defer pool.Close()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit(func() {
		defer wg.Done()
		<-block
	}))

	// Fill the queue behind the blocked worker.
	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))

	// Queue is full now: the pool rejects instead of growing.
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	wg.Wait()
}

func TestPoolCloseDrainsQueue(t *testing.T) {
	pool := NewPool(1, 16)

	var ran atomic.Int32
	for i := 0; i < 16; i++ {
		require.NoError(t, pool.Submit(func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}))
	}

	pool.Close()
	assert.Equal(t, int32(16), ran.Load())
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Close()

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestSubmitOrInlineFallsBack(t *testing.T) {
	// Nil pool runs the task synchronously.
	ran := false
	submitOrInline(nil, func() { ran = true })
	assert.True(t, ran)

	// Saturated pool runs the task inline too.
	pool := NewPool(1, 1)
	defer pool.Close()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Submit(func() {
		defer wg.Done()
		<-block
	}))
	require.NoError(t, pool.Submit(func() {}))

	inline := false
	submitOrInline(pool, func() { inline = true })
	assert.True(t, inline)

	close(block)
	wg.Wait()
}
