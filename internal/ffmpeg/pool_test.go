package ffmpeg

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_LimitsConcurrency(t *testing.T) {
	p := NewPool("test", 1)

	var running int32
	var maxRunning int32
	var wg sync.WaitGroup

	run := func() {
		defer wg.Done()
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxRunning)
			if n <= old || atomic.CompareAndSwapInt32(&maxRunning, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	}

	wg.Add(3)
	go run()
	go run()
	go run()
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning, "pool with concurrency 1 must never run two invocations at once")
}

func TestPool_AcquireRespectsContextCancellation(t *testing.T) {
	p := NewPool("test", 1)
	err := p.sem.Acquire(context.Background(), 1)
	assert.NoError(t, err)
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Run(ctx, &Command{Binary: "ffmpeg", Args: []string{"-version"}})
	assert.Error(t, err)
}
