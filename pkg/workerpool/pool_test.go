package workerpool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_Submit(t *testing.T) {
	t.Parallel()
	p := New(4)
	defer p.Close()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.True(t, p.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&counter))
}

func TestPool_NeverExceedsCap(t *testing.T) {
	t.Parallel()
	p := New(3)
	defer p.Close()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.LessOrEqual(t, p.Running(), p.Cap())
}

func TestPool_Running(t *testing.T) {
	t.Parallel()
	p := New(4)
	defer p.Close()

	blocker := make(chan struct{})
	for i := 0; i < 4; i++ {
		p.Submit(func() { <-blocker })
	}
	assert.Eventually(t, func() bool { return p.Running() == 4 }, time.Second, 5*time.Millisecond)
	close(blocker)
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	t.Parallel()
	p := New(2)

	var counter int64
	for i := 0; i < 20; i++ {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, 1)
		})
	}
	p.Close()
	assert.Equal(t, int64(20), atomic.LoadInt64(&counter))
	assert.True(t, p.IsClosed())
	assert.Zero(t, p.Running())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	t.Parallel()
	p := New(2)
	p.Close()
	p.Close() // second close is a no-op

	assert.False(t, p.Submit(func() {}))
	assert.ErrorIs(t, p.SubmitCtx(context.Background(), func() {}), ErrClosed)
}

func TestPool_SubmitCtxCancelled(t *testing.T) {
	t.Parallel()
	p := New(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.SubmitCtx(ctx, func() {}), context.Canceled)
}

func TestPool_ConcurrentSubmitAndClose(t *testing.T) {
	t.Parallel()
	p := New(4)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(func() {})
		}()
	}
	p.Close()
	wg.Wait()
}

func TestPool_PanicRecovery(t *testing.T) {
	t.Parallel()

	var panics int32
	p := New(2,
		WithLogger(quietLogger()),
		WithPanicHandler(func(any) { atomic.AddInt32(&panics, 1) }),
	)
	defer p.Close()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		p.Submit(func() {
			defer wg.Done()
			if i%2 == 0 {
				panic("boom")
			}
			atomic.AddInt64(&counter, 1)
		})
	}
	wg.Wait()

	assert.Equal(t, int64(5), atomic.LoadInt64(&counter))
	// The handler runs after the task's deferred Done.
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&panics) == 5 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, p.Running(), 2)
}

func TestPool_ParallelFor(t *testing.T) {
	t.Parallel()
	p := New(4)
	defer p.Close()

	seen := make([]int32, 50)
	p.ParallelFor(context.Background(), len(seen), func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestPool_ParallelForCancelled(t *testing.T) {
	t.Parallel()
	p := New(2)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	p.ParallelFor(ctx, 10, func(int) { atomic.AddInt32(&calls, 1) })
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestPool_Map(t *testing.T) {
	t.Parallel()
	p := New(3)
	defer p.Close()

	got := Map(p, []int{1, 2, 3, 4, 5}, func(v int) int { return v * v })
	assert.Equal(t, []int{1, 4, 9, 16, 25}, got)
}

func TestPool_MapWithClosedPool(t *testing.T) {
	t.Parallel()
	p := New(2)
	p.Close()

	got := Map(p, []string{"a", "b"}, func(v string) string { return v + "!" })
	assert.Equal(t, []string{"", ""}, got)
}

func TestNew_ZeroWorkers(t *testing.T) {
	t.Parallel()
	p := New(0)
	defer p.Close()
	assert.Positive(t, p.Cap())
}
