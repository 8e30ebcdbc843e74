package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobalConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(3)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.Equal(t, int64(3), limiter.Current())

	// 4th acquire should fail
	assert.False(t, limiter.Acquire())
	assert.Equal(t, int64(3), limiter.Current())

	limiter.Release()
	assert.Equal(t, int64(2), limiter.Current())

	assert.True(t, limiter.Acquire())
	assert.Equal(t, int64(3), limiter.Current())
}

func TestGlobalConnectionLimiter_ZeroDisablesLimit(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(0)

	for i := 0; i < 1000; i++ {
		assert.True(t, limiter.Acquire())
	}
	assert.Equal(t, int64(1000), limiter.Current())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(100)
	var successCount, failCount int64

	// Barrier so all goroutines race the same capacity window
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Acquire() {
				atomic.AddInt64(&successCount, 1)
			} else {
				atomic.AddInt64(&failCount, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(100), successCount)
	assert.Equal(t, int64(100), failCount)
	assert.Equal(t, int64(100), limiter.Current())
}

func TestIPConnectionLimiter_PerIPIsolation(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	assert.True(t, limiter.Acquire("10.0.0.1"))
	assert.True(t, limiter.Acquire("10.0.0.1"))
	assert.False(t, limiter.Acquire("10.0.0.1"))

	// A different IP has its own budget
	assert.True(t, limiter.Acquire("10.0.0.2"))

	limiter.Release("10.0.0.1")
	assert.True(t, limiter.Acquire("10.0.0.1"))
	assert.Equal(t, 2, limiter.Count("10.0.0.1"))
	assert.Equal(t, 1, limiter.Count("10.0.0.2"))
}

func TestIPConnectionLimiter_ReleaseUnknownIPIsNoop(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	limiter.Release("192.0.2.1")
	assert.Equal(t, 0, limiter.Count("192.0.2.1"))
}

func TestIPConnectionLimiter_ZeroDisablesLimit(t *testing.T) {
	limiter := NewIPConnectionLimiter(0)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Acquire("10.0.0.1"))
	}
}

func TestConnectionRateLimiter_BurstThenThrottle(t *testing.T) {
	limiter := NewConnectionRateLimiter(1, 3)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	// Independent bucket per IP
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestConnectionRateLimiter_ZeroDisablesLimit(t *testing.T) {
	limiter := NewConnectionRateLimiter(0, 0)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
}
