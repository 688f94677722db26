package httpserver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestGlobalConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(3)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.Equal(t, int64(3), limiter.Current())

	assert.False(t, limiter.Acquire())
	assert.Equal(t, int64(3), limiter.Current())

	limiter.Release()
	assert.Equal(t, int64(2), limiter.Current())
	assert.True(t, limiter.Acquire())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(100)
	var successCount, failCount atomic.Int64

	// Barrier so every goroutine races for a slot at once
	start := make(chan struct{})
	var wg sync.WaitGroup

	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Acquire() {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(100), successCount.Load())
	assert.Equal(t, int64(100), failCount.Load())
	assert.Equal(t, int64(100), limiter.Current())
}

func TestGlobalConnectionLimiter_ZeroMax(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(0)
	assert.False(t, limiter.Acquire())
}

func TestIPConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	assert.True(t, limiter.Acquire("192.168.1.1"))
	assert.True(t, limiter.Acquire("192.168.1.1"))
	assert.False(t, limiter.Acquire("192.168.1.1"))

	assert.True(t, limiter.Acquire("192.168.1.2"), "other IPs are independent")

	limiter.Release("192.168.1.1")
	assert.Equal(t, 1, limiter.Count("192.168.1.1"))
	assert.True(t, limiter.Acquire("192.168.1.1"))
}

func TestIPConnectionLimiter_ReleaseRemovesEmptyEntries(t *testing.T) {
	limiter := NewIPConnectionLimiter(5)

	assert.True(t, limiter.Acquire("192.168.1.1"))
	limiter.Release("192.168.1.1")
	limiter.Release("192.168.1.1") // extra release is harmless

	assert.Equal(t, 0, limiter.Count("192.168.1.1"))
	assert.Empty(t, limiter.ips)
}

func TestConnectionRateLimiter_BurstThenRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewConnectionRateLimiter(clock, 2.0, 2)

	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.False(t, limiter.Allow("192.168.1.1"))

	assert.True(t, limiter.Allow("192.168.1.2"), "each IP has its own bucket")

	clock.Advance(500 * time.Millisecond)
	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.False(t, limiter.Allow("192.168.1.1"))
}

func TestConnectionRateLimiter_CleanupDropsIdleEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewConnectionRateLimiter(clock, 10.0, 5)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")
	assert.Equal(t, 2, limiter.ActiveLimiters())

	clock.Advance(rateLimiterIdleExpiry / 2)
	limiter.Allow("192.168.1.2")

	clock.Advance(rateLimiterIdleExpiry/2 + time.Minute)
	limiter.Allow("192.168.1.3") // triggers the periodic sweep

	assert.Equal(t, 2, limiter.ActiveLimiters(), "only the idle IP is dropped")
}

func TestConnectionLimits_Reasons(t *testing.T) {
	tests := []struct {
		name       string
		globalMax  int64
		perIPMax   int
		burst      int
		sameIP     bool
		wantReason LimitReason
	}{
		{"global", 2, 100, 100, false, LimitReasonGlobal},
		{"per ip", 100, 2, 100, true, LimitReasonPerIP},
		{"rate", 100, 100, 2, true, LimitReasonRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := NewConnectionLimits(clockwork.NewFakeClock(), tt.globalMax, tt.perIPMax, 1, tt.burst)

			for i := range 2 {
				ip := fmt.Sprintf("10.0.0.%d", i)
				if tt.sameIP {
					ip = "10.0.0.1"
				}
				ok, _ := limits.Acquire(ip)
				assert.True(t, ok)
			}

			ip := "10.0.0.9"
			if tt.sameIP {
				ip = "10.0.0.1"
			}
			ok, reason := limits.Acquire(ip)
			assert.False(t, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestConnectionLimits_RollbackOnPerIPFailure(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 100, 1, 100, 100)

	ok, _ := limits.Acquire("192.168.1.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("192.168.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), limits.global.Current(), "global slot is returned")

	limits.Release("192.168.1.1")
	assert.Equal(t, int64(0), limits.global.Current())
}

func TestConnectionLimits_Concurrent(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 50, 5, 100, 100)

	var wg sync.WaitGroup
	var held atomic.Int64
	release := make(chan struct{})

	for ip := range 10 {
		for range 10 {
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				if ok, _ := limits.Acquire(ip); ok {
					held.Add(1)
					<-release
					limits.Release(ip)
				}
			}(fmt.Sprintf("192.168.1.%d", ip))
		}
	}

	assert.Eventually(t, func() bool { return held.Load() == 50 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(50), held.Load())
	assert.Equal(t, int64(0), limits.global.Current())
}
