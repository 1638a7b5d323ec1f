package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_RejectsBurstAboveLimit(t *testing.T) {
	l := NewLimiter(60, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, l.AllowAt("s-1", now), "command %d", i)
	}
	assert.False(t, l.AllowAt("s-1", now))

	// One token per second refills.
	assert.True(t, l.AllowAt("s-1", now.Add(time.Second)))
	assert.False(t, l.AllowAt("s-1", now.Add(time.Second)))
}

func TestLimiter_SessionsAreIndependent(t *testing.T) {
	l := NewLimiter(60, 1)
	now := time.Now()

	assert.True(t, l.AllowAt("s-1", now))
	assert.False(t, l.AllowAt("s-1", now))
	assert.True(t, l.AllowAt("s-2", now))
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_ForgetResetsBucket(t *testing.T) {
	l := NewLimiter(1, 1)
	assert.True(t, l.Allow("s-1"))
	assert.False(t, l.Allow("s-1"))
	assert.Greater(t, l.RetryAfter("s-1"), 30*time.Second)

	l.Forget("s-1")
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Allow("s-1"))
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("s-1"))
	}
}
