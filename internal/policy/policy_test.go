package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTable(t *testing.T) {
	p := Default()
	want := []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second, 300 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, p.Wait(i), "attempt %d", i)
	}
}

func TestWaitClampsPastTable(t *testing.T) {
	p := Default()
	for _, i := range []int{5, 6, 100} {
		assert.Equal(t, 300*time.Second, p.Wait(i), "attempt %d should clamp to last entry", i)
	}
	assert.Equal(t, 5*time.Second, p.Wait(-1), "negative index clamps to first entry")
}

func TestShouldRetry(t *testing.T) {
	p := Default()
	for i := 0; i < MaxAttempts; i++ {
		assert.True(t, p.ShouldRetry(i), "attempt %d", i)
	}
	assert.False(t, p.ShouldRetry(MaxAttempts))
	assert.False(t, p.ShouldRetry(MaxAttempts+1))
}

func TestEmptyBackoffTable(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.Equal(t, time.Duration(0), p.Wait(0))
}
