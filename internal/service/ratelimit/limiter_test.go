package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenRefill(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(2, 1, WithClock(func() time.Time { return now }))

	assert.True(t, l.Allow("AAPL"))
	assert.True(t, l.Allow("AAPL"))
	assert.False(t, l.Allow("AAPL"))

	now = now.Add(500 * time.Millisecond)
	assert.False(t, l.Allow("AAPL"))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("AAPL"))
	assert.False(t, l.Allow("AAPL"))
}

func TestAllowKeysAreIndependent(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(1, 0.1, WithClock(func() time.Time { return now }))

	assert.True(t, l.Allow("AAPL"))
	assert.False(t, l.Allow("AAPL"))
	assert.True(t, l.Allow("MSFT"))
	assert.Equal(t, 2, l.Len())
}

func TestRefillCapsAtCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(2, 10, WithClock(func() time.Time { return now }))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}
