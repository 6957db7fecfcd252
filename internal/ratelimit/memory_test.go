package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAllowsUpToLimitPerWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := NewMemory(3, time.Minute)
	m.now = func() time.Time { return now }

	for i := range 3 {
		ok, err := m.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok, "event %d should be allowed", i)
	}
	ok, _ := m.Allow(ctx, "alice")
	assert.False(t, ok, "fourth event exceeds limit")

	// Keys are independent.
	ok, _ = m.Allow(ctx, "bob")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = m.Allow(ctx, "alice")
	assert.True(t, ok, "new window resets the counter")
}

func TestMemoryDisabled(t *testing.T) {
	m := NewMemory(0, time.Second)
	for range 100 {
		ok, err := m.Allow(context.Background(), "alice")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestMemoryForget(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1, time.Hour)

	ok, _ := m.Allow(ctx, "alice")
	require.True(t, ok)
	ok, _ = m.Allow(ctx, "alice")
	require.False(t, ok)

	m.Forget("alice")
	ok, _ = m.Allow(ctx, "alice")
	assert.True(t, ok)
}

func TestUnlimited(t *testing.T) {
	ok, err := Unlimited{}.Allow(context.Background(), "anyone")
	assert.NoError(t, err)
	assert.True(t, ok)
}
