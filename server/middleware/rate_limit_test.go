package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 2)

	assert.True(t, rl.AllowUser(1))
	assert.True(t, rl.AllowUser(1))
	assert.False(t, rl.AllowUser(1))
}

func TestRateLimiter_IsolatedPerUser(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 1)

	assert.True(t, rl.AllowUser(1))
	assert.False(t, rl.AllowUser(1))

	// A different user has a fresh bucket.
	assert.True(t, rl.AllowUser(2))
}

func TestRateLimiter_ZeroConfigDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.True(t, rl.AllowUser(1))
}
