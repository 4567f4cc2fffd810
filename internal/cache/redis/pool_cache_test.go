package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "pool:polygon:0xabc", poolKey("Polygon", "0xABC"))
	assert.Equal(t, "lock:distribution:daily", lockKey("distribution:daily"))
	assert.Equal(t, "ratelimit:api:1.2.3.4", rateLimitKey("api:1.2.3.4"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("distribution.*"))
	assert.False(t, hasPattern("distribution"))
}
