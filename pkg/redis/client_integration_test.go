//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: go test -tags=integration ./pkg/redis/...
func TestBlobRoundTripAndFlush(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()
	prefix := fmt.Sprintf("test:%d:", time.Now().UnixNano())

	_, found, err := c.GetBlob(ctx, prefix+"missing")
	require.NoError(t, err)
	assert.False(t, found)

	for i := range 300 {
		require.NoError(t, c.SetBlob(ctx, fmt.Sprintf("%sshard_%d", prefix, i), []byte("x"), time.Minute))
	}
	data, found, err := c.GetBlob(ctx, prefix+"shard_7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("x"), data)

	deleted, err := c.FlushPrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, int64(300), deleted)
}
